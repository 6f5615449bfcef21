package chat

// Capability interfaces for the plugin hook pipeline. A plugin opts
// into an extension point by implementing it; the room iterates only
// over plugins that provide the hook, in ascending priority order. A
// hook error aborts the remaining chain for that event and surfaces
// through the same error path as command failures.

// BeforeJoinHook may reject or prepare a join before membership is
// granted.
type BeforeJoinHook interface {
	BeforeConnectionJoinedRoom(conn *Connection) error
}

// JoinedHook fires once membership is granted, e.g. to deliver history.
type JoinedHook interface {
	ConnectionJoinedRoom(conn *Connection) error
}

// AuthenticatedHook fires once a connection's identity is established.
type AuthenticatedHook interface {
	ConnectionAuthenticated(conn *Connection) error
}

// NewMessageHook transforms inbound text before command parsing.
type NewMessageHook interface {
	NewMessage(text string, conn *Connection) (string, error)
}

// BeforeBroadcastHook transforms a message before it is broadcast and
// stored. conn may be nil for messages without an originating
// connection.
type BeforeBroadcastHook interface {
	BeforeMessageBroadcast(msg *Message, conn *Connection) (*Message, error)
}

// ClosedHook runs cleanup when a connection detaches.
type ClosedHook interface {
	ConnectionClosed(conn *Connection) error
}

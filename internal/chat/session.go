package chat

import (
	"strings"
	"sync"

	"github.com/kbessonov/roomhub/internal/store"
)

// Session aggregates every Connection sharing one logical identity. It
// is the broadcast target for identity-scoped events such as private
// messages.
type Session struct {
	mu          sync.Mutex
	identifier  string
	user        store.User
	connections []*Connection
	// ephemeral per-plugin cache, reset when the session dies.
	pluginData map[string]any
}

func newSession(identifier string) *Session {
	return &Session{
		identifier: identifier,
		user:       store.Guest(identifier),
		pluginData: map[string]any{},
	}
}

func (s *Session) Identifier() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identifier
}

func (s *Session) User() store.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// SetUser upgrades the session identity in place. The identifier
// becomes the lowercased username, matching registry keying.
func (s *Session) SetUser(u store.User) {
	s.mu.Lock()
	s.user = u
	s.identifier = strings.ToLower(u.Username)
	s.mu.Unlock()
}

// AttachConnection takes ownership of conn. Attaching a connection
// already owned by this session is a no-op; a connection owned by
// another session is detached from it first.
func (s *Session) AttachConnection(conn *Connection) {
	if conn.Session() == s {
		return
	}
	if prev := conn.Session(); prev != nil {
		prev.DetachConnection(conn)
	}
	s.mu.Lock()
	s.connections = append(s.connections, conn)
	s.mu.Unlock()
	conn.setSession(s)
}

// DetachConnection releases conn. Idempotent.
func (s *Session) DetachConnection(conn *Connection) {
	s.mu.Lock()
	for i, c := range s.connections {
		if c == conn {
			s.connections = append(s.connections[:i], s.connections[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	if conn.Session() == s {
		conn.setSession(nil)
	}
}

// Connections returns a snapshot of the owned connections.
func (s *Session) Connections() []*Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Connection, len(s.connections))
	copy(out, s.connections)
	return out
}

func (s *Session) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}

// Send delivers one event to every connection of this session.
func (s *Session) Send(event string, payload any) {
	for _, conn := range s.Connections() {
		conn.Send(event, payload)
	}
}

// PluginGet reads a value from the ephemeral per-plugin cache.
func (s *Session) PluginGet(plugin string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.pluginData[plugin]
	return v, ok
}

// PluginSet stores a value in the ephemeral per-plugin cache.
func (s *Session) PluginSet(plugin string, value any) {
	s.mu.Lock()
	s.pluginData[plugin] = value
	s.mu.Unlock()
}

package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kbessonov/roomhub/internal/store"
	"github.com/kbessonov/roomhub/pkg/chaterr"
)

const (
	// DefaultHistoryLen is the number of messages kept in memory.
	DefaultHistoryLen = 1000
	// DefaultVisibleLen is the slice sent to joining connections.
	DefaultVisibleLen = 128
)

// Deps wires a room to its collaborators. Messages and Users may be nil
// when the room runs without persistence (tests, ephemeral rooms).
type Deps struct {
	Messages   store.MessageStore
	Users      store.UserDirectory
	Sessions   *Registry
	IsOperator func(identifier string) bool
	HistoryLen int
	VisibleLen int
	Logger     *slog.Logger
}

// Room is a broadcast domain: attached connections, bounded message
// history and the plugin hook pipeline.
type Room struct {
	ID   int64
	Name string

	deps     Deps
	commands map[string]Command
	plugins  []Plugin
	logger   *slog.Logger

	mu       sync.Mutex
	conns    []*Connection
	messages []*Message
	locked   bool
}

type SanitizedRoom struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func NewRoom(id int64, name string, pluginNames []string, deps Deps) (*Room, error) {
	if deps.HistoryLen <= 0 {
		deps.HistoryLen = DefaultHistoryLen
	}
	if deps.VisibleLen <= 0 || deps.VisibleLen > deps.HistoryLen {
		deps.VisibleLen = min(DefaultVisibleLen, deps.HistoryLen)
	}
	if deps.IsOperator == nil {
		deps.IsOperator = func(string) bool { return false }
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	room := &Room{
		ID:     id,
		Name:   name,
		deps:   deps,
		logger: deps.Logger.With(slog.String("component", "room"), slog.Int64("roomID", id)),
	}
	commands, plugins, err := instantiateCommands(room, pluginNames)
	if err != nil {
		return nil, err
	}
	room.commands = commands
	room.plugins = plugins
	return room, nil
}

func (r *Room) Deps() Deps { return r.deps }

func (r *Room) Sanitized() SanitizedRoom {
	return SanitizedRoom{ID: r.ID, Name: r.Name}
}

// IsOperator reports whether identifier is a recognized operator.
func (r *Room) IsOperator(identifier string) bool {
	return r.deps.IsOperator(identifier)
}

// SetLocked gates new broadcasts. Locked rooms reject sendMessage
// without an explicit bypass.
func (r *Room) SetLocked(locked bool) {
	r.mu.Lock()
	r.locked = locked
	r.mu.Unlock()
}

func (r *Room) Locked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locked
}

// GetCommand resolves a command or plugin by name or alias.
func (r *Room) GetCommand(name string) (Command, bool) {
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Commands returns the alias index. Exposed for help listings.
func (r *Room) Commands() map[string]Command { return r.commands }

// --- Membership ---

// AttachConnection grants conn membership. Attaching a connection that
// is already a member is a no-op; membership elsewhere is released
// first. The before-join hooks may reject the join.
func (r *Room) AttachConnection(conn *Connection) error {
	if conn.Room() == r {
		return nil
	}
	if prev := conn.Room(); prev != nil {
		prev.DetachConnection(conn)
	}
	if err := r.execBeforeJoinHooks(conn); err != nil {
		return err
	}
	r.mu.Lock()
	r.conns = append(r.conns, conn)
	r.mu.Unlock()
	conn.setRoom(r)
	return r.execJoinedHooks(conn)
}

// DetachConnection removes conn from membership. Idempotent.
func (r *Room) DetachConnection(conn *Connection) {
	r.mu.Lock()
	for i, c := range r.conns {
		if c == conn {
			r.conns = append(r.conns[:i], r.conns[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	if conn.Room() == r {
		conn.setRoom(nil)
	}
}

// OnConnectionClosed runs the closed hook chain, then detaches. Hook
// failures are logged; detach is unconditional.
func (r *Room) OnConnectionClosed(conn *Connection) {
	for _, p := range r.plugins {
		hook, ok := p.(ClosedHook)
		if !ok {
			continue
		}
		if err := hook.ConnectionClosed(conn); err != nil {
			r.logger.Warn("connection-closed hook failed",
				slog.String("plugin", p.Name()), slog.Any("error", err))
			break
		}
	}
	r.DetachConnection(conn)
}

// Connections returns a snapshot of the membership.
func (r *Room) Connections() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Connection, len(r.conns))
	copy(out, r.conns)
	return out
}

func (r *Room) ConnectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// ContainsUser reports whether any member connection belongs to userID.
func (r *Room) ContainsUser(userID int64) bool {
	for _, conn := range r.Connections() {
		if sess := conn.Session(); sess != nil && sess.User().ID == userID {
			return true
		}
	}
	return false
}

// --- Broadcast & history ---

// Broadcast fans one event out to every member. Delivery is atomic with
// respect to membership changes.
func (r *Room) Broadcast(event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conn := range r.conns {
		conn.Send(event, payload)
	}
}

// SendMessageOptions configures one sendMessage invocation.
type SendMessageOptions struct {
	Author  store.User
	Content string
	Quoted  *Message
	// Connection, when set, contributes device/ip metadata.
	Connection *Connection
	BypassLock bool
}

// SendMessage builds a message, runs the before-broadcast transform
// chain, fans the result out to the membership, appends it to the
// bounded history and finally persists it best-effort.
func (r *Room) SendMessage(opts SendMessageOptions) (*Message, error) {
	if r.Locked() && !opts.BypassLock {
		return nil, chaterr.New(chaterr.RoomLocked, "unable to broadcast message because the room is locked")
	}

	msg := NewMessage(r.ID, opts.Author, opts.Content)
	msg.Quoted = opts.Quoted
	if opts.Connection != nil {
		msg.Meta = Meta{Device: opts.Connection.Device(), IP: opts.Connection.IP()}
	}

	var err error
	msg, err = r.execBeforeBroadcastHooks(msg, opts.Connection)
	if err != nil {
		return nil, err
	}

	// Fan-out and history append commit together, before persistence
	// gets a chance to suspend.
	sanitized := msg.Sanitized()
	r.mu.Lock()
	for _, conn := range r.conns {
		conn.Send("message", sanitized)
	}
	r.messages = append(r.messages, msg)
	if excess := len(r.messages) - r.deps.HistoryLen; excess > 0 {
		r.messages = r.messages[excess:]
	}
	r.mu.Unlock()

	if r.deps.Messages != nil {
		go r.persist(msg)
	}
	return msg, nil
}

// persist writes one message to the durable store. Failure is reported,
// never rolled back into room state.
func (r *Room) persist(msg *Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rec := store.MessageRecord{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		UserID:    msg.Author.ID,
		Username:  msg.Author.Username,
		Content:   msg.Content(),
		CreatedAt: msg.CreatedAt,
		IP:        msg.Meta.IP,
	}
	if msg.Quoted != nil {
		rec.QuotedID = msg.Quoted.ID
	}
	if err := r.deps.Messages.Append(ctx, rec); err != nil {
		r.logger.Error("failed to persist message",
			slog.Int64("messageID", msg.ID), slog.Any("error", err))
	}
}

// SendHistory delivers the visible history slice, oldest to newest, to
// exactly one connection.
func (r *Room) SendHistory(conn *Connection) {
	r.mu.Lock()
	start := len(r.messages) - r.deps.VisibleLen
	if start < 0 {
		start = 0
	}
	sanitized := make([]SanitizedMessage, 0, len(r.messages)-start)
	for _, msg := range r.messages[start:] {
		sanitized = append(sanitized, msg.Sanitized())
	}
	r.mu.Unlock()
	conn.Send("messages", sanitized)
}

// ClearHistory applies the edit-to-deleted transform to every stored
// message and broadcasts a message-edit per entry. The history length
// does not shrink.
func (r *Room) ClearHistory() {
	r.mu.Lock()
	msgs := make([]*Message, len(r.messages))
	copy(msgs, r.messages)
	r.mu.Unlock()
	for _, msg := range msgs {
		msg.Edit("<i>deleted</i>")
		r.Broadcast("message-edit", msg.Sanitized())
	}
}

// MessageByID finds a message in the in-memory history.
func (r *Room) MessageByID(id int64) (*Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if msg.ID == id {
			return msg, true
		}
	}
	return nil, false
}

// LastMessage returns the newest history entry, if any.
func (r *Room) LastMessage() (*Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return nil, false
	}
	return r.messages[len(r.messages)-1], true
}

func (r *Room) HistoryLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

// LoadHistory seeds the in-memory history from the durable store and
// bumps the message id counter past the newest persisted id.
func (r *Room) LoadHistory(ctx context.Context) error {
	if r.deps.Messages == nil {
		return nil
	}
	recs, err := r.deps.Messages.LastByRoom(ctx, r.ID, r.deps.HistoryLen)
	if err != nil {
		return chaterr.Wrap(chaterr.Collaborator, "load room history", err)
	}
	msgs := make([]*Message, 0, len(recs))
	byID := make(map[int64]*Message, len(recs))
	var maxID int64
	for _, rec := range recs {
		msg := &Message{
			ID:        rec.ID,
			RoomID:    rec.RoomID,
			Author:    store.User{ID: rec.UserID, Username: rec.Username},
			CreatedAt: rec.CreatedAt,
			content:   rec.Content,
		}
		if rec.QuotedID != 0 {
			// Records come back oldest first, so a quoted message is
			// already indexed unless it fell out of the loaded window.
			msg.Quoted = byID[rec.QuotedID]
		}
		msgs = append(msgs, msg)
		byID[msg.ID] = msg
		if rec.ID > maxID {
			maxID = rec.ID
		}
	}
	BumpMessageID(maxID)
	r.mu.Lock()
	r.messages = msgs
	r.mu.Unlock()
	r.logger.Info("history loaded", slog.Int("messages", len(msgs)))
	return nil
}

// --- Dispatch ---

// HandleMessage is the entry point for one inbound chat line: the
// new-message transform chain, command parsing, rule validation and
// handler execution. Every failure is returned to the caller, which
// reports it back on the originating connection.
func (r *Room) HandleMessage(line string, conn *Connection) error {
	line, err := r.execNewMessageHooks(line, conn)
	if err != nil {
		return err
	}
	name, param := ParseMessage(line)
	cmd, ok := r.commands[name]
	if !ok {
		return chaterr.Newf(chaterr.UnknownCommand, "command '%s' does not exist", name)
	}
	return r.ExecuteCommand(cmd, name, param, conn)
}

// ExecuteCommand runs the validation pipeline for one resolved alias,
// then the handler body. Rate-limit state is stamped before the handler
// runs, so a suspending body cannot slip past its own limit.
func (r *Room) ExecuteCommand(cmd Command, alias, param string, conn *Connection) error {
	rule := cmd.Rules()[alias]
	if rule == nil {
		rule = &Rule{}
	}
	if err := validateRule(alias, param, rule); err != nil {
		return err
	}

	sess := conn.Session()
	if sess == nil {
		return chaterr.New(chaterr.Permission, "connection has no session")
	}
	if sess.User().Right < cmd.MinRight() {
		return chaterr.Newf(chaterr.Permission, "you don't have the right to use /%s", alias)
	}
	if cmd.OpOnly() && !r.IsOperator(sess.Identifier()) {
		return chaterr.Newf(chaterr.Permission, "/%s is only available to operators", alias)
	}

	if limiter, ok := cmd.(rateLimited); ok {
		if err := limiter.checkAndStamp(alias, rule, sess.Identifier(), time.Now()); err != nil {
			return err
		}
	}
	return cmd.Run(alias, param, conn)
}

// --- Hook pipeline ---

func (r *Room) execBeforeJoinHooks(conn *Connection) error {
	for _, p := range r.plugins {
		if hook, ok := p.(BeforeJoinHook); ok {
			if err := hook.BeforeConnectionJoinedRoom(conn); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Room) execJoinedHooks(conn *Connection) error {
	for _, p := range r.plugins {
		if hook, ok := p.(JoinedHook); ok {
			if err := hook.ConnectionJoinedRoom(conn); err != nil {
				return err
			}
		}
	}
	return nil
}

// RunAuthenticatedHooks fires the authenticated chain once a
// connection's identity is established.
func (r *Room) RunAuthenticatedHooks(conn *Connection) error {
	for _, p := range r.plugins {
		if hook, ok := p.(AuthenticatedHook); ok {
			if err := hook.ConnectionAuthenticated(conn); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Room) execNewMessageHooks(text string, conn *Connection) (string, error) {
	var err error
	for _, p := range r.plugins {
		if hook, ok := p.(NewMessageHook); ok {
			text, err = hook.NewMessage(text, conn)
			if err != nil {
				return "", err
			}
		}
	}
	return text, nil
}

func (r *Room) execBeforeBroadcastHooks(msg *Message, conn *Connection) (*Message, error) {
	var err error
	for _, p := range r.plugins {
		if hook, ok := p.(BeforeBroadcastHook); ok {
			msg, err = hook.BeforeMessageBroadcast(msg, conn)
			if err != nil {
				return nil, err
			}
		}
	}
	return msg, nil
}

package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbessonov/roomhub/internal/chat"
	"github.com/kbessonov/roomhub/internal/store"
	"github.com/kbessonov/roomhub/pkg/chaterr"
	"github.com/kbessonov/roomhub/pkg/logging"
	"github.com/kbessonov/roomhub/pkg/protocol"
)

type fakeTransport struct {
	id uuid.UUID

	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{id: uuid.New()}
}

func (t *fakeTransport) Send(frame []byte) {
	t.mu.Lock()
	t.frames = append(t.frames, frame)
	t.mu.Unlock()
}

func (t *fakeTransport) Close(err error) {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (t *fakeTransport) ID() uuid.UUID { return t.id }

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) sent(event string) []json.RawMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []json.RawMessage
	for _, frame := range t.frames {
		var env protocol.Envelope
		if json.Unmarshal(frame, &env) == nil && env.Event == event {
			out = append(out, env.Data)
		}
	}
	return out
}

func newTestRoom(t *testing.T, plugins ...string) *chat.Room {
	t.Helper()
	RegisterAll()
	room, err := chat.NewRoom(1, "main", plugins, chat.Deps{
		Sessions:   chat.NewRegistry(0, logging.Discard()),
		IsOperator: func(identifier string) bool { return identifier == "op" },
		HistoryLen: 100,
		VisibleLen: 50,
		Logger:     logging.Discard(),
	})
	require.NoError(t, err)
	return room
}

func join(t *testing.T, room *chat.Room, identifier string, user store.User) (*chat.Connection, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	conn := chat.NewConnection(tr, "127.0.0.1", "test", logging.Discard())
	sess := room.Deps().Sessions.GetOrCreate(identifier)
	if !user.IsGuest() {
		sess.SetUser(user)
	}
	sess.AttachConnection(conn)
	require.NoError(t, room.AttachConnection(conn))
	return conn, tr
}

func TestSanitizerEscapesBroadcastContent(t *testing.T) {
	room := newTestRoom(t, "sanitizer", "message")
	conn, tr := join(t, room, "*guest1", store.User{})

	require.NoError(t, room.HandleMessage("  <b>hi</b>  ", conn))

	payloads := tr.sent("message")
	require.Len(t, payloads, 1)
	var msg chat.SanitizedMessage
	require.NoError(t, json.Unmarshal(payloads[0], &msg))
	assert.Equal(t, "&lt;b&gt;hi&lt;/b&gt;", msg.Content)
}

func TestEmptyMessageRejected(t *testing.T) {
	room := newTestRoom(t, "sanitizer", "message")
	conn, tr := join(t, room, "*guest1", store.User{})

	err := room.HandleMessage("   ", conn)
	require.Error(t, err)
	assert.True(t, chaterr.Is(err, chaterr.ParamCount))
	assert.Empty(t, tr.sent("message"))
}

func TestUnknownCommand(t *testing.T) {
	room := newTestRoom(t, "message")
	conn, _ := join(t, room, "*guest1", store.User{})

	err := room.HandleMessage("/doesnotexist", conn)
	require.Error(t, err)
	assert.True(t, chaterr.Is(err, chaterr.UnknownCommand))
}

func TestHelpListsVisibleCommands(t *testing.T) {
	room := newTestRoom(t, "sanitizer", "message", "help", "historyclear")
	conn, tr := join(t, room, "*guest1", store.User{})
	_, other := join(t, room, "*guest2", store.User{})

	require.NoError(t, room.HandleMessage("/help", conn))

	payloads := tr.sent("message")
	require.Len(t, payloads, 1)
	var msg chat.SanitizedMessage
	require.NoError(t, json.Unmarshal(payloads[0], &msg))
	assert.Contains(t, msg.Content, "/help")
	assert.Contains(t, msg.Content, "/historyclear (alias: /hc)")
	assert.NotContains(t, msg.Content, "sanitizer")

	// The listing goes to the caller only.
	assert.Empty(t, other.sent("message"))
	assert.Zero(t, room.HistoryLen())
}

func TestKickClosesTargetConnections(t *testing.T) {
	room := newTestRoom(t, "kick")
	admin, _ := join(t, room, "admin", store.User{ID: 1, Username: "Admin", Right: 40})
	_, bobTr := join(t, room, "bob", store.User{ID: 2, Username: "Bob"})

	require.NoError(t, room.HandleMessage("/kick bob", admin))
	assert.True(t, bobTr.isClosed())
}

func TestKickRequiresRight(t *testing.T) {
	room := newTestRoom(t, "kick")
	conn, _ := join(t, room, "alice", store.User{ID: 3, Username: "Alice"})
	_, bobTr := join(t, room, "bob", store.User{ID: 2, Username: "Bob"})

	err := room.HandleMessage("/kick bob", conn)
	require.Error(t, err)
	assert.True(t, chaterr.Is(err, chaterr.Permission))
	assert.False(t, bobTr.isClosed())
}

func TestPrivateMessage(t *testing.T) {
	room := newTestRoom(t, "mp")
	alice, aliceTr := join(t, room, "alice", store.User{ID: 1, Username: "Alice"})
	_, bobTr := join(t, room, "bob", store.User{ID: 2, Username: "Bob"})

	require.NoError(t, room.HandleMessage("/mp bob hello there", alice))

	sent := bobTr.sent("private-message")
	require.Len(t, sent, 1)
	assert.True(t, strings.Contains(string(sent[0]), `"hello there"`))
	// The sender's own session gets a copy.
	assert.Len(t, aliceTr.sent("private-message"), 1)
}

func TestPrivateMessageUnknownTarget(t *testing.T) {
	room := newTestRoom(t, "mp")
	alice, _ := join(t, room, "alice", store.User{ID: 1, Username: "Alice"})

	err := room.HandleMessage("/mp nobody hi", alice)
	require.Error(t, err)
	assert.True(t, chaterr.Is(err, chaterr.UnknownCommand))
}

func TestMottoRejectsGuests(t *testing.T) {
	room := newTestRoom(t, "motto")
	conn, _ := join(t, room, "*guest1", store.User{})

	err := room.HandleMessage("/motto carpe diem", conn)
	require.Error(t, err)
	assert.True(t, chaterr.Is(err, chaterr.Permission))
}

func TestPollLifecycle(t *testing.T) {
	room := newTestRoom(t, "poll")
	alice, aliceTr := join(t, room, "alice", store.User{ID: 1, Username: "Alice"})
	bob, _ := join(t, room, "bob", store.User{ID: 2, Username: "Bob"})

	require.NoError(t, room.HandleMessage("/poll should we?", alice))
	require.NotEmpty(t, aliceTr.sent("poll"))

	// The poll accepts votes the instant the announcement goes out.
	require.NoError(t, room.HandleMessage("/vote y", bob))

	// Only one poll at a time per room.
	err := room.HandleMessage("/poll another?", bob)
	require.Error(t, err)
	assert.True(t, chaterr.Is(err, chaterr.PollAlreadyStarted))
}

func TestVoteWithoutPoll(t *testing.T) {
	room := newTestRoom(t, "poll")
	conn, _ := join(t, room, "alice", store.User{ID: 1, Username: "Alice"})

	err := room.HandleMessage("/vote y", conn)
	require.Error(t, err)
	assert.True(t, chaterr.Is(err, chaterr.UnknownCommand))
}

func TestVoteFormatValidated(t *testing.T) {
	room := newTestRoom(t, "poll")
	conn, _ := join(t, room, "alice", store.User{ID: 1, Username: "Alice"})

	err := room.HandleMessage("/vote maybe", conn)
	require.Error(t, err)
	assert.True(t, chaterr.Is(err, chaterr.ParamFormat))
}

func TestWelcomerDeliversHistoryOnJoin(t *testing.T) {
	room := newTestRoom(t, "message", "welcomer")
	first, _ := join(t, room, "*guest1", store.User{})
	require.NoError(t, room.HandleMessage("hello", first))

	_, tr := join(t, room, "*guest2", store.User{})
	payloads := tr.sent("messages")
	require.Len(t, payloads, 1)
	var history []chat.SanitizedMessage
	require.NoError(t, json.Unmarshal(payloads[0], &history))
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Content)
}

// fakeDirectory is an in-memory store.UserDirectory.
type fakeDirectory struct {
	mu     sync.Mutex
	users  map[int64]store.User
	rights map[int64]int
	data   map[string]json.RawMessage
}

func newFakeDirectory(users ...store.User) *fakeDirectory {
	d := &fakeDirectory{
		users:  map[int64]store.User{},
		rights: map[int64]int{},
		data:   map[string]json.RawMessage{},
	}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *fakeDirectory) dataKey(userID int64, plugin string) string {
	return fmt.Sprintf("%d/%s", userID, plugin)
}

func (d *fakeDirectory) ByID(_ context.Context, id int64) (store.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return store.User{}, store.ErrUserNotFound
	}
	return u, nil
}

func (d *fakeDirectory) ByUsername(_ context.Context, username string) (store.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return store.User{}, store.ErrUserNotFound
}

func (d *fakeDirectory) SetRight(_ context.Context, id int64, right int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return store.ErrUserNotFound
	}
	u.Right = right
	d.users[id] = u
	d.rights[id] = right
	return nil
}

func (d *fakeDirectory) GetPluginData(_ context.Context, userID int64, plugin string) (json.RawMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.data[d.dataKey(userID, plugin)], nil
}

func (d *fakeDirectory) SavePluginData(_ context.Context, userID int64, plugin string, value json.RawMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data[d.dataKey(userID, plugin)] = value
	return nil
}

func newDirectoryRoom(t *testing.T, dir store.UserDirectory, plugins ...string) *chat.Room {
	t.Helper()
	RegisterAll()
	room, err := chat.NewRoom(1, "main", plugins, chat.Deps{
		Sessions:   chat.NewRegistry(0, logging.Discard()),
		Users:      dir,
		IsOperator: func(identifier string) bool { return identifier == "op" },
		HistoryLen: 100,
		VisibleLen: 50,
		Logger:     logging.Discard(),
	})
	require.NoError(t, err)
	return room
}

func TestMottoSaved(t *testing.T) {
	dir := newFakeDirectory(store.User{ID: 1, Username: "Alice"})
	room := newDirectoryRoom(t, dir, "motto")
	conn, _ := join(t, room, "alice", store.User{ID: 1, Username: "Alice"})

	require.NoError(t, room.HandleMessage("/motto carpe diem", conn))

	raw, err := dir.GetPluginData(context.Background(), 1, "motto")
	require.NoError(t, err)
	var motto string
	require.NoError(t, json.Unmarshal(raw, &motto))
	assert.Equal(t, "carpe diem", motto)
}

func TestMottoEchoedBackWithoutValue(t *testing.T) {
	dir := newFakeDirectory(store.User{ID: 1, Username: "Alice"})
	require.NoError(t, dir.SavePluginData(context.Background(), 1, "motto", json.RawMessage(`"carpe diem"`)))
	room := newDirectoryRoom(t, dir, "motto")
	conn, tr := join(t, room, "alice", store.User{ID: 1, Username: "Alice"})

	require.NoError(t, room.HandleMessage("/motto", conn))

	payloads := tr.sent("message")
	require.Len(t, payloads, 1)
	var msg chat.SanitizedMessage
	require.NoError(t, json.Unmarshal(payloads[0], &msg))
	assert.Contains(t, msg.Content, "carpe diem")
}

func TestSetRightPromotesUser(t *testing.T) {
	dir := newFakeDirectory(
		store.User{ID: 1, Username: "Op", Right: 100},
		store.User{ID: 2, Username: "Bob"},
	)
	room := newDirectoryRoom(t, dir, "setright")
	op, _ := join(t, room, "op", store.User{ID: 1, Username: "Op", Right: 100})
	bob, _ := join(t, room, "bob", store.User{ID: 2, Username: "Bob"})

	require.NoError(t, room.HandleMessage("/setright bob 40", op))

	promoted, err := dir.ByID(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 40, promoted.Right)
	// The connected session picks up the new level without relogging.
	assert.Equal(t, 40, bob.Session().User().Right)
}

func TestSetRightUnknownUser(t *testing.T) {
	dir := newFakeDirectory(store.User{ID: 1, Username: "Op", Right: 100})
	room := newDirectoryRoom(t, dir, "setright")
	op, _ := join(t, room, "op", store.User{ID: 1, Username: "Op", Right: 100})

	err := room.HandleMessage("/setright ghost 40", op)
	require.Error(t, err)
	assert.True(t, chaterr.Is(err, chaterr.UnknownCommand))
}

func TestSetRightRequiresOperator(t *testing.T) {
	dir := newFakeDirectory(store.User{ID: 2, Username: "Bob"})
	room := newDirectoryRoom(t, dir, "setright")
	bob, _ := join(t, room, "bob", store.User{ID: 2, Username: "Bob"})

	err := room.HandleMessage("/setright bob 40", bob)
	require.Error(t, err)
	assert.True(t, chaterr.Is(err, chaterr.Permission))
}

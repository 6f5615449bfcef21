package chat

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kbessonov/roomhub/internal/store"
)

var currentMessageID atomic.Int64

func nextMessageID() int64 {
	return currentMessageID.Add(1)
}

// BumpMessageID raises the id counter to at least floor. Called after
// loading persisted history so new ids stay monotonic.
func BumpMessageID(floor int64) {
	for {
		cur := currentMessageID.Load()
		if cur >= floor || currentMessageID.CompareAndSwap(cur, floor) {
			return
		}
	}
}

// Meta carries originating-transport metadata. It never crosses the
// wire.
type Meta struct {
	Device string
	IP     string
}

// Message is a content record in a room's history. Content is immutable
// except through Edit, which re-broadcasts as a message-edit event.
type Message struct {
	ID        int64
	RoomID    int64
	Author    store.User
	Quoted    *Message
	CreatedAt time.Time
	Meta      Meta

	mu      sync.Mutex
	content string
}

func NewMessage(roomID int64, author store.User, content string) *Message {
	return &Message{
		ID:        nextMessageID(),
		RoomID:    roomID,
		Author:    author,
		CreatedAt: time.Now(),
		content:   content,
	}
}

func (m *Message) Content() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.content
}

// Edit replaces the content in place.
func (m *Message) Edit(content string) {
	m.mu.Lock()
	m.content = content
	m.mu.Unlock()
}

// SanitizedMessage is the wire shape of a message. Never includes raw
// IP or device metadata.
type SanitizedMessage struct {
	ID      int64               `json:"id"`
	Room    int64               `json:"room"`
	User    store.SanitizedUser `json:"user"`
	Content string              `json:"content"`
	Date    int64               `json:"date"`
	Quoted  *SanitizedMessage   `json:"quoted,omitempty"`
}

func (m *Message) Sanitized() SanitizedMessage {
	out := SanitizedMessage{
		ID:      m.ID,
		Room:    m.RoomID,
		User:    m.Author.Sanitized(),
		Content: m.Content(),
		Date:    m.CreatedAt.Unix(),
	}
	if m.Quoted != nil {
		quoted := m.Quoted.Sanitized()
		// One level of quoting crosses the wire.
		quoted.Quoted = nil
		out.Quoted = &quoted
	}
	return out
}

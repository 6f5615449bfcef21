// Package store holds the durable collaborators the chat core talks to:
// the message store, the user directory and the resume-token signer.
// The core only sees the interfaces; failures cross the boundary wrapped
// as collaborator errors.
package store

import (
	"context"
	"encoding/json"
	"time"
)

// User is an identity from the user directory. Guests have ID 0 and a
// generated username.
type User struct {
	ID       int64
	Username string
	// Right is the permission level commands compare against their floor.
	Right int
	// Data is the persisted per-plugin key/value store.
	Data map[string]json.RawMessage
}

// Guest builds the anonymous identity for a generated identifier.
func Guest(identifier string) User {
	return User{Username: identifier, Data: map[string]json.RawMessage{}}
}

// IsGuest reports whether the user was never registered.
func (u User) IsGuest() bool { return u.ID == 0 }

// SanitizedUser is what crosses the wire. Never includes credentials.
type SanitizedUser struct {
	ID       int64                      `json:"id"`
	Username string                     `json:"username"`
	Right    int                        `json:"right"`
	Data     map[string]json.RawMessage `json:"data"`
}

func (u User) Sanitized() SanitizedUser {
	return SanitizedUser{ID: u.ID, Username: u.Username, Right: u.Right, Data: u.Data}
}

// MessageRecord is the persisted shape of a room message.
type MessageRecord struct {
	ID        int64
	RoomID    int64
	UserID    int64
	Username  string
	Content   string
	QuotedID  int64 // 0 when the message quotes nothing
	CreatedAt time.Time
	IP        string
}

// MessageStore persists room messages. Append runs after the in-memory
// broadcast and is best-effort: a failure is reported, never rolled
// back into room state.
type MessageStore interface {
	Append(ctx context.Context, rec MessageRecord) error
	// LastByRoom returns up to limit most recent messages for a room,
	// ordered oldest to newest.
	LastByRoom(ctx context.Context, roomID int64, limit int) ([]MessageRecord, error)
}

// UserDirectory resolves identities and owns the per-plugin data store.
type UserDirectory interface {
	ByID(ctx context.Context, id int64) (User, error)
	ByUsername(ctx context.Context, username string) (User, error)
	SetRight(ctx context.Context, id int64, right int) error
	GetPluginData(ctx context.Context, userID int64, plugin string) (json.RawMessage, error)
	SavePluginData(ctx context.Context, userID int64, plugin string, value json.RawMessage) error
}

// AuthProvider turns credentials into an identity, failing on invalid
// ones. Hashing and credential storage live behind this interface.
type AuthProvider interface {
	Register(ctx context.Context, username, password string) (User, error)
	Login(ctx context.Context, username, password string) (User, error)
}

// Package chat implements the messaging core: the connection, session
// and room model, the command registry and dispatcher, and the plugin
// hook pipeline.
package chat

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/kbessonov/roomhub/pkg/protocol"
)

// Transport is the physical endpoint a Connection writes to. Satisfied
// by *transport.Connection; tests substitute a recorder.
type Transport interface {
	Send(frame []byte)
	Close(err error)
	ID() uuid.UUID
}

// Connection binds one transport endpoint to exactly one Session and at
// most one Room.
type Connection struct {
	transport Transport
	ip        string
	device    string
	logger    *slog.Logger

	mu      sync.Mutex
	session *Session
	room    *Room
}

func NewConnection(t Transport, ip, device string, logger *slog.Logger) *Connection {
	return &Connection{
		transport: t,
		ip:        ip,
		device:    device,
		logger:    logger.With(slog.String("connID", t.ID().String())),
	}
}

func (c *Connection) ID() uuid.UUID { return c.transport.ID() }
func (c *Connection) IP() string    { return c.ip }
func (c *Connection) Device() string { return c.device }

func (c *Connection) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Connection) setSession(s *Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

func (c *Connection) Room() *Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Connection) setRoom(r *Room) {
	c.mu.Lock()
	c.room = r
	c.mu.Unlock()
}

// Send encodes and queues one event frame. Encoding failures are logged
// and the frame dropped; they never terminate the connection.
func (c *Connection) Send(event string, payload any) {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		c.logger.Error("failed to encode outbound frame", slog.String("event", event), slog.Any("error", err))
		return
	}
	c.transport.Send(frame)
}

// SendError reports a handling failure back to the client as an 'error'
// frame.
func (c *Connection) SendError(err error) {
	c.Send("error", err.Error())
}

// Close terminates the underlying transport.
func (c *Connection) Close(reason string) {
	c.transport.Close(errors.New(reason))
}

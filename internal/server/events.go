package server

import (
	"context"
	"encoding/json"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/kbessonov/roomhub/internal/chat"
	"github.com/kbessonov/roomhub/internal/store"
	"github.com/kbessonov/roomhub/pkg/chaterr"
	"github.com/kbessonov/roomhub/pkg/protocol"
	"github.com/tidwall/gjson"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]{3,16}$`)
	passwordPattern = regexp.MustCompile(`^.{4,512}$`)
)

// registerEvents installs the accepted client events and their payload
// filters. Frames for unregistered events are rejected at decode time.
func (a *App) registerEvents() {
	a.registerEvent("register", a.onRegister, protocol.ObjectFilter{
		"username": protocol.RegexpFilter{Pattern: usernamePattern},
		"password": protocol.RegexpFilter{Pattern: passwordPattern},
	})
	a.registerEvent("login", a.onLogin, protocol.ObjectFilter{
		"username": protocol.RegexpFilter{Pattern: usernamePattern},
		"password": protocol.RegexpFilter{Pattern: passwordPattern},
	})
	a.registerEvent("set-token", a.onSetToken, protocol.ObjectFilter{
		"userId":    protocol.NumberFilter{Min: 1, Max: math.Inf(1)},
		"timestamp": protocol.NumberFilter{Min: math.Inf(-1), Max: math.Inf(1)},
		"signature": protocol.StringFilter{},
	})
	a.registerEvent("message", a.onMessage, protocol.StringFilter{})
	a.registerEvent("join-room", a.onJoinRoom, protocol.NumberFilter{Min: 1, Max: math.Inf(1)})
}

func (a *App) registerEvent(name string, handler func(json.RawMessage, *chat.Connection) error, filter protocol.Filter) {
	a.events[name] = eventBinding{filter: filter, handler: handler}
}

// --- Event handlers ---

func (a *App) onMessage(data json.RawMessage, conn *chat.Connection) error {
	room := conn.Room()
	if room == nil {
		return chaterr.New(chaterr.UnknownCommand, "messages can only be sent in rooms")
	}
	return room.HandleMessage(gjson.ParseBytes(data).String(), conn)
}

func (a *App) onJoinRoom(data json.RawMessage, conn *chat.Connection) error {
	roomID := gjson.ParseBytes(data).Int()
	room, ok := a.rooms[roomID]
	if !ok {
		return chaterr.Newf(chaterr.UnknownCommand, "room %d does not exist", roomID)
	}
	return room.AttachConnection(conn)
}

type credentialsPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *App) onRegister(data json.RawMessage, conn *chat.Connection) error {
	if a.collab.Auth == nil {
		return chaterr.New(chaterr.Collaborator, "authentication provider unavailable")
	}
	var creds credentialsPayload
	if err := json.Unmarshal(data, &creds); err != nil {
		return chaterr.Wrap(chaterr.Protocol, "decode credentials", err)
	}
	ctx, cancel := a.eventContext()
	defer cancel()
	user, err := a.collab.Auth.Register(ctx, creds.Username, creds.Password)
	if err != nil {
		return chaterr.Wrap(chaterr.Collaborator, "register", err)
	}
	return a.onAuthSuccessful(user, conn)
}

func (a *App) onLogin(data json.RawMessage, conn *chat.Connection) error {
	if a.collab.Auth == nil {
		return chaterr.New(chaterr.Collaborator, "authentication provider unavailable")
	}
	var creds credentialsPayload
	if err := json.Unmarshal(data, &creds); err != nil {
		return chaterr.Wrap(chaterr.Protocol, "decode credentials", err)
	}
	ctx, cancel := a.eventContext()
	defer cancel()
	user, err := a.collab.Auth.Login(ctx, creds.Username, creds.Password)
	if err != nil {
		return chaterr.Wrap(chaterr.Collaborator, "login", err)
	}
	return a.onAuthSuccessful(user, conn)
}

func (a *App) onSetToken(data json.RawMessage, conn *chat.Connection) error {
	if a.collab.Users == nil {
		return chaterr.New(chaterr.Collaborator, "user directory unavailable")
	}
	var token store.AuthToken
	if err := json.Unmarshal(data, &token); err != nil {
		return chaterr.Wrap(chaterr.Protocol, "decode token", err)
	}
	if err := a.signer.Verify(token); err != nil {
		return chaterr.Wrap(chaterr.Permission, "invalid token", err)
	}
	ctx, cancel := a.eventContext()
	defer cancel()
	user, err := a.collab.Users.ByID(ctx, token.UserID)
	if err != nil {
		return chaterr.Wrap(chaterr.Collaborator, "resolve token user", err)
	}
	return a.onAuthSuccessful(user, conn)
}

// onAuthSuccessful reconciles the connection's session with the
// now-authenticated identifier: attach to the existing session for that
// identifier if one is registered, otherwise upgrade the current
// session in place. Idempotent either way.
func (a *App) onAuthSuccessful(user store.User, conn *chat.Connection) error {
	identifier := strings.ToLower(user.Username)
	previous := conn.Session()

	if recycled, ok := a.registry.Find(identifier); ok {
		recycled.SetUser(user)
		recycled.AttachConnection(conn)
	} else {
		a.registry.Rename(previous.Identifier(), identifier)
		previous.SetUser(user)
	}

	if previous != nil && previous != conn.Session() && previous.ConnectionCount() == 0 {
		a.registry.ScheduleEviction(previous)
	}

	conn.Send("auth-token", a.signer.Issue(user.ID, time.Now()))

	if room := conn.Room(); room != nil {
		if err := room.RunAuthenticatedHooks(conn); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) eventContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(a.ctx, 10*time.Second)
}

// Package chaterr defines the closed set of error kinds raised while
// handling a single inbound event. Every kind except Collaborator is a
// user-facing validation failure whose message is sent back to the
// originating connection as an 'error' frame.
package chaterr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// Protocol marks a malformed wire frame.
	Protocol Kind = iota
	// UnknownCommand marks a line that resolves to no registered command.
	UnknownCommand
	// ParamCount marks a parameter count outside a rule's bounds.
	ParamCount
	// ParamFormat marks a parameter that fails its rule pattern.
	ParamFormat
	// Permission marks an insufficient right level or a non-operator
	// calling an op-only command.
	Permission
	// RateLimit marks a cooldown or rolling-window violation.
	RateLimit
	// RoomLocked marks a broadcast attempt on a locked room without bypass.
	RoomLocked
	// PollAlreadyStarted marks a second Complete on the same poll.
	PollAlreadyStarted
	// Collaborator wraps failures from auth, storage or the user
	// directory. Reported, never shown as a validation failure.
	Collaborator
)

func (k Kind) String() string {
	switch k {
	case Protocol:
		return "protocol"
	case UnknownCommand:
		return "unknown-command"
	case ParamCount:
		return "param-count"
	case ParamFormat:
		return "param-format"
	case Permission:
		return "permission"
	case RateLimit:
		return "rate-limit"
	case RoomLocked:
		return "room-locked"
	case PollAlreadyStarted:
		return "poll-already-started"
	case Collaborator:
		return "collaborator"
	}
	return "unknown"
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error, typically Collaborator
// around a database or auth failure.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf reports the kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

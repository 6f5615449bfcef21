package chat

import (
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultSessionGrace is how long an empty session survives before
// eviction. A reattach within the grace period cancels removal.
const DefaultSessionGrace = 60 * time.Second

// Registry owns the process-wide session set, keyed by identifier.
// Exactly one session exists per identifier at any time.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	timers   map[string]*time.Timer
	grace    time.Duration

	guestCounter atomic.Int64
	logger       *slog.Logger
}

func NewRegistry(grace time.Duration, logger *slog.Logger) *Registry {
	if grace <= 0 {
		grace = DefaultSessionGrace
	}
	return &Registry{
		sessions: make(map[string]*Session),
		timers:   make(map[string]*time.Timer),
		grace:    grace,
		logger:   logger.With(slog.String("component", "session_registry")),
	}
}

// NextGuestIdentifier generates a fresh anonymous identifier.
func (r *Registry) NextGuestIdentifier() string {
	return "*guest" + strconv.FormatInt(r.guestCounter.Add(1), 10)
}

// GetOrCreate returns the session registered under identifier, creating
// and registering it if absent. Any pending eviction for the identifier
// is cancelled.
func (r *Registry) GetOrCreate(identifier string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelEviction(identifier)
	if sess, ok := r.sessions[identifier]; ok {
		return sess
	}
	sess := newSession(identifier)
	r.sessions[identifier] = sess
	r.logger.Debug("session created", slog.String("identifier", identifier))
	return sess
}

// Find looks a session up without creating it.
func (r *Registry) Find(identifier string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[identifier]
	return sess, ok
}

// Rename re-keys a session after an in-place identity upgrade.
func (r *Registry) Rename(oldIdentifier, newIdentifier string) {
	if oldIdentifier == newIdentifier {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[oldIdentifier]
	if !ok {
		return
	}
	delete(r.sessions, oldIdentifier)
	r.cancelEviction(oldIdentifier)
	r.sessions[newIdentifier] = sess
}

// Remove drops a session immediately.
func (r *Registry) Remove(identifier string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelEviction(identifier)
	delete(r.sessions, identifier)
}

// ScheduleEviction starts the grace timer for a session that has lost
// its last connection. The session is removed when the timer fires,
// unless a connection reattached in the meantime.
func (r *Registry) ScheduleEviction(sess *Session) {
	identifier := sess.Identifier()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[identifier] != sess {
		return
	}
	r.cancelEviction(identifier)
	r.timers[identifier] = time.AfterFunc(r.grace, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.timers, identifier)
		current, ok := r.sessions[identifier]
		if !ok || current != sess || sess.ConnectionCount() > 0 {
			return
		}
		delete(r.sessions, identifier)
		r.logger.Debug("session evicted", slog.String("identifier", identifier))
	})
}

// cancelEviction must be called with r.mu held.
func (r *Registry) cancelEviction(identifier string) {
	if timer, ok := r.timers[identifier]; ok {
		timer.Stop()
		delete(r.timers, identifier)
	}
}

// AllSessions returns a snapshot of every registered session.
func (r *Registry) AllSessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	return out
}

// Count reports the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

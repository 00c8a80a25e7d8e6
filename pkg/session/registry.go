package session

import (
	"sync"
	"time"
)

// State is a connection's position in its lifecycle.
type State int

const (
	// StatePending means the handshake is in progress.
	StatePending State = iota

	// StateJoined means the engine has been told the session joined.
	StateJoined

	// StateClosed is terminal.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session binds a session id to the connection handle that carries it.
// The handle is used for routing only.
type Session[H comparable] struct {
	ID        string
	Handle    H
	State     State
	CreatedAt time.Time
	JoinedAt  time.Time
}

// Registry maps live connection handles to sessions.
// It is safe for concurrent use.
type Registry[H comparable] struct {
	mu       sync.RWMutex
	sessions map[H]*Session[H]
}

// NewRegistry creates an empty registry.
func NewRegistry[H comparable]() *Registry[H] {
	return &Registry[H]{
		sessions: make(map[H]*Session[H]),
	}
}

// Add registers handle in the Pending state.
// It returns false if handle is already registered.
func (r *Registry[H]) Add(handle H, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[handle]; exists {
		return false
	}
	r.sessions[handle] = &Session[H]{
		ID:        sessionID,
		Handle:    handle,
		State:     StatePending,
		CreatedAt: time.Now(),
	}
	return true
}

// MarkJoined moves a Pending session to Joined.
// It returns false if the handle is gone or not Pending.
func (r *Registry[H]) MarkJoined(handle H) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[handle]
	if !ok || s.State != StatePending {
		return false
	}
	s.State = StateJoined
	s.JoinedAt = time.Now()
	return true
}

// Lookup returns a copy of the session registered for handle.
func (r *Registry[H]) Lookup(handle H) (Session[H], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[handle]
	if !ok {
		return Session[H]{}, false
	}
	return *s, true
}

// Remove deletes handle and returns the session as it was before removal.
// Removing an unknown handle reports false.
func (r *Registry[H]) Remove(handle H) (Session[H], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[handle]
	if !ok {
		return Session[H]{}, false
	}
	delete(r.sessions, handle)
	prev := *s
	s.State = StateClosed
	return prev, true
}

// HandleFor returns the handle currently carrying sessionID.
func (r *Registry[H]) HandleFor(sessionID string) (H, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for h, s := range r.sessions {
		if s.ID == sessionID {
			return h, true
		}
	}
	var zero H
	return zero, false
}

// Len returns the number of registered handles.
func (r *Registry[H]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Count returns the number of sessions in state st.
func (r *Registry[H]) Count(st State) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, s := range r.sessions {
		if s.State == st {
			n++
		}
	}
	return n
}

// Snapshot returns copies of all registered sessions.
func (r *Registry[H]) Snapshot() []Session[H] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Session[H], 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	return out
}

// Package session tracks per-connection EPP session state. A session is
// created when the connection is accepted, advances to authenticated on a
// successful login, and is removed from the registry when the connection
// closes for any reason.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of one session.
type State int

const (
	// StateGreeted means the greeting has been sent and no login has
	// succeeded yet. Only hello and login are permitted.
	StateGreeted State = iota

	// StateAuthenticated means login succeeded; object commands are
	// permitted and repeated login is a use error.
	StateAuthenticated

	// StateClosing means a logout or fatal response has been sent and the
	// connection is about to be torn down.
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateGreeted:
		return "greeted"
	case StateAuthenticated:
		return "authenticated"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is the state carried across commands on one connection. Fields
// are guarded by mu; handlers run one command at a time per connection but
// the registry and shutdown paths inspect sessions concurrently.
type Session struct {
	ID         string
	RemoteAddr string

	mu        sync.RWMutex
	state     State
	clID      string
	loginTime time.Time
}

// New creates a session in the greeted state.
func New(remoteAddr string) *Session {
	return &Session{
		ID:         uuid.NewString(),
		RemoteAddr: remoteAddr,
		state:      StateGreeted,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ClID returns the authenticated registrar ID, empty before login.
func (s *Session) ClID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clID
}

// Authenticated reports whether a login has succeeded on this session.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateAuthenticated
}

// Login transitions the session to authenticated for the given registrar.
// It fails if the session is already authenticated or closing.
func (s *Session) Login(clID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateGreeted {
		return fmt.Errorf("login in state %s", s.state)
	}
	s.state = StateAuthenticated
	s.clID = clID
	s.loginTime = time.Now()
	return nil
}

// Close marks the session closing. Safe to call from any state.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosing
}

// ============================================================================
// Registry
// ============================================================================

// Registry tracks the live sessions of the server, keyed by session ID.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a session.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// Remove drops a session from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Each calls fn for every live session. The registry lock is held for the
// duration, so fn must not call back into the registry.
func (r *Registry) Each(fn func(*Session)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		fn(s)
	}
}

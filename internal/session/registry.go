package session

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// State of a live session.
type State int

const (
	StateNew State = iota
	StateActive
	StateFinalizing
	StateClosed
)

// Session is one live streaming transcription interaction. All mutation
// goes through the owning channel's Registry calls; fragments keep
// insertion order equal to chunk arrival order.
type Session struct {
	ID          string
	DisplayName string
	fragments   []string
	state       State
}

// Registry owns the process-wide mapping from session id to live Session.
// It is injected into the channel handler rather than referenced as
// ambient state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Start activates a session for id, generating an id when none is given.
// Starting an id that is already live returns the existing session, so at
// most one live session per id exists at a time.
func (r *Registry) Start(id, displayName string) *Session {
	if id == "" {
		id = "ws-" + uuid.New().String()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[id]; ok {
		return existing
	}

	s := &Session{
		ID:          id,
		DisplayName: displayName,
		state:       StateActive,
	}
	r.sessions[id] = s
	return s
}

// Append records one successfully transcribed chunk. Returns false when
// the session is unknown; that is a no-op, not an error.
func (r *Registry) Append(id, fragment string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	s.fragments = append(s.fragments, fragment)
	return true
}

// Finalize joins the session's fragments with newlines and removes the
// record. Removal happens here, before any insight work, so the session
// never leaks past its end signal regardless of what follows. Returns
// ok=false for an unknown id.
func (r *Registry) Finalize(id string) (transcript, displayName string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[id]
	if !exists {
		return "", "", false
	}
	s.state = StateFinalizing
	delete(r.sessions, id)
	s.state = StateClosed

	return strings.Join(s.fragments, "\n"), s.DisplayName, true
}

// Live reports whether a session with id currently exists. A session
// finalized through another connection stops being live immediately.
func (r *Registry) Live(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// Fragments returns a copy of the session's fragments, or nil for an
// unknown id.
func (r *Registry) Fragments(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	out := make([]string, len(s.fragments))
	copy(out, s.fragments)
	return out
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

package session

import (
	"sync"

	"github.com/convertd/convertd/internal/media"
)

// Registry is the in-memory session store. Mutation is serialized per
// registry; all reads return clones so callers can never alias the
// authoritative record.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Put stores a session. The registry owns the pointer from here on.
func (r *Registry) Put(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
}

// Get returns a clone of the session or a SESSION_NOT_FOUND error.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, media.NewError(media.KindSessionNotFound, "session not found: "+id)
	}
	return s.Clone(), nil
}

// Update applies fn to the session under the registry lock. fn sees the
// authoritative record and may mutate it freely; updates to missing
// sessions return SESSION_NOT_FOUND.
func (r *Registry) Update(id string, fn func(*Session)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return media.NewError(media.KindSessionNotFound, "session not found: "+id)
	}
	fn(s)
	return nil
}

// Delete evicts a session. Deleting an unknown id is a no-op.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// List returns clones of all sessions.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Clone())
	}
	return out
}

// CountActive returns how many sessions currently hold engine
// resources.
func (r *Registry) CountActive() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, s := range r.sessions {
		if s.State.IsActive() {
			n++
		}
	}
	return n
}

package player

import "sync"

// Registry maps guild IDs to their sessions. Sessions are created on
// first use and live for the process lifetime; ended sessions reset to
// ready rather than being removed.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Get returns the guild's session, creating it with factory when the
// guild has none yet.
func (r *Registry) Get(guildID string, factory func() *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[guildID]
	if !ok {
		s = factory()
		r.sessions[guildID] = s
	}
	return s
}

// Peek returns the guild's session, or nil when none exists.
func (r *Registry) Peek(guildID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[guildID]
}

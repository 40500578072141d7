package engine

import (
	"sync"

	"trivia-session-service/internal/domain"
)

// Registry maps channels to their single live session. It is an explicit,
// injected store rather than a package-level singleton so tests get clean
// isolation. Register is atomic: two simultaneous starts for the same
// channel yield exactly one success.
type Registry struct {
	mu        sync.RWMutex
	byChannel map[string]*session
	byID      map[string]*session
}

func NewRegistry() *Registry {
	return &Registry{
		byChannel: make(map[string]*session),
		byID:      make(map[string]*session),
	}
}

func (r *Registry) register(s *session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.byChannel[s.channelID]; busy {
		return domain.ErrChannelActive
	}
	r.byChannel[s.channelID] = s
	r.byID[s.id] = s
	return nil
}

func (r *Registry) channelSession(channelID string) (*session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byChannel[channelID]
	return s, ok
}

func (r *Registry) sessionByID(sessionID string) (*session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[sessionID]
	return s, ok
}

// unregister releases the channel slot, but only if it is still held by s.
// The terminal transition calls this exactly once per session.
func (r *Registry) unregister(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byChannel[s.channelID]; ok && cur == s {
		delete(r.byChannel, s.channelID)
	}
	delete(r.byID, s.id)
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

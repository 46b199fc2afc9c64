package intake

import (
	"sort"
	"sync"
)

// Registry maps chat IDs to sessions. All methods are safe for concurrent use.
// Entries live until Reset; there is no eviction.
type Registry struct {
	env Env

	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewRegistry creates an empty Registry whose sessions share env.
func NewRegistry(env Env) *Registry {
	return &Registry{
		env:      env,
		sessions: make(map[int64]*Session),
	}
}

// GetOrCreate returns the session for chatID, creating it if needed. When a
// session is created the effects of its initial state are returned; for an
// existing session effects is nil. Concurrent callers for the same chatID
// always receive the same *Session and only one of them receives effects.
func (r *Registry) GetOrCreate(chatID int64) (*Session, []Effect) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[chatID]; ok {
		return s, nil
	}
	s, effects := NewSession(chatID, r.env)
	r.sessions[chatID] = s
	return s, effects
}

// Get returns the session for chatID without creating one.
func (r *Registry) Get(chatID int64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[chatID]
	return s, ok
}

// Reset removes the session for chatID. It reports whether one existed.
func (r *Registry) Reset(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[chatID]
	delete(r.sessions, chatID)
	return ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// SessionInfo is a point-in-time view of one session.
type SessionInfo struct {
	ChatID int64  `json:"chat_id"`
	State  string `json:"state"`
}

// Snapshot lists every live session ordered by chat ID.
func (r *Registry) Snapshot() []SessionInfo {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionInfo{ChatID: s.ChatID(), State: s.State().String()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out
}

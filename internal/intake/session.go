package intake

import "sync"

// Session is the conversation state of a single chat. Advance is safe for
// concurrent use; concurrent inputs are applied one at a time.
type Session struct {
	chatID int64
	env    Env

	mu     sync.Mutex
	state  State
	record Record
}

// NewSession returns a session already in AwaitingPassword, together with the
// effects of entering that state (the password prompt). Delivering them is the
// caller's job.
func NewSession(chatID int64, env Env) (*Session, []Effect) {
	s := &Session{chatID: chatID, env: env}
	var effects []Effect
	s.state, s.record, effects = enter(AwaitingPassword, Record{}, env)
	return s, effects
}

// ChatID returns the chat this session belongs to.
func (s *Session) ChatID() int64 { return s.chatID }

// Advance consumes one input and returns the resulting effects.
func (s *Session) Advance(input string) []Effect {
	s.mu.Lock()
	defer s.mu.Unlock()
	var effects []Effect
	s.state, s.record, effects = Transition(s.state, s.record, input, s.env)
	return effects
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Record returns a copy of the partially collected record.
func (s *Session) Record() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}

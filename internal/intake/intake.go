// Package intake implements the per-chat report conversation: a cyclic state
// machine that collects one report record per pass, and the registry that owns
// exactly one session per chat.
package intake

import "time"

// State is a step of the intake conversation.
type State int

const (
	AwaitingPassword State = iota
	AwaitingSupervisor
	AwaitingClient
	AwaitingDepartment
	AwaitingItem
	AwaitingQuantity
	AwaitingTimestamp
	Completed
)

var stateNames = [...]string{
	AwaitingPassword:   "awaiting_password",
	AwaitingSupervisor: "awaiting_supervisor",
	AwaitingClient:     "awaiting_client",
	AwaitingDepartment: "awaiting_department",
	AwaitingItem:       "awaiting_item",
	AwaitingQuantity:   "awaiting_quantity",
	AwaitingTimestamp:  "awaiting_timestamp",
	Completed:          "completed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Record is the report row collected by one pass through the conversation.
type Record struct {
	Supervisor string
	Client     string
	Department string
	Item       string
	Quantity   int
	Timestamp  time.Time
}

// EffectKind identifies what the caller must do with an Effect.
type EffectKind int

const (
	// EffectSend delivers Text to the chat.
	EffectSend EffectKind = iota
	// EffectPersist appends Record to the report sink.
	EffectPersist
)

// Effect is a side effect produced by a transition. Effects are returned in
// the order they must be executed.
type Effect struct {
	Kind   EffectKind
	Text   string
	Record Record
}

func send(text string) Effect { return Effect{Kind: EffectSend, Text: text} }

func persist(rec Record) Effect { return Effect{Kind: EffectPersist, Record: rec} }

// Env carries the immutable inputs of the state machine.
type Env struct {
	// Password gates the conversation. It must be non-empty.
	Password string
	// Now substitutes the timestamp when none is given. Defaults to time.Now.
	Now func() time.Time
}

func (e Env) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now().UTC()
}

// Conversation texts.
const (
	PromptPassword   = "Enter password:"
	PromptSupervisor = "Who is the supervisor?"
	PromptClient     = "Client name:"
	PromptDepartment = "Client department:"
	PromptItem       = "Which item?"
	PromptQuantity   = "Quantity:"
	PromptTimestamp  = "Enter date and time (yyyy-MM-dd HH:mm), or send - for now:"
	MessageSaved     = "Record saved to the sheet."
)

// Prompt returns the text emitted on entry to s, or "" for Completed.
func Prompt(s State) string {
	switch s {
	case AwaitingPassword:
		return PromptPassword
	case AwaitingSupervisor:
		return PromptSupervisor
	case AwaitingClient:
		return PromptClient
	case AwaitingDepartment:
		return PromptDepartment
	case AwaitingItem:
		return PromptItem
	case AwaitingQuantity:
		return PromptQuantity
	case AwaitingTimestamp:
		return PromptTimestamp
	default:
		return ""
	}
}

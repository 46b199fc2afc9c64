package intake

import (
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the format of Record.Timestamp in the report.
const TimestampLayout = "2006-01-02 15:04"

// timestampLayouts are tried in order when parsing a user-supplied timestamp.
var timestampLayouts = []string{
	TimestampLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
	"02.01.2006 15:04",
	"02.01.2006",
	"2006/01/02 15:04",
	"2006/01/02",
}

// nowWords are inputs that ask for the current time. Chat platforms cannot
// deliver an empty message, so these stand in for "leave empty".
var nowWords = map[string]bool{
	"":    true,
	"-":   true,
	"now": true,
}

// Transition computes the next state for a single input. It performs no I/O:
// prompts and the persist action are returned as effects, in execution order.
// Exactly one input is consumed per call.
func Transition(state State, rec Record, input string, env Env) (State, Record, []Effect) {
	switch state {
	case AwaitingPassword:
		if env.Password != "" && input == env.Password {
			return enter(AwaitingSupervisor, rec, env)
		}
		return enter(AwaitingPassword, rec, env)
	case AwaitingSupervisor:
		rec.Supervisor = input
		return enter(AwaitingClient, rec, env)
	case AwaitingClient:
		rec.Client = input
		return enter(AwaitingDepartment, rec, env)
	case AwaitingDepartment:
		rec.Department = input
		return enter(AwaitingItem, rec, env)
	case AwaitingItem:
		rec.Item = input
		return enter(AwaitingQuantity, rec, env)
	case AwaitingQuantity:
		rec.Quantity = ParseQuantity(input)
		return enter(AwaitingTimestamp, rec, env)
	case AwaitingTimestamp:
		rec.Timestamp = ParseTimestamp(input, env.now())
		return enter(Completed, rec, env)
	default:
		// Completed never waits for input; treat a stray call as a re-arm.
		return enter(AwaitingSupervisor, Record{}, env)
	}
}

// enter runs the entry action of state. Completed persists the record,
// confirms, and re-arms at AwaitingSupervisor in the same step.
func enter(state State, rec Record, env Env) (State, Record, []Effect) {
	if state != Completed {
		return state, rec, []Effect{send(Prompt(state))}
	}
	next, fresh, effects := enter(AwaitingSupervisor, Record{}, env)
	return next, fresh, append([]Effect{persist(rec), send(MessageSaved)}, effects...)
}

// ParseQuantity parses an integer quantity, returning 0 when text is not an
// integer.
func ParseQuantity(text string) int {
	q, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0
	}
	return q
}

// ParseTimestamp parses a user-supplied date/time, substituting now when the
// text is empty or not recognized. Parsed values are interpreted as UTC.
func ParseTimestamp(text string, now time.Time) time.Time {
	text = strings.TrimSpace(text)
	if nowWords[strings.ToLower(text)] {
		return now
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, text, time.UTC); err == nil {
			return t
		}
	}
	return now
}

// Package telegraph connects the intake flow to chat platforms (Telegram,
// Discord, Slack, a local console).
package telegraph

import (
	"context"
	"time"
)

// Adapter is the interface that platform-specific implementations must satisfy.
// Each adapter handles connection management and message sending/receiving
// for a single chat platform.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound events from the platform.
	// The channel is closed when the context is cancelled or the adapter
	// is closed. Listen must only be called after Connect.
	Listen(ctx context.Context) (<-chan InboundMessage, error)

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg OutboundMessage) error

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// EventKind classifies an inbound event.
type EventKind int

const (
	// KindMessage is a plain text message.
	KindMessage EventKind = iota
	// KindCallback is a button press or other interactive callback.
	KindCallback
	// KindOther is any other event shape (stickers, joins, edits...).
	KindOther
)

func (k EventKind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindCallback:
		return "callback"
	default:
		return "other"
	}
}

// InboundMessage represents an event received from the chat platform.
type InboundMessage struct {
	Kind      EventKind
	Platform  string    // e.g. "telegram", "slack"
	ChatID    int64     // conversation identifier, 0 when unknown
	UserID    string    // platform-specific user identifier
	UserName  string    // human-readable username
	Text      string    // raw message text
	Timestamp time.Time // when the message was sent
}

// OutboundMessage represents a message to be sent to the chat platform.
type OutboundMessage struct {
	ChatID         int64            // target chat
	Text           string           // plain message text
	RemoveKeyboard bool             // also dismiss any reply keyboard
	Events         []FormattedEvent // structured attachments (digests)
}

// FormattedEvent is a structured notice formatted for display in chat.
type FormattedEvent struct {
	Title    string  // headline (e.g. "Daily tally 2024-03-05")
	Body     string  // detail text
	Severity string  // "info", "warning", "error", "success"
	Color    string  // sidebar color hint (e.g. "#36a64f" for success)
	Fields   []Field // key-value metadata pairs
}

// Field is a key-value pair displayed in an event attachment.
type Field struct {
	Name  string
	Value string
	Short bool // hint: render side-by-side with another field
}

// BotUserIDer is an optional interface that adapters can implement to
// expose the bot's own user ID. This enables self-message filtering.
type BotUserIDer interface {
	BotUserID() string
}

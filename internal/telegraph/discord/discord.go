// Package discord implements the telegraph Adapter for Discord using the Gateway WebSocket.
package discord

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/tally/internal/telegraph"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration for rate-limit retries.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff.
	maxBackoff = 2 * time.Minute
	// inboxSize is the inbound event buffer.
	inboxSize = 100
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	Open() error
	Close() error
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	AddHandler(handler interface{}) func()
}

// Adapter implements telegraph.Adapter for Discord via the Gateway WebSocket.
// Discord channel snowflakes double as chat IDs.
type Adapter struct {
	sess          session
	botToken      string
	botUserID     string
	mu            sync.Mutex
	connected     bool
	closed        bool
	inbox         *telegraph.Inbox
	removeHandler func()
	baseBackoff   time.Duration
	maxBackoff    time.Duration
}

// AdapterOpts holds parameters for creating a Discord Adapter.
type AdapterOpts struct {
	BotToken string // Discord bot token
	// For testing: inject a mock session instead of real Discord API.
	Session session
}

// New creates a Discord Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	return &Adapter{
		sess:        opts.Session,
		botToken:    opts.BotToken,
		inbox:       telegraph.NewInbox(inboxSize),
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}, nil
}

// Connect establishes the Discord Gateway WebSocket connection.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("discord: adapter already closed")
	}
	if a.connected {
		return nil
	}

	// Create real session if not injected (production path).
	if a.sess == nil {
		dg, err := discordgo.New("Bot " + a.botToken)
		if err != nil {
			return fmt.Errorf("discord: create session: %w", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuildMessages |
			discordgo.IntentsDirectMessages |
			discordgo.IntentsMessageContent
		a.sess = dg
	}

	// Capture bot user ID on connect/reconnect.
	a.sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		a.mu.Lock()
		a.botUserID = r.User.ID
		a.mu.Unlock()
		log.Printf("discord: connected as %s (ID: %s)", r.User.Username, r.User.ID)
	})

	// discordgo reconnects on its own; log for observability.
	a.sess.AddHandler(func(_ *discordgo.Session, d *discordgo.Disconnect) {
		log.Printf("discord: gateway disconnected, discordgo will auto-reconnect")
	})

	if err := a.sess.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}

	a.connected = true
	return nil
}

// Listen registers a message handler on the Gateway session and returns
// the inbound channel. Must be called after Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan telegraph.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("discord: not connected")
	}
	if a.removeHandler == nil {
		a.removeHandler = a.sess.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
			a.handleMessage(m)
		})
	}
	return a.inbox.C(), nil
}

// Send delivers a message to the Discord channel msg.ChatID. Events are
// rendered as embeds. RemoveKeyboard has no Discord equivalent.
func (a *Adapter) Send(ctx context.Context, msg telegraph.OutboundMessage) error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return fmt.Errorf("discord: not connected")
	}
	a.mu.Unlock()

	if msg.ChatID == 0 {
		return fmt.Errorf("discord: no channel specified")
	}
	channelID := strconv.FormatInt(msg.ChatID, 10)
	data := buildMessageSend(msg)

	err := a.retryOnRateLimit(ctx, func() error {
		_, sendErr := a.sess.ChannelMessageSendComplex(channelID, data)
		return sendErr
	})
	if err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}

// Close gracefully shuts down the adapter connection.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	if a.removeHandler != nil {
		a.removeHandler()
	}
	a.inbox.Close()
	if a.sess != nil {
		return a.sess.Close()
	}
	return nil
}

// BotUserID returns the bot's Discord user ID (available after Ready).
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

// SetBotUserID sets the bot user ID (used for self-message filtering).
func (a *Adapter) SetBotUserID(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.botUserID = id
}

// handleMessage converts a Discord message event to an InboundMessage.
func (a *Adapter) handleMessage(m *discordgo.MessageCreate) {
	if m.Message == nil || m.Author == nil {
		return
	}

	a.mu.Lock()
	botID := a.botUserID
	a.mu.Unlock()

	// Filter self and other bots.
	if m.Author.ID == botID || m.Author.Bot {
		return
	}

	chatID, err := strconv.ParseInt(m.ChannelID, 10, 64)
	if err != nil {
		log.Printf("discord: ignoring message in channel %q: %v", m.ChannelID, err)
		return
	}

	kind := telegraph.KindMessage
	if m.Content == "" {
		// Attachments, stickers and embeds only.
		kind = telegraph.KindOther
	}

	ts, _ := discordgo.SnowflakeTimestamp(m.ID)

	a.inbox.Deliver(telegraph.InboundMessage{
		Kind:      kind,
		Platform:  "discord",
		ChatID:    chatID,
		UserID:    m.Author.ID,
		UserName:  m.Author.Username,
		Text:      m.Content,
		Timestamp: ts,
	})
}

// buildMessageSend translates an OutboundMessage into a Discord MessageSend.
func buildMessageSend(msg telegraph.OutboundMessage) *discordgo.MessageSend {
	data := &discordgo.MessageSend{
		Content: msg.Text,
	}
	for _, evt := range msg.Events {
		data.Embeds = append(data.Embeds, eventToEmbed(evt))
	}
	return data
}

// eventToEmbed converts a FormattedEvent to a Discord Embed.
func eventToEmbed(evt telegraph.FormattedEvent) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       evt.Title,
		Description: evt.Body,
	}
	if evt.Color != "" {
		embed.Color = parseHexColor(evt.Color)
	}
	for _, f := range evt.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Short,
		})
	}
	return embed
}

// parseHexColor converts a hex color string (e.g. "#36a64f") to an int.
// Invalid input yields 0.
func parseHexColor(hex string) int {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	if hex == "" {
		return 0
	}
	v, err := strconv.ParseInt(hex, 16, 32)
	if err != nil {
		return 0
	}
	return int(v)
}

// retryOnRateLimit calls fn and retries with exponential backoff on Discord
// rate limit errors. It respects context cancellation.
func (a *Adapter) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		restErr, ok := err.(*discordgo.RESTError)
		if !ok || restErr.Response == nil || restErr.Response.StatusCode != 429 {
			return err
		}
		if attempt == maxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * a.baseBackoff
		if wait > a.maxBackoff {
			wait = a.maxBackoff
		}
		log.Printf("discord: rate limited (attempt %d/%d), retrying in %v", attempt+1, maxRetries, wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Package telegram implements the telegraph Adapter for the Telegram Bot API
// using long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/zulandar/tally/internal/telegraph"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the retry wait when Telegram sends no retry_after.
	baseBackoff = time.Second
	// pollTimeout is the long-polling timeout in seconds.
	pollTimeout = 60
	// inboxSize is the inbound event buffer.
	inboxSize = 100
)

// botAPI abstracts the tgbotapi.BotAPI methods we use, enabling test mocks.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	StopReceivingUpdates()
}

// Adapter implements telegraph.Adapter for Telegram. Telegram chat IDs are
// used as-is.
type Adapter struct {
	bot       botAPI
	token     string
	botUserID string
	mu        sync.Mutex
	connected bool
	closed    bool
	polling   bool
	inbox     *telegraph.Inbox
	stop      chan struct{}
	backoff   time.Duration
}

// AdapterOpts holds parameters for creating a Telegram Adapter.
type AdapterOpts struct {
	Token string // bot token from @BotFather
	// For testing: inject a mock bot instead of the real Bot API.
	Bot       botAPI
	BotUserID string
}

// New creates a Telegram Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Bot == nil && opts.Token == "" {
		return nil, fmt.Errorf("telegram: token is required")
	}
	return &Adapter{
		bot:       opts.Bot,
		token:     opts.Token,
		botUserID: opts.BotUserID,
		inbox:     telegraph.NewInbox(inboxSize),
		stop:      make(chan struct{}),
		backoff:   baseBackoff,
	}, nil
}

// Connect authenticates the bot token with getMe.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("telegram: adapter already closed")
	}
	if a.connected {
		return nil
	}

	if a.bot == nil {
		api, err := tgbotapi.NewBotAPI(a.token)
		if err != nil {
			return fmt.Errorf("telegram: authenticate: %w", err)
		}
		a.bot = api
		a.botUserID = strconv.FormatInt(api.Self.ID, 10)
		log.Printf("telegram: authorized as @%s (ID: %d)", api.Self.UserName, api.Self.ID)
	}

	a.connected = true
	return nil
}

// Listen starts long polling and returns the inbound channel. Must be called
// after Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan telegraph.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("telegram: not connected")
	}
	if !a.polling {
		a.polling = true
		u := tgbotapi.NewUpdate(0)
		u.Timeout = pollTimeout
		updates := a.bot.GetUpdatesChan(u)
		go a.pump(ctx, updates)
	}
	return a.inbox.C(), nil
}

// Send delivers a message to msg.ChatID. Events are flattened to plain text.
func (a *Adapter) Send(ctx context.Context, msg telegraph.OutboundMessage) error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return fmt.Errorf("telegram: not connected")
	}
	a.mu.Unlock()

	if msg.ChatID == 0 {
		return fmt.Errorf("telegram: no chat specified")
	}
	cfg := buildMessage(msg)

	err := a.retryOnRateLimit(ctx, func() error {
		_, sendErr := a.bot.Send(cfg)
		return sendErr
	})
	if err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}

// Close stops polling and closes the inbound channel.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	close(a.stop)
	if a.polling {
		a.bot.StopReceivingUpdates()
	}
	a.inbox.Close()
	return nil
}

// BotUserID returns the bot's Telegram user ID (available after Connect).
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

// pump converts updates until the context is cancelled, the adapter is
// closed or the updates channel closes.
func (a *Adapter) pump(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stop:
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			if msg, ok := a.convert(upd); ok {
				a.inbox.Deliver(msg)
			}
		}
	}
}

// convert maps an update to an InboundMessage. Updates from the bot itself
// or without a chat are dropped.
func (a *Adapter) convert(upd tgbotapi.Update) (telegraph.InboundMessage, bool) {
	switch {
	case upd.Message != nil:
		m := upd.Message
		if m.Chat == nil {
			return telegraph.InboundMessage{}, false
		}
		in := telegraph.InboundMessage{
			Kind:      telegraph.KindMessage,
			Platform:  "telegram",
			ChatID:    m.Chat.ID,
			Text:      m.Text,
			Timestamp: m.Time(),
		}
		if m.Text == "" {
			// Stickers, photos, contacts, service messages.
			in.Kind = telegraph.KindOther
		}
		if m.From != nil {
			if m.From.IsBot {
				return telegraph.InboundMessage{}, false
			}
			in.UserID = strconv.FormatInt(m.From.ID, 10)
			in.UserName = userName(m.From)
		}
		return in, true

	case upd.CallbackQuery != nil:
		cb := upd.CallbackQuery
		if cb.Message == nil || cb.Message.Chat == nil {
			return telegraph.InboundMessage{}, false
		}
		in := telegraph.InboundMessage{
			Kind:      telegraph.KindCallback,
			Platform:  "telegram",
			ChatID:    cb.Message.Chat.ID,
			Text:      cb.Data,
			Timestamp: time.Now(),
		}
		if cb.From != nil {
			in.UserID = strconv.FormatInt(cb.From.ID, 10)
			in.UserName = userName(cb.From)
		}
		return in, true

	case upd.EditedMessage != nil && upd.EditedMessage.Chat != nil:
		return telegraph.InboundMessage{
			Kind:      telegraph.KindOther,
			Platform:  "telegram",
			ChatID:    upd.EditedMessage.Chat.ID,
			Timestamp: upd.EditedMessage.Time(),
		}, true
	}
	return telegraph.InboundMessage{}, false
}

func userName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	return strconv.FormatInt(u.ID, 10)
}

// buildMessage translates an OutboundMessage into a sendMessage request.
func buildMessage(msg telegraph.OutboundMessage) tgbotapi.MessageConfig {
	cfg := tgbotapi.NewMessage(msg.ChatID, telegraph.RenderPlain(msg))
	if msg.RemoveKeyboard {
		cfg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	}
	return cfg
}

// retryOnRateLimit calls fn and retries on Telegram 429 responses, honoring
// retry_after when present.
func (a *Adapter) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var tgErr *tgbotapi.Error
		if !errors.As(err, &tgErr) || tgErr.Code != 429 || attempt == maxRetries {
			return err
		}

		wait := time.Duration(tgErr.RetryAfter) * time.Second
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * a.backoff
		}
		log.Printf("telegram: rate limited, retrying in %v", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Package slack implements the telegraph Adapter for Slack using Socket Mode.
package slack

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"github.com/zulandar/tally/internal/telegraph"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration for reconnection.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff for reconnection.
	maxBackoff = 2 * time.Minute
	// maxReconnectAttempts limits reconnection retries before giving up.
	maxReconnectAttempts = 10
	// inboxSize is the inbound event buffer.
	inboxSize = 100
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	AuthTest() (*slackapi.AuthTestResponse, error)
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
	GetUserInfo(userID string) (*slackapi.User, error)
}

// socketClient abstracts the Socket Mode client methods we use.
type socketClient interface {
	RunContext(ctx context.Context) error
	EventsChan() chan socketmode.Event
	Ack(req socketmode.Request, payload ...interface{})
}

// realSocketClient wraps *socketmode.Client to implement socketClient.
type realSocketClient struct {
	client *socketmode.Client
}

func (r *realSocketClient) RunContext(ctx context.Context) error { return r.client.RunContext(ctx) }
func (r *realSocketClient) EventsChan() chan socketmode.Event    { return r.client.Events }
func (r *realSocketClient) Ack(req socketmode.Request, payload ...interface{}) {
	r.client.Ack(req, payload...)
}

// Adapter implements telegraph.Adapter for Slack Socket Mode. Slack channel
// IDs are mapped to chat IDs through a telegraph.ChatDirectory.
type Adapter struct {
	client       slackClient
	socket       socketClient
	directory    *telegraph.ChatDirectory
	botUserID    string
	appToken     string
	botToken     string
	mu           sync.Mutex
	connected    bool
	closed       bool
	inbox        *telegraph.Inbox
	cancelFunc   context.CancelFunc
	names        map[string]string // user ID → display name cache
	baseBackoff  time.Duration     // reconnection base backoff (default: baseBackoff const)
	maxBackoff   time.Duration     // reconnection max backoff (default: maxBackoff const)
	maxReconnect int               // max reconnection attempts (default: maxReconnectAttempts)
}

// AdapterOpts holds parameters for creating a Slack Adapter.
type AdapterOpts struct {
	AppToken  string                   // xapp-... Slack app-level token for Socket Mode
	BotToken  string                   // xoxb-... Slack bot token
	Directory *telegraph.ChatDirectory // defaults to a new directory
	// For testing: inject mock clients instead of real Slack API.
	Client slackClient
	Socket socketClient
}

// New creates a Slack Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.Socket == nil && opts.AppToken == "" {
		return nil, fmt.Errorf("slack: app token is required for socket mode")
	}
	dir := opts.Directory
	if dir == nil {
		dir = telegraph.NewChatDirectory()
	}
	return &Adapter{
		client:       opts.Client,
		socket:       opts.Socket,
		directory:    dir,
		appToken:     opts.AppToken,
		botToken:     opts.BotToken,
		inbox:        telegraph.NewInbox(inboxSize),
		names:        make(map[string]string),
		baseBackoff:  baseBackoff,
		maxBackoff:   maxBackoff,
		maxReconnect: maxReconnectAttempts,
	}, nil
}

// Connect verifies the bot token and prepares the Socket Mode client.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("slack: adapter already closed")
	}
	if a.connected {
		return nil
	}

	// Create real clients if not injected (production path).
	if a.client == nil {
		api := slackapi.New(a.botToken, slackapi.OptionAppLevelToken(a.appToken))
		a.client = api
		a.socket = &realSocketClient{client: socketmode.New(api)}
	}

	// Get bot user ID for self-message filtering.
	auth, err := a.client.AuthTest()
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	a.botUserID = auth.UserID

	a.connected = true
	return nil
}

// Listen starts the Socket Mode event pump in the background and returns
// the inbound channel. Must be called after Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan telegraph.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("slack: not connected")
	}
	if a.cancelFunc == nil {
		listenCtx, cancel := context.WithCancel(ctx)
		a.cancelFunc = cancel
		go a.runWithReconnect(listenCtx)
		go a.pumpEvents(listenCtx)
	}
	return a.inbox.C(), nil
}

// Send posts a message to the Slack channel behind msg.ChatID. Events are
// rendered as attachments. RemoveKeyboard has no Slack equivalent.
func (a *Adapter) Send(ctx context.Context, msg telegraph.OutboundMessage) error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return fmt.Errorf("slack: not connected")
	}
	a.mu.Unlock()

	channelID, ok := a.directory.Key(msg.ChatID)
	if !ok {
		return fmt.Errorf("slack: unknown chat %d", msg.ChatID)
	}

	options := buildMessageOptions(msg)
	err := retryOnRateLimit(ctx, func() error {
		_, _, postErr := a.client.PostMessage(channelID, options...)
		return postErr
	})
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// Close shuts down the adapter and closes the inbound channel.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	a.inbox.Close()
	return nil
}

// BotUserID returns the bot's Slack user ID (available after Connect).
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

// runWithReconnect runs the Socket Mode client and retries with exponential
// backoff when it returns an error.
func (a *Adapter) runWithReconnect(ctx context.Context) {
	for attempt := 0; attempt < a.maxReconnect; attempt++ {
		err := a.socket.RunContext(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * a.baseBackoff
		if wait > a.maxBackoff {
			wait = a.maxBackoff
		}
		log.Printf("slack: socket mode disconnected (attempt %d/%d): %v, reconnecting in %v",
			attempt+1, a.maxReconnect, err, wait)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
	log.Printf("slack: socket mode exhausted %d reconnection attempts, giving up", a.maxReconnect)
}

// pumpEvents reads Socket Mode events and converts them to InboundMessages.
func (a *Adapter) pumpEvents(ctx context.Context) {
	events := a.socket.EventsChan()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			a.handleSocketEvent(evt)
		}
	}
}

// handleSocketEvent processes a single Socket Mode event.
func (a *Adapter) handleSocketEvent(evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			a.socket.Ack(*evt.Request)
		}
		a.handleEventsAPI(eventsAPIEvent)

	case socketmode.EventTypeInteractive:
		if evt.Request != nil {
			a.socket.Ack(*evt.Request)
		}
		if cb, ok := evt.Data.(slackapi.InteractionCallback); ok {
			a.deliver(telegraph.KindCallback, cb.Channel.ID, cb.User.ID, "", "")
		}

	case socketmode.EventTypeConnecting:
		log.Printf("slack: connecting to Socket Mode...")

	case socketmode.EventTypeConnected:
		log.Printf("slack: connected to Socket Mode")

	case socketmode.EventTypeConnectionError:
		log.Printf("slack: connection error: %v", evt.Data)

	case socketmode.EventTypeDisconnect:
		log.Printf("slack: server requested disconnect, will reconnect")
	}
}

// handleEventsAPI processes Events API callbacks. Only message events feed
// the intake flow; app mentions are also delivered as message events.
func (a *Adapter) handleEventsAPI(event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	if ev, ok := event.InnerEvent.Data.(*slackevents.MessageEvent); ok {
		a.handleMessage(ev)
	}
}

// handleMessage converts a Slack message event to an InboundMessage.
func (a *Adapter) handleMessage(ev *slackevents.MessageEvent) {
	a.mu.Lock()
	botID := a.botUserID
	a.mu.Unlock()

	// Filter self and other bots.
	if ev.User == botID || ev.BotID != "" {
		return
	}

	kind := telegraph.KindMessage
	if ev.SubType != "" {
		// Edits, deletes, joins, file shares.
		kind = telegraph.KindOther
	}
	a.deliver(kind, ev.Channel, ev.User, ev.Text, ev.TimeStamp)
}

func (a *Adapter) deliver(kind telegraph.EventKind, channelID, userID, text, ts string) {
	a.inbox.Deliver(telegraph.InboundMessage{
		Kind:      kind,
		Platform:  "slack",
		ChatID:    a.directory.ChatID(channelID),
		UserID:    userID,
		UserName:  a.resolveUserName(userID),
		Text:      text,
		Timestamp: parseSlackTimestamp(ts),
	})
}

// resolveUserName looks up a user's display name. Falls back to user ID.
func (a *Adapter) resolveUserName(userID string) string {
	if userID == "" {
		return ""
	}
	a.mu.Lock()
	name, ok := a.names[userID]
	a.mu.Unlock()
	if ok {
		return name
	}

	user, err := a.client.GetUserInfo(userID)
	if err != nil {
		return userID
	}
	name = user.Profile.DisplayName
	if name == "" {
		name = user.RealName
	}
	if name == "" {
		name = userID
	}
	a.mu.Lock()
	a.names[userID] = name
	a.mu.Unlock()
	return name
}

// buildMessageOptions translates an OutboundMessage into Slack MsgOptions.
func buildMessageOptions(msg telegraph.OutboundMessage) []slackapi.MsgOption {
	var options []slackapi.MsgOption
	if len(msg.Events) > 0 {
		var attachments []slackapi.Attachment
		for _, evt := range msg.Events {
			attachments = append(attachments, eventToAttachment(evt))
		}
		options = append(options, slackapi.MsgOptionAttachments(attachments...))
		// Use text as fallback.
		if msg.Text != "" {
			options = append(options, slackapi.MsgOptionText(msg.Text, false))
		}
	} else {
		options = append(options, slackapi.MsgOptionText(msg.Text, false))
	}
	return options
}

// eventToAttachment converts a FormattedEvent to a Slack Attachment.
func eventToAttachment(evt telegraph.FormattedEvent) slackapi.Attachment {
	att := slackapi.Attachment{
		Title:    evt.Title,
		Text:     evt.Body,
		Color:    evt.Color,
		Fallback: evt.Title,
	}
	for _, f := range evt.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: f.Short,
		})
	}
	return att
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit errors.
// It respects context cancellation and the RetryAfter duration from Slack.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) || attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// parseSlackTimestamp converts a Slack timestamp (e.g., "1234567890.123456")
// to a time.Time.
func parseSlackTimestamp(ts string) time.Time {
	sec, _, _ := strings.Cut(ts, ".")
	n, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(n, 0)
}

package telegraph

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/zulandar/tally/internal/intake"
	"github.com/zulandar/tally/internal/report"
)

// restartCommand resets the chat's session regardless of state.
const restartCommand = "/start"

// MessageRestart acknowledges a restart.
const MessageRestart = "Starting over…"

// Dispatcher classifies inbound events and drives the per-chat intake
// sessions. Events for one chat are processed FIFO; chats are independent.
type Dispatcher struct {
	registry  *intake.Registry
	adapter   Adapter
	sink      report.Sink
	botUserID string // the bot's own user ID (to filter self-messages)
	out       io.Writer
	lanes     *lanes
}

// DispatcherOpts holds parameters for creating a Dispatcher.
type DispatcherOpts struct {
	Registry  *intake.Registry
	Adapter   Adapter
	Sink      report.Sink
	BotUserID string    // bot's user ID for self-message filtering
	Out       io.Writer // defaults to os.Stdout
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts DispatcherOpts) (*Dispatcher, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("telegraph: dispatcher: registry is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("telegraph: dispatcher: adapter is required")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("telegraph: dispatcher: sink is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Dispatcher{
		registry:  opts.Registry,
		adapter:   opts.Adapter,
		sink:      opts.Sink,
		botUserID: opts.BotUserID,
		out:       out,
		lanes:     newLanes(),
	}, nil
}

// Submit queues msg on its chat's lane and returns immediately. It reports
// false when the event is ignored or the dispatcher is shutting down.
//
// Queued work runs with a context detached from ctx's cancellation so that
// shutdown lets in-flight events finish.
func (d *Dispatcher) Submit(ctx context.Context, msg InboundMessage) bool {
	if d.ignored(msg) {
		return false
	}
	work := context.WithoutCancel(ctx)
	return d.lanes.submit(msg.ChatID, func() {
		if err := d.Handle(work, msg); err != nil {
			log.Printf("telegraph: dispatch: chat=%d: %v", msg.ChatID, err)
		}
	})
}

// Wait stops accepting events and blocks until every queued event has been
// handled.
func (d *Dispatcher) Wait() {
	d.lanes.close()
}

// Handle processes a single inbound event synchronously. Routing paths:
//  1. Callback, non-text, chat 0 or bot self-message → ignore
//  2. Text starting with /start → reset session, acknowledge
//  3. Any other text → session (created on first contact) advances
//
// The first failing effect aborts the rest; the session state is not rolled
// back.
func (d *Dispatcher) Handle(ctx context.Context, msg InboundMessage) error {
	if d.ignored(msg) {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	if strings.HasPrefix(text, restartCommand) {
		existed := d.registry.Reset(msg.ChatID)
		fmt.Fprintf(d.out, "telegraph: dispatch: restart [chat=%d user=%s had_session=%t]\n",
			msg.ChatID, msg.UserName, existed)
		if err := d.adapter.Send(ctx, OutboundMessage{
			ChatID:         msg.ChatID,
			Text:           MessageRestart,
			RemoveKeyboard: true,
		}); err != nil {
			return fmt.Errorf("send restart ack: %w", err)
		}
		return nil
	}

	sess, initial := d.registry.GetOrCreate(msg.ChatID)
	if initial != nil {
		fmt.Fprintf(d.out, "telegraph: dispatch: new session [chat=%d user=%s]\n", msg.ChatID, msg.UserName)
		if err := d.apply(ctx, msg.ChatID, initial); err != nil {
			return err
		}
	}

	before := sess.State()
	effects := sess.Advance(msg.Text)
	fmt.Fprintf(d.out, "telegraph: dispatch: [chat=%d] %s → %s\n", msg.ChatID, before, sess.State())
	return d.apply(ctx, msg.ChatID, effects)
}

// apply executes effects in order against the adapter and sink.
func (d *Dispatcher) apply(ctx context.Context, chatID int64, effects []intake.Effect) error {
	for _, e := range effects {
		switch e.Kind {
		case intake.EffectSend:
			if err := d.adapter.Send(ctx, OutboundMessage{ChatID: chatID, Text: e.Text}); err != nil {
				return fmt.Errorf("send: %w", err)
			}
		case intake.EffectPersist:
			if err := d.sink.Append(ctx, e.Record); err != nil {
				return fmt.Errorf("persist: %w", err)
			}
			fmt.Fprintf(d.out, "telegraph: dispatch: [chat=%d] record saved (supervisor=%q)\n", chatID, e.Record.Supervisor)
		}
	}
	return nil
}

// ignored reports whether msg carries nothing the intake flow acts on.
func (d *Dispatcher) ignored(msg InboundMessage) bool {
	if msg.Kind != KindMessage || msg.ChatID == 0 {
		return true
	}
	return d.botUserID != "" && msg.UserID == d.botUserID
}

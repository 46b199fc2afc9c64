package telegraph

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/zulandar/tally/internal/config"
	"github.com/zulandar/tally/internal/intake"
	"github.com/zulandar/tally/internal/report"
)

// Daemon is the main tally bot process. It connects to a chat platform via
// an Adapter, pumps inbound events through a Dispatcher, and posts the daily
// digest when configured.
type Daemon struct {
	adapter  Adapter
	registry *intake.Registry
	sink     report.Sink
	stats    StatsProvider
	digest   config.DigestConfig
	out      io.Writer
}

// DaemonOpts holds parameters for creating a new Daemon.
type DaemonOpts struct {
	Adapter  Adapter
	Registry *intake.Registry
	Sink     report.Sink
	Stats    StatsProvider       // optional; required for the digest
	Digest   config.DigestConfig // digest schedule and target chats
	Out      io.Writer           // defaults to os.Stdout
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("telegraph: adapter is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("telegraph: registry is required")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("telegraph: sink is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if opts.Digest.Enabled && opts.Stats == nil {
		fmt.Fprintf(out, "telegraph: no stats provider configured; digest disabled\n")
	}
	return &Daemon{
		adapter:  opts.Adapter,
		registry: opts.Registry,
		sink:     opts.Sink,
		stats:    opts.Stats,
		digest:   opts.Digest,
		out:      out,
	}, nil
}

// Run starts the daemon. It connects the adapter, bootstraps the report
// header, and blocks until the context is cancelled or the adapter closes
// its inbound channel. On shutdown it lets queued events finish, then closes
// the adapter.
func (d *Daemon) Run(ctx context.Context) error {
	fmt.Fprintf(d.out, "Tally connecting...\n")
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("telegraph: connect: %w", err)
	}

	// A failed bootstrap is retried by the sink on the first append.
	if err := d.sink.EnsureHeader(ctx); err != nil {
		log.Printf("telegraph: ensure report header: %v", err)
	}

	// Extract bot user ID if the adapter supports it.
	var botUserID string
	if bui, ok := d.adapter.(BotUserIDer); ok {
		botUserID = bui.BotUserID()
	}

	dispatcher, err := NewDispatcher(DispatcherOpts{
		Registry:  d.registry,
		Adapter:   d.adapter,
		Sink:      d.sink,
		BotUserID: botUserID,
		Out:       d.out,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("telegraph: build dispatcher: %w", err)
	}

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("telegraph: listen: %w", err)
	}

	if d.digest.Enabled && d.stats != nil {
		go d.runDigestScheduler(ctx)
	}

	fmt.Fprintf(d.out, "Tally online\n")

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(d.out, "Tally shutting down...\n")
			d.shutdown(dispatcher)
			return nil

		case msg, ok := <-inbound:
			if !ok {
				fmt.Fprintf(d.out, "Tally inbound channel closed\n")
				d.shutdown(dispatcher)
				return nil
			}
			dispatcher.Submit(ctx, msg)
		}
	}
}

// shutdown drains the dispatcher lanes and closes the adapter.
func (d *Daemon) shutdown(dispatcher *Dispatcher) {
	dispatcher.Wait()
	if err := d.adapter.Close(); err != nil {
		log.Printf("telegraph: close adapter: %v", err)
	}
	fmt.Fprintf(d.out, "Tally stopped\n")
}

// runDigestScheduler posts the daily digest on the configured cron schedule
// until ctx is cancelled.
func (d *Daemon) runDigestScheduler(ctx context.Context) {
	wait := nextCronDuration(d.digest.Cron)
	if wait <= 0 {
		log.Printf("telegraph: digest: invalid cron %q; digest disabled", d.digest.Cron)
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			d.fireDigest(ctx)
			if wait := nextCronDuration(d.digest.Cron); wait > 0 {
				timer.Reset(wait)
			}
		}
	}
}

// fireDigest builds today's digest and sends it to every digest chat.
func (d *Daemon) fireDigest(ctx context.Context) {
	event, ok := FormatDigest(d.stats.Today())
	if !ok {
		// Nothing saved today: suppress digest.
		return
	}
	for _, chatID := range d.digest.Chats {
		if err := d.adapter.Send(ctx, OutboundMessage{
			ChatID: chatID,
			Events: []FormattedEvent{event},
		}); err != nil {
			log.Printf("telegraph: send digest chat=%d: %v", chatID, err)
		}
	}
}

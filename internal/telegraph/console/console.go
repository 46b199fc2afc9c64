// Package console implements the telegraph Adapter over a local terminal:
// each input line is one message from a single fixed chat.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/zulandar/tally/internal/telegraph"
	"golang.org/x/term"
)

const (
	prompt    = "> "
	inboxSize = 16
	userID    = "console"
)

// Adapter implements telegraph.Adapter on an io.Reader/io.Writer pair.
type Adapter struct {
	in          io.Reader
	out         io.Writer
	chatID      int64
	interactive bool

	mu        sync.Mutex
	connected bool
	listening bool
	closed    bool
	inbox     *telegraph.Inbox
}

// AdapterOpts holds parameters for creating a console Adapter.
type AdapterOpts struct {
	In     io.Reader // defaults to os.Stdin
	Out    io.Writer // defaults to os.Stdout
	ChatID int64    // chat ID stamped on every inbound line
}

// New creates a console Adapter. Prompts are printed only when In is a
// terminal.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.ChatID == 0 {
		return nil, fmt.Errorf("console: chat id is required")
	}
	in, out := opts.In, opts.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return &Adapter{
		in:          in,
		out:         out,
		chatID:      opts.ChatID,
		interactive: isTerminal(in),
		inbox:       telegraph.NewInbox(inboxSize),
	}, nil
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Connect marks the adapter ready.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("console: adapter already closed")
	}
	a.connected = true
	return nil
}

// Listen starts reading lines and returns the inbound channel. The channel
// closes at end of input.
func (a *Adapter) Listen(ctx context.Context) (<-chan telegraph.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("console: not connected")
	}
	if !a.listening {
		a.listening = true
		go a.readLines()
	}
	return a.inbox.C(), nil
}

func (a *Adapter) readLines() {
	defer a.inbox.Close()
	a.printPrompt()
	scanner := bufio.NewScanner(a.in)
	for scanner.Scan() {
		msg := telegraph.InboundMessage{
			Kind:      telegraph.KindMessage,
			Platform:  "console",
			ChatID:    a.chatID,
			UserID:    userID,
			UserName:  userID,
			Text:      scanner.Text(),
			Timestamp: time.Now(),
		}
		if !a.inbox.Deliver(msg) {
			return
		}
	}
}

// Send writes the message to the output. Events are flattened to plain text.
func (a *Adapter) Send(ctx context.Context, msg telegraph.OutboundMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return fmt.Errorf("console: not connected")
	}
	if msg.ChatID != a.chatID {
		return fmt.Errorf("console: unknown chat %d", msg.ChatID)
	}
	text := telegraph.RenderPlain(msg)
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if _, err := io.WriteString(a.out, text); err != nil {
		return fmt.Errorf("console: write: %w", err)
	}
	if a.interactive {
		fmt.Fprint(a.out, prompt)
	}
	return nil
}

func (a *Adapter) printPrompt() {
	if !a.interactive {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprint(a.out, prompt)
}

// Close stops delivering input lines. A read blocked on the terminal is
// abandoned.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	a.inbox.Close()
	return nil
}

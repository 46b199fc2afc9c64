package telegraph

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/tally/internal/intake"
)

const testPassword = "654"

var fixedNow = time.Date(2024, 3, 5, 9, 15, 0, 0, time.UTC)

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeSink records appended rows.
type fakeSink struct {
	mu          sync.Mutex
	headerCalls int
	headerErr   error
	appendErr   error
	records     []intake.Record
}

func (s *fakeSink) EnsureHeader(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headerCalls++
	return s.headerErr
}

func (s *fakeSink) Append(ctx context.Context, rec intake.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeSink) Records() []intake.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]intake.Record, len(s.records))
	copy(out, s.records)
	return out
}

func testRegistry() *intake.Registry {
	return intake.NewRegistry(intake.Env{
		Password: testPassword,
		Now:      func() time.Time { return fixedNow },
	})
}

type dispatchFixture struct {
	adapter    *MockAdapter
	sink       *fakeSink
	registry   *intake.Registry
	dispatcher *Dispatcher
	out        *syncBuffer
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	f := &dispatchFixture{
		adapter:  NewMockAdapter(),
		sink:     &fakeSink{},
		registry: testRegistry(),
		out:      &syncBuffer{},
	}
	if err := f.adapter.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	d, err := NewDispatcher(DispatcherOpts{
		Registry:  f.registry,
		Adapter:   f.adapter,
		Sink:      f.sink,
		BotUserID: "BOT",
		Out:       f.out,
	})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	f.dispatcher = d
	return f
}

func (f *dispatchFixture) text(t *testing.T, chatID int64, texts ...string) {
	t.Helper()
	for _, text := range texts {
		msg := InboundMessage{Kind: KindMessage, ChatID: chatID, UserName: "alice", Text: text}
		if err := f.dispatcher.Handle(context.Background(), msg); err != nil {
			t.Fatalf("Handle(%q): %v", text, err)
		}
	}
}

func TestNewDispatcher_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts DispatcherOpts
		want string
	}{
		{"nil registry", DispatcherOpts{Adapter: NewMockAdapter(), Sink: &fakeSink{}}, "registry is required"},
		{"nil adapter", DispatcherOpts{Registry: testRegistry(), Sink: &fakeSink{}}, "adapter is required"},
		{"nil sink", DispatcherOpts{Registry: testRegistry(), Adapter: NewMockAdapter()}, "sink is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDispatcher(tt.opts)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestDispatcher_FullPass(t *testing.T) {
	f := newDispatchFixture(t)

	f.text(t, 100, "", testPassword, "Sup1", "ClientX", "DeptY", "Widget", "10", "2024-01-01 10:00")

	want := []string{
		intake.PromptPassword, // session created
		intake.PromptPassword, // "" is a wrong password
		intake.PromptSupervisor,
		intake.PromptClient,
		intake.PromptDepartment,
		intake.PromptItem,
		intake.PromptQuantity,
		intake.PromptTimestamp,
		intake.MessageSaved,
		intake.PromptSupervisor,
	}
	got := f.adapter.SentTo(100)
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("sent =\n%v\nwant\n%v", got, want)
	}

	recs := f.sink.Records()
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	rec := recs[0]
	if rec.Supervisor != "Sup1" || rec.Client != "ClientX" || rec.Department != "DeptY" || rec.Item != "Widget" || rec.Quantity != 10 {
		t.Errorf("record = %+v", rec)
	}
	if got := rec.Timestamp.Format(intake.TimestampLayout); got != "2024-01-01 10:00" {
		t.Errorf("Timestamp = %q, want %q", got, "2024-01-01 10:00")
	}

	sess, ok := f.registry.Get(100)
	if !ok {
		t.Fatal("session missing after completion")
	}
	if sess.State() != intake.AwaitingSupervisor {
		t.Errorf("State = %v, want %v", sess.State(), intake.AwaitingSupervisor)
	}
}

func TestDispatcher_RestartMidFlow(t *testing.T) {
	f := newDispatchFixture(t)

	f.text(t, 7, "hi", testPassword, "Sup1", "ClientX")
	f.text(t, 7, "/start")

	if _, ok := f.registry.Get(7); ok {
		t.Fatal("session should be removed by /start")
	}
	last, _ := f.adapter.LastSent()
	if last.Text != MessageRestart || !last.RemoveKeyboard {
		t.Errorf("restart ack = %+v, want %q with keyboard removal", last, MessageRestart)
	}

	before := f.adapter.SentCount()
	f.text(t, 7, "hello again")
	sess, ok := f.registry.Get(7)
	if !ok {
		t.Fatal("session should be recreated")
	}
	if sess.State() != intake.AwaitingPassword {
		t.Errorf("State = %v, want %v", sess.State(), intake.AwaitingPassword)
	}
	if sess.Record() != (intake.Record{}) {
		t.Errorf("Record = %+v, want empty", sess.Record())
	}
	// Initial prompt plus the re-prompt for the wrong password.
	if got := f.adapter.SentCount() - before; got != 2 {
		t.Errorf("messages after restart = %d, want 2", got)
	}
}

func TestDispatcher_RestartVariants(t *testing.T) {
	f := newDispatchFixture(t)
	for _, text := range []string{"/start", "  /start", "/start@tally_bot", "/start again"} {
		f.text(t, 9, "x")
		f.text(t, 9, text)
		if _, ok := f.registry.Get(9); ok {
			t.Errorf("%q should reset the session", text)
		}
	}
}

func TestDispatcher_Ignored(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	events := []InboundMessage{
		{Kind: KindCallback, ChatID: 1, Text: "button"},
		{Kind: KindOther, ChatID: 1},
		{Kind: KindMessage, ChatID: 0, Text: "no chat"},
		{Kind: KindMessage, ChatID: 1, UserID: "BOT", Text: "echo"},
	}
	for _, ev := range events {
		if err := f.dispatcher.Handle(ctx, ev); err != nil {
			t.Errorf("Handle(%+v): %v", ev, err)
		}
		if f.dispatcher.Submit(ctx, ev) {
			t.Errorf("Submit(%+v) = true, want false", ev)
		}
	}
	f.dispatcher.Wait()

	if f.registry.Len() != 0 {
		t.Errorf("registry Len = %d, want 0", f.registry.Len())
	}
	if f.adapter.SentCount() != 0 {
		t.Errorf("SentCount = %d, want 0", f.adapter.SentCount())
	}
}

func TestDispatcher_PersistFailure(t *testing.T) {
	f := newDispatchFixture(t)
	f.sink.appendErr = errors.New("sheet unavailable")
	ctx := context.Background()

	f.text(t, 5, testPassword, "Sup1", "C", "D", "I", "1")
	err := f.dispatcher.Handle(ctx, InboundMessage{Kind: KindMessage, ChatID: 5, Text: "-"})
	if err == nil {
		t.Fatal("expected persist error")
	}
	if !strings.Contains(err.Error(), "persist") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "persist")
	}

	// The confirmation is not sent and the state is not rolled back.
	for _, text := range f.adapter.SentTo(5) {
		if text == intake.MessageSaved {
			t.Error("saved message sent despite persist failure")
		}
	}
	sess, _ := f.registry.Get(5)
	if sess.State() != intake.AwaitingSupervisor {
		t.Errorf("State = %v, want %v", sess.State(), intake.AwaitingSupervisor)
	}

	// The chat keeps working once the sink recovers.
	f.sink.mu.Lock()
	f.sink.appendErr = nil
	f.sink.mu.Unlock()
	f.text(t, 5, "Sup2", "C", "D", "I", "2", "-")
	if n := len(f.sink.Records()); n != 1 {
		t.Errorf("records = %d, want 1", n)
	}
}

func TestDispatcher_SendFailure(t *testing.T) {
	f := newDispatchFixture(t)
	f.adapter.SetSendError(errors.New("network down"))

	err := f.dispatcher.Handle(context.Background(), InboundMessage{Kind: KindMessage, ChatID: 3, Text: "hi"})
	if err == nil || !strings.Contains(err.Error(), "send") {
		t.Fatalf("error = %v, want send error", err)
	}
	// The session was still created.
	if _, ok := f.registry.Get(3); !ok {
		t.Error("session should exist after send failure")
	}
}

func TestDispatcher_SubmitIsolatesChats(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	flow := []string{testPassword, "Sup", "Client", "Dept", "Item", "3", "2024-01-01 10:00"}
	var wg sync.WaitGroup
	for chat := int64(1); chat <= 10; chat++ {
		wg.Add(1)
		go func(chat int64) {
			defer wg.Done()
			for _, text := range flow {
				in := text
				if in == "Sup" {
					in = fmt.Sprintf("Sup%d", chat)
				}
				f.dispatcher.Submit(ctx, InboundMessage{Kind: KindMessage, ChatID: chat, Text: in})
			}
		}(chat)
	}
	wg.Wait()
	f.dispatcher.Wait()

	recs := f.sink.Records()
	if len(recs) != 10 {
		t.Fatalf("records = %d, want 10", len(recs))
	}
	seen := make(map[string]bool)
	for _, rec := range recs {
		seen[rec.Supervisor] = true
		if rec.Quantity != 3 {
			t.Errorf("record %+v has Quantity %d, want 3", rec, rec.Quantity)
		}
	}
	for chat := 1; chat <= 10; chat++ {
		if !seen[fmt.Sprintf("Sup%d", chat)] {
			t.Errorf("missing record for chat %d", chat)
		}
	}
	for chat := int64(1); chat <= 10; chat++ {
		sess, _ := f.registry.Get(chat)
		if sess.State() != intake.AwaitingSupervisor {
			t.Errorf("chat %d State = %v, want %v", chat, sess.State(), intake.AwaitingSupervisor)
		}
	}
}

func TestDispatcher_SubmitAfterWait(t *testing.T) {
	f := newDispatchFixture(t)
	f.dispatcher.Wait()
	if f.dispatcher.Submit(context.Background(), InboundMessage{Kind: KindMessage, ChatID: 1, Text: "x"}) {
		t.Error("Submit after Wait = true, want false")
	}
}

func TestDispatcher_SubmitSurvivesCancel(t *testing.T) {
	f := newDispatchFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	f.dispatcher.Submit(ctx, InboundMessage{Kind: KindMessage, ChatID: 1, Text: "hi"})
	cancel()
	f.dispatcher.Wait()

	if got := f.adapter.SentCount(); got != 2 {
		t.Errorf("SentCount = %d, want 2", got)
	}
}

func TestDispatcher_LogsPasswordFree(t *testing.T) {
	f := newDispatchFixture(t)
	f.text(t, 11, "x", testPassword)
	if strings.Contains(f.out.String(), testPassword) {
		t.Errorf("output leaks password: %s", f.out.String())
	}
	if !strings.Contains(f.out.String(), "chat=11") {
		t.Errorf("output missing chat context: %s", f.out.String())
	}
}

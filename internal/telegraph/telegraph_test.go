package telegraph

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/tally/internal/config"
	"github.com/zulandar/tally/internal/intake"
	"github.com/zulandar/tally/internal/report"
)

// stubStats returns a fixed summary.
type stubStats struct {
	summary report.Summary
}

func (s stubStats) Today() report.Summary { return s.summary }

func TestNewDaemon_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts DaemonOpts
		want string
	}{
		{"nil adapter", DaemonOpts{Registry: testRegistry(), Sink: &fakeSink{}}, "adapter is required"},
		{"nil registry", DaemonOpts{Adapter: NewMockAdapter(), Sink: &fakeSink{}}, "registry is required"},
		{"nil sink", DaemonOpts{Adapter: NewMockAdapter(), Registry: testRegistry()}, "sink is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDaemon(tt.opts)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestNewDaemon_DigestWithoutStats(t *testing.T) {
	var buf syncBuffer
	_, err := NewDaemon(DaemonOpts{
		Adapter:  NewMockAdapter(),
		Registry: testRegistry(),
		Sink:     &fakeSink{},
		Digest:   config.DigestConfig{Enabled: true, Cron: "0 18 * * *", Chats: []int64{1}},
		Out:      &buf,
	})
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}
	if !strings.Contains(buf.String(), "digest disabled") {
		t.Errorf("missing digest warning in output: %s", buf.String())
	}
}

func startDaemon(t *testing.T, mock *MockAdapter, sink *fakeSink, reg *intake.Registry) (*syncBuffer, context.CancelFunc, <-chan error) {
	t.Helper()
	buf := &syncBuffer{}
	d, err := NewDaemon(DaemonOpts{
		Adapter:  mock,
		Registry: reg,
		Sink:     sink,
		Out:      buf,
	})
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx)
	}()

	waitFor(t, func() bool {
		return strings.Contains(buf.String(), "Tally online")
	}, 2*time.Second)
	return buf, cancel, done
}

func waitDone(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Run to return")
	}
}

func TestRun_ConnectsAndShutdown(t *testing.T) {
	mock := NewMockAdapter()
	sink := &fakeSink{}
	buf, cancel, done := startDaemon(t, mock, sink, testRegistry())

	if sink.headerCalls != 1 {
		t.Errorf("EnsureHeader calls = %d, want 1", sink.headerCalls)
	}

	cancel()
	waitDone(t, done)

	output := buf.String()
	if !strings.Contains(output, "Tally shutting down") {
		t.Errorf("missing shutdown message in output: %s", output)
	}
	if !strings.Contains(output, "Tally stopped") {
		t.Errorf("missing stopped message in output: %s", output)
	}
	if !mock.Closed() {
		t.Error("adapter should be closed on shutdown")
	}
}

func TestRun_HeaderFailureNotFatal(t *testing.T) {
	mock := NewMockAdapter()
	sink := &fakeSink{headerErr: errors.New("quota exceeded")}
	_, cancel, done := startDaemon(t, mock, sink, testRegistry())

	mock.SimulateInbound(InboundMessage{Kind: KindMessage, ChatID: 1, Text: "hi"})
	if !mock.WaitForSent(2, 2*time.Second) {
		t.Fatalf("SentCount = %d, want 2", mock.SentCount())
	}

	cancel()
	waitDone(t, done)
}

func TestRun_ConnectError(t *testing.T) {
	mock := NewMockAdapter()
	mock.Close()

	d, err := NewDaemon(DaemonOpts{
		Adapter:  mock,
		Registry: testRegistry(),
		Sink:     &fakeSink{},
		Out:      &syncBuffer{},
	})
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}
	err = d.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "telegraph: connect") {
		t.Errorf("Run error = %v, want connect error", err)
	}
}

func TestRun_HandlesClosed(t *testing.T) {
	mock := NewMockAdapter()
	buf, cancel, done := startDaemon(t, mock, &fakeSink{}, testRegistry())
	defer cancel()

	// Close the adapter externally (simulates adapter disconnect).
	mock.Close()
	waitDone(t, done)

	if !strings.Contains(buf.String(), "inbound channel closed") {
		t.Errorf("missing channel closed message in output: %s", buf.String())
	}
}

func TestRun_InboundFlowPersists(t *testing.T) {
	mock := NewMockAdapter()
	sink := &fakeSink{}
	reg := testRegistry()
	_, cancel, done := startDaemon(t, mock, sink, reg)

	for _, text := range []string{"", testPassword, "Sup1", "ClientX", "DeptY", "Widget", "10", "2024-01-01 10:00"} {
		mock.SimulateInbound(InboundMessage{Kind: KindMessage, ChatID: 42, Text: text})
	}

	waitFor(t, func() bool { return len(sink.Records()) == 1 }, 2*time.Second)
	cancel()
	waitDone(t, done)

	rec := sink.Records()[0]
	if rec.Supervisor != "Sup1" || rec.Quantity != 10 {
		t.Errorf("record = %+v", rec)
	}
	sess, _ := reg.Get(42)
	if sess.State() != intake.AwaitingSupervisor {
		t.Errorf("State = %v, want %v", sess.State(), intake.AwaitingSupervisor)
	}
}

func TestRun_ShutdownDrainsQueuedEvents(t *testing.T) {
	mock := NewMockAdapter()
	sink := &fakeSink{}
	reg := testRegistry()
	_, cancel, done := startDaemon(t, mock, sink, reg)

	for _, text := range []string{testPassword, "S", "C", "D", "I", "1", "-"} {
		mock.SimulateInbound(InboundMessage{Kind: KindMessage, ChatID: 8, Text: text})
	}
	// Wait until the daemon has taken every event off the channel.
	waitFor(t, func() bool { return len(mock.inbound) == 0 }, 2*time.Second)
	cancel()
	waitDone(t, done)

	// Every accepted event ran to completion before the adapter closed.
	if n := len(sink.Records()); n != 1 {
		t.Errorf("records = %d, want 1", n)
	}
	sess, ok := reg.Get(8)
	if !ok {
		t.Fatal("session missing after shutdown")
	}
	if sess.State() != intake.AwaitingSupervisor {
		t.Errorf("State = %v, want %v", sess.State(), intake.AwaitingSupervisor)
	}
}

func TestRun_BotUserIDFiltering(t *testing.T) {
	mock := NewMockAdapter()
	mock.SetBotUserID("BOT")
	reg := testRegistry()
	_, cancel, done := startDaemon(t, mock, &fakeSink{}, reg)

	mock.SimulateInbound(InboundMessage{Kind: KindMessage, ChatID: 1, UserID: "BOT", Text: "echo"})
	mock.SimulateInbound(InboundMessage{Kind: KindMessage, ChatID: 2, UserID: "U1", Text: "hi"})

	waitFor(t, func() bool { return mock.SentCount() >= 2 }, 2*time.Second)
	cancel()
	waitDone(t, done)

	if _, ok := reg.Get(1); ok {
		t.Error("self-message should not create a session")
	}
	if len(mock.SentTo(1)) != 0 {
		t.Errorf("sent to chat 1 = %v, want none", mock.SentTo(1))
	}
}

func TestFireDigest(t *testing.T) {
	mock := NewMockAdapter()
	mock.Connect(context.Background())
	d, err := NewDaemon(DaemonOpts{
		Adapter:  mock,
		Registry: testRegistry(),
		Sink:     &fakeSink{},
		Stats: stubStats{summary: report.Summary{
			Day:          "2024-03-05",
			Total:        2,
			BySupervisor: []report.SupervisorCount{{Supervisor: "Ivanov", Count: 2}},
		}},
		Digest: config.DigestConfig{Enabled: true, Cron: "0 18 * * *", Chats: []int64{10, 20}},
		Out:    &syncBuffer{},
	})
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}

	d.fireDigest(context.Background())

	sent := mock.AllSent()
	if len(sent) != 2 {
		t.Fatalf("SentCount = %d, want 2", len(sent))
	}
	if sent[0].ChatID != 10 || sent[1].ChatID != 20 {
		t.Errorf("digest chats = [%d %d], want [10 20]", sent[0].ChatID, sent[1].ChatID)
	}
	if len(sent[0].Events) != 1 || sent[0].Events[0].Title != "Daily tally 2024-03-05" {
		t.Errorf("digest events = %+v", sent[0].Events)
	}
}

func TestFireDigest_SuppressedWhenEmpty(t *testing.T) {
	mock := NewMockAdapter()
	mock.Connect(context.Background())
	d, _ := NewDaemon(DaemonOpts{
		Adapter:  mock,
		Registry: testRegistry(),
		Sink:     &fakeSink{},
		Stats:    stubStats{summary: report.Summary{Day: "2024-03-05"}},
		Digest:   config.DigestConfig{Enabled: true, Cron: "0 18 * * *", Chats: []int64{10}},
		Out:      &syncBuffer{},
	})

	d.fireDigest(context.Background())
	if mock.SentCount() != 0 {
		t.Errorf("SentCount = %d, want 0", mock.SentCount())
	}
}

func TestRunDigestScheduler_InvalidCron(t *testing.T) {
	d, _ := NewDaemon(DaemonOpts{
		Adapter:  NewMockAdapter(),
		Registry: testRegistry(),
		Sink:     &fakeSink{},
		Stats:    stubStats{},
		Digest:   config.DigestConfig{Enabled: true, Cron: "bogus", Chats: []int64{1}},
		Out:      &syncBuffer{},
	})

	finished := make(chan struct{})
	go func() {
		d.runDigestScheduler(context.Background())
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("scheduler with invalid cron should return immediately")
	}
}

// waitFor polls condition fn until it returns true or timeout expires.
func waitFor(t *testing.T, fn func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("waitFor timed out after %v", timeout)
}

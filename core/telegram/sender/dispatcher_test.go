package sender

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

func TestDispatcherDeliversAndCounts(t *testing.T) {
	d := NewDispatcher(Options{RetryBackoff: time.Millisecond, MaxRetries: 2})
	var ran atomic.Int32
	for i := range 3 {
		err := d.Enqueue(context.Background(), Job{Action: "send.push", ChatID: int64(i + 1), Run: func() error {
			ran.Add(1)
			return nil
		}})
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if err := d.Enqueue(context.Background(), Job{Action: "bad", Run: func() error {
		return errors.New("chat not found")
	}}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	d.Close()

	st := d.Stats()
	if ran.Load() != 3 || st.Sent != 3 || st.Failed != 1 || st.Pending != 0 {
		t.Fatalf("ran = %d, stats = %+v", ran.Load(), st)
	}
	if err := d.Enqueue(context.Background(), Job{Run: func() error { return nil }}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("enqueue after close = %v", err)
	}
}

func TestDispatcherRetriesNetworkErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, RetryBackoff: time.Millisecond, MaxRetries: 3})
	var calls atomic.Int32
	_ = d.Enqueue(context.Background(), Job{Action: "send.push", Run: func() error {
		if calls.Add(1) < 3 {
			return &net.OpError{Op: "dial", Err: errors.New("refused")}
		}
		return nil
	}})
	d.Close()
	if calls.Load() != 3 || d.Stats().Sent != 1 {
		t.Fatalf("calls = %d, stats = %+v", calls.Load(), d.Stats())
	}
}

func TestDispatcherRejectsWhenFull(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})
	started := make(chan struct{})
	release := make(chan struct{})
	_ = d.Enqueue(context.Background(), Job{Run: func() error {
		close(started)
		<-release
		return nil
	}})
	<-started
	if err := d.Enqueue(context.Background(), Job{Run: func() error { return nil }}); err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if err := d.Enqueue(context.Background(), Job{Run: func() error { return nil }}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("third enqueue = %v", err)
	}
	close(release)
	d.Close()
}

func TestDispatcherOutlivesCallerContext(t *testing.T) {
	d := NewDispatcher(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var ran atomic.Bool
	_ = d.Enqueue(ctx, Job{Run: func() error {
		ran.Store(true)
		return nil
	}})
	d.Close()
	if !ran.Load() {
		t.Fatal("job dropped with the caller's context")
	}
}

func TestClassifyError(t *testing.T) {
	cases := map[string]error{
		"timeout":  context.DeadlineExceeded,
		"flood":    tele.FloodError{RetryAfter: 3},
		"dial":     &net.OpError{Op: "dial", Err: errors.New("refused")},
		"blocked":  &tele.Error{Code: 403, Description: "Forbidden: bot was blocked by the user"},
		"http_4xx": &tele.Error{Code: 400, Description: "Bad Request: chat not found"},
		"unknown":  errors.New("boom"),
	}
	for want, err := range cases {
		if got := classifyError(err); got != want {
			t.Fatalf("classifyError = %q, want %q", got, want)
		}
	}
	if got := redact(errors.New(`Post "https://api.telegram.org/bot123:ABC-def/sendMessage"`)); got != `Post "https://api.telegram.org/bot<redacted>/sendMessage"` {
		t.Fatalf("redact = %q", got)
	}
}

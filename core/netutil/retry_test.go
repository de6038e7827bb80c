package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"testing"
	"time"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return false }

func TestShouldRetry(t *testing.T) {
	if ShouldRetry(nil) {
		t.Fatal("nil error must not retry")
	}
	if ShouldRetry(errors.New("400 bad request")) {
		t.Fatal("plain error must not retry")
	}
	if ShouldRetry(context.Canceled) {
		t.Fatal("cancelled context must not retry")
	}
	dial := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	if !ShouldRetry(dial) {
		t.Fatal("dial errors should retry")
	}
	wrapped := &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: timeoutErr{}}
	if !ShouldRetry(wrapped) {
		t.Fatal("url timeout should retry")
	}
	reset := &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: &net.OpError{Op: "read", Err: syscall.ECONNRESET}}
	if !ShouldRetry(reset) {
		t.Fatal("connection reset should retry")
	}
	if ShouldRetry(fmt.Errorf("extract: %w", context.Canceled)) {
		t.Fatal("wrapped cancel must not retry")
	}
}

func TestSleep(t *testing.T) {
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("Sleep on cancelled ctx = %v", err)
	}
}

func TestBackoff(t *testing.T) {
	if got := Backoff(2*time.Second, 3); got != 6*time.Second {
		t.Fatalf("Backoff = %s", got)
	}
	if got := Backoff(0, 3); got != 0 {
		t.Fatalf("zero base should not wait, got %s", got)
	}
}

// Package sender delivers outbound Bot API calls off the update goroutine.
// Calls are paced to stay under Telegram's limits: a global rate for the
// whole bot and a slower one per chat, so a fanout to many vendors does not
// get the bot throttled.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pricebot/core/logger"
	"github.com/m3rciful/pricebot/core/netutil"
	"github.com/m3rciful/pricebot/core/state"
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned when the queue cannot take another job.
	ErrQueueFull = errors.New("telegram sender: queue full")

	tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

// Options controls the dispatcher; zero fields take defaults.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent on one job, waits included.
	MaxDuration time.Duration
	// PerSecond is the bot-wide call rate.
	PerSecond float64
	// ChatInterval spaces calls to the same chat; ChatBurst allows a short run.
	ChatInterval time.Duration
	ChatBurst    int
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	o.MaxRetries = max(o.MaxRetries, 0)
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	if o.PerSecond <= 0 {
		o.PerSecond = 25
	}
	if o.ChatInterval <= 0 {
		o.ChatInterval = time.Second
	}
	if o.ChatBurst <= 0 {
		o.ChatBurst = 3
	}
	return o
}

// Job is one outbound call. Run must be safe to repeat.
type Job struct {
	Action string
	// ChatID selects the per-chat pacing; 0 skips it.
	ChatID int64
	Run    func() error
}

type queued struct {
	ctx context.Context
	Job
}

// Stats counts jobs since start.
type Stats struct {
	Sent    uint64 `json:"sent"`
	Failed  uint64 `json:"failed"`
	Pending int    `json:"pending"`
}

// Dispatcher runs Jobs on a worker pool with pacing and retries.
type Dispatcher struct {
	opts   Options
	global *rate.Limiter
	chats  *state.Store[*rate.Limiter]

	// mu guards closed so Enqueue never sends on a closed queue.
	mu     sync.RWMutex
	closed bool
	jobs   chan queued
	wg     sync.WaitGroup

	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewDispatcher starts the workers.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{
		opts:   opts,
		global: rate.NewLimiter(rate.Limit(opts.PerSecond), max(int(opts.PerSecond), 1)),
		chats:  state.New[*rate.Limiter](),
		jobs:   make(chan queued, opts.QueueSize),
	}
	d.wg.Add(opts.Workers)
	for range opts.Workers {
		go d.worker()
	}
	return d
}

// Enqueue queues j without blocking.
func (d *Dispatcher) Enqueue(ctx context.Context, j Job) error {
	if j.Run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.jobs <- queued{ctx: context.WithoutCancel(ctx), Job: j}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{Sent: d.sent.Load(), Failed: d.failed.Load(), Pending: len(d.jobs)}
}

// Close stops accepting jobs and waits for the queue to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for q := range d.jobs {
		if err := d.run(q); err != nil {
			d.failed.Add(1)
			continue
		}
		d.sent.Add(1)
	}
}

func (d *Dispatcher) chatLimiter(chatID int64) *rate.Limiter {
	var lim *rate.Limiter
	d.chats.Update(strconv.FormatInt(chatID, 10), func(cur *rate.Limiter, ok bool) (*rate.Limiter, bool) {
		if !ok {
			cur = rate.NewLimiter(rate.Every(d.opts.ChatInterval), d.opts.ChatBurst)
		}
		lim = cur
		return cur, true
	})
	return lim
}

func (d *Dispatcher) run(q queued) error {
	ctx, cancel := context.WithTimeout(q.ctx, d.opts.MaxDuration)
	defer cancel()
	start := time.Now()

	for attempt := 1; ; attempt++ {
		err := d.pace(ctx, q.ChatID)
		if err == nil {
			err = q.Run()
		}
		if err == nil {
			attrs := append(jobAttrs(ctx, q.Job), slog.Int("attempt", attempt), slog.Duration("took", logger.Took(start)))
			if attempt > 1 {
				logger.Info(ctx, "tg.sender", "send.retry.success", attrs...)
			} else {
				logger.Debug(ctx, "tg.sender", "send.success", attrs...)
			}
			return nil
		}

		delay, retry := d.retryDelay(err, attempt)
		if !retry {
			logFailure(ctx, q.Job, err, attempt, start)
			return err
		}
		logger.Debug(ctx, "tg.sender", "send.retry.backoff",
			append(jobAttrs(ctx, q.Job), slog.Int("attempt", attempt), slog.Duration("delay", delay))...)
		if err := netutil.Sleep(ctx, delay); err != nil {
			logFailure(ctx, q.Job, err, attempt, start)
			return err
		}
	}
}

func (d *Dispatcher) pace(ctx context.Context, chatID int64) error {
	if chatID != 0 {
		if err := d.chatLimiter(chatID).Wait(ctx); err != nil {
			return err
		}
	}
	return d.global.Wait(ctx)
}

// retryDelay decides whether err is worth another attempt. Flood control
// answers carry their own wait; network failures back off linearly.
func (d *Dispatcher) retryDelay(err error, attempt int) (time.Duration, bool) {
	if attempt > d.opts.MaxRetries {
		return 0, false
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return time.Duration(max(flood.RetryAfter, 1)) * time.Second, true
	}
	if netutil.ShouldRetry(err) {
		return netutil.Backoff(d.opts.RetryBackoff, attempt), true
	}
	return 0, false
}

func jobAttrs(ctx context.Context, j Job) []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.Action)}
	if j.ChatID != 0 {
		attrs = append(attrs, slog.Int64("chat_id", j.ChatID))
	}
	if rid := logger.RIDFrom(ctx); rid != "" {
		attrs = append(attrs, slog.String("rid", rid))
	}
	return attrs
}

func logFailure(ctx context.Context, j Job, err error, attempts int, start time.Time) {
	logger.Error(ctx, "tg.sender", "send.fail", append(jobAttrs(ctx, j),
		slog.String("err", redact(err)),
		slog.String("error_kind", classifyError(err)),
		slog.Int("attempts", attempts),
		slog.Duration("took", logger.Took(start)),
	)...)
}

// redact strips bot tokens that net/http errors embed in request URLs.
func redact(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}

func classifyError(err error) string {
	var (
		dnsErr *net.DNSError
		netErr net.Error
		opErr  *net.OpError
		apiErr *tele.Error
		flood  tele.FloodError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &flood):
		return "flood"
	case errors.As(err, &dnsErr):
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return "dial"
	case errors.As(err, &apiErr):
		switch {
		case apiErr.Code == http.StatusForbidden:
			// The chat blocked the bot; retrying never helps.
			return "blocked"
		case apiErr.Code >= 500:
			return "http_5xx"
		case apiErr.Code >= 400:
			return "http_4xx"
		}
	}
	return "unknown"
}

package middleware

import (
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pricebot/core/logger"
	"github.com/m3rciful/pricebot/core/state"
	tghelpers "github.com/m3rciful/pricebot/core/telegram/helpers"
)

// RateLimitOptions configures RateLimitMiddleware.
type RateLimitOptions struct {
	// Interval is the minimum spacing between updates from one user.
	Interval time.Duration
	// Burst lets a user send a few updates back to back; 0 means 1.
	Burst int
	// Exclude lists update kinds ("message", "callback", "inline_query") that bypass the limit.
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
	// Limiters is the per-user limiter table; nil creates a private one.
	Limiters *state.Store[*rate.Limiter]
}

// UpdateKind names the kind of update c carries, as used by RateLimitOptions.Exclude.
func UpdateKind(c tele.Context) string {
	upd := c.Update()
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	case upd.Query != nil:
		return "inline_query"
	}
	return "other"
}

// RateLimitMiddleware drops updates from users that exceed the configured
// rate. Limiters idle for ten intervals are evicted as the table is touched.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	limiters := opts.Limiters
	if limiters == nil {
		limiters = state.New[*rate.Limiter]()
	}
	var lastSweep atomic.Int64

	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			kind := UpdateKind(c)
			if _, skip := opts.Exclude[kind]; skip {
				return next(c)
			}

			var lim *rate.Limiter
			limiters.Update(strconv.FormatInt(user.ID, 10), func(cur *rate.Limiter, ok bool) (*rate.Limiter, bool) {
				if !ok {
					cur = rate.NewLimiter(rate.Every(opts.Interval), opts.Burst)
				}
				lim = cur
				return cur, true
			})
			now, prev := time.Now().UnixNano(), lastSweep.Load()
			if time.Duration(now-prev) > 10*opts.Interval && lastSweep.CompareAndSwap(prev, now) {
				limiters.EvictIdle(10 * opts.Interval)
			}

			if !lim.Allow() {
				logger.Warn(tghelpers.BuildContext(c), "tg", "tg.rate_limit",
					slog.String("kind", kind),
					slog.Int64("user_id", user.ID),
				)
				if opts.OnLimited != nil {
					_ = opts.OnLimited(c)
				}
				return nil
			}
			return next(c)
		}
	}
}

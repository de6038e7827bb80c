// Package fanout dispatches confirmed buyer inquiries to matching vendors and
// broadcasts standing quotes to the buyer when no vendor answers in time.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/m3rciful/pricebot/core/logger"
	"github.com/m3rciful/pricebot/internal/pricebot/conversation"
	"github.com/m3rciful/pricebot/internal/pricebot/domain"
)

// DefaultFallbackDelay is how long an inquiry waits for a real quote before
// the standing quotes are broadcast.
const DefaultFallbackDelay = 30 * time.Second

// ErrNoVendors means no active vendor matches the inquiry; nothing was
// persisted and no timer was armed.
var ErrNoVendors = errors.New("fanout: no matching vendors")

// Repository is the persistence the coordinator needs.
type Repository interface {
	ActiveVendors(ctx context.Context, city, material string) ([]domain.Vendor, error)
	TouchLastQuoted(ctx context.Context, vendorID string, at time.Time) error
	CreateInquiry(ctx context.Context, inq domain.Inquiry) error
	AddNotification(ctx context.Context, n domain.Notification) error
	BotConfig(ctx context.Context) (domain.BotConfig, error)
}

// StandingQuotes lists the confirmed vendor rate sheets.
type StandingQuotes interface {
	Confirmed(ctx context.Context) ([]domain.StandardQuote, error)
}

// Options tune a Coordinator.
type Options struct {
	// FallbackDelay defaults to DefaultFallbackDelay.
	FallbackDelay time.Duration
	// Defaults is used when the bot config cannot be read.
	Defaults domain.BotConfig
}

// Coordinator fans inquiries out to vendors and owns their fallback timers.
type Coordinator struct {
	repo     Repository
	standing StandingQuotes
	sender   conversation.Sender
	timers   *Timers
	opts     Options
	now      func() time.Time

	mu      sync.Mutex
	limiter *rate.Limiter
	perMin  int
}

// NewCoordinator wires a Coordinator. timers may be shared with quote intake,
// which cancels them.
func NewCoordinator(repo Repository, standing StandingQuotes, sender conversation.Sender, timers *Timers, opts Options) *Coordinator {
	if opts.FallbackDelay <= 0 {
		opts.FallbackDelay = DefaultFallbackDelay
	}
	opts.Defaults = opts.Defaults.Normalized()
	if timers == nil {
		timers = NewTimers()
	}
	return &Coordinator{
		repo:     repo,
		standing: standing,
		sender:   sender,
		timers:   timers,
		opts:     opts,
		now:      time.Now,
	}
}

// Timers exposes the fallback timer registry.
func (c *Coordinator) Timers() *Timers { return c.timers }

// Dispatch persists an inquiry for the buyer session, arms its fallback timer
// and sends the rate request to up to MaxVendorsPerInquiry vendors in
// directory order. Individual delivery failures are logged and skipped.
func (c *Coordinator) Dispatch(ctx context.Context, sess domain.Session) (domain.Inquiry, error) {
	start := time.Now()
	ctx = logger.WithConversation(ctx, sess.ConversationID)
	cfg := c.botConfig(ctx)

	vendors, err := c.repo.ActiveVendors(ctx, sess.City, sess.Material)
	if err != nil {
		return domain.Inquiry{}, fmt.Errorf("fanout: list vendors: %w", err)
	}
	if len(vendors) == 0 {
		logger.Warn(ctx, "fanout", "fanout.no_vendors",
			slog.String("city", sess.City),
			slog.String("material", sess.Material),
		)
		return domain.Inquiry{}, ErrNoVendors
	}
	if len(vendors) > cfg.MaxVendorsPerInquiry {
		vendors = vendors[:cfg.MaxVendorsPerInquiry]
	}

	inq := domain.Inquiry{
		InquiryID:         domain.NewInquiryID(),
		BuyerConversation: sess.ConversationID,
		City:              sess.City,
		Material:          sess.Material,
		Brand:             sess.Brand,
		Quantity:          sess.Quantity,
		Status:            domain.InquiryPending,
		Platform:          conversation.PlatformOf(sess.ConversationID),
		CreatedAt:         c.now(),
	}
	for _, v := range vendors {
		inq.VendorsContacted = append(inq.VendorsContacted, v.VendorID)
	}
	if err := c.repo.CreateInquiry(ctx, inq); err != nil {
		return domain.Inquiry{}, fmt.Errorf("fanout: create inquiry: %w", err)
	}

	// Armed before sending so a fast vendor reply always finds the timer.
	c.timers.Arm(inq.InquiryID, c.opts.FallbackDelay, func() { c.fallback(inq) })

	limiter := c.limiterFor(cfg.MessagesPerMinute)
	sent := 0
	for _, v := range vendors {
		if v.ChannelIdentity == "" {
			logger.Info(ctx, "fanout", "fanout.vendor.unreachable",
				slog.String("inquiry_id", inq.InquiryID),
				slog.String("vendor_id", v.VendorID),
			)
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			logger.Warn(ctx, "fanout", "fanout.throttle.abort",
				slog.String("inquiry_id", inq.InquiryID),
				slog.String("err", err.Error()),
			)
			break
		}
		msg := VendorMessage(cfg.RateRequestTemplate, v, inq)
		if err := c.sender.Send(ctx, v.ChannelIdentity, msg); err != nil {
			logger.Warn(ctx, "fanout", "fanout.vendor.send_fail",
				slog.String("inquiry_id", inq.InquiryID),
				slog.String("vendor_id", v.VendorID),
				slog.String("err", err.Error()),
			)
			continue
		}
		sent++
		if err := c.repo.TouchLastQuoted(ctx, v.VendorID, c.now()); err != nil {
			logger.Warn(ctx, "fanout", "fanout.vendor.touch_fail",
				slog.String("vendor_id", v.VendorID),
				slog.String("err", err.Error()),
			)
		}
	}

	logger.Info(ctx, "fanout", "fanout.dispatched",
		slog.String("inquiry_id", inq.InquiryID),
		slog.Int("selected", len(vendors)),
		slog.Int("sent", sent),
		slog.Duration("took", logger.Took(start)),
	)
	c.notify(ctx, domain.Notification{
		Message: fmt.Sprintf("📋 New inquiry #%s: %s in %s (%d vendors contacted)", inq.InquiryID, inq.Material, inq.City, sent),
		Type:    domain.NotifyInquiryDispatched,
	})
	return inq, nil
}

// fallback runs once per inquiry when its timer wins the claim.
func (c *Coordinator) fallback(inq domain.Inquiry) {
	ctx := logger.WithConversation(logger.Background(), inq.BuyerConversation)
	quotes, err := c.standing.Confirmed(ctx)
	if err != nil {
		logger.Error(ctx, "fanout", "fanout.fallback.fail", slog.String("inquiry_id", inq.InquiryID), slog.String("err", err.Error()))
		return
	}
	if len(quotes) == 0 {
		logger.Info(ctx, "fanout", "fanout.fallback.empty", slog.String("inquiry_id", inq.InquiryID))
		return
	}
	if err := c.sender.Send(ctx, inq.BuyerConversation, FallbackMessage(quotes)); err != nil {
		logger.Warn(ctx, "fanout", "fanout.fallback.send_fail", slog.String("inquiry_id", inq.InquiryID), slog.String("err", err.Error()))
		return
	}
	logger.Info(ctx, "fanout", "fanout.fallback.sent",
		slog.String("inquiry_id", inq.InquiryID),
		slog.Int("quotes", len(quotes)),
	)
}

func (c *Coordinator) botConfig(ctx context.Context) domain.BotConfig {
	cfg, err := c.repo.BotConfig(ctx)
	if err != nil {
		logger.Warn(ctx, "fanout", "fanout.config.fallback", slog.String("err", err.Error()))
		return c.opts.Defaults
	}
	return cfg.Normalized()
}

// limiterFor returns the shared vendor-message limiter, retuned when the
// configured rate changes.
func (c *Coordinator) limiterFor(perMinute int) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	every := rate.Every(time.Minute / time.Duration(perMinute))
	if c.limiter == nil {
		c.limiter = rate.NewLimiter(every, perMinute)
	} else if c.perMin != perMinute {
		c.limiter.SetLimit(every)
		c.limiter.SetBurst(perMinute)
	}
	c.perMin = perMinute
	return c.limiter
}

func (c *Coordinator) notify(ctx context.Context, n domain.Notification) {
	n.CreatedAt = c.now()
	if err := c.repo.AddNotification(ctx, n); err != nil {
		logger.Warn(ctx, "fanout", "notification.fail", slog.String("type", string(n.Type)), slog.String("err", err.Error()))
	}
}

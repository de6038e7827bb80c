package quotes

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/m3rciful/pricebot/core/format"
	"github.com/m3rciful/pricebot/core/logger"
	"github.com/m3rciful/pricebot/core/state"
	"github.com/m3rciful/pricebot/internal/pricebot/conversation"
	"github.com/m3rciful/pricebot/internal/pricebot/domain"
	"github.com/m3rciful/pricebot/internal/pricebot/extraction"
)

// Standing quote action token prefixes; the parameter is the vendor id.
const (
	TokenStandingConfirm = "std_confirm_"
	TokenStandingEdit    = "std_edit_"
)

// StandingHint is shown when a rate update could not be understood.
const StandingHint = "🤔 I didn't understand completely. Try saying:\n\n" +
	"• \"Cement 350, TMT 48, GST 18%, delivery 50\"\n" +
	"• \"Cement rate 380 today\"\n" +
	"• \"Same as yesterday\"\n" +
	"• \"Update my TMT to 52\""

// StandingStore persists confirmed standing rate sheets keyed by vendor id.
type StandingStore interface {
	Get(ctx context.Context, vendorID string) (domain.StandardQuote, bool, error)
	Put(ctx context.Context, q domain.StandardQuote) error
	// Confirmed returns every confirmed sheet, oldest update first.
	Confirmed(ctx context.Context) ([]domain.StandardQuote, error)
}

// Standing manages natural-language rate sheet updates. An update is held as
// a draft until the vendor confirms it.
type Standing struct {
	store  StandingStore
	drafts *state.Store[domain.StandardQuote]
	now    func() time.Time
}

// NewStanding wires a Standing service over store.
func NewStanding(store StandingStore, opts ...state.Option) *Standing {
	return &Standing{store: store, drafts: state.New[domain.StandardQuote](opts...), now: time.Now}
}

// HasDraft reports whether vendorID has an unconfirmed update.
func (s *Standing) HasDraft(vendorID string) bool {
	_, ok := s.drafts.Get(vendorID)
	return ok
}

// Drafts returns the number of unconfirmed updates.
func (s *Standing) Drafts() int { return s.drafts.Len() }

// EvictIdle drops drafts idle for longer than maxIdle.
func (s *Standing) EvictIdle(maxIdle time.Duration) int { return s.drafts.EvictIdle(maxIdle) }

// Propose merges res over the vendor's current sheet and asks for confirmation.
// Missing values fall back to the current sheet, then to the defaults.
func (s *Standing) Propose(ctx context.Context, vendorID string, res extraction.StandardQuoteResult) (conversation.Outbound, error) {
	cur, ok, err := s.store.Get(ctx, vendorID)
	if err != nil {
		return conversation.Outbound{}, fmt.Errorf("quotes: load standing quote: %w", err)
	}
	if !ok {
		cur = domain.StandardQuote{
			VendorID: vendorID,
			Cement:   domain.DefaultCementRate,
			TMT:      domain.DefaultTMTRate,
			GST:      domain.DefaultGST,
			Delivery: domain.DefaultDelivery,
		}
	}

	next := cur
	if res.Action != extraction.QuoteActionSame {
		next.Cement = pick(res.Cement, cur.Cement)
		next.TMT = pick(res.TMT, cur.TMT)
		next.GST = pick(res.GST, cur.GST)
		next.Delivery = pick(res.Delivery, cur.Delivery)
	}
	next.VendorID = vendorID
	next.Confirmed = false
	next.LastUpdated = s.now()
	s.drafts.Set(vendorID, next)

	logger.Info(ctx, "quotes", "quotes.standing.proposed",
		slog.String("vendor_id", vendorID),
		slog.String("action", string(res.Action)),
		slog.Float64("confidence", res.Confidence),
	)
	return conversation.WithActions(
		"🤖 *Rates understood:*\n\n"+SheetText(next)+"\n\n*Correct?*",
		[]conversation.Action{
			{Label: "✅ Confirm Rates", Token: TokenStandingConfirm + vendorID},
			{Label: "✏️ Edit More", Token: TokenStandingEdit + vendorID},
		},
	), nil
}

// Confirm activates the pending draft of vendorID.
func (s *Standing) Confirm(ctx context.Context, vendorID string) (conversation.Outbound, error) {
	draft, ok := s.drafts.LoadAndDelete(vendorID)
	if !ok {
		return conversation.Text("❌ Nothing to confirm.\n\n" + StandingHint), nil
	}
	draft.Confirmed = true
	draft.LastUpdated = s.now()
	if err := s.store.Put(ctx, draft); err != nil {
		return conversation.Outbound{}, fmt.Errorf("quotes: save standing quote: %w", err)
	}
	logger.Info(ctx, "quotes", "quotes.standing.confirmed", slog.String("vendor_id", vendorID))
	return conversation.Text("✅ *Standard rates confirmed!*\n\nYour rates are now active and will be sent automatically to new inquiries.\n\n📊 Current Rates:\n" + SheetText(draft)), nil
}

// Edit keeps the draft and explains how to send corrections.
func (s *Standing) Edit(_ context.Context, vendorID string) conversation.Outbound {
	if !s.HasDraft(vendorID) {
		return conversation.Text(StandingHint)
	}
	return conversation.Text("✏️ Send the rates you want to change, e.g. \"Update my TMT to 52\". Reply \"confirm\" to keep the rates above.")
}

// SheetText renders a rate sheet.
func SheetText(q domain.StandardQuote) string {
	return fmt.Sprintf("💰 Cement: ₹%s/bag\n🔩 TMT: ₹%s/kg\n📊 GST: %s%%\n🚚 Delivery: %s",
		format.Amount(q.Cement), format.Amount(q.TMT), format.Amount(q.GST), format.Delivery(q.Delivery))
}

func pick(v *float64, fallback float64) float64 {
	if v != nil {
		return *v
	}
	return fallback
}

// MemoryStandingStore keeps standing quotes in process memory.
type MemoryStandingStore struct {
	quotes *state.Store[domain.StandardQuote]
}

// NewMemoryStandingStore returns an empty in-memory store.
func NewMemoryStandingStore() *MemoryStandingStore {
	return &MemoryStandingStore{quotes: state.New[domain.StandardQuote]()}
}

func (m *MemoryStandingStore) Get(_ context.Context, vendorID string) (domain.StandardQuote, bool, error) {
	q, ok := m.quotes.Get(vendorID)
	return q, ok, nil
}

func (m *MemoryStandingStore) Put(_ context.Context, q domain.StandardQuote) error {
	if strings.TrimSpace(q.VendorID) == "" {
		return fmt.Errorf("quotes: standing quote without vendor id")
	}
	m.quotes.Set(q.VendorID, q)
	return nil
}

func (m *MemoryStandingStore) Confirmed(_ context.Context) ([]domain.StandardQuote, error) {
	var out []domain.StandardQuote
	m.quotes.Range(func(_ string, q domain.StandardQuote) bool {
		if q.Confirmed {
			out = append(out, q)
		}
		return true
	})
	sortSheets(out)
	return out, nil
}

func sortSheets(qs []domain.StandardQuote) {
	sort.Slice(qs, func(i, j int) bool {
		if !qs[i].LastUpdated.Equal(qs[j].LastUpdated) {
			return qs[i].LastUpdated.Before(qs[j].LastUpdated)
		}
		return qs[i].VendorID < qs[j].VendorID
	})
}

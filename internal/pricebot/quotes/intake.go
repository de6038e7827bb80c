package quotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/pricebot/core/format"
	"github.com/m3rciful/pricebot/core/logger"
	"github.com/m3rciful/pricebot/internal/pricebot/conversation"
	"github.com/m3rciful/pricebot/internal/pricebot/domain"
)

var (
	// ErrUnknownVendor means the replying conversation is not a registered vendor.
	ErrUnknownVendor = errors.New("quotes: unknown vendor")
	// ErrUnknownInquiry means the quoted inquiry id does not exist.
	ErrUnknownInquiry = errors.New("quotes: unknown inquiry")
)

// Repository is the persistence the intake needs.
type Repository interface {
	FindVendorByChannel(ctx context.Context, channelIdentity string) (domain.Vendor, error)
	GetInquiry(ctx context.Context, inquiryID string) (domain.Inquiry, error)
	IncrementResponses(ctx context.Context, inquiryID string) (domain.Inquiry, error)
	CreatePriceResponse(ctx context.Context, r domain.PriceResponse) error
	AddNotification(ctx context.Context, n domain.Notification) error
}

// TimerCanceller stops the fallback broadcast of an inquiry. Cancel reports
// whether this call won the timer.
type TimerCanceller interface {
	Cancel(inquiryID string) bool
}

// Receipt describes an accepted quote.
type Receipt struct {
	Vendor   domain.Vendor
	Inquiry  domain.Inquiry
	Response domain.PriceResponse
	// BuyerNotified is false when relaying the quote to the buyer failed.
	BuyerNotified bool
}

// Intake persists vendor quotes and relays them to the buyer.
type Intake struct {
	repo   Repository
	timers TimerCanceller
	sender conversation.Sender
	now    func() time.Time
}

// NewIntake wires an Intake.
func NewIntake(repo Repository, timers TimerCanceller, sender conversation.Sender) *Intake {
	return &Intake{repo: repo, timers: timers, sender: sender, now: time.Now}
}

// Submit records sub from vendorConversation. Unknown vendors or inquiries
// abort before anything is written.
func (in *Intake) Submit(ctx context.Context, vendorConversation string, sub Submission) (Receipt, error) {
	ctx = logger.WithConversation(ctx, vendorConversation)

	vendor, err := in.repo.FindVendorByChannel(ctx, vendorConversation)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn(ctx, "quotes", "quotes.intake.unknown_vendor", slog.String("inquiry_id", sub.InquiryID))
			return Receipt{}, ErrUnknownVendor
		}
		return Receipt{}, fmt.Errorf("quotes: find vendor: %w", err)
	}
	inq, err := in.repo.GetInquiry(ctx, sub.InquiryID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn(ctx, "quotes", "quotes.intake.unknown_inquiry",
				slog.String("inquiry_id", sub.InquiryID),
				slog.String("vendor_id", vendor.VendorID),
			)
			return Receipt{}, ErrUnknownInquiry
		}
		return Receipt{}, fmt.Errorf("quotes: get inquiry: %w", err)
	}

	won := false
	if in.timers != nil {
		won = in.timers.Cancel(inq.InquiryID)
	}

	resp := domain.PriceResponse{
		VendorID:       vendor.VendorID,
		InquiryID:      inq.InquiryID,
		Material:       inq.Material,
		Price:          sub.Rate,
		Unit:           format.OrDefault(sub.Unit, "unit"),
		GST:            sub.GST,
		DeliveryCharge: sub.Delivery,
		CreatedAt:      in.now(),
	}
	if err := in.repo.CreatePriceResponse(ctx, resp); err != nil {
		return Receipt{}, fmt.Errorf("quotes: save response: %w", err)
	}
	inq, err = in.repo.IncrementResponses(ctx, inq.InquiryID)
	if err != nil {
		return Receipt{}, fmt.Errorf("quotes: increment responses: %w", err)
	}

	logger.Info(ctx, "quotes", "quotes.intake.saved",
		slog.String("inquiry_id", inq.InquiryID),
		slog.String("vendor_id", vendor.VendorID),
		slog.Int("responses", inq.ResponseCount),
		slog.Bool("timer_cancelled", won),
	)
	in.notify(ctx, domain.NotifyVendorQuote, fmt.Sprintf("✅ Vendor quote received: %s per %s (Inquiry #%s)",
		format.Amount(resp.Price), resp.Unit, inq.InquiryID))

	rec := Receipt{Vendor: vendor, Inquiry: inq, Response: resp}
	if err := in.sender.Send(ctx, inq.BuyerConversation, BuyerMessage(inq, vendor, resp)); err != nil {
		logger.Warn(ctx, "quotes", "quotes.relay.fail",
			slog.String("inquiry_id", inq.InquiryID),
			slog.String("err", err.Error()),
		)
		return rec, nil
	}
	rec.BuyerNotified = true
	in.notify(ctx, domain.NotifyQuoteForwarded, fmt.Sprintf("📤 Quote forwarded to buyer for inquiry #%s", inq.InquiryID))
	return rec, nil
}

func (in *Intake) notify(ctx context.Context, typ domain.NotificationType, msg string) {
	n := domain.Notification{Message: msg, Type: typ, CreatedAt: in.now()}
	if err := in.repo.AddNotification(ctx, n); err != nil {
		logger.Warn(ctx, "quotes", "notification.fail", slog.String("type", string(typ)), slog.String("err", err.Error()))
	}
}

// BuyerMessage renders the compiled quote sent to the buyer.
func BuyerMessage(inq domain.Inquiry, v domain.Vendor, r domain.PriceResponse) conversation.Outbound {
	var b strings.Builder
	b.WriteString("🏗️ *New Quote Received!*\n\n")
	fmt.Fprintf(&b, "For your inquiry: %s\n", strings.ToUpper(format.MD(inq.Material)))
	fmt.Fprintf(&b, "📍 City: %s\n", format.MD(inq.City))
	fmt.Fprintf(&b, "📦 Quantity: %s\n\n", format.MD(format.OrDefault(inq.Quantity, "Not specified")))
	fmt.Fprintf(&b, "💼 *Vendor: %s*\n", format.MD(v.Name))
	fmt.Fprintf(&b, "💰 Rate: ₹%s per %s\n", format.Amount(r.Price), format.MD(r.Unit))
	fmt.Fprintf(&b, "📊 GST: %s%%\n", format.Amount(r.GST))
	fmt.Fprintf(&b, "🚚 Delivery: %s\n", format.Delivery(r.DeliveryCharge))
	fmt.Fprintf(&b, "📞 Contact: %s\n\n", format.MD(v.Phone))
	fmt.Fprintf(&b, "Inquiry ID: %s\n\n", inq.InquiryID)
	b.WriteString("More quotes may follow from other vendors!")
	return conversation.Text(b.String())
}

// ReceiptMessage is the confirmation shown to a vendor after a structured reply.
func ReceiptMessage(r Receipt) conversation.Outbound {
	return conversation.Text(fmt.Sprintf(
		"✅ Thank you! Your quote has been received and sent to the buyer.\n\n📋 Your Quote:\n💰 Rate: ₹%s per %s\n📊 GST: %s%%\n🚚 Delivery: %s\n\nInquiry ID: %s",
		format.Amount(r.Response.Price), format.MD(r.Response.Unit),
		format.Amount(r.Response.GST), format.Delivery(r.Response.DeliveryCharge),
		r.Inquiry.InquiryID,
	))
}

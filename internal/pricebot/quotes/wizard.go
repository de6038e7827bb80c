package quotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/pricebot/core/format"
	"github.com/m3rciful/pricebot/core/logger"
	"github.com/m3rciful/pricebot/core/state"
	"github.com/m3rciful/pricebot/internal/pricebot/conversation"
	"github.com/m3rciful/pricebot/internal/pricebot/domain"
)

// Wizard action token prefixes.
const (
	TokenQuote    = "quote_"
	TokenRate     = "rate_"
	TokenGST      = "gst_"
	TokenDelivery = "delivery_"
	TokenSubmit   = "confirm_"
	customValue   = "custom"
)

const (
	msgSessionExpired = "❌ Session expired. Please start over."
	msgInvalidNumber  = "❌ Please enter a valid number. Try again:"
	msgSubmitFailed   = "Sorry, I encountered an error, please try again"
)

type preset struct {
	unit  string
	rates []float64
}

var (
	ratePresets = map[string]preset{
		domain.MaterialCement: {unit: "bag", rates: []float64{300, 320, 350, 380, 400}},
		domain.MaterialTMT:    {unit: "kg", rates: []float64{45, 48, 52, 55, 60}},
	}
	otherPreset     = preset{unit: "unit", rates: []float64{100, 200, 300, 500, 1000}}
	gstPresets      = []float64{0, 5, 12, 18, 28}
	deliveryPresets = []float64{0, 50, 100, 150, 200}
)

func presetFor(material string) preset {
	if p, ok := ratePresets[strings.ToLower(material)]; ok {
		return p
	}
	return otherPreset
}

// InquiryReader looks up inquiries.
type InquiryReader interface {
	GetInquiry(ctx context.Context, inquiryID string) (domain.Inquiry, error)
}

// Wizard runs the guided rate, GST, delivery and confirm button flow.
type Wizard struct {
	sessions  *state.Store[domain.QuoteSession]
	inquiries InquiryReader
	intake    *Intake
	now       func() time.Time
}

// NewWizard wires a Wizard.
func NewWizard(inquiries InquiryReader, intake *Intake, opts ...state.Option) *Wizard {
	return &Wizard{
		sessions:  state.New[domain.QuoteSession](opts...),
		inquiries: inquiries,
		intake:    intake,
		now:       time.Now,
	}
}

// IsWizardToken reports whether token belongs to the wizard.
func IsWizardToken(token string) bool {
	for _, p := range []string{TokenQuote, TokenRate, TokenGST, TokenDelivery, TokenSubmit} {
		if strings.HasPrefix(token, p) {
			return true
		}
	}
	return false
}

// AwaitingCustom reports whether conv owes the wizard a typed value.
func (w *Wizard) AwaitingCustom(conv string) bool {
	s, ok := w.sessions.Get(conv)
	return ok && s.WaitingForCustom != ""
}

// Len returns the number of open wizard sessions.
func (w *Wizard) Len() int { return w.sessions.Len() }

// EvictIdle drops wizard sessions idle for longer than maxIdle.
func (w *Wizard) EvictIdle(maxIdle time.Duration) int { return w.sessions.EvictIdle(maxIdle) }

// HandleAction processes a wizard button press.
func (w *Wizard) HandleAction(ctx context.Context, conv, token string) conversation.Outbound {
	if inq, ok := strings.CutPrefix(token, TokenQuote); ok {
		return w.start(ctx, conv, inq)
	}
	if inq, ok := strings.CutPrefix(token, TokenSubmit); ok {
		return w.submit(ctx, conv, inq)
	}

	parts := strings.SplitN(token, "_", 3)
	if len(parts) != 3 {
		return conversation.Text(msgSessionExpired)
	}
	var field domain.QuoteStep
	switch parts[0] + "_" {
	case TokenRate:
		field = domain.QuoteStepRate
	case TokenGST:
		field = domain.QuoteStepGST
	case TokenDelivery:
		field = domain.QuoteStepDelivery
	default:
		return conversation.Text(msgSessionExpired)
	}

	sess, ok := w.sessions.Get(conv)
	if !ok || sess.InquiryID != parts[2] {
		return conversation.Text(msgSessionExpired)
	}
	if parts[1] == customValue {
		sess.WaitingForCustom = field
		sess.UpdatedAt = w.now()
		w.sessions.Set(conv, sess)
		return conversation.Text(customPrompt(field))
	}
	v, err := parseAmount(parts[1])
	if err != nil {
		return conversation.Text(msgSessionExpired)
	}
	return w.apply(conv, sess, field, v)
}

// HandleCustom consumes the typed value the wizard is waiting for. Invalid
// input re-prompts without advancing.
func (w *Wizard) HandleCustom(_ context.Context, conv, text string) conversation.Outbound {
	sess, ok := w.sessions.Get(conv)
	if !ok || sess.WaitingForCustom == "" {
		return conversation.Text(msgSessionExpired)
	}
	v, err := parseAmount(text)
	if err != nil {
		return conversation.Text(msgInvalidNumber)
	}
	field := sess.WaitingForCustom
	sess.WaitingForCustom = ""
	return w.apply(conv, sess, field, v)
}

func (w *Wizard) start(ctx context.Context, conv, inquiryID string) conversation.Outbound {
	material := ""
	inq, err := w.inquiries.GetInquiry(ctx, inquiryID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		logger.Warn(ctx, "quotes", "quotes.wizard.unknown_inquiry", slog.String("inquiry_id", inquiryID))
		return conversation.Text(msgSessionExpired)
	case err != nil:
		logger.Warn(ctx, "quotes", "quotes.wizard.lookup_fail", slog.String("inquiry_id", inquiryID), slog.String("err", err.Error()))
	default:
		material = inq.Material
	}

	w.sessions.Set(conv, domain.QuoteSession{
		VendorConversation: conv,
		InquiryID:          inquiryID,
		Material:           material,
		Step:               domain.QuoteStepRate,
		UpdatedAt:          w.now(),
	})
	logger.Info(ctx, "quotes", "quotes.wizard.start", slog.String("inquiry_id", inquiryID), slog.String("conversation_id", conv))

	p := presetFor(material)
	title := strings.ToUpper(format.OrDefault(material, "material"))
	return conversation.WithActions(
		fmt.Sprintf("🧱 *%s Quote - Step 1/3: Rate*\n\nSelect your rate per %s:", format.MD(title), p.unit),
		presetRows(TokenRate, inquiryID, p.rates, func(v float64) string {
			if p.unit == "kg" {
				return "₹" + format.Amount(v) + "/kg"
			}
			return "₹" + format.Amount(v)
		})...,
	)
}

// apply stores v as field and moves to the following step.
func (w *Wizard) apply(conv string, sess domain.QuoteSession, field domain.QuoteStep, v float64) conversation.Outbound {
	switch field {
	case domain.QuoteStepRate:
		sess.Rate = &v
		sess.Step = domain.QuoteStepGST
	case domain.QuoteStepGST:
		if sess.Rate == nil {
			return conversation.Text(msgSessionExpired)
		}
		sess.GST = &v
		sess.Step = domain.QuoteStepDelivery
	case domain.QuoteStepDelivery:
		if sess.Rate == nil || sess.GST == nil {
			return conversation.Text(msgSessionExpired)
		}
		sess.Delivery = &v
		sess.Step = domain.QuoteStepConfirm
	}
	sess.UpdatedAt = w.now()
	w.sessions.Set(conv, sess)

	inq := sess.InquiryID
	switch sess.Step {
	case domain.QuoteStepGST:
		return conversation.WithActions(
			fmt.Sprintf("✅ *Rate:* ₹%s\n\n📊 *Step 2/3: GST*\n\nSelect GST percentage:", format.Amount(*sess.Rate)),
			presetRows(TokenGST, inq, gstPresets, func(v float64) string { return format.Amount(v) + "%" })...,
		)
	case domain.QuoteStepDelivery:
		return conversation.WithActions(
			fmt.Sprintf("✅ *Rate:* ₹%s\n✅ *GST:* %s%%\n\n🚚 *Step 3/3: Delivery*\n\nSelect delivery charges:",
				format.Amount(*sess.Rate), format.Amount(*sess.GST)),
			presetRows(TokenDelivery, inq, deliveryPresets, format.Delivery)...,
		)
	default:
		return conversation.WithActions(
			fmt.Sprintf("📋 *Quote Summary*\n\n💰 *Rate:* ₹%s\n📊 *GST:* %s%%\n🚚 *Delivery:* %s\n\n*Ready to submit?*",
				format.Amount(*sess.Rate), format.Amount(*sess.GST), format.Delivery(*sess.Delivery)),
			[]conversation.Action{{Label: "✅ Submit Quote", Token: TokenSubmit + inq}},
		)
	}
}

func (w *Wizard) submit(ctx context.Context, conv, inquiryID string) conversation.Outbound {
	sess, ok := w.sessions.Get(conv)
	if !ok || sess.InquiryID != inquiryID || sess.Rate == nil || sess.GST == nil || sess.Delivery == nil {
		return conversation.Text(msgSessionExpired)
	}
	w.sessions.Delete(conv)

	sub := Submission{
		InquiryID: inquiryID,
		Rate:      *sess.Rate,
		Unit:      presetFor(sess.Material).unit,
		GST:       *sess.GST,
		Delivery:  *sess.Delivery,
	}
	if _, err := w.intake.Submit(ctx, conv, sub); err != nil {
		if errors.Is(err, ErrUnknownVendor) || errors.Is(err, ErrUnknownInquiry) {
			return conversation.Outbound{}
		}
		logger.Error(ctx, "quotes", "quotes.wizard.submit_fail", slog.String("inquiry_id", inquiryID), slog.String("err", err.Error()))
		return conversation.Text(msgSubmitFailed)
	}
	return conversation.Text(fmt.Sprintf(
		"✅ *Quote Submitted Successfully!*\n\n📋 Final quote:\n💰 Rate: ₹%s\n📊 GST: %s%%\n🚚 Delivery: %s\n\nSent to buyer!",
		format.Amount(sub.Rate), format.Amount(sub.GST), format.Delivery(sub.Delivery),
	))
}

// presetRows lays out preset buttons three per row, ending with Custom.
func presetRows(prefix, inquiryID string, values []float64, label func(float64) string) [][]conversation.Action {
	buttons := make([]conversation.Action, 0, len(values)+1)
	for _, v := range values {
		buttons = append(buttons, conversation.Action{
			Label: label(v),
			Token: prefix + format.Amount(v) + "_" + inquiryID,
		})
	}
	buttons = append(buttons, conversation.Action{Label: "💬 Custom", Token: prefix + customValue + "_" + inquiryID})

	var rows [][]conversation.Action
	for i := 0; i < len(buttons); i += 3 {
		rows = append(rows, buttons[i:min(i+3, len(buttons))])
	}
	return rows
}

func customPrompt(field domain.QuoteStep) string {
	switch field {
	case domain.QuoteStepGST:
		return "📊 *Custom GST*\n\nPlease type GST percentage (e.g. 18, 15.5):"
	case domain.QuoteStepDelivery:
		return "🚚 *Custom Delivery*\n\nPlease type delivery charges (e.g. 150, 300):"
	}
	return "💰 *Custom Rate*\n\nPlease type your rate (e.g. 350, 1250):"
}

// parseAmount accepts a non-negative number, tolerating a leading ₹ and a
// trailing %.
func parseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "₹")
	s = strings.TrimSuffix(s, "%")
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("quotes: amount out of range: %v", v)
	}
	return v, nil
}

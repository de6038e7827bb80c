package quotes

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/m3rciful/pricebot/internal/pricebot/conversation"
	"github.com/m3rciful/pricebot/internal/pricebot/domain"
	"github.com/m3rciful/pricebot/internal/pricebot/extraction"
	"github.com/m3rciful/pricebot/internal/pricebot/storage"
)

type recordingSender struct {
	mu   sync.Mutex
	sent map[string][]conversation.Outbound
	err  error
}

func (s *recordingSender) Send(_ context.Context, conv string, msg conversation.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.sent == nil {
		s.sent = make(map[string][]conversation.Outbound)
	}
	s.sent[conv] = append(s.sent[conv], msg)
	return nil
}

func (s *recordingSender) to(conv string) []conversation.Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[conv]
}

type fakeTimers struct{ cancelled []string }

func (f *fakeTimers) Cancel(id string) bool {
	f.cancelled = append(f.cancelled, id)
	return len(f.cancelled) == 1
}

func seed(t *testing.T) (*storage.Memory, domain.Vendor, domain.Inquiry) {
	t.Helper()
	ctx := context.Background()
	repo := storage.NewMemory()
	v, err := repo.RegisterVendor(ctx, domain.Vendor{Name: "Sharma Traders", Phone: "9876543210", City: "Guwahati",
		Materials: []string{"cement"}, ChannelIdentity: "tg:200"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	inq := domain.Inquiry{InquiryID: "INQ-123", BuyerConversation: "tg:100", City: "Guwahati", Material: "cement",
		Quantity: "50 bags", Status: domain.InquiryPending, Platform: domain.PlatformTelegram}
	if err := repo.CreateInquiry(ctx, inq); err != nil {
		t.Fatalf("inquiry: %v", err)
	}
	return repo, v, inq
}

func TestParseStructured(t *testing.T) {
	sub, ok := ParseStructured("RATE: 350 per bag\nGST: 18%\nDELIVERY: 50\nInquiry ID: INQ-123")
	if !ok {
		t.Fatalf("expected structured reply to parse")
	}
	want := Submission{InquiryID: "INQ-123", Rate: 350, Unit: "bag", GST: 18, Delivery: 50}
	if sub != want {
		t.Fatalf("got %+v, want %+v", sub, want)
	}

	sub, ok = ParseStructured("rate: 48.5 per KG\ngst: 18 %\ndelivery: 0\ninquiry id: inq-01ABC")
	if !ok || sub.Unit != "kg" || sub.Rate != 48.5 || sub.InquiryID != "INQ-01ABC" {
		t.Fatalf("case-insensitive parse = %+v, %v", sub, ok)
	}

	for _, text := range []string{
		"RATE: 350 per bag\nGST: 18%\nDELIVERY: 50",
		"RATE: 350 per bag\nDELIVERY: 50\nInquiry ID: INQ-123",
		"cement 350 please",
	} {
		if _, ok := ParseStructured(text); ok {
			t.Fatalf("expected %q to be rejected", text)
		}
	}
}

func TestIntakeRelaysQuoteToBuyer(t *testing.T) {
	repo, v, _ := seed(t)
	timers := &fakeTimers{}
	sender := &recordingSender{}
	in := NewIntake(repo, timers, sender)

	sub := Submission{InquiryID: "INQ-123", Rate: 350, Unit: "bag", GST: 18, Delivery: 50}
	rec, err := in.Submit(context.Background(), "tg:200", sub)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !rec.BuyerNotified || rec.Vendor.VendorID != v.VendorID {
		t.Fatalf("receipt = %+v", rec)
	}
	if rec.Inquiry.ResponseCount != 1 || rec.Inquiry.Status != domain.InquiryResponded {
		t.Fatalf("inquiry after first quote = %+v", rec.Inquiry)
	}
	if len(timers.cancelled) != 1 || timers.cancelled[0] != "INQ-123" {
		t.Fatalf("timer cancels = %v", timers.cancelled)
	}

	msgs := sender.to("tg:100")
	if len(msgs) != 1 {
		t.Fatalf("buyer messages = %d", len(msgs))
	}
	for _, want := range []string{"Sharma Traders", "₹350 per bag", "GST: 18%", "Delivery: ₹50", "9876543210", "INQ-123"} {
		if !strings.Contains(msgs[0].Text, want) {
			t.Fatalf("buyer message missing %q:\n%s", want, msgs[0].Text)
		}
	}

	// a second quote from the same vendor is counted again
	if _, err := in.Submit(context.Background(), "tg:200", sub); err != nil {
		t.Fatalf("second submit: %v", err)
	}
	inq, _ := repo.GetInquiry(context.Background(), "INQ-123")
	if inq.ResponseCount != 2 {
		t.Fatalf("response count = %d, want 2", inq.ResponseCount)
	}
	if n := len(repo.Responses()); n != 2 {
		t.Fatalf("responses = %d", n)
	}

	var types []domain.NotificationType
	for _, n := range repo.Notifications() {
		types = append(types, n.Type)
	}
	if len(types) != 4 || types[0] != domain.NotifyVendorQuote || types[1] != domain.NotifyQuoteForwarded {
		t.Fatalf("notifications = %v", types)
	}
}

func TestIntakeRejectsUnknownVendorAndInquiry(t *testing.T) {
	repo, _, _ := seed(t)
	sender := &recordingSender{}
	in := NewIntake(repo, &fakeTimers{}, sender)
	ctx := context.Background()

	_, err := in.Submit(ctx, "tg:999", Submission{InquiryID: "INQ-123", Rate: 1})
	if !errors.Is(err, ErrUnknownVendor) {
		t.Fatalf("expected ErrUnknownVendor, got %v", err)
	}
	_, err = in.Submit(ctx, "tg:200", Submission{InquiryID: "INQ-404", Rate: 1})
	if !errors.Is(err, ErrUnknownInquiry) {
		t.Fatalf("expected ErrUnknownInquiry, got %v", err)
	}
	if len(repo.Responses()) != 0 || len(repo.Notifications()) != 0 || len(sender.to("tg:100")) != 0 {
		t.Fatalf("rejected submissions must not write anything")
	}
}

func TestIntakeKeepsQuoteWhenRelayFails(t *testing.T) {
	repo, _, _ := seed(t)
	in := NewIntake(repo, nil, &recordingSender{err: errors.New("chat not found")})

	rec, err := in.Submit(context.Background(), "tg:200", Submission{InquiryID: "INQ-123", Rate: 350, Unit: "bag"})
	if err != nil {
		t.Fatalf("relay failure should not fail the submission: %v", err)
	}
	if rec.BuyerNotified || len(repo.Responses()) != 1 {
		t.Fatalf("receipt = %+v, responses = %d", rec, len(repo.Responses()))
	}
}

func lastToken(t *testing.T, out conversation.Outbound, prefix string) string {
	t.Helper()
	for _, row := range out.Actions {
		for _, a := range row {
			if strings.HasPrefix(a.Token, prefix) {
				return a.Token
			}
		}
	}
	t.Fatalf("no action with prefix %q in %+v", prefix, out.Actions)
	return ""
}

func TestWizardPresetFlow(t *testing.T) {
	repo, _, _ := seed(t)
	sender := &recordingSender{}
	w := NewWizard(repo, NewIntake(repo, &fakeTimers{}, sender))
	ctx := context.Background()

	out := w.HandleAction(ctx, "tg:200", "quote_INQ-123")
	if !strings.Contains(out.Text, "CEMENT Quote") || len(out.Actions) != 2 {
		t.Fatalf("start = %+v", out)
	}
	if tok := lastToken(t, out, "rate_350_"); tok != "rate_350_INQ-123" {
		t.Fatalf("rate token = %q", tok)
	}

	out = w.HandleAction(ctx, "tg:200", "rate_350_INQ-123")
	if !strings.Contains(out.Text, "Step 2/3") {
		t.Fatalf("after rate = %q", out.Text)
	}
	out = w.HandleAction(ctx, "tg:200", "gst_18_INQ-123")
	if !strings.Contains(out.Text, "Step 3/3") {
		t.Fatalf("after gst = %q", out.Text)
	}
	out = w.HandleAction(ctx, "tg:200", "delivery_0_INQ-123")
	if !strings.Contains(out.Text, "Quote Summary") || !strings.Contains(out.Text, "Free") {
		t.Fatalf("summary = %q", out.Text)
	}
	out = w.HandleAction(ctx, "tg:200", lastToken(t, out, TokenSubmit))
	if !strings.Contains(out.Text, "Quote Submitted Successfully") {
		t.Fatalf("submit = %q", out.Text)
	}
	if w.Len() != 0 {
		t.Fatalf("wizard session should be cleared")
	}

	rs := repo.Responses()
	if len(rs) != 1 || rs[0].Price != 350 || rs[0].Unit != "bag" || rs[0].GST != 18 || rs[0].DeliveryCharge != 0 {
		t.Fatalf("responses = %+v", rs)
	}
	if len(sender.to("tg:100")) != 1 {
		t.Fatalf("buyer should receive the quote")
	}
}

func TestWizardCustomInput(t *testing.T) {
	repo, _, _ := seed(t)
	w := NewWizard(repo, NewIntake(repo, nil, &recordingSender{}))
	ctx := context.Background()

	w.HandleAction(ctx, "tg:200", "quote_INQ-123")
	out := w.HandleAction(ctx, "tg:200", "rate_custom_INQ-123")
	if !strings.Contains(out.Text, "Custom Rate") || !w.AwaitingCustom("tg:200") {
		t.Fatalf("custom prompt = %q", out.Text)
	}

	out = w.HandleCustom(ctx, "tg:200", "three fifty")
	if out.Text != msgInvalidNumber || !w.AwaitingCustom("tg:200") {
		t.Fatalf("invalid custom input should re-prompt, got %q", out.Text)
	}
	out = w.HandleCustom(ctx, "tg:200", "-5")
	if out.Text != msgInvalidNumber {
		t.Fatalf("negative input should re-prompt, got %q", out.Text)
	}

	out = w.HandleCustom(ctx, "tg:200", "₹365.5")
	if !strings.Contains(out.Text, "₹365.5") || w.AwaitingCustom("tg:200") {
		t.Fatalf("custom rate = %q", out.Text)
	}
}

func TestWizardExpiredSession(t *testing.T) {
	repo, _, _ := seed(t)
	w := NewWizard(repo, NewIntake(repo, nil, &recordingSender{}))
	ctx := context.Background()

	if out := w.HandleAction(ctx, "tg:200", "gst_18_INQ-123"); out.Text != msgSessionExpired {
		t.Fatalf("gst without session = %q", out.Text)
	}
	if out := w.HandleAction(ctx, "tg:200", "quote_INQ-404"); out.Text != msgSessionExpired {
		t.Fatalf("unknown inquiry = %q", out.Text)
	}
	w.HandleAction(ctx, "tg:200", "quote_INQ-123")
	if out := w.HandleAction(ctx, "tg:200", "confirm_INQ-123"); out.Text != msgSessionExpired {
		t.Fatalf("early submit = %q", out.Text)
	}
}

func TestWizardUnknownVendorIsSilent(t *testing.T) {
	repo, _, _ := seed(t)
	w := NewWizard(repo, NewIntake(repo, nil, &recordingSender{}))
	ctx := context.Background()

	w.HandleAction(ctx, "web:stranger", "quote_INQ-123")
	w.HandleAction(ctx, "web:stranger", "rate_350_INQ-123")
	w.HandleAction(ctx, "web:stranger", "gst_18_INQ-123")
	w.HandleAction(ctx, "web:stranger", "delivery_50_INQ-123")
	out := w.HandleAction(ctx, "web:stranger", "confirm_INQ-123")
	if out.Text != "" || len(repo.Responses()) != 0 {
		t.Fatalf("unknown vendor submit = %+v", out)
	}
}

func float(v float64) *float64 { return &v }

func TestStandingProposeAndConfirm(t *testing.T) {
	store := NewMemoryStandingStore()
	s := NewStanding(store)
	ctx := context.Background()

	res := extraction.StandardQuoteResult{Cement: float(350), TMT: float(48), GST: float(18), Delivery: float(50),
		Action: extraction.QuoteActionSet, Confidence: 0.9}
	out, err := s.Propose(ctx, "tg:200", res)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if !strings.Contains(out.Text, "Cement: ₹350/bag") || lastToken(t, out, TokenStandingConfirm) != "std_confirm_tg:200" {
		t.Fatalf("proposal = %+v", out)
	}
	if got, _ := store.Confirmed(ctx); len(got) != 0 {
		t.Fatalf("draft must not be active before confirmation")
	}

	out, err = s.Confirm(ctx, "tg:200")
	if err != nil || !strings.Contains(out.Text, "Standard rates confirmed") {
		t.Fatalf("confirm = %+v, %v", out, err)
	}
	got, _ := store.Confirmed(ctx)
	if len(got) != 1 || !got[0].Confirmed || got[0].Cement != 350 || got[0].Delivery != 50 {
		t.Fatalf("confirmed = %+v", got)
	}
	if s.HasDraft("tg:200") {
		t.Fatalf("draft should be consumed")
	}

	out, _ = s.Confirm(ctx, "tg:200")
	if !strings.HasPrefix(out.Text, "❌ Nothing to confirm.") {
		t.Fatalf("second confirm = %q", out.Text)
	}
}

func TestStandingPartialUpdateAndSame(t *testing.T) {
	store := NewMemoryStandingStore()
	s := NewStanding(store)
	ctx := context.Background()

	s.Propose(ctx, "tg:200", extraction.StandardQuoteResult{TMT: float(52), Action: extraction.QuoteActionUpdate, Confidence: 0.8})
	s.Confirm(ctx, "tg:200")
	q, ok, _ := store.Get(ctx, "tg:200")
	if !ok || q.TMT != 52 || q.Cement != domain.DefaultCementRate || q.GST != domain.DefaultGST {
		t.Fatalf("partial update over defaults = %+v", q)
	}

	s.Propose(ctx, "tg:200", extraction.StandardQuoteResult{Cement: float(999), Action: extraction.QuoteActionSame, Confidence: 0.9})
	s.Confirm(ctx, "tg:200")
	q, _, _ = store.Get(ctx, "tg:200")
	if q.Cement != domain.DefaultCementRate || q.TMT != 52 {
		t.Fatalf("same should keep the current sheet, got %+v", q)
	}
}

func TestMemoryStandingStoreOrdersConfirmed(t *testing.T) {
	store := NewMemoryStandingStore()
	s := NewStanding(store)
	ctx := context.Background()

	for _, id := range []string{"tg:b", "tg:a", "tg:c"} {
		s.Propose(ctx, id, extraction.StandardQuoteResult{Action: extraction.QuoteActionSet, Confidence: 0.9})
		s.Confirm(ctx, id)
	}
	s.Propose(ctx, "tg:draft", extraction.StandardQuoteResult{Action: extraction.QuoteActionSet, Confidence: 0.9})

	got, _ := store.Confirmed(ctx)
	if len(got) != 3 {
		t.Fatalf("confirmed = %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		prev, cur := got[i-1], got[i]
		if cur.LastUpdated.Before(prev.LastUpdated) ||
			(cur.LastUpdated.Equal(prev.LastUpdated) && cur.VendorID < prev.VendorID) {
			t.Fatalf("confirmed sheets out of order: %+v", got)
		}
	}
	if err := store.Put(ctx, domain.StandardQuote{}); err == nil {
		t.Fatalf("expected error for sheet without vendor id")
	}
}

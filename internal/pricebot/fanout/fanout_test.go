package fanout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m3rciful/pricebot/internal/pricebot/conversation"
	"github.com/m3rciful/pricebot/internal/pricebot/domain"
	"github.com/m3rciful/pricebot/internal/pricebot/extraction"
	"github.com/m3rciful/pricebot/internal/pricebot/quotes"
	"github.com/m3rciful/pricebot/internal/pricebot/storage"
)

type recordingSender struct {
	mu     sync.Mutex
	sent   map[string][]conversation.Outbound
	failTo map[string]bool
	notify chan string
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: make(map[string][]conversation.Outbound), failTo: make(map[string]bool), notify: make(chan string, 16)}
}

func (s *recordingSender) Send(_ context.Context, conv string, msg conversation.Outbound) error {
	s.mu.Lock()
	if s.failTo[conv] {
		s.mu.Unlock()
		return errors.New("blocked by user")
	}
	s.sent[conv] = append(s.sent[conv], msg)
	s.mu.Unlock()
	select {
	case s.notify <- conv:
	default:
	}
	return nil
}

func (s *recordingSender) to(conv string) []conversation.Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[conv]
}

func TestTimersFireOnce(t *testing.T) {
	timers := NewTimers()
	var fired atomic.Int32
	done := make(chan struct{})
	timers.Arm("INQ-1", 10*time.Millisecond, func() {
		fired.Add(1)
		close(done)
	})
	if !timers.Armed("INQ-1") {
		t.Fatalf("timer should be armed")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timer did not fire")
	}
	if timers.Cancel("INQ-1") || timers.Cancel("INQ-1") {
		t.Fatalf("cancel after firing must report false")
	}
	if fired.Load() != 1 || timers.Len() != 0 {
		t.Fatalf("fired = %d, len = %d", fired.Load(), timers.Len())
	}
}

func TestTimersCancelIsIdempotent(t *testing.T) {
	timers := NewTimers()
	var fired atomic.Bool
	timers.Arm("INQ-1", 20*time.Millisecond, func() { fired.Store(true) })

	if !timers.Cancel("INQ-1") {
		t.Fatalf("first cancel should win")
	}
	if timers.Cancel("INQ-1") {
		t.Fatalf("second cancel should be a no-op")
	}
	if timers.Cancel("INQ-unknown") {
		t.Fatalf("cancelling an absent timer should be a no-op")
	}
	time.Sleep(50 * time.Millisecond)
	if fired.Load() {
		t.Fatalf("cancelled timer fired")
	}
}

func TestTimersClaimRace(t *testing.T) {
	for i := 0; i < 50; i++ {
		timers := NewTimers()
		var fired atomic.Int32
		id := fmt.Sprintf("INQ-%d", i)
		timers.Arm(id, time.Millisecond, func() { fired.Add(1) })
		time.Sleep(time.Millisecond)
		won := timers.Cancel(id)
		time.Sleep(20 * time.Millisecond)
		got := fired.Load()
		if (won && got != 0) || (!won && got != 1) {
			t.Fatalf("iteration %d: cancel won = %v, fired = %d", i, won, got)
		}
	}
}

func TestTimersClose(t *testing.T) {
	timers := NewTimers()
	var fired atomic.Bool
	for _, id := range []string{"INQ-1", "INQ-2", "INQ-3"} {
		timers.Arm(id, 20*time.Millisecond, func() { fired.Store(true) })
	}
	timers.Close()
	time.Sleep(50 * time.Millisecond)
	if fired.Load() || timers.Len() != 0 {
		t.Fatalf("close left timers behind")
	}
}

func registerVendors(t *testing.T, repo *storage.Memory, n int, city string) []domain.Vendor {
	t.Helper()
	var out []domain.Vendor
	for i := 0; i < n; i++ {
		v, err := repo.RegisterVendor(context.Background(), domain.Vendor{
			Name:            fmt.Sprintf("Vendor %d", i+1),
			Phone:           fmt.Sprintf("90000000%02d", i),
			City:            city,
			Materials:       []string{domain.MaterialCement},
			ChannelIdentity: fmt.Sprintf("tg:%d", 500+i),
		})
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		out = append(out, v)
	}
	return out
}

func buyerSession() domain.Session {
	s := domain.NewSession("tg:100", time.Now())
	s.UserType = domain.UserBuyer
	s.City = "Guwahati"
	s.Material = domain.MaterialCement
	s.Quantity = "50 bags"
	return s
}

func TestDispatchCapsAndMessagesVendors(t *testing.T) {
	repo := storage.NewMemory()
	vendors := registerVendors(t, repo, 5, "Guwahati")
	registerVendors(t, repo, 1, "Mumbai")
	sender := newRecordingSender()
	c := NewCoordinator(repo, quotes.NewMemoryStandingStore(), sender, nil, Options{FallbackDelay: time.Hour})
	defer c.Timers().Close()

	inq, err := c.Dispatch(context.Background(), buyerSession())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !strings.HasPrefix(inq.InquiryID, "INQ-") || inq.Status != domain.InquiryPending || inq.Platform != domain.PlatformTelegram {
		t.Fatalf("inquiry = %+v", inq)
	}
	if len(inq.VendorsContacted) != 3 || inq.VendorsContacted[0] != vendors[0].VendorID || inq.VendorsContacted[2] != vendors[2].VendorID {
		t.Fatalf("vendors contacted = %v", inq.VendorsContacted)
	}
	stored, err := repo.GetInquiry(context.Background(), inq.InquiryID)
	if err != nil || stored.City != "Guwahati" || stored.Quantity != "50 bags" {
		t.Fatalf("stored inquiry = %+v, %v", stored, err)
	}

	for i, v := range vendors {
		msgs := sender.to(v.ChannelIdentity)
		if i >= 3 {
			if len(msgs) != 0 {
				t.Fatalf("vendor %d beyond the cap was messaged", i)
			}
			continue
		}
		if len(msgs) != 1 {
			t.Fatalf("vendor %d messages = %d", i, len(msgs))
		}
		m := msgs[0]
		if !strings.Contains(m.Text, "New Price Inquiry") || !strings.Contains(m.Text, v.Name) || !strings.Contains(m.Text, inq.InquiryID) {
			t.Fatalf("vendor message = %q", m.Text)
		}
		if len(m.Actions) != 1 || m.Actions[0][0].Token != "quote_"+inq.InquiryID {
			t.Fatalf("vendor actions = %+v", m.Actions)
		}
	}

	for _, v := range repo.Vendors()[:3] {
		if v.LastQuoted == nil {
			t.Fatalf("vendor %s last quoted not set", v.VendorID)
		}
	}
	if !c.Timers().Armed(inq.InquiryID) {
		t.Fatalf("fallback timer not armed")
	}
	ns := repo.Notifications()
	if len(ns) != 1 || ns[0].Type != domain.NotifyInquiryDispatched {
		t.Fatalf("notifications = %+v", ns)
	}
}

func TestDispatchHonoursBotConfig(t *testing.T) {
	repo := storage.NewMemory()
	registerVendors(t, repo, 3, "Guwahati")
	repo.SetBotConfig(domain.BotConfig{RateRequestTemplate: "Hello [Vendor Name], [Material] in [City], brand [Brand]", MaxVendorsPerInquiry: 1, MessagesPerMinute: 60})
	sender := newRecordingSender()
	c := NewCoordinator(repo, quotes.NewMemoryStandingStore(), sender, nil, Options{FallbackDelay: time.Hour})
	defer c.Timers().Close()

	inq, err := c.Dispatch(context.Background(), buyerSession())
	if err != nil || len(inq.VendorsContacted) != 1 {
		t.Fatalf("dispatch = %+v, %v", inq, err)
	}
	msg := sender.to("tg:500")[0].Text
	if !strings.Contains(msg, "Hello Vendor 1, CEMENT in Guwahati, brand Any") {
		t.Fatalf("template not rendered: %q", msg)
	}
}

func TestDispatchWithoutVendorsWritesNothing(t *testing.T) {
	repo := storage.NewMemory()
	registerVendors(t, repo, 2, "Mumbai")
	c := NewCoordinator(repo, quotes.NewMemoryStandingStore(), newRecordingSender(), nil, Options{})

	_, err := c.Dispatch(context.Background(), buyerSession())
	if !errors.Is(err, ErrNoVendors) {
		t.Fatalf("expected ErrNoVendors, got %v", err)
	}
	if len(repo.Inquiries()) != 0 || c.Timers().Len() != 0 || len(repo.Notifications()) != 0 {
		t.Fatalf("no-vendor dispatch must not persist anything")
	}
}

func TestDispatchSkipsUnreachableVendors(t *testing.T) {
	repo := storage.NewMemory()
	ctx := context.Background()
	repo.RegisterVendor(ctx, domain.Vendor{Name: "Offline", City: "Guwahati", Materials: []string{"cement"}})
	registerVendors(t, repo, 2, "Guwahati")
	sender := newRecordingSender()
	sender.failTo["tg:500"] = true
	c := NewCoordinator(repo, quotes.NewMemoryStandingStore(), sender, nil, Options{FallbackDelay: time.Hour})
	defer c.Timers().Close()

	inq, err := c.Dispatch(ctx, buyerSession())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(inq.VendorsContacted) != 3 {
		t.Fatalf("selection should include all three, got %v", inq.VendorsContacted)
	}
	if len(sender.to("tg:501")) != 1 {
		t.Fatalf("remaining vendor should still be messaged")
	}
	if !strings.Contains(repo.Notifications()[0].Message, "(1 vendors contacted)") {
		t.Fatalf("notification = %q", repo.Notifications()[0].Message)
	}
}

func TestFallbackBroadcastOnceAndLateQuoteStillSaved(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemory()
	vendors := registerVendors(t, repo, 1, "Guwahati")

	standing := quotes.NewMemoryStandingStore()
	sheets := quotes.NewStanding(standing)
	cement, delivery := 380.0, 0.0
	sheets.Propose(ctx, "tg:777", extraction.StandardQuoteResult{Cement: &cement, Delivery: &delivery, Action: extraction.QuoteActionUpdate, Confidence: 0.9})
	sheets.Confirm(ctx, "tg:777")

	sender := newRecordingSender()
	timers := NewTimers()
	c := NewCoordinator(repo, standing, sender, timers, Options{FallbackDelay: 20 * time.Millisecond})
	intake := quotes.NewIntake(repo, timers, sender)

	inq, err := c.Dispatch(ctx, buyerSession())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	deadline := time.After(time.Second)
	for len(sender.to("tg:100")) == 0 {
		select {
		case <-sender.notify:
		case <-deadline:
			t.Fatalf("fallback broadcast not delivered")
		}
	}
	msgs := sender.to("tg:100")
	if len(msgs) != 1 || !strings.Contains(msgs[0].Text, "Auto-Generated Quotes") ||
		!strings.Contains(msgs[0].Text, "Cement: ₹380/bag") || !strings.Contains(msgs[0].Text, "Delivery: Free") {
		t.Fatalf("fallback = %+v", msgs)
	}

	rec, err := intake.Submit(ctx, vendors[0].ChannelIdentity, quotes.Submission{InquiryID: inq.InquiryID, Rate: 360, Unit: "bag", GST: 18, Delivery: 40})
	if err != nil {
		t.Fatalf("late submit: %v", err)
	}
	if rec.Inquiry.ResponseCount != 1 || len(repo.Responses()) != 1 {
		t.Fatalf("late quote not persisted: %+v", rec)
	}
	time.Sleep(40 * time.Millisecond)
	buyer := sender.to("tg:100")
	if len(buyer) != 2 || strings.Contains(buyer[1].Text, "Auto-Generated") {
		t.Fatalf("late reply must not re-trigger the broadcast: %+v", buyer)
	}
}

func TestQuoteBeforeDeadlineCancelsFallback(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemory()
	vendors := registerVendors(t, repo, 1, "Guwahati")
	standing := quotes.NewMemoryStandingStore()
	standing.Put(ctx, domain.StandardQuote{VendorID: "tg:777", Cement: 350, Confirmed: true})

	sender := newRecordingSender()
	timers := NewTimers()
	c := NewCoordinator(repo, standing, sender, timers, Options{FallbackDelay: 30 * time.Millisecond})
	intake := quotes.NewIntake(repo, timers, sender)

	inq, _ := c.Dispatch(ctx, buyerSession())
	if _, err := intake.Submit(ctx, vendors[0].ChannelIdentity, quotes.Submission{InquiryID: inq.InquiryID, Rate: 350, Unit: "bag"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	for _, m := range sender.to("tg:100") {
		if strings.Contains(m.Text, "Auto-Generated") {
			t.Fatalf("fallback fired after a real quote")
		}
	}
	if timers.Len() != 0 {
		t.Fatalf("timer left armed")
	}
}

func TestFallbackWithoutStandingQuotesSendsNothing(t *testing.T) {
	repo := storage.NewMemory()
	registerVendors(t, repo, 1, "Guwahati")
	sender := newRecordingSender()
	c := NewCoordinator(repo, quotes.NewMemoryStandingStore(), sender, nil, Options{FallbackDelay: 5 * time.Millisecond})

	if _, err := c.Dispatch(context.Background(), buyerSession()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	if len(sender.to("tg:100")) != 0 || c.Timers().Len() != 0 {
		t.Fatalf("empty fallback should only log")
	}
}

func TestRenderTemplate(t *testing.T) {
	v := domain.Vendor{Name: "Sharma Traders"}
	inq := domain.Inquiry{InquiryID: "INQ-9", Material: "tmt", City: "Guwahati", Brand: "Tata"}
	got := RenderTemplate(domain.DefaultRateRequestTemplate, v, inq)
	for _, want := range []string{"Hi Sharma Traders", "- Material: TMT", "- Quantity: Not specified", "- Brand: Tata", "Inquiry ID: INQ-9"} {
		if !strings.Contains(got, want) {
			t.Fatalf("rendered template missing %q:\n%s", want, got)
		}
	}
}

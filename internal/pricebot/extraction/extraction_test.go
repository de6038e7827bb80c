package extraction

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m3rciful/pricebot/internal/pricebot/domain"
)

func answer(s string) Completer {
	return CompleterFunc(func(context.Context, string) (string, error) { return s, nil })
}

func TestAcceptedIsStrict(t *testing.T) {
	if Accepted(0.70, FieldThreshold) {
		t.Fatal("0.70 must not clear the field gate")
	}
	if !Accepted(0.71, FieldThreshold) {
		t.Fatal("0.71 must clear the field gate")
	}
	if Accepted(0.6, SaleThreshold) || !Accepted(0.61, SaleThreshold) {
		t.Fatal("sale gate mismatch")
	}
	if Accepted(0.8, IntentOverrideThreshold) || !Accepted(0.81, IntentOverrideThreshold) {
		t.Fatal("intent gate mismatch")
	}
}

func TestExtractFieldsParsesFencedJSON(t *testing.T) {
	g := NewLLMGateway(answer("```json\n{\"userType\":\"buyer\",\"city\":\"Guwahati\",\"material\":\"Cement\",\"quantity\":50,\"confidence\":0.9,\"suggestedStep\":\"get_brand\"}\n```"), Options{})
	res := g.ExtractFields(context.Background(), "need 50 bags cement in Guwahati", domain.StepStart)
	if res.Fields.UserType != domain.UserBuyer || res.Fields.City != "Guwahati" || res.Fields.Material != "cement" {
		t.Fatalf("unexpected fields %+v", res.Fields)
	}
	if res.Fields.Quantity != "50" {
		t.Fatalf("quantity = %q", res.Fields.Quantity)
	}
	if res.Confidence != 0.9 || res.SuggestedStep != domain.StepGetBrand {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestExtractFieldsDropsUnknownStepAndClamps(t *testing.T) {
	g := NewLLMGateway(answer(`{"userType":"admin","confidence":4,"suggestedStep":"get_color","materials":["TMT","tmt bars","sand"]}`), Options{})
	res := g.ExtractFields(context.Background(), "x", domain.StepStart)
	if res.SuggestedStep != "" || res.Fields.UserType != "" {
		t.Fatalf("invalid values kept: %+v", res)
	}
	if res.Confidence != 1 {
		t.Fatalf("confidence not clamped: %v", res.Confidence)
	}
	if len(res.Fields.Materials) != 1 || res.Fields.Materials[0] != "tmt" {
		t.Fatalf("materials = %v", res.Fields.Materials)
	}
}

func TestFailuresYieldZeroConfidence(t *testing.T) {
	cases := map[string]Completer{
		"malformed": answer("sorry, I cannot help"),
		"broken":    answer(`{"confidence": 0.9,`),
		"error":     CompleterFunc(func(context.Context, string) (string, error) { return "", errors.New("boom") }),
	}
	for name, c := range cases {
		g := NewLLMGateway(c, Options{})
		ctx := context.Background()
		if r := g.ExtractFields(ctx, "I need cement", domain.StepGetCity); r.Confidence != 0 || !r.Fields.Empty() {
			t.Fatalf("%s: fields = %+v", name, r)
		}
		if r := g.ExtractStandardQuote(ctx, "cement 380"); r.Confidence != 0 || !r.Empty() {
			t.Fatalf("%s: quote = %+v", name, r)
		}
		if r := g.ExtractSale(ctx, "sold 50 bags"); r.Confidence != 0 {
			t.Fatalf("%s: sale = %+v", name, r)
		}
		if r := g.ClassifyIntent(ctx, "sold 50 bags"); r.Confidence > IntentOverrideThreshold {
			t.Fatalf("%s: fallback intent too confident: %+v", name, r)
		}
	}
}

func TestStandardQuoteScenario(t *testing.T) {
	g := NewLLMGateway(answer(`{"cement_rate":380,"tmt_rate":null,"gst":null,"delivery":0,"action":"set","confidence":0.92}`), Options{})
	r := g.ExtractStandardQuote(context.Background(), "Cement 380 today, delivery free")
	if r.Cement == nil || *r.Cement != 380 || r.Delivery == nil || *r.Delivery != 0 {
		t.Fatalf("unexpected quote %+v", r)
	}
	if r.TMT != nil || r.GST != nil || r.Action != QuoteActionSet {
		t.Fatalf("unexpected quote %+v", r)
	}
}

func TestExtractSaleFlexibleFields(t *testing.T) {
	g := NewLLMGateway(answer(`{"sales_type":"TMT","tmt_company":"XYZ","tmt_sizes":["8mm","10mm"],"tmt_quantities":2,"contact_number":9876543210,"completion_time":7,"confidence":0.65}`), Options{})
	r := g.ExtractSale(context.Background(), "Delivered TMT 8mm and 10mm to XYZ")
	if r.Sale.SalesType != "tmt" || r.Sale.TMTSizes != "8mm,10mm" || r.Sale.TMTQuantities != "2" {
		t.Fatalf("unexpected sale %+v", r.Sale)
	}
	if r.Sale.ContactNumber != "9876543210" || r.Sale.CompletionTime != 7 || r.Confidence != 0.65 {
		t.Fatalf("unexpected sale %+v", r)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestAskRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	c := CompleterFunc(func(context.Context, string) (string, error) {
		if calls.Add(1) == 1 {
			return "", timeoutErr{}
		}
		return `{"messageType":"customer_inquiry","confidence":0.95}`, nil
	})
	g := NewLLMGateway(c, Options{MaxRetries: 2, RetryBackoff: time.Millisecond})
	r := g.ClassifyIntent(context.Background(), "I need cement")
	if r.Intent != IntentCustomerInquiry || r.Confidence != 0.95 {
		t.Fatalf("unexpected intent %+v", r)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestAskDoesNotRetryPermanentErrors(t *testing.T) {
	var calls atomic.Int32
	c := CompleterFunc(func(context.Context, string) (string, error) {
		calls.Add(1)
		return "", errors.New("permission denied")
	})
	g := NewLLMGateway(c, Options{MaxRetries: 3, RetryBackoff: time.Millisecond})
	g.ExtractSale(context.Background(), "sold")
	if calls.Load() != 1 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestUnknownIntentIsGeneralChat(t *testing.T) {
	g := NewLLMGateway(answer(`{"messageType":"complaint","confidence":0.99}`), Options{})
	if r := g.ClassifyIntent(context.Background(), "meh"); r.Intent != IntentGeneralChat || r.Confidence != 0 {
		t.Fatalf("unexpected %+v", r)
	}
}

func TestGuessUserType(t *testing.T) {
	cases := map[string]domain.UserType{
		"I supply cement in Mumbai":   domain.UserVendor,
		"we are a TMT dealer":         domain.UserVendor,
		"I need 50 bags":              domain.UserBuyer,
		"looking for TMT in Guwahati": domain.UserBuyer,
		"We require cement next week": domain.UserBuyer,
		"hello there":                 "",
	}
	for text, want := range cases {
		if got := GuessUserType(text); got != want {
			t.Errorf("GuessUserType(%q) = %q, want %q", text, got, want)
		}
	}
}

func TestKeywordStaysBelowGates(t *testing.T) {
	var k Keyword
	ctx := context.Background()
	r := k.ExtractStandardQuote(ctx, "Cement 380 today, delivery free, 18% gst")
	if r.Cement == nil || *r.Cement != 380 || r.Delivery == nil || *r.Delivery != 0 || r.GST == nil || *r.GST != 18 {
		t.Fatalf("unexpected keyword quote %+v", r)
	}
	if Accepted(r.Confidence, StandardQuoteThreshold) {
		t.Fatal("keyword result must not clear the quote gate")
	}
	if i := k.ClassifyIntent(ctx, "Sold 50 bags to ABC"); i.Intent != IntentSaleEntry || Accepted(i.Confidence, IntentOverrideThreshold) {
		t.Fatalf("unexpected intent %+v", i)
	}
	if i := k.ClassifyIntent(ctx, "good morning"); i.Intent != IntentGeneralChat {
		t.Fatalf("unexpected intent %+v", i)
	}
}

func TestHasSaleKeyword(t *testing.T) {
	for _, s := range []string{"sold 10 bags", "Delivered today", "SALE done", "we supplied TMT"} {
		if !HasSaleKeyword(s) {
			t.Errorf("%q should trigger sale", s)
		}
	}
	for _, s := range []string{"wholesale rates", "I supply cement", "resold"} {
		if HasSaleKeyword(s) {
			t.Errorf("%q should not trigger sale", s)
		}
	}
}

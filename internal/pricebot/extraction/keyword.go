package extraction

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/m3rciful/pricebot/internal/pricebot/domain"
)

// keywordConfidence stays below every gate so keyword guesses never move a
// conversation on their own.
const keywordConfidence = 0.5

var (
	vendorCues = []string{"i supply", "i sell", "supplier", "dealer", "business", "vendor", "sell"}
	buyerCues  = []string{"i need", "need", "looking for", "require", "want to buy", "buyer", "buy"}

	saleWordRe  = regexp.MustCompile(`(?i)\b(sold|sale|delivered|supplied)\b`)
	rateWordRe  = regexp.MustCompile(`(?i)\b(cement|tmt)\b\D{0,16}\d+|\bmy rates?\b`)
	cementRe    = regexp.MustCompile(`(?i)\bcement\b\D{0,16}?(\d+(?:\.\d+)?)`)
	tmtRe       = regexp.MustCompile(`(?i)\btmt\b\D{0,16}?(\d+(?:\.\d+)?)`)
	gstRe       = regexp.MustCompile(`(?i)(?:\bgst\b\D{0,8}?(\d+(?:\.\d+)?)|(\d+(?:\.\d+)?)\s*%\s*gst)`)
	deliveryRe  = regexp.MustCompile(`(?i)\bdelivery\b\D{0,16}?(\d+(?:\.\d+)?)`)
	freeDelivRe = regexp.MustCompile(`(?i)\b(free delivery|delivery\s+(is\s+)?free)\b`)
	sameRe      = regexp.MustCompile(`(?i)\b(same as (yesterday|before)|keep (the )?same)\b`)
)

// Keyword is the last-resort extractor used when the language model is not
// configured or unreachable.
type Keyword struct{}

// GuessUserType applies the lexical vendor/buyer cues. Vendor cues win.
func GuessUserType(text string) domain.UserType {
	lower := strings.ToLower(text)
	for _, cue := range vendorCues {
		if strings.Contains(lower, cue) {
			return domain.UserVendor
		}
	}
	for _, cue := range buyerCues {
		if strings.Contains(lower, cue) {
			return domain.UserBuyer
		}
	}
	return ""
}

// HasSaleKeyword reports whether text mentions a sale.
func HasSaleKeyword(text string) bool {
	return saleWordRe.MatchString(text)
}

func (Keyword) ClassifyIntent(_ context.Context, text string) IntentResult {
	switch {
	case HasSaleKeyword(text):
		return IntentResult{Intent: IntentSaleEntry, Confidence: keywordConfidence}
	case rateWordRe.MatchString(text):
		return IntentResult{Intent: IntentVendorRateUpdate, Confidence: keywordConfidence}
	}
	switch GuessUserType(text) {
	case domain.UserVendor:
		return IntentResult{Intent: IntentVendorRegistration, Confidence: keywordConfidence}
	case domain.UserBuyer:
		return IntentResult{Intent: IntentCustomerInquiry, Confidence: keywordConfidence}
	}
	return IntentResult{Intent: IntentGeneralChat}
}

func (Keyword) ExtractFields(_ context.Context, text string, current domain.Step) FieldResult {
	f := Fields{UserType: GuessUserType(text)}
	if m := NormalizeMaterial(text); m != "" {
		f.Material = m
	}
	if f.Empty() {
		return FieldResult{}
	}
	return FieldResult{Fields: f, Confidence: keywordConfidence}
}

func (Keyword) ExtractStandardQuote(_ context.Context, text string) StandardQuoteResult {
	r := StandardQuoteResult{
		Cement:   firstFloat(cementRe, text),
		TMT:      firstFloat(tmtRe, text),
		GST:      firstFloat(gstRe, text),
		Delivery: firstFloat(deliveryRe, text),
	}
	if freeDelivRe.MatchString(text) {
		zero := 0.0
		r.Delivery = &zero
	}
	if sameRe.MatchString(text) {
		r.Action = QuoteActionSame
	}
	if r.Empty() {
		return StandardQuoteResult{}
	}
	r.Confidence = keywordConfidence
	return r
}

func (Keyword) ExtractSale(_ context.Context, text string) SaleResult {
	if !HasSaleKeyword(text) {
		return SaleResult{}
	}
	return SaleResult{Sale: domain.Sale{SalesType: NormalizeMaterial(text)}, Confidence: keywordConfidence}
}

// NormalizeMaterial maps free text to a known material, or "".
func NormalizeMaterial(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "cement"):
		return domain.MaterialCement
	case strings.Contains(lower, "tmt"), strings.Contains(lower, "steel bar"):
		return domain.MaterialTMT
	}
	return ""
}

func firstFloat(re *regexp.Regexp, text string) *float64 {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	for _, g := range m[1:] {
		if g == "" {
			continue
		}
		if v, err := strconv.ParseFloat(g, 64); err == nil {
			return &v
		}
	}
	return nil
}

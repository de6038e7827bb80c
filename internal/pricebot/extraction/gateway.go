// Package extraction turns free chat text into confidence-scored structured
// guesses. Failures never surface as errors: callers get a zero-confidence
// result and fall back to manual prompting.
package extraction

import (
	"context"

	"github.com/m3rciful/pricebot/internal/pricebot/domain"
)

// Intent is the coarse purpose of a message.
type Intent string

const (
	IntentCustomerInquiry    Intent = "customer_inquiry"
	IntentVendorRateUpdate   Intent = "vendor_rate_update"
	IntentVendorRegistration Intent = "vendor_registration"
	IntentSaleEntry          Intent = "sale_entry"
	IntentGeneralChat        Intent = "general_chat"
)

// Valid reports whether i is a known intent.
func (i Intent) Valid() bool {
	switch i {
	case IntentCustomerInquiry, IntentVendorRateUpdate, IntentVendorRegistration, IntentSaleEntry, IntentGeneralChat:
		return true
	}
	return false
}

// Confidence gates. A result is accepted only when its confidence is strictly
// greater than the gate.
const (
	FieldThreshold          = 0.7
	StandardQuoteThreshold  = 0.7
	SaleThreshold           = 0.6
	IntentOverrideThreshold = 0.8
)

// Accepted reports whether confidence clears threshold.
func Accepted(confidence, threshold float64) bool {
	return confidence > threshold
}

// IntentResult is the outcome of ClassifyIntent.
type IntentResult struct {
	Intent     Intent
	Confidence float64
}

// Fields are the buyer or vendor attributes an extractor may find.
type Fields struct {
	UserType    domain.UserType
	City        string
	Material    string
	Brand       string
	Quantity    string
	VendorName  string
	VendorPhone string
	Materials   []string
}

// Empty reports whether no field was extracted.
func (f Fields) Empty() bool {
	return f.UserType == "" && f.City == "" && f.Material == "" && f.Brand == "" &&
		f.Quantity == "" && f.VendorName == "" && f.VendorPhone == "" && len(f.Materials) == 0
}

// FieldResult is the outcome of ExtractFields. SuggestedStep is empty when the
// extractor did not propose a valid step.
type FieldResult struct {
	Fields        Fields
	Confidence    float64
	SuggestedStep domain.Step
}

// QuoteAction qualifies a standing quote update.
type QuoteAction string

const (
	QuoteActionSet    QuoteAction = "set"
	QuoteActionUpdate QuoteAction = "update"
	QuoteActionSame   QuoteAction = "same"
)

// StandardQuoteResult is the outcome of ExtractStandardQuote.
type StandardQuoteResult struct {
	Cement     *float64
	TMT        *float64
	GST        *float64
	Delivery   *float64
	Action     QuoteAction
	Confidence float64
}

// Empty reports whether neither a value nor an action was extracted.
func (r StandardQuoteResult) Empty() bool {
	return r.Cement == nil && r.TMT == nil && r.GST == nil && r.Delivery == nil && r.Action == ""
}

// SaleResult is the outcome of ExtractSale.
type SaleResult struct {
	Sale       domain.Sale
	Confidence float64
}

// Gateway is the text-understanding service used by the dialogue engine.
type Gateway interface {
	ClassifyIntent(ctx context.Context, text string) IntentResult
	ExtractFields(ctx context.Context, text string, current domain.Step) FieldResult
	ExtractStandardQuote(ctx context.Context, text string) StandardQuoteResult
	ExtractSale(ctx context.Context, text string) SaleResult
}

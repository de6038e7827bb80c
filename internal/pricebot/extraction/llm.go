package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/pricebot/core/logger"
	"github.com/m3rciful/pricebot/core/netutil"
	"github.com/m3rciful/pricebot/internal/pricebot/domain"
)

// Completer sends a prompt to a language model and returns its raw answer.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ErrMalformed is returned internally when the model answer holds no JSON object.
var ErrMalformed = errors.New("extraction: malformed model answer")

var jsonObjectRe = regexp.MustCompile(`\{[\s\S]*\}`)

// Options tune LLMGateway.
type Options struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// LLMGateway implements Gateway on top of a language model Completer.
type LLMGateway struct {
	completer Completer
	fallback  Keyword
	opts      Options
}

// NewLLMGateway wraps c. Zero options get defaults of 10s timeout and one retry.
func NewLLMGateway(c Completer, opts Options) *LLMGateway {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	return &LLMGateway{completer: c, opts: opts}
}

func (g *LLMGateway) ClassifyIntent(ctx context.Context, text string) IntentResult {
	var out struct {
		MessageType string  `json:"messageType"`
		Confidence  float64 `json:"confidence"`
	}
	if err := g.ask(ctx, "intent", intentPrompt(text), &out); err != nil {
		return g.fallback.ClassifyIntent(ctx, text)
	}
	intent := Intent(strings.TrimSpace(out.MessageType))
	if !intent.Valid() {
		return IntentResult{Intent: IntentGeneralChat}
	}
	return IntentResult{Intent: intent, Confidence: clamp(out.Confidence)}
}

func (g *LLMGateway) ExtractFields(ctx context.Context, text string, current domain.Step) FieldResult {
	var out struct {
		UserType      string   `json:"userType"`
		City          string   `json:"city"`
		Material      string   `json:"material"`
		Brand         string   `json:"brand"`
		Quantity      flexStr  `json:"quantity"`
		VendorName    string   `json:"vendorName"`
		VendorPhone   flexStr  `json:"vendorPhone"`
		Materials     []string `json:"materials"`
		Confidence    float64  `json:"confidence"`
		SuggestedStep string   `json:"suggestedStep"`
	}
	if err := g.ask(ctx, "fields", fieldsPrompt(text, current), &out); err != nil {
		return FieldResult{}
	}
	res := FieldResult{
		Fields: Fields{
			UserType:    domain.UserType(strings.ToLower(strings.TrimSpace(out.UserType))),
			City:        strings.TrimSpace(out.City),
			Material:    NormalizeMaterial(out.Material),
			Brand:       strings.TrimSpace(out.Brand),
			Quantity:    strings.TrimSpace(string(out.Quantity)),
			VendorName:  strings.TrimSpace(out.VendorName),
			VendorPhone: strings.TrimSpace(string(out.VendorPhone)),
		},
		Confidence: clamp(out.Confidence),
	}
	if !res.Fields.UserType.Valid() {
		res.Fields.UserType = ""
	}
	for _, m := range out.Materials {
		if n := NormalizeMaterial(m); n != "" && !contains(res.Fields.Materials, n) {
			res.Fields.Materials = append(res.Fields.Materials, n)
		}
	}
	if step := domain.Step(strings.TrimSpace(out.SuggestedStep)); step.Valid() {
		res.SuggestedStep = step
	}
	return res
}

func (g *LLMGateway) ExtractStandardQuote(ctx context.Context, text string) StandardQuoteResult {
	var out struct {
		Cement     *float64 `json:"cement_rate"`
		TMT        *float64 `json:"tmt_rate"`
		GST        *float64 `json:"gst"`
		Delivery   *float64 `json:"delivery"`
		Action     string   `json:"action"`
		Confidence float64  `json:"confidence"`
	}
	if err := g.ask(ctx, "standard_quote", standardQuotePrompt(text), &out); err != nil {
		return StandardQuoteResult{}
	}
	res := StandardQuoteResult{
		Cement:     nonNegative(out.Cement),
		TMT:        nonNegative(out.TMT),
		GST:        nonNegative(out.GST),
		Delivery:   nonNegative(out.Delivery),
		Confidence: clamp(out.Confidence),
	}
	switch a := QuoteAction(strings.ToLower(strings.TrimSpace(out.Action))); a {
	case QuoteActionSet, QuoteActionUpdate, QuoteActionSame:
		res.Action = a
	}
	return res
}

func (g *LLMGateway) ExtractSale(ctx context.Context, text string) SaleResult {
	var out struct {
		SalesType       string   `json:"sales_type"`
		CementCompany   string   `json:"cement_company"`
		CementQty       flexStr  `json:"cement_qty"`
		CementPrice     *float64 `json:"cement_price"`
		TMTCompany      string   `json:"tmt_company"`
		TMTSizes        flexStr  `json:"tmt_sizes"`
		TMTPrices       flexStr  `json:"tmt_prices"`
		TMTQuantities   flexStr  `json:"tmt_quantities"`
		ProjectOwner    string   `json:"project_owner"`
		ProjectName     string   `json:"project_name"`
		ProjectLocation string   `json:"project_location"`
		CompletionTime  *float64 `json:"completion_time"`
		ContactNumber   flexStr  `json:"contact_number"`
		SalesRepName    string   `json:"sales_rep_name"`
		Confidence      float64  `json:"confidence"`
	}
	if err := g.ask(ctx, "sale", salePrompt(text), &out); err != nil {
		return SaleResult{}
	}
	sale := domain.Sale{
		SalesType:       strings.ToLower(strings.TrimSpace(out.SalesType)),
		CementCompany:   out.CementCompany,
		CementQty:       string(out.CementQty),
		CementPrice:     nonNegative(out.CementPrice),
		TMTCompany:      out.TMTCompany,
		TMTSizes:        string(out.TMTSizes),
		TMTPrices:       string(out.TMTPrices),
		TMTQuantities:   string(out.TMTQuantities),
		ProjectOwner:    out.ProjectOwner,
		ProjectName:     out.ProjectName,
		ProjectLocation: out.ProjectLocation,
		ContactNumber:   string(out.ContactNumber),
		SalesRepName:    out.SalesRepName,
	}
	if out.CompletionTime != nil && *out.CompletionTime > 0 {
		sale.CompletionTime = int(*out.CompletionTime)
	}
	return SaleResult{Sale: sale, Confidence: clamp(out.Confidence)}
}

// ask runs prompt through the completer with timeout and retries, and decodes
// the first JSON object of the answer into dst.
func (g *LLMGateway) ask(ctx context.Context, op, prompt string, dst any) error {
	if g == nil || g.completer == nil {
		return errors.New("extraction: no completer configured")
	}
	start := time.Now()
	var (
		raw string
		err error
	)
	for attempt := 0; attempt <= g.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err = netutil.Sleep(ctx, netutil.Backoff(g.opts.RetryBackoff, attempt)); err != nil {
				break
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
		raw, err = g.completer.Complete(callCtx, prompt)
		cancel()
		if err == nil || !netutil.ShouldRetry(err) {
			break
		}
	}
	if err == nil {
		err = decodeJSON(raw, dst)
	}
	if err != nil {
		logger.Warn(ctx, "extract", "extract.fail",
			slog.String("op", op),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.Duration("duration", logger.Took(start)),
		)
		return err
	}
	logger.Debug(ctx, "extract", "extract.ok",
		slog.String("op", op),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

func decodeJSON(raw string, dst any) error {
	obj := jsonObjectRe.FindString(raw)
	if obj == "" {
		return ErrMalformed
	}
	if err := json.Unmarshal([]byte(obj), dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func nonNegative(v *float64) *float64 {
	if v == nil || *v < 0 {
		return nil
	}
	return v
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// flexStr accepts a JSON string, number, or array and keeps a flat string.
type flexStr string

func (f *flexStr) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexStr(strings.TrimSpace(s))
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexStr(strconv.FormatFloat(n, 'f', -1, 64))
		return nil
	}
	var list []any
	if err := json.Unmarshal(b, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, v := range list {
			parts = append(parts, fmt.Sprint(v))
		}
		*f = flexStr(strings.Join(parts, ","))
		return nil
	}
	*f = ""
	return nil
}

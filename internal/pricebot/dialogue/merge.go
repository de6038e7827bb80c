package dialogue

import (
	"context"
	"log/slog"
	"slices"

	"github.com/m3rciful/pricebot/core/logger"
	"github.com/m3rciful/pricebot/internal/pricebot/domain"
	"github.com/m3rciful/pricebot/internal/pricebot/extraction"
)

// Steps whose reply is a keyword decision; extraction never moves them.
var extractionImmune = map[domain.Step]bool{
	domain.StepConfirm:       true,
	domain.StepVendorConfirm: true,
	domain.StepSaleConfirm:   true,
}

// applyExtraction merges a confident field extraction into s and moves it to
// the extractor's suggested step. A suggestion whose earlier fields are still
// missing is pulled back to the first missing one. Every step change is logged.
func (e *Engine) applyExtraction(ctx context.Context, s domain.Session, text string, intent extraction.IntentResult) (domain.Session, bool) {
	if extractionImmune[s.Step] || text == "" {
		return s, false
	}
	res := e.Gateway.ExtractFields(ctx, text, s.Step)
	if !extraction.Accepted(res.Confidence, extraction.FieldThreshold) {
		return s, false
	}
	if res.Fields.Empty() && res.SuggestedStep == "" {
		return s, false
	}

	f := res.Fields
	if f.UserType.Valid() {
		s.UserType = f.UserType
	}
	if extraction.Accepted(intent.Confidence, extraction.IntentOverrideThreshold) {
		switch intent.Intent {
		case extraction.IntentCustomerInquiry:
			s.UserType = domain.UserBuyer
		case extraction.IntentVendorRegistration:
			s.UserType = domain.UserVendor
		}
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&s.City, f.City)
	set(&s.Material, extraction.NormalizeMaterial(f.Material))
	set(&s.Brand, f.Brand)
	set(&s.Quantity, f.Quantity)
	set(&s.VendorName, f.VendorName)
	set(&s.VendorPhone, f.VendorPhone)
	if len(f.Materials) > 0 {
		var ms []string
		for _, m := range f.Materials {
			if n := extraction.NormalizeMaterial(m); n != "" && !slices.Contains(ms, n) {
				ms = append(ms, n)
			}
		}
		if len(ms) > 0 {
			s.Materials = ms
		}
	}

	target := validTarget(s, res.SuggestedStep)
	if s.UserType == "" {
		switch {
		case slices.Contains(buyerSteps, target):
			s.UserType = domain.UserBuyer
		case slices.Contains(vendorSteps, target):
			s.UserType = domain.UserVendor
		}
	}
	if target != s.Step {
		logger.Info(ctx, "dialogue", "dialogue.extraction.override",
			slog.String("from", string(s.Step)),
			slog.String("to", string(target)),
			slog.String("suggested", string(res.SuggestedStep)),
			slog.Float64("confidence", res.Confidence),
		)
		s.Step = target
	}
	return s, true
}

var (
	buyerSteps  = []domain.Step{domain.StepGetCity, domain.StepGetMaterial, domain.StepGetBrand, domain.StepGetQuantity, domain.StepConfirm}
	vendorSteps = []domain.Step{domain.StepVendorName, domain.StepVendorCity, domain.StepVendorMaterials, domain.StepVendorPhone, domain.StepVendorConfirm}
)

// validTarget returns the step the session moves to. A suggestion is kept
// when it does not skip a missing field and is not the step just answered;
// otherwise the session goes to the step asking for the first missing field.
func validTarget(s domain.Session, suggested domain.Step) domain.Step {
	if !suggested.Valid() || (suggested == domain.StepSaleConfirm && s.PendingSale == nil) {
		suggested = ""
	}

	var flow []domain.Step
	var missing domain.Step
	switch {
	case s.UserType == domain.UserBuyer || (s.UserType == "" && slices.Contains(buyerSteps, suggested)):
		flow = buyerSteps
		switch {
		case s.City == "":
			missing = domain.StepGetCity
		case s.Material == "":
			missing = domain.StepGetMaterial
		case s.Quantity == "" && s.Brand == "" && suggested != domain.StepGetQuantity:
			missing = domain.StepGetBrand
		case s.Quantity == "":
			missing = domain.StepGetQuantity
		default:
			missing = domain.StepConfirm
		}
	case s.UserType == domain.UserVendor || slices.Contains(vendorSteps, suggested):
		flow = vendorSteps
		switch {
		case s.VendorName == "":
			missing = domain.StepVendorName
		case s.VendorCityOrCity() == "":
			missing = domain.StepVendorCity
		case len(s.Materials) == 0:
			missing = domain.StepVendorMaterials
		case s.VendorPhone == "":
			missing = domain.StepVendorPhone
		default:
			missing = domain.StepVendorConfirm
		}
	default:
		if suggested == "" {
			return s.Step
		}
		return suggested
	}

	at := slices.Index(flow, suggested)
	if at < 0 || suggested == s.Step || at > slices.Index(flow, missing) {
		return missing
	}
	return suggested
}

package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/m3rciful/pricebot/core/format"
	"github.com/m3rciful/pricebot/core/logger"
	"github.com/m3rciful/pricebot/internal/pricebot/conversation"
	"github.com/m3rciful/pricebot/internal/pricebot/domain"
	"github.com/m3rciful/pricebot/internal/pricebot/extraction"
	"github.com/m3rciful/pricebot/internal/pricebot/fanout"
)

var phoneRe = regexp.MustCompile(`^\+?[0-9][0-9 -]{6,18}[0-9]$`)

// step answers text at the session's current step. Invalid input leaves the
// step unchanged and returns the step's hint.
func (e *Engine) step(ctx context.Context, s domain.Session, text string) conversation.Outbound {
	lower := strings.ToLower(text)
	switch s.Step {
	case domain.StepStart:
		if !isGreeting(text) {
			e.save(s)
			return conversation.Text(msgGreeting)
		}
		return e.advance(s, domain.StepUserType)

	case domain.StepUserType:
		switch {
		case text == "1" || strings.Contains(lower, "buyer"):
			s.UserType = domain.UserBuyer
			return e.advance(s, domain.StepGetCity)
		case text == "2" || strings.Contains(lower, "vendor"):
			s.UserType = domain.UserVendor
			return e.advance(s, domain.StepVendorName)
		}

	case domain.StepGetCity:
		if text != "" {
			s.City = text
			return e.advance(s, domain.StepGetMaterial)
		}

	case domain.StepGetMaterial:
		if m := menuMaterial(text); m != "" {
			s.Material = m
			return e.advance(s, domain.StepGetBrand)
		}

	case domain.StepGetBrand:
		if text != "" {
			s.Brand = text
			if lower == "any" {
				s.Brand = ""
			}
			return e.advance(s, domain.StepGetQuantity)
		}

	case domain.StepGetQuantity:
		if text != "" {
			s.Quantity = text
			return e.advance(s, domain.StepConfirm)
		}

	case domain.StepConfirm:
		switch lower {
		case "confirm":
			return e.dispatch(ctx, s)
		case "restart":
			return e.reset(ctx, s.ConversationID, restartText)
		}

	case domain.StepVendorName:
		if text != "" {
			s.VendorName = text
			return e.advance(s, domain.StepVendorCity)
		}

	case domain.StepVendorCity:
		if text != "" {
			s.VendorCity = text
			return e.advance(s, domain.StepVendorMaterials)
		}

	case domain.StepVendorMaterials:
		if ms := menuMaterials(text); len(ms) > 0 {
			s.Materials = ms
			return e.advance(s, domain.StepVendorPhone)
		}

	case domain.StepVendorPhone:
		if phoneRe.MatchString(text) {
			s.VendorPhone = text
			return e.advance(s, domain.StepVendorConfirm)
		}

	case domain.StepVendorConfirm:
		switch lower {
		case "confirm":
			return e.register(ctx, s)
		case "restart":
			return e.reset(ctx, s.ConversationID, restartText)
		}

	case domain.StepSaleConfirm:
		switch lower {
		case "confirm":
			return e.recordSale(ctx, s)
		case "cancel":
			e.finish(s.ConversationID)
			logger.Info(ctx, "dialogue", "dialogue.sale.cancelled")
			return conversation.Text(msgSaleCancelled)
		}

	default:
		// Unknown steps cannot be produced by transitions; start over.
		logger.Warn(ctx, "dialogue", "dialogue.step.unknown", slog.String("step", string(s.Step)))
		e.finish(s.ConversationID)
		return conversation.Text(msgGreeting)
	}

	e.save(s)
	return hint(s.Step)
}

func (e *Engine) advance(s domain.Session, next domain.Step) conversation.Outbound {
	s.Step = next
	e.save(s)
	return prompt(s)
}

func (e *Engine) dispatch(ctx context.Context, s domain.Session) conversation.Outbound {
	e.finish(s.ConversationID)
	inq, err := e.Fanout.Dispatch(ctx, s)
	switch {
	case errors.Is(err, fanout.ErrNoVendors):
		return conversation.Text(noVendorsText(s))
	case err != nil:
		logger.Error(ctx, "dialogue", "dialogue.inquiry.fail", slog.String("err", err.Error()))
		return conversation.Text(msgFailure)
	}
	logger.Info(ctx, "dialogue", "dialogue.inquiry.sent", slog.String("inquiry_id", inq.InquiryID))
	return conversation.Text(inquirySentText(inq))
}

func (e *Engine) register(ctx context.Context, s domain.Session) conversation.Outbound {
	e.finish(s.ConversationID)
	v, err := e.Repo.RegisterVendor(ctx, domain.Vendor{
		Name:            s.VendorName,
		Phone:           s.VendorPhone,
		City:            s.VendorCityOrCity(),
		Materials:       s.Materials,
		ChannelIdentity: s.ConversationID,
		IsActive:        true,
		CreatedAt:       e.now(),
	})
	if err != nil {
		logger.Error(ctx, "dialogue", "dialogue.vendor.fail", slog.String("err", err.Error()))
		return conversation.Text(msgFailure)
	}
	logger.Info(ctx, "dialogue", "dialogue.vendor.registered", slog.String("vendor_id", v.VendorID))
	e.notify(ctx, domain.NotifyVendorRegistered, fmt.Sprintf("🏪 New vendor registered: %s (%s)", v.Name, v.City))
	return conversation.Text(registeredText(v))
}

// startSale extracts a sale from text and asks for confirmation. explicit is
// set for the sale command, which may arrive without details.
func (e *Engine) startSale(ctx context.Context, conv, text string, explicit bool) conversation.Outbound {
	if explicit && text == "" {
		return conversation.Text(msgSaleHint)
	}
	res := e.Gateway.ExtractSale(ctx, text)
	if !extraction.Accepted(res.Confidence, extraction.SaleThreshold) {
		logger.Info(ctx, "dialogue", "dialogue.sale.unclear", slog.Float64("confidence", res.Confidence))
		return conversation.Text(msgSaleHint)
	}
	s := e.load(ctx, conv)
	sale := res.Sale
	s.PendingSale = &sale
	s.Step = domain.StepSaleConfirm
	e.save(s)
	logger.Info(ctx, "dialogue", "dialogue.sale.detected", slog.Float64("confidence", res.Confidence))
	return prompt(s)
}

func (e *Engine) recordSale(ctx context.Context, s domain.Session) conversation.Outbound {
	e.finish(s.ConversationID)
	if s.PendingSale == nil {
		return conversation.Text(msgSaleHint)
	}
	v, err := e.Repo.FindVendorByChannel(ctx, s.ConversationID)
	if errors.Is(err, domain.ErrNotFound) {
		return conversation.Text(msgSaleUnregistered)
	}
	if err != nil {
		logger.Error(ctx, "dialogue", "dialogue.sale.fail", slog.String("err", err.Error()))
		return conversation.Text(msgFailure)
	}

	sale := *s.PendingSale
	if sale.SalesType == "" {
		sale.SalesType = domain.MaterialCement
	}
	sale.ProjectOwner = format.OrDefault(sale.ProjectOwner, "Unknown")
	sale.ProjectName = format.OrDefault(sale.ProjectName, "Direct Sale")
	sale.ContactNumber = format.OrDefault(sale.ContactNumber, format.OrDefault(v.Phone, "Not provided"))
	sale.SalesRepName = format.OrDefault(sale.SalesRepName, v.Name)
	sale.Platform = conversation.PlatformOf(s.ConversationID)
	sale.SessionID = s.ConversationID
	sale.RecordedAt = e.now()

	if err := e.Repo.RecordSale(ctx, sale); err != nil {
		logger.Error(ctx, "dialogue", "dialogue.sale.fail", slog.String("err", err.Error()))
		return conversation.Text(msgFailure)
	}
	logger.Info(ctx, "dialogue", "dialogue.sale.recorded", slog.String("vendor_id", v.VendorID))
	e.notify(ctx, domain.NotifySaleRecorded, fmt.Sprintf("💰 Sale recorded by %s: %s", v.Name, strings.ToUpper(sale.SalesType)))
	return conversation.Text("✅ Sale recorded successfully!\n\nThank you for keeping your sales up to date.")
}

func menuMaterial(text string) string {
	switch strings.TrimSpace(text) {
	case "1":
		return domain.MaterialCement
	case "2":
		return domain.MaterialTMT
	}
	return extraction.NormalizeMaterial(text)
}

func menuMaterials(text string) []string {
	lower := strings.ToLower(strings.TrimSpace(text))
	switch lower {
	case "1":
		return []string{domain.MaterialCement}
	case "2":
		return []string{domain.MaterialTMT}
	case "3", "both":
		return []string{domain.MaterialCement, domain.MaterialTMT}
	}
	var out []string
	if strings.Contains(lower, "cement") {
		out = append(out, domain.MaterialCement)
	}
	if strings.Contains(lower, "tmt") || strings.Contains(lower, "steel") {
		out = append(out, domain.MaterialTMT)
	}
	return out
}

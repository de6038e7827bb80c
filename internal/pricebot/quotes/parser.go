// Package quotes handles vendor quotes: the structured free-text reply, the
// guided button wizard, standing rate sheets and the intake that persists a
// quote and relays it to the buyer.
package quotes

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	rateLineRe     = regexp.MustCompile(`(?i)RATE:\s*([0-9]+(?:\.[0-9]+)?)\s*per\s*(\w+)`)
	gstLineRe      = regexp.MustCompile(`(?i)GST:\s*([0-9]+(?:\.[0-9]+)?)\s*%`)
	deliveryLineRe = regexp.MustCompile(`(?i)DELIVERY:\s*([0-9]+(?:\.[0-9]+)?)`)
	inquiryLineRe  = regexp.MustCompile(`(?i)Inquiry\s*ID:\s*(INQ-[A-Za-z0-9]+)`)
)

// Submission is a complete vendor quote for one inquiry.
type Submission struct {
	InquiryID string
	Rate      float64
	Unit      string
	GST       float64
	Delivery  float64
}

// ParseStructured parses the four-line reply format:
//
//	RATE: 350 per bag
//	GST: 18%
//	DELIVERY: 50
//	Inquiry ID: INQ-123
//
// Every line must be present; otherwise ok is false.
func ParseStructured(text string) (Submission, bool) {
	rate := rateLineRe.FindStringSubmatch(text)
	gst := gstLineRe.FindStringSubmatch(text)
	delivery := deliveryLineRe.FindStringSubmatch(text)
	inquiry := inquiryLineRe.FindStringSubmatch(text)
	if rate == nil || gst == nil || delivery == nil || inquiry == nil {
		return Submission{}, false
	}

	var (
		sub Submission
		err error
	)
	if sub.Rate, err = strconv.ParseFloat(rate[1], 64); err != nil {
		return Submission{}, false
	}
	if sub.GST, err = strconv.ParseFloat(gst[1], 64); err != nil {
		return Submission{}, false
	}
	if sub.Delivery, err = strconv.ParseFloat(delivery[1], 64); err != nil {
		return Submission{}, false
	}
	sub.Unit = strings.ToLower(rate[2])
	sub.InquiryID = strings.ToUpper(inquiry[1][:4]) + inquiry[1][4:]
	return sub, true
}

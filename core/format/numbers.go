package format

import (
	"strconv"
)

// Amount renders a price or percentage without trailing zeros: 350, 18.5.
func Amount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// AmountOr renders *v or fallback when v is nil.
func AmountOr(v *float64, fallback string) string {
	if v == nil {
		return fallback
	}
	return Amount(*v)
}

// Delivery renders a delivery charge, where zero means free delivery.
func Delivery(v float64) string {
	if v == 0 {
		return "Free"
	}
	return "₹" + Amount(v)
}

// OrDefault returns s unless it is empty.
func OrDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

package domain

import "time"

// StandardQuote is a vendor's standing rate sheet, keyed by the vendor's
// conversation id. Only confirmed sheets are used in fallback broadcasts.
type StandardQuote struct {
	VendorID    string    `json:"vendor_id"`
	Cement      float64   `json:"cement"`
	TMT         float64   `json:"tmt"`
	GST         float64   `json:"gst"`
	Delivery    float64   `json:"delivery"`
	Confirmed   bool      `json:"confirmed"`
	LastUpdated time.Time `json:"last_updated"`
}

// Defaults applied to a standing sheet when a partial update arrives and no
// earlier value exists.
const (
	DefaultCementRate = 350
	DefaultTMTRate    = 48
	DefaultGST        = 18
	DefaultDelivery   = 50
)

// QuoteStep is the position inside the guided quote wizard.
type QuoteStep string

const (
	QuoteStepRate     QuoteStep = "rate"
	QuoteStepGST      QuoteStep = "gst"
	QuoteStepDelivery QuoteStep = "delivery"
	QuoteStepConfirm  QuoteStep = "confirm"
)

// QuoteSession is the wizard state of a vendor answering one inquiry.
type QuoteSession struct {
	VendorConversation string
	InquiryID          string
	Material           string
	Step               QuoteStep
	Rate               *float64
	GST                *float64
	Delivery           *float64
	// WaitingForCustom names the field awaiting a typed value, or is empty.
	WaitingForCustom QuoteStep
	UpdatedAt        time.Time
}

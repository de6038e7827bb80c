package domain

import "time"

// NotificationType classifies admin notifications.
type NotificationType string

const (
	NotifyConversationStarted NotificationType = "new_inquiry_started"
	NotifyInquiryDispatched   NotificationType = "new_inquiry"
	NotifyVendorQuote         NotificationType = "vendor_quote_confirmed"
	NotifyQuoteForwarded      NotificationType = "quote_sent_to_buyer"
	NotifyVendorRegistered    NotificationType = "vendor_registered"
	NotifySaleRecorded        NotificationType = "sale_entry"
)

// Notification is a write-only event for the admin dashboard.
type Notification struct {
	Message   string
	Type      NotificationType
	Read      bool
	CreatedAt time.Time
}

// DefaultRateRequestTemplate is used when no bot config row exists.
const DefaultRateRequestTemplate = `Hi [Vendor Name],

New inquiry:
- Material: [Material]
- City: [City]
- Quantity: [Quantity]
- Brand: [Brand]

Please provide your best rate including GST and delivery charges.

Inquiry ID: [Inquiry ID]`

// BotConfig is the admin-editable bot behaviour.
type BotConfig struct {
	RateRequestTemplate  string
	MaxVendorsPerInquiry int
	MessagesPerMinute    int
	BotActive            bool
}

// DefaultBotConfig mirrors the column defaults of the bot_config table.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		RateRequestTemplate:  DefaultRateRequestTemplate,
		MaxVendorsPerInquiry: 3,
		MessagesPerMinute:    20,
		BotActive:            true,
	}
}

// Normalized fills zero values with defaults.
func (c BotConfig) Normalized() BotConfig {
	def := DefaultBotConfig()
	if c.RateRequestTemplate == "" {
		c.RateRequestTemplate = def.RateRequestTemplate
	}
	if c.MaxVendorsPerInquiry <= 0 {
		c.MaxVendorsPerInquiry = def.MaxVendorsPerInquiry
	}
	if c.MessagesPerMinute <= 0 {
		c.MessagesPerMinute = def.MessagesPerMinute
	}
	return c
}

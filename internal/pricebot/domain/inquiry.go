package domain

import (
	"math/rand"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Platform identifies the channel a conversation arrived on.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformWeb      Platform = "web"
	PlatformAPI      Platform = "api"
)

// InquiryStatus tracks an inquiry from dispatch to closure.
type InquiryStatus string

const (
	InquiryPending   InquiryStatus = "pending"
	InquiryResponded InquiryStatus = "responded"
	InquiryCompleted InquiryStatus = "completed"
	InquiryCancelled InquiryStatus = "cancelled"
)

// Inquiry is a buyer's confirmed material request.
type Inquiry struct {
	InquiryID         string
	BuyerConversation string
	City              string
	Material          string
	Brand             string
	Quantity          string
	VendorsContacted  []string
	ResponseCount     int
	Status            InquiryStatus
	Platform          Platform
	CreatedAt         time.Time
}

// Vendor is a registered supplier.
type Vendor struct {
	VendorID        string
	Name            string
	Phone           string
	City            string
	Materials       []string
	ChannelIdentity string
	IsActive        bool
	LastQuoted      *time.Time
	CreatedAt       time.Time
}

// Supplies reports whether the vendor lists material (case-insensitive).
func (v Vendor) Supplies(material string) bool {
	return slices.ContainsFunc(v.Materials, func(m string) bool {
		return strings.EqualFold(m, material)
	})
}

// PriceResponse is one vendor quote for one inquiry.
type PriceResponse struct {
	VendorID       string
	InquiryID      string
	Material       string
	Price          float64
	Unit           string
	GST            float64
	DeliveryCharge float64
	CreatedAt      time.Time
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

func newULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Now(), entropy).String()
}

// NewInquiryID mints a sortable inquiry identifier.
func NewInquiryID() string { return "INQ-" + newULID() }

// NewVendorID mints a sortable vendor identifier.
func NewVendorID() string { return "VEN-" + newULID() }

// Package storage persists vendors, inquiries, price responses, sales,
// notifications and bot configuration. Postgres is the production backend;
// Memory backs tests and the database-less mode.
package storage

import (
	"context"
	"time"

	"github.com/m3rciful/pricebot/internal/pricebot/domain"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = domain.ErrNotFound

// Repository is implemented by Postgres and Memory.
type Repository interface {
	RegisterVendor(ctx context.Context, v domain.Vendor) (domain.Vendor, error)
	FindVendorByChannel(ctx context.Context, channelIdentity string) (domain.Vendor, error)
	ActiveVendors(ctx context.Context, city, material string) ([]domain.Vendor, error)
	TouchLastQuoted(ctx context.Context, vendorID string, at time.Time) error

	CreateInquiry(ctx context.Context, inq domain.Inquiry) error
	GetInquiry(ctx context.Context, inquiryID string) (domain.Inquiry, error)
	IncrementResponses(ctx context.Context, inquiryID string) (domain.Inquiry, error)

	CreatePriceResponse(ctx context.Context, r domain.PriceResponse) error
	RecordSale(ctx context.Context, s domain.Sale) error
	AddNotification(ctx context.Context, n domain.Notification) error

	BotConfig(ctx context.Context) (domain.BotConfig, error)
}

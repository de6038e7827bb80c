package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/m3rciful/pricebot/internal/pricebot/domain"
)

// Postgres is the sqlx-backed Repository.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres wraps an open connection pool.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

type vendorRow struct {
	VendorID        string         `db:"vendor_id"`
	Name            string         `db:"name"`
	Phone           string         `db:"phone"`
	City            string         `db:"city"`
	Materials       pq.StringArray `db:"materials"`
	ChannelIdentity sql.NullString `db:"channel_identity"`
	IsActive        bool           `db:"is_active"`
	LastQuoted      sql.NullTime   `db:"last_quoted"`
	CreatedAt       time.Time      `db:"created_at"`
}

func (r vendorRow) toDomain() domain.Vendor {
	v := domain.Vendor{
		VendorID:        r.VendorID,
		Name:            r.Name,
		Phone:           r.Phone,
		City:            r.City,
		Materials:       []string(r.Materials),
		ChannelIdentity: r.ChannelIdentity.String,
		IsActive:        r.IsActive,
		CreatedAt:       r.CreatedAt,
	}
	if r.LastQuoted.Valid {
		t := r.LastQuoted.Time
		v.LastQuoted = &t
	}
	return v
}

type inquiryRow struct {
	InquiryID         string         `db:"inquiry_id"`
	BuyerConversation string         `db:"buyer_conversation"`
	City              string         `db:"city"`
	Material          string         `db:"material"`
	Brand             sql.NullString `db:"brand"`
	Quantity          sql.NullString `db:"quantity"`
	VendorsContacted  pq.StringArray `db:"vendors_contacted"`
	ResponseCount     int            `db:"response_count"`
	Status            string         `db:"status"`
	Platform          string         `db:"platform"`
	CreatedAt         time.Time      `db:"created_at"`
}

func (r inquiryRow) toDomain() domain.Inquiry {
	return domain.Inquiry{
		InquiryID:         r.InquiryID,
		BuyerConversation: r.BuyerConversation,
		City:              r.City,
		Material:          r.Material,
		Brand:             r.Brand.String,
		Quantity:          r.Quantity.String,
		VendorsContacted:  []string(r.VendorsContacted),
		ResponseCount:     r.ResponseCount,
		Status:            domain.InquiryStatus(r.Status),
		Platform:          domain.Platform(r.Platform),
		CreatedAt:         r.CreatedAt,
	}
}

const vendorColumns = `vendor_id, name, phone, city, materials, channel_identity, is_active, last_quoted, created_at`

const inquiryColumns = `inquiry_id, buyer_conversation, city, material, brand, quantity, vendors_contacted, response_count, status, platform, created_at`

// RegisterVendor inserts v, or updates the vendor already bound to the same
// channel identity. The stored vendor is returned.
func (p *Postgres) RegisterVendor(ctx context.Context, v domain.Vendor) (domain.Vendor, error) {
	if v.VendorID == "" {
		v.VendorID = domain.NewVendorID()
	}
	var row vendorRow
	err := p.db.GetContext(ctx, &row, `
		INSERT INTO vendors (vendor_id, name, phone, city, materials, channel_identity, is_active)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), TRUE)
		ON CONFLICT (channel_identity) DO UPDATE
		SET name = EXCLUDED.name, phone = EXCLUDED.phone, city = EXCLUDED.city,
		    materials = EXCLUDED.materials, is_active = TRUE
		RETURNING `+vendorColumns,
		v.VendorID, v.Name, v.Phone, v.City, pq.Array(v.Materials), v.ChannelIdentity,
	)
	if err != nil {
		return domain.Vendor{}, fmt.Errorf("storage: register vendor: %w", err)
	}
	return row.toDomain(), nil
}

func (p *Postgres) FindVendorByChannel(ctx context.Context, channelIdentity string) (domain.Vendor, error) {
	var row vendorRow
	err := p.db.GetContext(ctx, &row, `SELECT `+vendorColumns+` FROM vendors WHERE channel_identity = $1`, channelIdentity)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Vendor{}, ErrNotFound
	}
	if err != nil {
		return domain.Vendor{}, fmt.Errorf("storage: find vendor: %w", err)
	}
	return row.toDomain(), nil
}

// ActiveVendors lists active vendors in city supplying material, in directory
// (registration) order.
func (p *Postgres) ActiveVendors(ctx context.Context, city, material string) ([]domain.Vendor, error) {
	var rows []vendorRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT `+vendorColumns+` FROM vendors
		WHERE is_active AND lower(city) = lower($1) AND lower($2) = ANY(materials)
		ORDER BY created_at, id`,
		city, material,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: active vendors: %w", err)
	}
	out := make([]domain.Vendor, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (p *Postgres) TouchLastQuoted(ctx context.Context, vendorID string, at time.Time) error {
	if _, err := p.db.ExecContext(ctx, `UPDATE vendors SET last_quoted = $2 WHERE vendor_id = $1`, vendorID, at); err != nil {
		return fmt.Errorf("storage: touch vendor: %w", err)
	}
	return nil
}

func (p *Postgres) CreateInquiry(ctx context.Context, inq domain.Inquiry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO inquiries (inquiry_id, buyer_conversation, city, material, brand, quantity, vendors_contacted, response_count, status, platform)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, $10)`,
		inq.InquiryID, inq.BuyerConversation, inq.City, inq.Material, inq.Brand, inq.Quantity,
		pq.Array(inq.VendorsContacted), inq.ResponseCount, string(inq.Status), string(inq.Platform),
	)
	if err != nil {
		return fmt.Errorf("storage: create inquiry: %w", err)
	}
	return nil
}

func (p *Postgres) GetInquiry(ctx context.Context, inquiryID string) (domain.Inquiry, error) {
	var row inquiryRow
	err := p.db.GetContext(ctx, &row, `SELECT `+inquiryColumns+` FROM inquiries WHERE inquiry_id = $1`, inquiryID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Inquiry{}, ErrNotFound
	}
	if err != nil {
		return domain.Inquiry{}, fmt.Errorf("storage: get inquiry: %w", err)
	}
	return row.toDomain(), nil
}

// IncrementResponses bumps response_count and moves a pending inquiry to responded.
func (p *Postgres) IncrementResponses(ctx context.Context, inquiryID string) (domain.Inquiry, error) {
	var row inquiryRow
	err := p.db.GetContext(ctx, &row, `
		UPDATE inquiries
		SET response_count = response_count + 1,
		    status = CASE WHEN status = 'pending' THEN 'responded' ELSE status END
		WHERE inquiry_id = $1
		RETURNING `+inquiryColumns,
		inquiryID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Inquiry{}, ErrNotFound
	}
	if err != nil {
		return domain.Inquiry{}, fmt.Errorf("storage: increment responses: %w", err)
	}
	return row.toDomain(), nil
}

func (p *Postgres) CreatePriceResponse(ctx context.Context, r domain.PriceResponse) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO price_responses (vendor_id, inquiry_id, material, price, unit, gst, delivery_charge)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.VendorID, r.InquiryID, r.Material, r.Price, r.Unit, r.GST, r.DeliveryCharge,
	)
	if err != nil {
		return fmt.Errorf("storage: create price response: %w", err)
	}
	return nil
}

func (p *Postgres) RecordSale(ctx context.Context, s domain.Sale) error {
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO sales_records (
			sales_type, cement_company, cement_qty, cement_price, tmt_company, tmt_sizes, tmt_prices,
			tmt_quantities, project_owner, project_name, project_location, completion_time,
			contact_number, sales_rep_name, platform, session_id)
		VALUES (
			:sales_type, :cement_company, :cement_qty, :cement_price, :tmt_company, :tmt_sizes, :tmt_prices,
			:tmt_quantities, :project_owner, :project_name, :project_location, :completion_time,
			:contact_number, :sales_rep_name, :platform, :session_id)`,
		saleParams(s),
	)
	if err != nil {
		return fmt.Errorf("storage: record sale: %w", err)
	}
	return nil
}

func saleParams(s domain.Sale) map[string]any {
	return map[string]any{
		"sales_type":       s.SalesType,
		"cement_company":   nullString(s.CementCompany),
		"cement_qty":       nullString(s.CementQty),
		"cement_price":     s.CementPrice,
		"tmt_company":      nullString(s.TMTCompany),
		"tmt_sizes":        nullString(s.TMTSizes),
		"tmt_prices":       nullString(s.TMTPrices),
		"tmt_quantities":   nullString(s.TMTQuantities),
		"project_owner":    s.ProjectOwner,
		"project_name":     s.ProjectName,
		"project_location": nullString(s.ProjectLocation),
		"completion_time":  s.CompletionTime,
		"contact_number":   s.ContactNumber,
		"sales_rep_name":   nullString(s.SalesRepName),
		"platform":         string(s.Platform),
		"session_id":       nullString(s.SessionID),
	}
}

func (p *Postgres) AddNotification(ctx context.Context, n domain.Notification) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO notifications (message, type, is_read) VALUES ($1, $2, $3)`,
		n.Message, string(n.Type), n.Read)
	if err != nil {
		return fmt.Errorf("storage: add notification: %w", err)
	}
	return nil
}

// BotConfig returns the first configuration row, or defaults when none exists.
func (p *Postgres) BotConfig(ctx context.Context) (domain.BotConfig, error) {
	var row struct {
		Template          string `db:"vendor_rate_request_template"`
		MaxVendors        int    `db:"max_vendors_per_inquiry"`
		MessagesPerMinute int    `db:"messages_per_minute"`
		BotActive         bool   `db:"bot_active"`
	}
	err := p.db.GetContext(ctx, &row, `
		SELECT vendor_rate_request_template, max_vendors_per_inquiry, messages_per_minute, bot_active
		FROM bot_config ORDER BY id LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultBotConfig(), nil
	}
	if err != nil {
		return domain.BotConfig{}, fmt.Errorf("storage: bot config: %w", err)
	}
	return domain.BotConfig{
		RateRequestTemplate:  row.Template,
		MaxVendorsPerInquiry: row.MaxVendors,
		MessagesPerMinute:    row.MessagesPerMinute,
		BotActive:            row.BotActive,
	}.Normalized(), nil
}

// SeedBotConfig inserts the default configuration row when the table is empty.
func SeedBotConfig(ctx context.Context, db *sqlx.DB) error {
	def := domain.DefaultBotConfig()
	_, err := db.ExecContext(ctx, `
		INSERT INTO bot_config (vendor_rate_request_template, max_vendors_per_inquiry, messages_per_minute, bot_active)
		SELECT $1, $2, $3, $4
		WHERE NOT EXISTS (SELECT 1 FROM bot_config)`,
		def.RateRequestTemplate, def.MaxVendorsPerInquiry, def.MessagesPerMinute, def.BotActive,
	)
	if err != nil {
		return fmt.Errorf("storage: seed bot config: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

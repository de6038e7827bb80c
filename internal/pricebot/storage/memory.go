package storage

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/pricebot/internal/pricebot/domain"
)

// Memory is an in-process Repository. Vendors keep insertion order, which is
// the directory order used for fanout.
type Memory struct {
	mu            sync.RWMutex
	vendors       []domain.Vendor
	inquiries     map[string]domain.Inquiry
	responses     []domain.PriceResponse
	sales         []domain.Sale
	notifications []domain.Notification
	config        *domain.BotConfig
	now           func() time.Time
}

// NewMemory returns an empty repository.
func NewMemory() *Memory {
	return &Memory{inquiries: make(map[string]domain.Inquiry), now: time.Now}
}

// SetBotConfig replaces the stored configuration.
func (m *Memory) SetBotConfig(cfg domain.BotConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = &cfg
}

func (m *Memory) RegisterVendor(_ context.Context, v domain.Vendor) (domain.Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v.Materials = slices.Clone(v.Materials)
	v.IsActive = true
	if v.ChannelIdentity != "" {
		for i, cur := range m.vendors {
			if cur.ChannelIdentity == v.ChannelIdentity {
				cur.Name, cur.Phone, cur.City, cur.Materials, cur.IsActive = v.Name, v.Phone, v.City, v.Materials, true
				m.vendors[i] = cur
				return cur, nil
			}
		}
	}
	if v.VendorID == "" {
		v.VendorID = domain.NewVendorID()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = m.now()
	}
	m.vendors = append(m.vendors, v)
	return v, nil
}

func (m *Memory) FindVendorByChannel(_ context.Context, channelIdentity string) (domain.Vendor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.vendors {
		if channelIdentity != "" && v.ChannelIdentity == channelIdentity {
			return v, nil
		}
	}
	return domain.Vendor{}, ErrNotFound
}

func (m *Memory) ActiveVendors(_ context.Context, city, material string) ([]domain.Vendor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Vendor
	for _, v := range m.vendors {
		if v.IsActive && strings.EqualFold(v.City, city) && v.Supplies(material) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *Memory) TouchLastQuoted(_ context.Context, vendorID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.vendors {
		if m.vendors[i].VendorID == vendorID {
			t := at
			m.vendors[i].LastQuoted = &t
			return nil
		}
	}
	return ErrNotFound
}

// Vendors returns a snapshot of every vendor.
func (m *Memory) Vendors() []domain.Vendor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.vendors)
}

func (m *Memory) CreateInquiry(_ context.Context, inq domain.Inquiry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inq.CreatedAt.IsZero() {
		inq.CreatedAt = m.now()
	}
	inq.VendorsContacted = slices.Clone(inq.VendorsContacted)
	m.inquiries[inq.InquiryID] = inq
	return nil
}

func (m *Memory) GetInquiry(_ context.Context, inquiryID string) (domain.Inquiry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inq, ok := m.inquiries[inquiryID]
	if !ok {
		return domain.Inquiry{}, ErrNotFound
	}
	return inq, nil
}

func (m *Memory) IncrementResponses(_ context.Context, inquiryID string) (domain.Inquiry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inq, ok := m.inquiries[inquiryID]
	if !ok {
		return domain.Inquiry{}, ErrNotFound
	}
	inq.ResponseCount++
	if inq.Status == domain.InquiryPending {
		inq.Status = domain.InquiryResponded
	}
	m.inquiries[inquiryID] = inq
	return inq, nil
}

// Inquiries returns a snapshot of every inquiry.
func (m *Memory) Inquiries() []domain.Inquiry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Inquiry, 0, len(m.inquiries))
	for _, inq := range m.inquiries {
		out = append(out, inq)
	}
	return out
}

func (m *Memory) CreatePriceResponse(_ context.Context, r domain.PriceResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, r)
	return nil
}

// Responses returns a snapshot of every price response.
func (m *Memory) Responses() []domain.PriceResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.responses)
}

func (m *Memory) RecordSale(_ context.Context, s domain.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.RecordedAt.IsZero() {
		s.RecordedAt = m.now()
	}
	m.sales = append(m.sales, s)
	return nil
}

// Sales returns a snapshot of every recorded sale.
func (m *Memory) Sales() []domain.Sale {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.sales)
}

func (m *Memory) AddNotification(_ context.Context, n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = m.now()
	}
	m.notifications = append(m.notifications, n)
	return nil
}

// Notifications returns a snapshot of every notification.
func (m *Memory) Notifications() []domain.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.notifications)
}

func (m *Memory) BotConfig(_ context.Context) (domain.BotConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return domain.DefaultBotConfig(), nil
	}
	return m.config.Normalized(), nil
}

var (
	_ Repository = (*Memory)(nil)
	_ Repository = (*Postgres)(nil)
)

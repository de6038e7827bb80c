//go:build integration

package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/m3rciful/pricebot/internal/pricebot/domain"
)

// Requires PRICEBOT_TEST_DSN pointing at a migrated, disposable database.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("PRICEBOT_TEST_DSN")
	if dsn == "" {
		t.Skip("PRICEBOT_TEST_DSN not set")
	}
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	for _, table := range []string{"vendors", "inquiries", "price_responses", "sales_records", "notifications", "bot_config"} {
		if _, err := db.Exec("TRUNCATE " + table + " RESTART IDENTITY"); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
	return db
}

func TestPostgresRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	p := NewPostgres(db)

	v, err := p.RegisterVendor(ctx, domain.Vendor{Name: "Sharma Traders", Phone: "9876543210", City: "Guwahati", Materials: []string{"cement"}, ChannelIdentity: "tg:1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	vs, err := p.ActiveVendors(ctx, "guwahati", "CEMENT")
	if err != nil || len(vs) != 1 || vs[0].VendorID != v.VendorID {
		t.Fatalf("active vendors = %+v, %v", vs, err)
	}
	if err := p.TouchLastQuoted(ctx, v.VendorID, time.Now()); err != nil {
		t.Fatalf("touch: %v", err)
	}

	inq := domain.Inquiry{InquiryID: domain.NewInquiryID(), BuyerConversation: "tg:9", City: "Guwahati", Material: "cement",
		Quantity: "50 bags", VendorsContacted: []string{v.VendorID}, Status: domain.InquiryPending, Platform: domain.PlatformTelegram}
	if err := p.CreateInquiry(ctx, inq); err != nil {
		t.Fatalf("create inquiry: %v", err)
	}
	got, err := p.IncrementResponses(ctx, inq.InquiryID)
	if err != nil || got.ResponseCount != 1 || got.Status != domain.InquiryResponded || got.Brand != "" {
		t.Fatalf("increment = %+v, %v", got, err)
	}
	if _, err := p.GetInquiry(ctx, "INQ-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := p.CreatePriceResponse(ctx, domain.PriceResponse{VendorID: v.VendorID, InquiryID: inq.InquiryID, Material: "cement", Price: 350, Unit: "bag", GST: 18, DeliveryCharge: 50}); err != nil {
		t.Fatalf("price response: %v", err)
	}
	price := 350.0
	if err := p.RecordSale(ctx, domain.Sale{SalesType: "cement", CementCompany: "ABC", CementPrice: &price, ProjectOwner: "Unknown", ProjectName: "Direct Sale", ContactNumber: "1", Platform: domain.PlatformTelegram}); err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if err := p.AddNotification(ctx, domain.Notification{Message: "hi", Type: domain.NotifySaleRecorded}); err != nil {
		t.Fatalf("notification: %v", err)
	}

	cfg, err := p.BotConfig(ctx)
	if err != nil || cfg.MaxVendorsPerInquiry != 3 {
		t.Fatalf("default config = %+v, %v", cfg, err)
	}
	if err := SeedBotConfig(ctx, db); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := SeedBotConfig(ctx, db); err != nil {
		t.Fatalf("seed twice: %v", err)
	}
	var n int
	if err := db.Get(&n, "SELECT count(*) FROM bot_config"); err != nil || n != 1 {
		t.Fatalf("bot_config rows = %d, %v", n, err)
	}
}

package bootstrap

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/pricebot/core/config"
	coredatabase "github.com/m3rciful/pricebot/core/database"
)

func TestRunSkipDatabase(t *testing.T) {
	connectCalled := false
	res, err := Run(Options{
		Config:       &coreconfig.Config{},
		SkipDatabase: true,
		LoggerInit:   func(*coreconfig.Config) error { return nil },
		Connect: func(coredatabase.Config) (*sqlx.DB, error) {
			connectCalled = true
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.DB != nil || connectCalled {
		t.Fatalf("expected database to be skipped")
	}
}

func TestRunPropagatesConnectError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Run(Options{
		Config:     &coreconfig.Config{},
		LoggerInit: func(*coreconfig.Config) error { return nil },
		Migrate:    func(coredatabase.Config) error { return nil },
		Connect:    func(coredatabase.Config) (*sqlx.DB, error) { return nil, boom },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected connect error, got %v", err)
	}
}

func TestRunMigratesBeforeConnecting(t *testing.T) {
	var steps []string
	migrateErr := errors.New("dirty schema")
	_, err := Run(Options{
		Config:     &coreconfig.Config{},
		LoggerInit: func(*coreconfig.Config) error { steps = append(steps, "logger"); return nil },
		Migrate: func(coredatabase.Config) error {
			steps = append(steps, "migrate")
			return migrateErr
		},
		Connect: func(coredatabase.Config) (*sqlx.DB, error) {
			steps = append(steps, "connect")
			return nil, nil
		},
	})
	if !errors.Is(err, migrateErr) {
		t.Fatalf("expected migrate error, got %v", err)
	}
	if got := strings.Join(steps, ","); got != "logger,migrate" {
		t.Fatalf("steps = %s", got)
	}
}

func TestRunSeedersStopsOnError(t *testing.T) {
	var calls []string
	seedErr := errors.New("seed failed")
	err := runSeeders(nil, []NamedSeeder{
		{Name: "first", Seeder: SeederFunc(func(context.Context, *sqlx.DB) error {
			calls = append(calls, "first")
			return seedErr
		})},
		{Name: "second", Seeder: SeederFunc(func(context.Context, *sqlx.DB) error {
			calls = append(calls, "second")
			return nil
		})},
	})
	if !errors.Is(err, seedErr) {
		t.Fatalf("expected seed error, got %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected seeding to stop after failure, calls=%v", calls)
	}
}

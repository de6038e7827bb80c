// Package bootstrap brings up the infrastructure the bot needs before it
// can serve: logging, then the schema, then the pool and reference data.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/pricebot/core/config"
	coredatabase "github.com/m3rciful/pricebot/core/database"
	"github.com/m3rciful/pricebot/core/logger"
)

const seedTimeout = 10 * time.Second

// Options control Run. The function fields default to the real
// implementations.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config
	// SkipDatabase leaves Result.DB nil; used by the in-memory storage driver.
	SkipDatabase bool
	Seeders      []NamedSeeder

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
}

func (o *Options) defaults() {
	if o.LoggerInit == nil {
		o.LoggerInit = logger.InitLogger
	}
	if o.Connect == nil {
		o.Connect = coredatabase.Connect
	}
	if o.Migrate == nil {
		o.Migrate = coredatabase.RunMigrations
	}
}

// Result holds what Run brought up.
type Result struct {
	DB *sqlx.DB
}

// Run initializes the logger and, unless SkipDatabase is set, migrates the
// schema, opens the pool and runs the seeders in order. Migrations go first
// because they wait for the server to accept connections.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	opts.defaults()

	if err := opts.LoggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger: %w", err)
	}
	ctx := logger.Background()
	if opts.SkipDatabase {
		logger.Info(ctx, "db", "db.skip", slog.String("reason", "memory storage"))
		return &Result{}, nil
	}

	if err := opts.Migrate(opts.Database); err != nil {
		return nil, fmt.Errorf("bootstrap: migrations: %w", err)
	}
	db, err := opts.Connect(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database: %w", err)
	}
	if err := runSeeders(db, opts.Seeders); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Result{DB: db}, nil
}

func runSeeders(db *sqlx.DB, seeders []NamedSeeder) error {
	for _, s := range seeders {
		if s.Seeder == nil {
			continue
		}
		if err := seed(db, s); err != nil {
			return fmt.Errorf("bootstrap: seeder %s: %w", s.Name, err)
		}
	}
	return nil
}

func seed(db *sqlx.DB, s NamedSeeder) error {
	ctx, cancel := context.WithTimeout(logger.Background(), seedTimeout)
	defer cancel()
	start := time.Now()
	err := s.Seeder.Seed(ctx, db)
	status := "ok"
	if err != nil {
		status = "fail"
	}
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("seeder", s.Name),
		slog.Duration("took", logger.Took(start)),
	}
	if err != nil {
		logger.Error(ctx, "db.seed", "seed.run", append(attrs, slog.String("err", err.Error()))...)
		return err
	}
	logger.Info(ctx, "db.seed", "seed.run", attrs...)
	return nil
}

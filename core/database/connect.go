package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/m3rciful/pricebot/core/logger"
	"github.com/m3rciful/pricebot/core/netutil"
)

const (
	driverName     = "postgres"
	connectTimeout = 5 * time.Second
	readyTimeout   = 30 * time.Second
	readyStep      = time.Second
)

// Connect opens a pooled sqlx handle and pings it before returning.
func Connect(cfg Config) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, driverName, cfg.KeyValueDSN())
	if err != nil {
		logger.Error(ctx, "db", "db.connect", append(cfg.logAttrs(),
			slog.String("status", "fail"),
			slog.Duration("took", logger.Took(start)),
			slog.String("err", err.Error()),
		)...)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	pool := cfg.poolSize()
	db.SetMaxOpenConns(pool)
	db.SetMaxIdleConns(pool)
	db.SetConnMaxIdleTime(5 * time.Minute)

	logger.Info(ctx, "db", "db.connect", append(cfg.logAttrs(),
		slog.String("status", "ok"),
		slog.Int("pool_open", pool),
		slog.Duration("took", logger.Took(start)),
	)...)
	return db, nil
}

// waitReady pings dsn until the server answers or ctx ends. Postgres in a
// fresh compose stack accepts TCP before it accepts logins, so the first
// few attempts are expected to fail.
func waitReady(ctx context.Context, dsn string) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		db, err := sqlx.Open(driverName, dsn)
		if err == nil {
			err = db.PingContext(ctx)
			_ = db.Close()
		}
		if err == nil {
			if attempt > 1 {
				logger.Info(ctx, "db", "db.ready", slog.Int("attempts", attempt))
			}
			return nil
		}
		lastErr = err

		if netutil.Sleep(ctx, min(netutil.Backoff(readyStep, attempt), 5*time.Second)) != nil {
			return fmt.Errorf("database not ready after %d attempts: %w", attempt, lastErr)
		}
	}
}

func (c Config) poolSize() int {
	if c.MaxConnections <= 0 {
		return 10
	}
	return c.MaxConnections
}

func (c Config) logAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("driver", driverName),
		slog.String("host", c.Host),
		slog.String("port", c.Port),
		slog.String("db", c.Name),
	}
}

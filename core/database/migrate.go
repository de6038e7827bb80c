package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/m3rciful/pricebot/core/logger"
)

// RunMigrations waits for the server and applies every pending up migration.
func RunMigrations(cfg Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()

	dsn := cfg.URL()
	if err := waitReady(ctx, dsn); err != nil {
		logger.Error(ctx, "db.migrate", "migrate.wait", slog.String("err", err.Error()))
		return err
	}

	dir, err := migrationsDir(cfg.MigrationsDir)
	if err != nil {
		return fmt.Errorf("migrations dir: %w", err)
	}
	set, err := readMigrations(dir)
	if err != nil {
		return err
	}
	logger.Debug(ctx, "db.migrate", "migrate.resolve", fileAttrs(dir, set)...)

	m, err := migrate.New("file://"+filepath.ToSlash(dir), dsn)
	if err != nil {
		logger.Error(ctx, "db.migrate", "migrate.init", slog.String("err", err.Error()))
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	from, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		from = 0
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case dirty:
		// A half-applied migration needs a manual `migrate force`.
		logger.Error(ctx, "db.migrate", "migrate.dirty", slog.Uint64("version", uint64(from)))
		return fmt.Errorf("schema version %d is dirty", from)
	}

	start := time.Now()
	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Error(ctx, "db.migrate", "migrate.apply",
			slog.Uint64("from_ver", uint64(from)),
			slog.Duration("took", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("apply migrations: %w", err)
	}

	to := from
	if err == nil {
		to, _, _ = m.Version()
	}
	applied := set.between(uint64(from), uint64(to))
	logger.Info(ctx, "db.migrate", "migrate.summary", append([]slog.Attr{
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Duration("took", logger.Took(start)),
	}, fileAttrs("", applied)...)...)
	return nil
}

func migrationsDir(dir string) (string, error) {
	if dir == "" {
		dir = "migrations"
	}
	return filepath.Abs(dir)
}

// migrationSet is the sorted list of *.up.sql file names in a directory.
type migrationSet []string

func readMigrations(dir string) (migrationSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var set migrationSet
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			set = append(set, e.Name())
		}
	}
	slices.Sort(set)
	return set, nil
}

// between returns the files with from < version <= to.
func (s migrationSet) between(from, to uint64) migrationSet {
	var out migrationSet
	for _, name := range s {
		if v := migrationVersion(name); v > from && v <= to {
			out = append(out, name)
		}
	}
	return out
}

func fileAttrs(dir string, files migrationSet) []slog.Attr {
	preview, truncated := logger.SummarizeStrings(files, 6)
	attrs := []slog.Attr{slog.Int("files", len(files))}
	if dir != "" {
		attrs = append(attrs, slog.String("path", dir))
	}
	if preview != "" {
		attrs = append(attrs, slog.String("files_preview", preview))
	}
	if truncated {
		attrs = append(attrs, slog.Bool("files_truncated", true))
	}
	return attrs
}

// migrationVersion reads the numeric prefix of "0003_vendor_aliases.up.sql".
func migrationVersion(name string) uint64 {
	prefix, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(prefix, 10, 64)
	return v
}

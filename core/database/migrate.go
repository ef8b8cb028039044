package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/ltzehan/thermobot/core/config"
	"github.com/ltzehan/thermobot/core/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	migrationsDir  = "migrations"
	previewFiles   = 6
	postgresWarmup = 30 * time.Second
)

// RunMigrations brings the session schema up to date. Postgres is given
// postgresWarmup to accept connections first.
func RunMigrations(cfg config.DatabaseConfig) error {
	dbURL := migrateURL(cfg)
	if cfg.Driver == config.DriverPostgres {
		ctx, cancel := context.WithTimeout(context.Background(), postgresWarmup)
		err := WaitForPostgres(ctx, dbURL)
		cancel()
		if err != nil {
			logger.MIG.Error("db not ready", slog.String("event", "db.wait"), logger.Err(err))
			return fmt.Errorf("database not ready: %w", err)
		}
	}

	files := listMigrationFiles(migrationsFS)
	logger.MIG.Debug("migrations resolved", append(
		[]any{slog.String("event", "resolve"), slog.String("driver", driverName(cfg))},
		filesAttrs(files)...,
	)...)

	src, err := iofs.New(migrationsFS, migrationsDir)
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		logger.MIG.Error("init failed", slog.String("event", "init"), logger.Err(err))
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	from, _, _ := m.Version()
	start := time.Now()
	err = m.Up()
	took := time.Since(start)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.MIG.Error("migration failed",
			slog.String("event", "apply"),
			slog.Duration("duration", took),
			logger.Err(err),
		)
		return fmt.Errorf("apply migrations: %w", err)
	}
	to, _, _ := m.Version()

	applied := selectApplied(files, uint64(from), uint64(to))
	if len(applied) > 0 {
		logger.MIG.Debug("applied files", append([]any{slog.String("event", "apply")}, filesAttrs(applied)...)...)
	}
	logger.MIG.Info("migrations summary",
		slog.String("event", "summary"),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("files", len(applied)),
		slog.Duration("duration", took),
	)
	return nil
}

func filesAttrs(files []string) []any {
	attrs := []any{slog.Int("files_total", len(files))}
	preview, cut := logger.SummarizeStrings(files, previewFiles)
	if preview != "" {
		attrs = append(attrs, slog.String("files_preview", preview))
	}
	if cut {
		attrs = append(attrs, slog.Bool("files_truncated", true))
	}
	return attrs
}

// listMigrationFiles returns the embedded *.up.sql names in version order.
func listMigrationFiles(fsys fs.FS) []string {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names
}

// selectApplied returns the files whose version lies in (from, to].
func selectApplied(files []string, from, to uint64) []string {
	var out []string
	for _, f := range files {
		prefix, _, _ := strings.Cut(f, "_")
		v, err := strconv.ParseUint(prefix, 10, 64)
		if err == nil && v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}

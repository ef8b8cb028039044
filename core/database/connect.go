package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/ltzehan/thermobot/core/config"
	"github.com/ltzehan/thermobot/core/logger"
)

const connectTimeout = 5 * time.Second

func init() {
	// modernc registers as "sqlite", which sqlx does not know by default.
	sqlx.BindDriver(sqliteDriver, sqlx.QUESTION)
}

// Connect opens the session database and sizes its pool. SQLite gets a
// single connection; busy_timeout serialises the rest.
func Connect(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	driver := driverName(cfg)
	host, port, name := describe(cfg)
	target := []any{
		slog.String("driver", driver),
		slog.String("host", host),
		slog.String("port", port),
		slog.String("db", name),
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, driver, dataSource(cfg))
	if err != nil {
		logger.DB.Error("db connect failed", append(target,
			slog.String("event", "db.connect"),
			slog.Duration("duration", time.Since(start)),
			logger.Err(err),
		)...)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	pool := cfg.MaxConnections
	if driver == sqliteDriver {
		pool = 1
	}
	db.SetMaxOpenConns(pool)
	db.SetMaxIdleConns(pool)

	logger.DB.Info("db connected", append(target,
		slog.String("event", "db.connect"),
		slog.Int("pool_open", pool),
		slog.Duration("duration", time.Since(start)),
	)...)
	return db, nil
}

// WaitForPostgres pings dsn every two seconds until it answers or ctx ends.
func WaitForPostgres(ctx context.Context, dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	tick := time.NewTicker(2 * time.Second)
	defer tick.Stop()
	for {
		err = db.PingContext(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for database: %w", err)
		case <-tick.C:
		}
	}
}

package database

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ltzehan/thermobot/core/config"
)

// sqliteDriver is the database/sql name registered by modernc.org/sqlite.
const sqliteDriver = "sqlite"

// driverName maps the configured backend to the database/sql driver name.
func driverName(cfg config.DatabaseConfig) string {
	if cfg.Driver == config.DriverSQLite {
		return sqliteDriver
	}
	return "postgres"
}

// dataSource builds the DSN passed to sqlx.
func dataSource(cfg config.DatabaseConfig) string {
	if cfg.Driver == config.DriverSQLite {
		return sqlitePath(cfg.Path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	return fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, cfg.SSLMode,
	)
}

// migrateURL builds the database URL understood by golang-migrate.
func migrateURL(cfg config.DatabaseConfig) string {
	if cfg.Driver == config.DriverSQLite {
		return "sqlite://" + sqlitePath(cfg.Path)
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host + ":" + cfg.Port,
		Path:     "/" + cfg.Name,
		RawQuery: "sslmode=" + url.QueryEscape(cfg.SSLMode),
	}
	return u.String()
}

func sqlitePath(p string) string {
	return strings.TrimPrefix(strings.TrimSpace(p), "file:")
}

// describe returns log attributes identifying the target without secrets.
func describe(cfg config.DatabaseConfig) (host, port, name string) {
	if cfg.Driver == config.DriverSQLite {
		return "", "", sqlitePath(cfg.Path)
	}
	return cfg.Host, cfg.Port, cfg.Name
}

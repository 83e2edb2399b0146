// Package database provides connection setup for MariaDB and Redis.
// Both connections are created once at startup and shared across the
// application via dependency injection. This package owns the connection
// lifecycle (open, configure pool, ping, close) and the health check.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// MariaDB driver -- imported for side effect of registering the driver.
	_ "github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/rollcall/internal/config"
)

// pingRetries bounds the startup wait for MariaDB. Each attempt doubles the
// backoff, capped at maxBackoff.
const (
	pingRetries = 10
	maxBackoff  = 30 * time.Second
)

// NewMariaDB opens a MariaDB pool with the configured limits and waits for
// the server to answer a ping. MariaDB often starts slower than the app
// container, so the ping is retried with exponential backoff.
func NewMariaDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening mariadb connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := pingWithBackoff(ctx, db, pingRetries, time.Second); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// pingWithBackoff pings until success, context cancellation, or the retry
// budget runs out.
func pingWithBackoff(ctx context.Context, db *sql.DB, retries int, backoff time.Duration) error {
	var pingErr error
	for attempt := 1; attempt <= retries; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pingErr = db.PingContext(pingCtx)
		cancel()
		if pingErr == nil {
			return nil
		}
		if attempt == retries {
			break
		}

		slog.Warn("mariadb not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_retries", retries),
			slog.Duration("backoff", backoff),
			slog.Any("error", pingErr),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for mariadb: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
	return fmt.Errorf("pinging mariadb after %d attempts: %w", retries, pingErr)
}

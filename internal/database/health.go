package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Check pings every configured backend and joins the failures. A nil
// backend is skipped so the memory throttle store can run without Redis.
func Check(ctx context.Context, db Pinger, rdb redis.UniversalClient) error {
	var errs []error
	if db != nil {
		if err := db.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mariadb: %w", err))
		}
	}
	if rdb != nil {
		if err := rdb.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

var _ Pinger = (*sql.DB)(nil)

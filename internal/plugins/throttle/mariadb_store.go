package throttle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// mysqlDeadlock is ER_LOCK_DEADLOCK. InnoDB can pick a concurrent
// first-insert as the victim when two transactions gap-lock the same
// missing row.
const mysqlDeadlock = 1213

// defaultDeadlockRetries bounds how often Update restarts after a deadlock.
const defaultDeadlockRetries = 3

// MariaDBStore keeps throttle entries in the login_throttle table so the
// state survives restarts and is shared by every app instance. Update takes
// a row lock with SELECT ... FOR UPDATE.
type MariaDBStore struct {
	db      *sql.DB
	retries int
}

// NewMariaDBStore creates a MariaDB-backed store.
func NewMariaDBStore(db *sql.DB) *MariaDBStore {
	return &MariaDBStore{db: db, retries: defaultDeadlockRetries}
}

// queryer is the subset shared by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Get loads the row for key without locking.
func (s *MariaDBStore) Get(ctx context.Context, key string) (*Entry, error) {
	e, err := s.load(ctx, s.db, key, false)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrNotFound
	}
	return e, nil
}

// Update locks the row, applies fn and upserts the result in one
// transaction. Deadlocks are retried.
func (s *MariaDBStore) Update(ctx context.Context, key string, fn func(cur *Entry) Entry) (Entry, error) {
	var lastErr error
	for i := 0; i < s.retries; i++ {
		e, err := s.updateOnce(ctx, key, fn)
		if err == nil {
			return e, nil
		}
		var myErr *mysql.MySQLError
		if !errors.As(err, &myErr) || myErr.Number != mysqlDeadlock {
			return Entry{}, err
		}
		lastErr = err
	}
	return Entry{}, fmt.Errorf("%w: %v", ErrContention, lastErr)
}

func (s *MariaDBStore) updateOnce(ctx context.Context, key string, fn func(cur *Entry) Entry) (Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("beginning throttle tx: %w", err)
	}
	defer tx.Rollback()

	cur, err := s.load(ctx, tx, key, true)
	if err != nil {
		return Entry{}, err
	}

	next := fn(cur)

	var locked sql.NullTime
	if !next.LockedUntil.IsZero() {
		locked = sql.NullTime{Time: next.LockedUntil.UTC(), Valid: true}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO login_throttle (id_hash, attempts, first_attempt_at, locked_until, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE
		   attempts = VALUES(attempts),
		   first_attempt_at = VALUES(first_attempt_at),
		   locked_until = VALUES(locked_until),
		   expires_at = VALUES(expires_at)`,
		key, next.Count, next.FirstAttempt.UTC(), locked, next.ExpiresAt.UTC(),
	); err != nil {
		return Entry{}, fmt.Errorf("writing throttle entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("committing throttle tx: %w", err)
	}
	return next, nil
}

// Delete removes the row for key.
func (s *MariaDBStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM login_throttle WHERE id_hash = ?`, key,
	); err != nil {
		return fmt.Errorf("deleting throttle entry: %w", err)
	}
	return nil
}

// PurgeExpired deletes rows whose expiry has passed. Called periodically by
// the server so the table does not grow without bound.
func (s *MariaDBStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM login_throttle WHERE expires_at < UTC_TIMESTAMP()`,
	)
	if err != nil {
		return 0, fmt.Errorf("purging throttle entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// load returns nil, nil when the row does not exist.
func (s *MariaDBStore) load(ctx context.Context, q queryer, key string, forUpdate bool) (*Entry, error) {
	query := `SELECT attempts, first_attempt_at, locked_until, expires_at
	          FROM login_throttle WHERE id_hash = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	e := &Entry{}
	var locked sql.NullTime
	err := q.QueryRowContext(ctx, query, key).Scan(
		&e.Count, &e.FirstAttempt, &locked, &e.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading throttle entry: %w", err)
	}
	if locked.Valid {
		e.LockedUntil = locked.Time
	}
	return e, nil
}

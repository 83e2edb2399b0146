package throttle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces throttle hashes in a shared Redis.
const redisKeyPrefix = "throttle:"

// defaultRedisRetries bounds optimistic retries on WATCH conflicts. A
// transaction only fails when another writer committed to the same key, so
// N concurrent writers need at most N-1 retries each.
const defaultRedisRetries = 32

// Hash field names.
const (
	fieldCount  = "count"
	fieldFirst  = "first"
	fieldLocked = "locked"
	fieldExpiry = "exp"
)

// RedisStore keeps throttle entries as Redis hashes with a TTL matching the
// entry's expiry. Update uses WATCH/MULTI so concurrent failures from
// several app instances serialize per key.
type RedisStore struct {
	client  *redis.Client
	retries int
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, retries: defaultRedisRetries}
}

func (s *RedisStore) key(k string) string {
	return redisKeyPrefix + k
}

// Get loads the hash for key.
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	vals, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("loading throttle entry: %w", err)
	}
	e, err := decodeEntry(vals)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrNotFound
	}
	return e, nil
}

// Update runs fn inside an optimistic WATCH transaction, retrying when
// another writer touched the key between read and EXEC.
func (s *RedisStore) Update(ctx context.Context, key string, fn func(cur *Entry) Entry) (Entry, error) {
	rkey := s.key(key)
	var written Entry

	txf := func(tx *redis.Tx) error {
		vals, err := tx.HGetAll(ctx, rkey).Result()
		if err != nil {
			return err
		}
		cur, err := decodeEntry(vals)
		if err != nil {
			return err
		}

		next := fn(cur)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, rkey, encodeEntry(next))
			pipe.PExpireAt(ctx, rkey, next.ExpiresAt)
			return nil
		})
		if err != nil {
			return err
		}
		written = next
		return nil
	}

	for i := 0; i < s.retries; i++ {
		err := s.client.Watch(ctx, txf, rkey)
		if err == nil {
			return written, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return Entry{}, fmt.Errorf("updating throttle entry: %w", err)
	}
	return Entry{}, ErrContention
}

// Delete removes the hash for key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("deleting throttle entry: %w", err)
	}
	return nil
}

// encodeEntry flattens an entry into hash fields. Times are unix millis;
// zero LockedUntil is stored as 0.
func encodeEntry(e Entry) map[string]any {
	var locked int64
	if !e.LockedUntil.IsZero() {
		locked = e.LockedUntil.UnixMilli()
	}
	return map[string]any{
		fieldCount:  e.Count,
		fieldFirst:  e.FirstAttempt.UnixMilli(),
		fieldLocked: locked,
		fieldExpiry: e.ExpiresAt.UnixMilli(),
	}
}

// decodeEntry returns nil for an empty hash.
func decodeEntry(vals map[string]string) (*Entry, error) {
	if len(vals) == 0 {
		return nil, nil
	}

	count, err := strconv.Atoi(vals[fieldCount])
	if err != nil {
		return nil, fmt.Errorf("decoding throttle count: %w", err)
	}
	first, err := parseMillis(vals[fieldFirst])
	if err != nil {
		return nil, err
	}
	locked, err := parseMillis(vals[fieldLocked])
	if err != nil {
		return nil, err
	}
	exp, err := parseMillis(vals[fieldExpiry])
	if err != nil {
		return nil, err
	}

	return &Entry{Count: count, FirstAttempt: first, LockedUntil: locked, ExpiresAt: exp}, nil
}

// parseMillis turns a unix-millis string into a time. "0" and "" map to
// the zero time.
func parseMillis(s string) (time.Time, error) {
	if s == "" || s == "0" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("decoding throttle timestamp: %w", err)
	}
	return time.UnixMilli(ms), nil
}

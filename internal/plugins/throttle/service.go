package throttle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// keyNamespace is mixed into every identity hash so throttle keys cannot
// collide with hashes produced elsewhere from the same input.
const keyNamespace = "rollcall:throttle:"

// Key returns the store key for a client identity: hex SHA-256 of the
// namespaced identity. Raw identities never reach the store.
func Key(identity string) string {
	sum := sha256.Sum256([]byte(keyNamespace + identity))
	return hex.EncodeToString(sum[:])
}

// ThrottleService decides whether an identity may attempt a login and
// records failures. Every error is returned to the caller, which must treat
// it as "deny".
type ThrottleService interface {
	Check(ctx context.Context, identity string) (Status, error)
	RegisterFailure(ctx context.Context, identity string) (Status, error)
	Reset(ctx context.Context, identity string) error
}

// throttleService implements ThrottleService on top of a Store.
type throttleService struct {
	store  Store
	policy Policy
	now    func() time.Time
}

// NewThrottleService creates a throttle service. A zero-valued policy field
// falls back to DefaultPolicy.
func NewThrottleService(store Store, policy Policy) ThrottleService {
	def := DefaultPolicy()
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.Window <= 0 {
		policy.Window = def.Window
	}
	if policy.Lockout <= 0 {
		policy.Lockout = def.Lockout
	}
	return &throttleService{store: store, policy: policy, now: time.Now}
}

// WithClock overrides the time source. Used by tests.
func WithClock(svc ThrottleService, now func() time.Time) ThrottleService {
	if s, ok := svc.(*throttleService); ok {
		s.now = now
	}
	return svc
}

// Check reports whether identity is currently locked. It never mutates
// state.
func (s *throttleService) Check(ctx context.Context, identity string) (Status, error) {
	e, err := s.store.Get(ctx, Key(identity))
	if errors.Is(err, ErrNotFound) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("checking throttle: %w", err)
	}
	return s.policy.statusOf(e, s.now()), nil
}

// RegisterFailure counts one failed attempt and returns the resulting
// status. The failure that reaches MaxAttempts sets the lock, so that
// attempt's caller already sees Blocked.
func (s *throttleService) RegisterFailure(ctx context.Context, identity string) (Status, error) {
	now := s.now()
	e, err := s.store.Update(ctx, Key(identity), func(cur *Entry) Entry {
		return s.policy.next(cur, now)
	})
	if err != nil {
		return Status{}, fmt.Errorf("registering failure: %w", err)
	}

	st := s.policy.statusOf(&e, now)
	if st.Blocked && e.Count == s.policy.MaxAttempts {
		slog.Warn("login identity locked",
			slog.String("key", Key(identity)[:12]),
			slog.Int("attempts", e.Count),
			slog.Time("locked_until", e.LockedUntil),
		)
	}
	return st, nil
}

// Reset clears all state for identity. Called after a successful login.
func (s *throttleService) Reset(ctx context.Context, identity string) error {
	if err := s.store.Delete(ctx, Key(identity)); err != nil {
		return fmt.Errorf("resetting throttle: %w", err)
	}
	return nil
}

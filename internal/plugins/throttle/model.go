// Package throttle tracks failed login attempts per client network identity
// and locks an identity out after too many failures inside a short window.
//
// State per identity moves Clean -> Accumulating -> Locked. The accumulation
// window and the lockout duration are separate: a burst of failures inside
// the window earns a cooldown that is much longer than the window itself.
//
// Identities are hashed before they reach a Store, so raw client IPs are
// never persisted.
package throttle

import (
	"math"
	"time"
)

// Entry is the persisted throttle state for one hashed identity.
type Entry struct {
	// Count is the number of failures in the current window.
	Count int `json:"count"`

	// FirstAttempt starts the current accumulation window.
	FirstAttempt time.Time `json:"first_attempt"`

	// LockedUntil is zero unless the identity has been locked.
	LockedUntil time.Time `json:"locked_until,omitempty"`

	// ExpiresAt is when the entry stops mattering: the later of window end
	// and lock end. Stores use it for TTLs and cleanup.
	ExpiresAt time.Time `json:"expires_at"`
}

// Locked reports whether the lock is active at now.
func (e *Entry) Locked(now time.Time) bool {
	return now.Before(e.LockedUntil)
}

// lockElapsed reports whether a lock was set and has since run out.
func (e *Entry) lockElapsed(now time.Time) bool {
	return !e.LockedUntil.IsZero() && !now.Before(e.LockedUntil)
}

// Policy holds the throttle thresholds.
type Policy struct {
	// MaxAttempts is the failure count that triggers a lock.
	MaxAttempts int

	// Window is how long failures accumulate before the count resets.
	Window time.Duration

	// Lockout is measured from the moment of locking, not from window start.
	Lockout time.Duration
}

// DefaultPolicy returns 5 failures per 5 minutes, then a 15 minute lock.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		Window:      5 * time.Minute,
		Lockout:     15 * time.Minute,
	}
}

// windowElapsed reports whether the accumulation window of e is over.
func (p Policy) windowElapsed(e *Entry, now time.Time) bool {
	return now.Sub(e.FirstAttempt) > p.Window
}

// next computes the entry after one more failure at now. It is the single
// transition function shared by every Store, which runs it under its own
// per-key atomicity.
func (p Policy) next(cur *Entry, now time.Time) Entry {
	var e Entry
	switch {
	case cur == nil, cur.lockElapsed(now), !cur.Locked(now) && p.windowElapsed(cur, now):
		e = Entry{Count: 1, FirstAttempt: now}
	default:
		e = *cur
		e.Count++
	}

	if e.Count >= p.MaxAttempts && !e.Locked(now) {
		e.LockedUntil = now.Add(p.Lockout)
	}

	e.ExpiresAt = e.FirstAttempt.Add(p.Window)
	if e.LockedUntil.After(e.ExpiresAt) {
		e.ExpiresAt = e.LockedUntil
	}
	return e
}

// Status is the answer to "may this identity try again right now?".
type Status struct {
	// Blocked is true while a lock is active.
	Blocked bool

	// Attempts is the failure count in the live window (0 when Clean).
	Attempts int

	// RetryAfter is the time left on the lock. Zero when not blocked.
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1 while
// blocked, so clients never see "retry after 0".
func (s Status) RetryAfterSeconds() int {
	if !s.Blocked {
		return 0
	}
	secs := int(math.Ceil(s.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// statusOf derives a Status from a stored entry.
func (p Policy) statusOf(e *Entry, now time.Time) Status {
	if e == nil {
		return Status{}
	}
	if e.Locked(now) {
		return Status{Blocked: true, Attempts: e.Count, RetryAfter: e.LockedUntil.Sub(now)}
	}
	if e.lockElapsed(now) || p.windowElapsed(e, now) {
		return Status{}
	}
	return Status{Attempts: e.Count}
}

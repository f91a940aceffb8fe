// Package ratelimit counts failed credential attempts per key and locks the key
// out once a policy's ceiling is reached.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mise.app/internal/obs"
	"mise.app/internal/outcome"
)

// Policy bounds attempts for one credential flow.
type Policy struct {
	Name            string
	MaxAttempts     int
	LockoutDuration time.Duration
}

var (
	StaffPinPolicy      = Policy{Name: "staff_pin", MaxAttempts: 3, LockoutDuration: 15 * time.Minute}
	BusinessLoginPolicy = Policy{Name: "business_login", MaxAttempts: 3, LockoutDuration: 15 * time.Minute}
	AdminPinPolicy      = Policy{Name: "admin_pin", MaxAttempts: 5, LockoutDuration: 30 * time.Minute}
)

// Record is the persisted failure counter for one key.
type Record struct {
	Count       int
	LastAttempt time.Time
}

// Store persists records. Increment must be atomic per key and must start a
// fresh record when the existing one is older than ttl.
type Store interface {
	Get(ctx context.Context, key string) (Record, bool, error)
	Increment(ctx context.Context, key string, now time.Time, ttl time.Duration) (Record, error)
	Delete(ctx context.Context, key string) error
}

// Decision is the limiter's verdict for a key.
type Decision struct {
	Allowed           bool
	RemainingAttempts int
	LockoutRemaining  time.Duration
}

// Err converts a denied decision into a RateLimited outcome.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return outcome.RateLimited(d.LockoutRemaining)
}

// Limiter applies one Policy over a Store.
type Limiter struct {
	policy Policy
	store  Store
	now    func() time.Time
}

// Option configures Limiter.
type Option func(*Limiter)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.now = fn
		}
	}
}

func New(policy Policy, store Store, opts ...Option) *Limiter {
	l := &Limiter{policy: policy, store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) Policy() Policy { return l.policy }

// Key namespaces identifier under the policy name.
func (l *Limiter) Key(identifier string) string {
	return l.policy.Name + ":" + strings.TrimSpace(identifier)
}

// Check reports whether another attempt is allowed for identifier. Store
// failures deny the attempt.
func (l *Limiter) Check(ctx context.Context, identifier string) (Decision, error) {
	key := l.Key(identifier)
	rec, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return Decision{}, outcome.Internal(fmt.Errorf("ratelimit get %s: %w", l.policy.Name, err))
	}
	if !ok {
		return Decision{Allowed: true, RemainingAttempts: l.policy.MaxAttempts}, nil
	}
	elapsed := l.now().Sub(rec.LastAttempt)
	if elapsed >= l.policy.LockoutDuration {
		if err := l.store.Delete(ctx, key); err != nil {
			return Decision{}, outcome.Internal(fmt.Errorf("ratelimit reset %s: %w", l.policy.Name, err))
		}
		return Decision{Allowed: true, RemainingAttempts: l.policy.MaxAttempts}, nil
	}
	if rec.Count >= l.policy.MaxAttempts {
		return Decision{Allowed: false, LockoutRemaining: l.policy.LockoutDuration - elapsed}, nil
	}
	return Decision{Allowed: true, RemainingAttempts: l.policy.MaxAttempts - rec.Count}, nil
}

// Attempt is one counted attempt at a credential.
type Attempt struct {
	Decision
	count int
}

// Reserve counts an attempt for identifier before the credential is checked.
// Only attempts within the ceiling are allowed to verify, so parallel requests
// cannot each get a guess while the counter still reads low. A key that is
// already locked is denied without being counted again.
func (l *Limiter) Reserve(ctx context.Context, identifier string) (Attempt, error) {
	key := l.Key(identifier)
	now := l.now()
	rec, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return Attempt{}, outcome.Internal(fmt.Errorf("ratelimit get %s: %w", l.policy.Name, err))
	}
	if ok {
		elapsed := now.Sub(rec.LastAttempt)
		if elapsed < l.policy.LockoutDuration && rec.Count >= l.policy.MaxAttempts {
			return Attempt{Decision: Decision{LockoutRemaining: l.policy.LockoutDuration - elapsed}}, nil
		}
	}
	rec, err = l.store.Increment(ctx, key, now, l.policy.LockoutDuration)
	if err != nil {
		return Attempt{}, outcome.Internal(fmt.Errorf("ratelimit increment %s: %w", l.policy.Name, err))
	}
	if rec.Count > l.policy.MaxAttempts {
		return Attempt{Decision: Decision{LockoutRemaining: l.policy.LockoutDuration}}, nil
	}
	return Attempt{
		Decision: Decision{Allowed: true, RemainingAttempts: l.policy.MaxAttempts - rec.Count + 1},
		count:    rec.Count,
	}, nil
}

// Failed settles a reserved attempt whose credential did not verify. The
// attempt is already counted; the decision is not allowed once it reached the
// ceiling.
func (l *Limiter) Failed(a Attempt) Decision {
	return l.failure(a.count)
}

func (l *Limiter) failure(count int) Decision {
	obs.RateLimitFailures.WithLabelValues(l.policy.Name).Inc()
	if count >= l.policy.MaxAttempts {
		if count == l.policy.MaxAttempts {
			obs.Lockouts.WithLabelValues(l.policy.Name).Inc()
		}
		return Decision{Allowed: false, LockoutRemaining: l.policy.LockoutDuration}
	}
	return Decision{Allowed: true, RemainingAttempts: l.policy.MaxAttempts - count}
}

// Clear forgets identifier after a successful attempt.
func (l *Limiter) Clear(ctx context.Context, identifier string) error {
	if err := l.store.Delete(ctx, l.Key(identifier)); err != nil {
		return outcome.Internal(fmt.Errorf("ratelimit clear %s: %w", l.policy.Name, err))
	}
	return nil
}

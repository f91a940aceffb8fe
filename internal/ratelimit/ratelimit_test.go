package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mise.app/internal/outcome"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 2, 3, 18, 0, 0, 0, time.UTC)}
}

// fail spends one attempt on a wrong credential.
func fail(t *testing.T, l *Limiter, id string) Decision {
	t.Helper()
	a, err := l.Reserve(context.Background(), id)
	require.NoError(t, err)
	require.True(t, a.Allowed, "attempt should be cleared to verify")
	return l.Failed(a)
}

func TestLockoutAfterCeiling(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	l := New(StaffPinPolicy, NewMemoryStore(), WithClock(clock.Now))

	for i := 1; i <= 2; i++ {
		d := fail(t, l, "staff-1-signin")
		require.True(t, d.Allowed)
		require.Equal(t, 3-i, d.RemainingAttempts)
	}
	d := fail(t, l, "staff-1-signin")
	require.False(t, d.Allowed, "third failure reaches the ceiling")

	clock.Advance(time.Minute)
	d, err := l.Check(ctx, "staff-1-signin")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, 14*time.Minute, d.LockoutRemaining)

	var oe *outcome.Error
	require.True(t, errors.As(d.Err(), &oe))
	require.Equal(t, outcome.KindRateLimited, oe.Kind)
	require.Equal(t, 14, oe.MinutesRemaining())
}

func TestWindowElapsedResets(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := NewMemoryStore()
	l := New(StaffPinPolicy, store, WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		fail(t, l, "k")
	}
	clock.Advance(15 * time.Minute)

	d, err := l.Check(ctx, "k")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, 3, d.RemainingAttempts)
	require.Equal(t, 0, store.Len(), "expired record removed on check")
}

func TestClearOnSuccess(t *testing.T) {
	ctx := context.Background()
	l := New(AdminPinPolicy, NewMemoryStore())

	fail(t, l, "owner-1")
	require.NoError(t, l.Clear(ctx, "owner-1"))

	d, err := l.Check(ctx, "owner-1")
	require.NoError(t, err)
	require.Equal(t, 5, d.RemainingAttempts)
}

func TestKeysAreNamespacedPerPolicy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	staff := New(StaffPinPolicy, store)
	admin := New(AdminPinPolicy, store)

	for i := 0; i < 3; i++ {
		fail(t, staff, "same-id")
	}
	d, err := admin.Check(ctx, "same-id")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, "staff_pin:same-id", staff.Key("same-id"))
}

func TestConcurrentFailuresAreCounted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	policy := Policy{Name: "burst", MaxAttempts: 1000, LockoutDuration: time.Hour}
	l := New(policy, store)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if a, err := l.Reserve(ctx, "shared"); err == nil && a.Allowed {
				l.Failed(a)
			}
		}()
	}
	wg.Wait()

	rec, ok, err := store.Get(ctx, l.Key("shared"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 50, rec.Count)
}

func TestReserveCapsParallelAttempts(t *testing.T) {
	ctx := context.Background()
	l := New(StaffPinPolicy, NewMemoryStore())

	attempts := make([]Attempt, 30)
	errs := make([]error, 30)
	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			attempts[i], errs[i] = l.Reserve(ctx, "staff-9-signin")
		}(i)
	}
	wg.Wait()

	cleared := 0
	for i, a := range attempts {
		require.NoError(t, errs[i])
		if a.Allowed {
			cleared++
			continue
		}
		require.ErrorIs(t, a.Err(), outcome.ErrRateLimited)
	}
	require.Equal(t, StaffPinPolicy.MaxAttempts, cleared)
}

func TestReserveOnLockedKeyIsNotCounted(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := NewMemoryStore()
	l := New(StaffPinPolicy, store, WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		fail(t, l, "k")
	}
	clock.Advance(5 * time.Minute)
	a, err := l.Reserve(ctx, "k")
	require.NoError(t, err)
	require.False(t, a.Allowed)
	require.Equal(t, 10*time.Minute, a.LockoutRemaining)

	rec, _, err := store.Get(ctx, l.Key("k"))
	require.NoError(t, err)
	require.Equal(t, 3, rec.Count)
	require.Equal(t, clock.Now().Add(-5*time.Minute), rec.LastAttempt, "lockout window is not extended")

	clock.Advance(10 * time.Minute)
	a, err = l.Reserve(ctx, "k")
	require.NoError(t, err)
	require.True(t, a.Allowed, "window elapsed")
	require.Equal(t, 3, a.RemainingAttempts)
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (Record, bool, error) {
	return Record{}, false, errors.New("store down")
}
func (failingStore) Increment(context.Context, string, time.Time, time.Duration) (Record, error) {
	return Record{}, errors.New("store down")
}
func (failingStore) Delete(context.Context, string) error { return errors.New("store down") }

func TestStoreErrorsFailClosed(t *testing.T) {
	l := New(StaffPinPolicy, failingStore{})
	d, err := l.Check(context.Background(), "x")
	require.ErrorIs(t, err, outcome.ErrInternal)
	require.False(t, d.Allowed)

	a, err := l.Reserve(context.Background(), "x")
	require.ErrorIs(t, err, outcome.ErrInternal)
	require.False(t, a.Allowed)
}

func TestSweepDropsExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()
	_, err := store.Increment(ctx, "a", now, time.Minute)
	require.NoError(t, err)
	_, err = store.Increment(ctx, "b", now, time.Hour)
	require.NoError(t, err)

	require.Equal(t, 1, store.Sweep(now.Add(2*time.Minute)))
	require.Equal(t, 1, store.Len())
}

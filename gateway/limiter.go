package gateway

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultMaxAttempts   = 5
	DefaultAttemptWindow = 15 * time.Minute
)

// Attempt is a login attempt reserved against an identifier's failure window.
type Attempt struct {
	Key string
	ID  string
	At  time.Time
}

// AttemptLimiter counts consecutive failed logins per normalized identifier
// over a rolling window. Attempts still waiting on the authority count
// against the limit, so concurrent submissions cannot overrun it.
type AttemptLimiter interface {
	// Reserve claims an attempt for key at now. When the key is locked out
	// nothing is reserved and retryAfter says how long until a slot frees.
	Reserve(ctx context.Context, key string, now time.Time) (a Attempt, retryAfter time.Duration, limited bool, err error)
	// Fail keeps a reserved attempt as a counted failure.
	Fail(ctx context.Context, a Attempt) error
	// Release gives back a reserved attempt that did not fail.
	Release(ctx context.Context, a Attempt) error
	// Reset forgets every failure and reservation for key.
	Reset(ctx context.Context, key string) error
}

type attemptEntry struct {
	id string
	at time.Time
}

// MemoryLimiter is an in-process AttemptLimiter.
type MemoryLimiter struct {
	mu       sync.Mutex
	max      int
	window   time.Duration
	attempts map[string][]attemptEntry
}

var _ AttemptLimiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter locks a key out after max failures within window.
// Non-positive arguments fall back to the defaults.
func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	if max <= 0 {
		max = DefaultMaxAttempts
	}
	if window <= 0 {
		window = DefaultAttemptWindow
	}
	return &MemoryLimiter{
		max:      max,
		window:   window,
		attempts: make(map[string][]attemptEntry),
	}
}

func (l *MemoryLimiter) Reserve(_ context.Context, key string, now time.Time) (Attempt, time.Duration, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.pruneLocked(key, now)
	if len(entries) >= l.max {
		return Attempt{}, l.retryAfter(entries, now), true, nil
	}
	a := Attempt{Key: key, ID: uuid.NewString(), At: now}
	l.attempts[key] = append(entries, attemptEntry{id: a.ID, at: now})
	return a, 0, false, nil
}

func (l *MemoryLimiter) Fail(_ context.Context, a Attempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if slices.ContainsFunc(l.attempts[a.Key], func(e attemptEntry) bool { return e.id == a.ID }) {
		return nil
	}
	// a success reset the key while this attempt was in flight
	l.attempts[a.Key] = append(l.attempts[a.Key], attemptEntry{id: a.ID, at: a.At})
	return nil
}

func (l *MemoryLimiter) Release(_ context.Context, a Attempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := slices.DeleteFunc(l.attempts[a.Key], func(e attemptEntry) bool { return e.id == a.ID })
	if len(entries) == 0 {
		delete(l.attempts, a.Key)
		return nil
	}
	l.attempts[a.Key] = entries
	return nil
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, key)
	return nil
}

// pruneLocked drops attempts that have left the window.
func (l *MemoryLimiter) pruneLocked(key string, now time.Time) []attemptEntry {
	entries := slices.DeleteFunc(l.attempts[key], func(e attemptEntry) bool {
		return !e.at.Add(l.window).After(now)
	})
	if len(entries) == 0 {
		delete(l.attempts, key)
		return nil
	}
	l.attempts[key] = entries
	return entries
}

// retryAfter is how long until enough attempts age out to free one slot.
func (l *MemoryLimiter) retryAfter(entries []attemptEntry, now time.Time) time.Duration {
	times := make([]time.Time, len(entries))
	for i, e := range entries {
		times[i] = e.at
	}
	slices.SortFunc(times, time.Time.Compare)
	return times[len(times)-l.max].Add(l.window).Sub(now)
}

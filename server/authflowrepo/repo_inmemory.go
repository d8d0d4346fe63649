package authflowrepo

import (
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-wallet-web/internal/errors"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface.
// States older than the TTL are treated as missing and dropped on the next write.
type InMemoryRepo struct {
	mu      sync.RWMutex
	states  map[string]*AuthFlowState
	ttl     time.Duration
	nowTime func() time.Time
}

type Option func(*InMemoryRepo)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(r *InMemoryRepo) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithNowTime(nowTime func() time.Time) Option {
	return func(r *InMemoryRepo) {
		r.nowTime = nowTime
	}
}

// NewInMemoryRepo creates a new in-memory auth flow state repository
func NewInMemoryRepo(opts ...Option) *InMemoryRepo {
	r := &InMemoryRepo{
		states:  make(map[string]*AuthFlowState),
		ttl:     DefaultTTL,
		nowTime: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Upsert stores or updates an auth flow state
func (r *InMemoryRepo) Upsert(state string, authState *AuthFlowState) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if authState == nil {
		return errors.New("authState cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneLocked()
	copied := *authState
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = r.nowTime()
	}
	r.states[state] = &copied
	return nil
}

// Get retrieves an auth flow state by state parameter
func (r *InMemoryRepo) Get(state string) (*AuthFlowState, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	authState, exists := r.states[state]
	if !exists || r.expired(authState) {
		return nil, fmt.Errorf("[InMemoryRepo.Get] state: %w", apperrors.ErrNotFound)
	}

	// Return a copy to prevent external modifications
	copied := *authState
	return &copied, nil
}

// Delete removes an auth flow state
func (r *InMemoryRepo) Delete(state string) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.states, state)
	return nil
}

// Len returns the number of stored states, expired ones included.
func (r *InMemoryRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.states)
}

func (r *InMemoryRepo) expired(s *AuthFlowState) bool {
	return r.nowTime().Sub(s.CreatedAt) >= r.ttl
}

func (r *InMemoryRepo) pruneLocked() {
	for k, s := range r.states {
		if r.expired(s) {
			delete(r.states, k)
		}
	}
}

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Factory builds the store for a newly seen client id. It is expected to
// rehydrate the store when it is backed by a slot.
type Factory func(ctx context.Context, id string) (*Store, error)

type registryEntry struct {
	store    *Store
	lastSeen time.Time
}

// Registry holds one Store per client, keyed by an opaque client id.
type Registry struct {
	mu      sync.Mutex
	stores  map[string]*registryEntry
	factory Factory
	nowTime func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryNowTime sets the clock used for idle tracking.
func WithRegistryNowTime(nowTime func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.nowTime = nowTime
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(factory Factory, opts ...RegistryOption) *Registry {
	r := &Registry{
		stores:  make(map[string]*registryEntry),
		factory: factory,
		nowTime: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the store for id, building it on first use.
func (r *Registry) GetOrCreate(ctx context.Context, id string) (*Store, error) {
	if id == "" {
		return nil, fmt.Errorf("[Registry.GetOrCreate] id is required")
	}
	if s, ok := r.Get(id); ok {
		return s, nil
	}

	created, err := r.factory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("[Registry.GetOrCreate] factory: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.stores[id]; ok {
		// lost a race with another request for the same client
		created.Close()
		e.lastSeen = r.nowTime()
		return e.store, nil
	}
	r.stores[id] = &registryEntry{store: created, lastSeen: r.nowTime()}
	return created, nil
}

// Get returns the store for id if one is live and marks it as used.
func (r *Registry) Get(id string) (*Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.stores[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = r.nowTime()
	return e.store, true
}

// Touch marks id as used without returning its store.
func (r *Registry) Touch(id string) {
	r.Get(id)
}

// Remove closes and forgets the store for id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	e, ok := r.stores[id]
	delete(r.stores, id)
	r.mu.Unlock()
	if ok {
		e.store.Close()
	}
}

// Len returns the number of live stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// Sweep runs expiry detection on every live store and closes stores unused
// for longer than idle. A zero idle disables eviction.
func (r *Registry) Sweep(idle time.Duration) (expired, evicted int) {
	now := r.nowTime()
	var live, stale []*Store

	r.mu.Lock()
	for id, e := range r.stores {
		if idle > 0 && now.Sub(e.lastSeen) > idle {
			delete(r.stores, id)
			stale = append(stale, e.store)
			continue
		}
		live = append(live, e.store)
	}
	r.mu.Unlock()

	for _, s := range live {
		if s.Expire() {
			expired++
		}
	}
	for _, s := range stale {
		s.Close()
	}
	return expired, len(stale)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, evicted := r.Sweep(idle)
			if expired > 0 || evicted > 0 {
				log.Debug().Int("expired", expired).Int("evicted", evicted).Int("live", r.Len()).Msg("session sweep")
			}
		}
	}
}

// Close closes every live store.
func (r *Registry) Close() {
	r.mu.Lock()
	stores := r.stores
	r.stores = make(map[string]*registryEntry)
	r.mu.Unlock()
	for _, e := range stores {
		e.store.Close()
	}
}

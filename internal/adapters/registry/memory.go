// Package registry provides dataset registry adapters.
// Clean Architecture: Adapter implementing ports.DatasetRegistry.
// Datasets live in process memory only; durable context goes through ports.MetaStore.
package registry

import (
	"sync"
	"time"

	"github.com/0xcro3dile/datachat-go/internal/domain/entities"
)

// Defaults for session lifetime and count.
const (
	DefaultTTL      = 24 * time.Hour
	DefaultCapacity = 100
)

type entry struct {
	ds   *entities.Dataset
	meta entities.DatasetMeta
	seq  uint64 // insert order, breaks load-time ties on eviction
}

// InMemoryRegistry maps session ids to datasets with lazy TTL expiry and a
// capacity bound. One mutex guards every operation, so eviction and expiry
// are atomic with respect to readers.
type InMemoryRegistry struct {
	mu       sync.Mutex
	entries  map[string]*entry
	seq      uint64
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

// Option configures an InMemoryRegistry.
type Option func(*InMemoryRegistry)

// WithTTL sets how long an entry lives after load. Non-positive means DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(r *InMemoryRegistry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithCapacity bounds the number of sessions. Non-positive means DefaultCapacity.
func WithCapacity(n int) Option {
	return func(r *InMemoryRegistry) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *InMemoryRegistry) { r.now = now }
}

// NewInMemoryRegistry creates an empty registry.
func NewInMemoryRegistry(opts ...Option) *InMemoryRegistry {
	r := &InMemoryRegistry{
		entries:  make(map[string]*entry),
		ttl:      DefaultTTL,
		capacity: DefaultCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// live returns the entry for session, dropping it if expired. Caller holds mu.
func (r *InMemoryRegistry) live(session string) (*entry, bool) {
	e, ok := r.entries[session]
	if !ok {
		return nil, false
	}
	if r.now().Sub(e.meta.LoadedAt) > r.ttl {
		delete(r.entries, session)
		return nil, false
	}
	return e, true
}

// Has reports whether session has a live dataset.
func (r *InMemoryRegistry) Has(session string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.live(session)
	return ok
}

// Get returns the session's dataset.
func (r *InMemoryRegistry) Get(session string) (*entities.Dataset, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.live(session)
	if !ok {
		return nil, false
	}
	return e.ds, true
}

// GetMeta returns the session's metadata.
func (r *InMemoryRegistry) GetMeta(session string) (entities.DatasetMeta, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.live(session)
	if !ok {
		return entities.DatasetMeta{}, false
	}
	return e.meta, true
}

// Lookup returns the dataset and its metadata under one lock.
func (r *InMemoryRegistry) Lookup(session string) (*entities.Dataset, entities.DatasetMeta, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.live(session)
	if !ok {
		return nil, entities.DatasetMeta{}, false
	}
	return e.ds, e.meta, true
}

// Put stores ds for session, replacing any previous entry and resetting its
// TTL. When the registry is over capacity the oldest entry is evicted.
func (r *InMemoryRegistry) Put(session string, ds *entities.Dataset, origin string, columns []string, dtypes map[string]string) entities.DatasetMeta {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta := entities.DatasetMeta{
		Origin:   origin,
		Columns:  append([]string(nil), columns...),
		DTypes:   make(map[string]string, len(dtypes)),
		Rows:     ds.NumRows(),
		LoadedAt: r.now(),
	}
	for k, v := range dtypes {
		meta.DTypes[k] = v
	}

	r.seq++
	r.entries[session] = &entry{ds: ds, meta: meta, seq: r.seq}

	for len(r.entries) > r.capacity {
		r.evictOldest()
	}
	return meta
}

// evictOldest drops the entry with the earliest load time. Caller holds mu.
func (r *InMemoryRegistry) evictOldest() {
	var (
		oldest string
		victim *entry
	)
	for session, e := range r.entries {
		if victim == nil ||
			e.meta.LoadedAt.Before(victim.meta.LoadedAt) ||
			(e.meta.LoadedAt.Equal(victim.meta.LoadedAt) && e.seq < victim.seq) {
			oldest, victim = session, e
		}
	}
	if victim != nil {
		delete(r.entries, oldest)
	}
}

// Remove deletes a session's entry.
func (r *InMemoryRegistry) Remove(session string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, session)
}

// Clear removes all data from the registry.
func (r *InMemoryRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*entry)
}

// Len returns the number of live entries. Expired entries found along the way are dropped.
func (r *InMemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for session := range r.entries {
		r.live(session)
	}
	return len(r.entries)
}

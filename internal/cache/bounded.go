// Package cache provides the bounded in-process key-value store shared by the
// score cache and the trace cache.
package cache

import (
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultEvictFraction is the share of entries dropped when the cache is full.
const DefaultEvictFraction = 0.10

// Bounded is a TTL cache with a soft capacity. When an insert would exceed the
// capacity, roughly the oldest tenth of the entries is removed first. Age is
// taken from each entry's expiration timestamp, which all entries share the
// same TTL for, so eviction approximates insertion order. It is not LRU.
type Bounded[V any] struct {
	store    *gocache.Cache
	capacity int
	ttl      time.Duration
	fraction float64
	// evictMu serializes capacity checks so two writers cannot both evict.
	evictMu sync.Mutex
	onEvict func(n int)
}

// Option configures a Bounded cache.
type Option func(*options)

type options struct {
	fraction float64
	onEvict  func(n int)
}

// WithEvictFraction overrides the share of entries evicted at capacity.
func WithEvictFraction(f float64) Option {
	return func(o *options) {
		if f > 0 && f <= 1 {
			o.fraction = f
		}
	}
}

// WithEvictHook registers a callback receiving the number of evicted entries.
func WithEvictHook(fn func(n int)) Option {
	return func(o *options) { o.onEvict = fn }
}

// New creates a bounded cache. ttl <= 0 means entries never expire.
func New[V any](capacity int, ttl time.Duration, opts ...Option) *Bounded[V] {
	o := options{fraction: DefaultEvictFraction}
	for _, opt := range opts {
		opt(&o)
	}
	if capacity < 1 {
		capacity = 1
	}

	exp := ttl
	cleanup := ttl
	if ttl <= 0 {
		exp = gocache.NoExpiration
		cleanup = 0
	}

	return &Bounded[V]{
		store:    gocache.New(exp, cleanup),
		capacity: capacity,
		ttl:      ttl,
		fraction: o.fraction,
		onEvict:  o.onEvict,
	}
}

// Get returns a cached value.
func (b *Bounded[V]) Get(key string) (V, bool) {
	var zero V
	raw, ok := b.store.Get(key)
	if !ok {
		return zero, false
	}
	v, ok := raw.(V)
	if !ok {
		return zero, false
	}
	return v, true
}

// Set stores a value, evicting old entries first if the cache is full.
func (b *Bounded[V]) Set(key string, value V) {
	b.evictMu.Lock()
	if _, exists := b.store.Get(key); !exists && b.store.ItemCount() >= b.capacity {
		b.evictOldest()
	}
	b.store.Set(key, value, gocache.DefaultExpiration)
	b.evictMu.Unlock()
}

// Delete removes a key.
func (b *Bounded[V]) Delete(key string) {
	b.store.Delete(key)
}

// Len returns the number of entries, possibly including expired ones not yet purged.
func (b *Bounded[V]) Len() int {
	return b.store.ItemCount()
}

// Capacity returns the configured soft capacity.
func (b *Bounded[V]) Capacity() int { return b.capacity }

// Flush drops every entry.
func (b *Bounded[V]) Flush() {
	b.store.Flush()
}

// evictOldest removes ceil(fraction*capacity) entries with the earliest expiration.
// Entries without expiration compare equal, so order among them is arbitrary.
func (b *Bounded[V]) evictOldest() {
	items := b.store.Items()
	if len(items) == 0 {
		return
	}

	n := int(float64(b.capacity)*b.fraction + 0.999)
	if n < 1 {
		n = 1
	}
	if n > len(items) {
		n = len(items)
	}

	type aged struct {
		key string
		exp int64
	}
	entries := make([]aged, 0, len(items))
	for k, it := range items {
		entries = append(entries, aged{key: k, exp: it.Expiration})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].exp < entries[j].exp })

	for _, e := range entries[:n] {
		b.store.Delete(e.key)
	}
	if b.onEvict != nil {
		b.onEvict(n)
	}
}

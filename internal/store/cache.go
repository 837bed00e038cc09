package store

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const (
	// DefaultCapacity bounds the number of cached entities per repository.
	DefaultCapacity = 1000
	// DefaultTTL is measured from the last write; reads do not extend it.
	DefaultTTL = 5 * time.Minute
)

// EvictionCause tells why an entry left the cache.
type EvictionCause int

const (
	// CauseRemoved covers explicit deletes and clears.
	CauseRemoved EvictionCause = iota
	// CauseCapacity is eviction under capacity pressure.
	CauseCapacity
	// CauseExpired is eviction after the entry outlived its TTL.
	CauseExpired
)

func (c EvictionCause) String() string {
	switch c {
	case CauseCapacity:
		return "capacity"
	case CauseExpired:
		return "expired"
	default:
		return "removed"
	}
}

// WritesBack reports whether the evicted value must be persisted.
func (c EvictionCause) WritesBack() bool {
	return c == CauseCapacity || c == CauseExpired
}

// CacheConfig bounds a Cache. Zero fields take the defaults.
type CacheConfig struct {
	Capacity uint64
	TTL      time.Duration
}

func (c CacheConfig) withDefaults() CacheConfig {
	if c.Capacity == 0 {
		c.Capacity = DefaultCapacity
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	return c
}

// EvictionFunc observes every eviction together with its cause.
type EvictionFunc[K comparable, V any] func(key K, value V, cause EvictionCause)

// Cache is a capacity-bounded, time-expiring map safe for concurrent use.
type Cache[K comparable, V any] struct {
	items   *ttlcache.Cache[K, V]
	onEvict EvictionFunc[K, V]
	sweep   time.Duration

	// handled counts eviction callbacks that have returned.
	evictMu sync.Mutex
	evicted *sync.Cond
	handled uint64

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewCache builds a cache that reports evictions to onEvict.
func NewCache[K comparable, V any](cfg CacheConfig, onEvict EvictionFunc[K, V]) *Cache[K, V] {
	cfg = cfg.withDefaults()
	items := ttlcache.New[K, V](
		ttlcache.WithCapacity[K, V](cfg.Capacity),
		ttlcache.WithTTL[K, V](cfg.TTL),
		ttlcache.WithDisableTouchOnHit[K, V](),
	)
	c := &Cache[K, V]{items: items, onEvict: onEvict, sweep: sweepInterval(cfg.TTL)}
	c.evicted = sync.NewCond(&c.evictMu)
	items.OnEviction(c.dispatch)
	return c
}

func sweepInterval(ttl time.Duration) time.Duration {
	return min(max(ttl/4, 10*time.Millisecond), time.Minute)
}

func (c *Cache[K, V]) dispatch(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[K, V]) {
	defer func() {
		c.evictMu.Lock()
		c.handled++
		c.evicted.Broadcast()
		c.evictMu.Unlock()
	}()
	if c.onEvict != nil {
		c.onEvict(item.Key(), item.Value(), causeOf(reason))
	}
}

// settle blocks until every eviction counted so far has been reported to
// onEvict. ttlcache runs eviction callbacks on their own goroutines.
func (c *Cache[K, V]) settle() {
	target := c.items.Metrics().Evictions
	c.evictMu.Lock()
	for c.handled < target {
		c.evicted.Wait()
	}
	c.evictMu.Unlock()
}

func causeOf(reason ttlcache.EvictionReason) EvictionCause {
	switch reason {
	case ttlcache.EvictionReasonCapacityReached:
		return CauseCapacity
	case ttlcache.EvictionReasonExpired:
		return CauseExpired
	default:
		return CauseRemoved
	}
}

// Get returns the live value for key. A miss first reaps expired entries and
// returns once their eviction has been reported, so a write-back is always
// dispatched before the caller reloads from the store.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	if item := c.items.Get(key); item != nil {
		return item.Value(), true
	}
	c.ReapExpired()
	var zero V
	return zero, false
}

// Set stores value under key and restarts its TTL. ttlcache overwrites an
// expired entry in place, so expired entries are reaped first. Set returns
// once any capacity eviction it caused has been reported.
func (c *Cache[K, V]) Set(key K, value V) {
	c.ReapExpired()
	c.items.Set(key, value, ttlcache.DefaultTTL)
	c.settle()
}

// SetIfAbsent stores value unless key is already cached, and returns the
// value that ends up cached.
func (c *Cache[K, V]) SetIfAbsent(key K, value V) V {
	c.ReapExpired()
	item, _ := c.items.GetOrSet(key, value)
	c.settle()
	return item.Value()
}

// Delete removes key without triggering a write-back.
func (c *Cache[K, V]) Delete(key K) {
	c.items.Delete(key)
	c.settle()
}

// Clear removes every entry without triggering write-backs.
func (c *Cache[K, V]) Clear() {
	c.items.DeleteAll()
	c.settle()
}

// ReapExpired evicts every expired entry now and waits until the evictions
// have been reported.
func (c *Cache[K, V]) ReapExpired() {
	c.items.DeleteExpired()
	c.settle()
}

// Values returns a snapshot of the unexpired cached values.
func (c *Cache[K, V]) Values() []V {
	items := c.items.Items()
	values := make([]V, 0, len(items))
	for _, item := range items {
		if item.IsExpired() {
			continue
		}
		values = append(values, item.Value())
	}
	return values
}

// Len reports the number of unexpired entries.
func (c *Cache[K, V]) Len() int {
	return c.items.Len()
}

// Start runs the expiry janitor in the background.
func (c *Cache[K, V]) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return
	}
	c.stop, c.done = make(chan struct{}), make(chan struct{})
	go c.janitor(c.stop, c.done)
}

func (c *Cache[K, V]) janitor(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.ReapExpired()
		}
	}
}

// Stop ends the expiry janitor and returns once no sweep is in flight. It is
// a no-op when the janitor is not running.
func (c *Cache[K, V]) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop == nil {
		return
	}
	close(c.stop)
	<-c.done
	c.stop, c.done = nil, nil
	c.settle()
}

package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics counts entity cache activity per cache name.
type CacheMetrics struct {
	lookups    *prometheus.CounterVec
	evictions  *prometheus.CounterVec
	writeBacks *prometheus.CounterVec
}

var (
	defaultCacheOnce    sync.Once
	defaultCacheMetrics *CacheMetrics
)

// NewCacheMetrics registers the cache collectors. A nil registerer uses the
// process-wide default registerer, registered once.
func NewCacheMetrics(registerer prometheus.Registerer) *CacheMetrics {
	if registerer == nil {
		defaultCacheOnce.Do(func() {
			defaultCacheMetrics = buildCacheMetrics(prometheus.DefaultRegisterer)
		})
		return defaultCacheMetrics
	}
	return buildCacheMetrics(registerer)
}

// Hit records a lookup served from memory.
func (m *CacheMetrics) Hit(cache string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(cache, "hit").Inc()
}

// Miss records a lookup that fell through to the store.
func (m *CacheMetrics) Miss(cache string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(cache, "miss").Inc()
}

// Evicted records an eviction and its cause.
func (m *CacheMetrics) Evicted(cache, cause string) {
	if m == nil {
		return
	}
	m.evictions.WithLabelValues(cache, cause).Inc()
}

// WroteBack records the outcome of a write-back triggered by eviction.
func (m *CacheMetrics) WroteBack(cache string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.writeBacks.WithLabelValues(cache, status).Inc()
}

func buildCacheMetrics(registerer prometheus.Registerer) *CacheMetrics {
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moneta_cache_lookups_total",
		Help: "Entity cache lookups partitioned by cache and result.",
	}, []string{"cache", "result"})
	evictions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moneta_cache_evictions_total",
		Help: "Entity cache evictions partitioned by cache and cause.",
	}, []string{"cache", "cause"})
	writeBacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moneta_cache_write_backs_total",
		Help: "Write-backs triggered by capacity or expiry evictions.",
	}, []string{"cache", "status"})
	registerer.MustRegister(lookups, evictions, writeBacks)
	return &CacheMetrics{lookups: lookups, evictions: evictions, writeBacks: writeBacks}
}

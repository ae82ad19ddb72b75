// Package prommetrics implements herdcache.MetricSink over
// github.com/prometheus/client_golang/prometheus, the metrics dependency
// the retrieval pack's other cache-client repos reach for.
package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink records cache hit/miss counts, named counters and named durations
// against a CounterVec/HistogramVec keyed by the stable metric-name
// strings herdcache uses (§6).
type Sink struct {
	hits      *prometheus.CounterVec
	misses    *prometheus.CounterVec
	counters  *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// New registers and returns a Sink on reg. Pass prometheus.DefaultRegisterer
// to use the global registry.
func New(reg prometheus.Registerer, namespace string) *Sink {
	s := &Sink{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Number of cache hits, by cache type.",
		}, []string{"cache_type"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Number of cache misses, by cache type.",
		}, []string{"cache_type"}),
		counters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_events_total",
			Help:      "Named cache counters (writes, compute successes/failures).",
		}, []string{"name"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_duration_seconds",
			Help:      "Named cache durations (compute time, etc).",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name"}),
	}
	reg.MustRegister(s.hits, s.misses, s.counters, s.durations)
	return s
}

// CacheHit implements herdcache.MetricSink.
func (s *Sink) CacheHit(cacheType string) { s.hits.WithLabelValues(cacheType).Inc() }

// CacheMiss implements herdcache.MetricSink.
func (s *Sink) CacheMiss(cacheType string) { s.misses.WithLabelValues(cacheType).Inc() }

// IncrementCounter implements herdcache.MetricSink.
func (s *Sink) IncrementCounter(name string) { s.counters.WithLabelValues(name).Inc() }

// SetDuration implements herdcache.MetricSink.
func (s *Sink) SetDuration(name string, d time.Duration) {
	s.durations.WithLabelValues(name).Observe(d.Seconds())
}

// Package prom exports cache.Metrics signals as Prometheus metrics.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/arenacache/cache"
)

// Adapter implements cache.Metrics and exports Prometheus counters, gauges
// and histograms. Safe for concurrent use; all Prometheus metric types are
// goroutine-safe.
type Adapter struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evicts    *prometheus.CounterVec
	errors    *prometheus.CounterVec
	cycles    *prometheus.HistogramVec
	skipped   *prometheus.CounterVec
	entries   prometheus.Gauge
	used      prometheus.Gauge
	allocated prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels,
		})
	}
	counterVec := func(name, help, label string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels,
		}, []string{label})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels,
		})
	}

	a := &Adapter{
		hits:    counter("hits_total", "Cache hits"),
		misses:  counter("misses_total", "Cache misses, expired entries included"),
		evicts:  counterVec("evictions_total", "Cache evictions by reason", "reason"),
		errors:  counterVec("errors_total", "Failed cache operations by error kind", "kind"),
		skipped: counterVec("supervisor_skipped_total", "Supervisor ticks skipped after an overrun", "supervisor"),
		cycles: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "supervisor_cycle_seconds",
			Help:        "Duration of supervisor cycles",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"supervisor"}),
		entries:   gauge("entries", "Number of stored entries"),
		used:      gauge("used_bytes", "Payload bytes held by entries"),
		allocated: gauge("allocated_bytes", "Bytes backed by reserved pages"),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.errors, a.cycles, a.skipped, a.entries, a.used, a.allocated)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r cache.EvictReason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

// Error increments the error counter with a kind label.
func (a *Adapter) Error(k cache.ErrKind) {
	a.errors.WithLabelValues(k.String()).Inc()
}

// Cycle observes a supervisor cycle, or counts a skipped tick.
func (a *Adapter) Cycle(k cache.SupervisorKind, took time.Duration, skipped bool) {
	if skipped {
		a.skipped.WithLabelValues(k.String()).Inc()
		return
	}
	a.cycles.WithLabelValues(k.String()).Observe(took.Seconds())
}

// Size updates gauges for the number of entries and byte usage.
func (a *Adapter) Size(entries int, usedBytes, allocatedBytes int64) {
	a.entries.Set(float64(entries))
	a.used.Set(float64(usedBytes))
	a.allocated.Set(float64(allocatedBytes))
}

// Compile-time check: ensure Adapter implements cache.Metrics.
var _ cache.Metrics = (*Adapter)(nil)

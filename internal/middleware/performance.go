package middleware

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"sker/internal/registry"
)

// PerformanceMetrics wraps the prometheus.Collectors the performance
// middleware records into, grouped so the application bootstrap can
// register them once against the default (or a dedicated) registry.
type PerformanceMetrics struct {
	Duration  *prometheus.HistogramVec
	MemoryAlloc *prometheus.HistogramVec
	Alerts    *prometheus.CounterVec
}

// NewPerformanceMetrics builds the collectors and registers them.
func NewPerformanceMetrics(reg prometheus.Registerer) *PerformanceMetrics {
	m := &PerformanceMetrics{
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sker",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Handler call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "name"}),
		MemoryAlloc: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sker",
			Subsystem: "dispatch",
			Name:      "memory_alloc_bytes",
			Help:      "Heap bytes allocated during a handler call.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}, []string{"kind", "name"}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sker",
			Subsystem: "dispatch",
			Name:      "performance_alerts_total",
			Help:      "Count of handler calls that crossed a configured performance threshold.",
		}, []string{"kind", "name", "reason"}),
	}
	reg.MustRegister(m.Duration, m.MemoryAlloc, m.Alerts)
	return m
}

// Thresholds configures when Performance raises an alert (§4.9
// "raise alerts on thresholds").
type Thresholds struct {
	MaxDuration time.Duration
	MaxAllocBytes uint64
}

// Performance records duration and memory-allocation samples per call
// and raises a counter-based alert when a threshold is crossed (§4.9).
func Performance(id string, priority int, metrics *PerformanceMetrics, thresholds Thresholds) registry.MiddlewareEntry {
	return registry.MiddlewareEntry{
		ID:       id,
		Priority: priority,
		Fn: func(ctx *registry.RequestContext, next func() (any, error)) (any, error) {
			var before runtime.MemStats
			runtime.ReadMemStats(&before)
			start := time.Now()

			result, err := next()

			elapsed := time.Since(start)
			var after runtime.MemStats
			runtime.ReadMemStats(&after)
			allocated := after.TotalAlloc - before.TotalAlloc

			labels := prometheus.Labels{"kind": string(ctx.RequestType), "name": ctx.MethodName}
			metrics.Duration.With(labels).Observe(elapsed.Seconds())
			metrics.MemoryAlloc.With(labels).Observe(float64(allocated))

			if thresholds.MaxDuration > 0 && elapsed > thresholds.MaxDuration {
				metrics.Alerts.WithLabelValues(string(ctx.RequestType), ctx.MethodName, "duration").Inc()
			}
			if thresholds.MaxAllocBytes > 0 && allocated > thresholds.MaxAllocBytes {
				metrics.Alerts.WithLabelValues(string(ctx.RequestType), ctx.MethodName, "memory").Inc()
			}

			return result, err
		},
	}
}

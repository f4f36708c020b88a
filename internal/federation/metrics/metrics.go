// Package metrics provides federation-specific metrics collection.
// It wraps Prometheus collectors to provide structured telemetry for module
// loads, instrumented calls, budgets, memory apportioning and the event bus.
package metrics

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Collector provides federation metrics collection.
type Collector struct {
	registry *prometheus.Registry

	// Load metrics
	moduleStatus     *prometheus.GaugeVec
	loadLatency      *prometheus.HistogramVec
	loadTotal        *prometheus.CounterVec
	cacheHits        *prometheus.CounterVec
	loadsInFlight    prometheus.Gauge
	preloadQueue     prometheus.Gauge
	dependencyMissed *prometheus.CounterVec

	// Call metrics
	callTotal   *prometheus.CounterVec
	callLatency *prometheus.HistogramVec
	slowCalls   *prometheus.CounterVec

	// Budget and resource metrics
	budgetViolations *prometheus.CounterVec
	memoryUsage      *prometheus.GaugeVec

	// Bus metrics
	busEmitTotal     *prometheus.CounterVec
	busRequestTotal  *prometheus.CounterVec
	busListenerPanic prometheus.Counter
}

// NewCollector creates a new federation metrics collector.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "federation"
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
	}

	c.moduleStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "module",
			Name:      "status",
			Help:      "Current registry status of module (0=initializing, 1=preloading, 2=ready, 3=error, 4=stopped)",
		},
		[]string{"module"},
	)

	c.loadLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "module",
			Name:      "load_duration_seconds",
			Help:      "Time taken to load a module, including dependency resolution",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"module", "priority", "result"},
	)

	c.loadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "module",
			Name:      "loads_total",
			Help:      "Total number of module load attempts",
		},
		[]string{"module", "result"},
	)

	c.cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "module",
			Name:      "cache_hits_total",
			Help:      "Total number of loads served from the monitor cache",
		},
		[]string{"module"},
	)

	c.loadsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "module",
			Name:      "loads_in_flight",
			Help:      "Current number of module loads in flight",
		},
	)

	c.preloadQueue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "preload",
			Name:      "pending",
			Help:      "Current number of modules waiting for an idle preload slot",
		},
	)

	c.dependencyMissed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dependency",
			Name:      "skipped_total",
			Help:      "Total number of dependencies skipped during load",
		},
		[]string{"module", "reason"},
	)

	c.callTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "call",
			Name:      "total",
			Help:      "Total number of instrumented module method calls",
		},
		[]string{"module", "method", "result"},
	)

	c.callLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "call",
			Name:      "duration_seconds",
			Help:      "Duration of instrumented module method calls",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
		[]string{"module", "method"},
	)

	c.slowCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "call",
			Name:      "slow_total",
			Help:      "Total number of calls exceeding the slow call threshold",
		},
		[]string{"module", "method"},
	)

	c.budgetViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "budget",
			Name:      "violations_total",
			Help:      "Total number of budget violations detected after loads",
		},
		[]string{"module", "metric", "severity"},
	)

	c.memoryUsage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "module",
			Name:      "memory_bytes",
			Help:      "Apportioned memory usage per loaded module (even split heuristic)",
		},
		[]string{"module"},
	)

	c.busEmitTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "emit_total",
			Help:      "Total number of events emitted on the bus",
		},
		[]string{"scope"},
	)

	c.busRequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "requests_total",
			Help:      "Total number of request/response round trips",
		},
		[]string{"result"},
	)

	c.busListenerPanic = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "listener_panics_total",
			Help:      "Total number of listener panics recovered by the bus",
		},
	)

	c.registry.MustRegister(
		c.moduleStatus,
		c.loadLatency,
		c.loadTotal,
		c.cacheHits,
		c.loadsInFlight,
		c.preloadQueue,
		c.dependencyMissed,
		c.callTotal,
		c.callLatency,
		c.slowCalls,
		c.budgetViolations,
		c.memoryUsage,
		c.busEmitTotal,
		c.busRequestTotal,
		c.busListenerPanic,
	)

	return c
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteText writes every gathered metric family to w in the Prometheus text
// exposition format.
func (c *Collector) WriteText(w io.Writer) error {
	families, err := c.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordModuleStatus records the current registry status of a module.
func (c *Collector) RecordModuleStatus(module string, status int) {
	c.moduleStatus.WithLabelValues(module).Set(float64(status))
}

// RecordLoad records a completed module load.
func (c *Collector) RecordLoad(module, priority string, duration time.Duration, err error) {
	r := result(err)
	c.loadLatency.WithLabelValues(module, priority, r).Observe(duration.Seconds())
	c.loadTotal.WithLabelValues(module, r).Inc()
}

// RecordCacheHit records a load served from cache.
func (c *Collector) RecordCacheHit(module string) {
	c.cacheHits.WithLabelValues(module).Inc()
}

// RecordLoadsInFlight records the number of in-flight loads.
func (c *Collector) RecordLoadsInFlight(count int) {
	c.loadsInFlight.Set(float64(count))
}

// RecordPreloadQueue records the number of pending preloads.
func (c *Collector) RecordPreloadQueue(depth int) {
	c.preloadQueue.Set(float64(depth))
}

// RecordDependencySkipped records a dependency that was not injected.
func (c *Collector) RecordDependencySkipped(module, reason string) {
	c.dependencyMissed.WithLabelValues(module, reason).Inc()
}

// RecordCall records an instrumented method call.
func (c *Collector) RecordCall(module, method string, duration time.Duration, err error) {
	c.callTotal.WithLabelValues(module, method, result(err)).Inc()
	c.callLatency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordSlowCall records a call that crossed the slow call threshold.
func (c *Collector) RecordSlowCall(module, method string) {
	c.slowCalls.WithLabelValues(module, method).Inc()
}

// RecordBudgetViolation records a detected budget violation.
func (c *Collector) RecordBudgetViolation(module, metric, severity string) {
	c.budgetViolations.WithLabelValues(module, metric, severity).Inc()
}

// RecordMemory records a module's apportioned memory.
func (c *Collector) RecordMemory(module string, bytes float64) {
	c.memoryUsage.WithLabelValues(module).Set(bytes)
}

// RecordEmit records an emitted bus event. scope is "type" or "target".
func (c *Collector) RecordEmit(scope string) {
	c.busEmitTotal.WithLabelValues(scope).Inc()
}

// RecordRequest records a bus request/response outcome.
func (c *Collector) RecordRequest(err error) {
	c.busRequestTotal.WithLabelValues(result(err)).Inc()
}

// RecordListenerPanic records a recovered listener panic.
func (c *Collector) RecordListenerPanic() {
	c.busListenerPanic.Inc()
}

// Forget removes the per-module series of an unloaded module.
func (c *Collector) Forget(module string) {
	c.memoryUsage.DeleteLabelValues(module)
}

// Reset resets all gauges.
func (c *Collector) Reset() {
	c.moduleStatus.Reset()
	c.memoryUsage.Reset()
	c.loadsInFlight.Set(0)
	c.preloadQueue.Set(0)
}

// NoOpCollector is a metrics collector that discards all metrics.
type NoOpCollector struct{}

// NewNoOpCollector creates a no-op metrics collector.
func NewNoOpCollector() *NoOpCollector {
	return &NoOpCollector{}
}

func (*NoOpCollector) RecordModuleStatus(string, int)                           {}
func (*NoOpCollector) RecordLoad(string, string, time.Duration, error)          {}
func (*NoOpCollector) RecordCacheHit(string)                                    {}
func (*NoOpCollector) RecordLoadsInFlight(int)                                  {}
func (*NoOpCollector) RecordPreloadQueue(int)                                   {}
func (*NoOpCollector) RecordDependencySkipped(string, string)                   {}
func (*NoOpCollector) RecordCall(string, string, time.Duration, error)          {}
func (*NoOpCollector) RecordSlowCall(string, string)                            {}
func (*NoOpCollector) RecordBudgetViolation(string, string, string)             {}
func (*NoOpCollector) RecordMemory(string, float64)                             {}
func (*NoOpCollector) RecordEmit(string)                                        {}
func (*NoOpCollector) RecordRequest(error)                                      {}
func (*NoOpCollector) RecordListenerPanic()                                     {}
func (*NoOpCollector) Forget(string)                                            {}
func (*NoOpCollector) Reset()                                                   {}

// MetricsCollector is the interface for metrics collection.
type MetricsCollector interface {
	RecordModuleStatus(module string, status int)
	RecordLoad(module, priority string, duration time.Duration, err error)
	RecordCacheHit(module string)
	RecordLoadsInFlight(count int)
	RecordPreloadQueue(depth int)
	RecordDependencySkipped(module, reason string)
	RecordCall(module, method string, duration time.Duration, err error)
	RecordSlowCall(module, method string)
	RecordBudgetViolation(module, metric, severity string)
	RecordMemory(module string, bytes float64)
	RecordEmit(scope string)
	RecordRequest(err error)
	RecordListenerPanic()
	Forget(module string)
	Reset()
}

// Verify interface compliance
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = (*NoOpCollector)(nil)
)

// Package monitor implements the performance monitor of the module
// federation core. It owns module load accounting: deduplicated and timed
// loads, tiered batch loading, idle-time preloading, timing markers, call
// instrumentation, budgets, memory apportioning and reports. It has no
// knowledge of the registry.
package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/R3E-Network/module_federation/internal/federation/metrics"
	"github.com/R3E-Network/module_federation/internal/federation/state"
	"github.com/R3E-Network/module_federation/pkg/logger"
)

const tracerName = "github.com/R3E-Network/module_federation/monitor"

// Config holds monitor configuration.
type Config struct {
	// SlowCallThreshold is the duration above which a wrapped call is logged.
	SlowCallThreshold time.Duration
	// LatencyWindow is the number of call/marker durations kept for the
	// average event latency.
	LatencyWindow int
	// MemorySampleInterval is the memory sampling period. 0 disables sampling.
	MemorySampleInterval time.Duration
	// MemorySource selects the sampler: "heap" or "rss".
	MemorySource string

	// PreloadRate is the number of preload dispatches allowed per second.
	PreloadRate float64
	// PreloadBurst is the token bucket size of the preload pacer.
	PreloadBurst int
	// PreloadConcurrency caps concurrently running preloads.
	PreloadConcurrency int
	// IdlePollInterval is how often the dispatcher checks for idleness.
	IdlePollInterval time.Duration
	// MaxIdleWait bounds the wait for idleness before dispatching anyway.
	MaxIdleWait time.Duration

	// TierConcurrency caps concurrent loads per priority tier. 0 = unlimited.
	TierConcurrency int
	// TierAcquireTimeout bounds the wait for a tier slot. An item that
	// times out fails with ErrAcquireTimeout. 0 waits indefinitely.
	TierAcquireTimeout time.Duration

	DefaultBudget Budget
	CoreBudget    Budget
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		SlowCallThreshold:    100 * time.Millisecond,
		LatencyWindow:        1000,
		MemorySampleInterval: 30 * time.Second,
		MemorySource:         SourceHeap,
		PreloadRate:          4,
		PreloadBurst:         1,
		PreloadConcurrency:   2,
		IdlePollInterval:     25 * time.Millisecond,
		MaxIdleWait:          2 * time.Second,
		DefaultBudget:        DefaultBudget,
		CoreBudget:           CoreBudget,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SlowCallThreshold <= 0 {
		c.SlowCallThreshold = d.SlowCallThreshold
	}
	if c.LatencyWindow <= 0 {
		c.LatencyWindow = d.LatencyWindow
	}
	if c.MemorySampleInterval < 0 {
		c.MemorySampleInterval = 0
	}
	if c.MemorySource == "" {
		c.MemorySource = d.MemorySource
	}
	if c.PreloadRate <= 0 {
		c.PreloadRate = d.PreloadRate
	}
	if c.PreloadBurst <= 0 {
		c.PreloadBurst = d.PreloadBurst
	}
	if c.PreloadConcurrency <= 0 {
		c.PreloadConcurrency = d.PreloadConcurrency
	}
	if c.IdlePollInterval <= 0 {
		c.IdlePollInterval = d.IdlePollInterval
	}
	if c.MaxIdleWait <= 0 {
		c.MaxIdleWait = d.MaxIdleWait
	}
	if c.DefaultBudget == (Budget{}) {
		c.DefaultBudget = d.DefaultBudget
	}
	if c.CoreBudget == (Budget{}) {
		c.CoreBudget = d.CoreBudget
	}
	return c
}

// loadCall is an in-flight load shared by every caller asking for the same id.
type loadCall struct {
	done     chan struct{}
	instance any
	err      error
}

func (c *loadCall) wait(ctx context.Context, id string) (any, error) {
	select {
	case <-c.done:
		return c.instance, c.err
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for module %s: %w", id, ctx.Err())
	}
}

type preloadEntry struct {
	id   string
	load PreloadFunc
}

// Monitor tracks module loads and runtime performance.
type Monitor struct {
	mu       sync.Mutex
	metrics  map[string]*Metrics
	cache    map[string]any
	inflight map[string]*loadCall
	budgets  map[string]Budget
	markers  map[string]map[string]*TimingMarker

	// rolling latency window
	latency     []time.Duration
	latencyHead int
	latencyLen  int

	// preload queue
	pending      map[string]struct{}
	preloadQueue []preloadEntry
	wake         chan struct{}

	config    Config
	log       *logger.Logger
	collector metrics.MetricsCollector
	tracer    trace.Tracer
	sampler   HeapSampler

	tiers          *TierLimiter
	preloadLimiter *Limiter
	preloadPacer   *rate.Limiter
	sched          *cron.Cron

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the monitor logger.
func WithLogger(l *logger.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(mc metrics.MetricsCollector) Option {
	return func(m *Monitor) {
		if mc != nil {
			m.collector = mc
		}
	}
}

// WithTracer sets the tracer used for load spans.
func WithTracer(t trace.Tracer) Option {
	return func(m *Monitor) {
		if t != nil {
			m.tracer = t
		}
	}
}

// WithSampler overrides the heap sampler selected by Config.MemorySource.
func WithSampler(s HeapSampler) Option {
	return func(m *Monitor) {
		if s != nil {
			m.sampler = s
		}
	}
}

// New creates a monitor. Background work starts with Start.
func New(cfg Config, opts ...Option) *Monitor {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	m := &Monitor{
		metrics:        make(map[string]*Metrics),
		cache:          make(map[string]any),
		inflight:       make(map[string]*loadCall),
		budgets:        make(map[string]Budget),
		markers:        make(map[string]map[string]*TimingMarker),
		latency:        make([]time.Duration, cfg.LatencyWindow),
		pending:        make(map[string]struct{}),
		wake:           make(chan struct{}, 1),
		config:         cfg,
		log:            logger.NewDefault("monitor"),
		collector:      metrics.NewNoOpCollector(),
		tracer:         otel.Tracer(tracerName),
		tiers:          NewTierLimiter(LimiterConfig{
			MaxConcurrent:  cfg.TierConcurrency,
			AcquireTimeout: cfg.TierAcquireTimeout,
		}),
		preloadLimiter: NewLimiter(LimiterConfig{MaxConcurrent: cfg.PreloadConcurrency}),
		preloadPacer:   rate.NewLimiter(rate.Limit(cfg.PreloadRate), cfg.PreloadBurst),
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.sampler == nil {
		m.sampler = NewSampler(cfg.MemorySource)
	}
	return m
}

// Config returns the effective configuration.
func (m *Monitor) Config() Config {
	return m.config
}

// Start launches the preload dispatcher and the memory sampler.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrMonitorStopped
	}
	if m.started {
		return nil
	}

	if m.config.MemorySampleInterval > 0 {
		m.sched = cron.New()
		spec := "@every " + m.config.MemorySampleInterval.String()
		if _, err := m.sched.AddFunc(spec, m.SampleMemory); err != nil {
			return fmt.Errorf("schedule memory sampling: %w", err)
		}
		m.sched.Start()
	}

	m.wg.Add(1)
	go m.dispatchPreloads()
	m.started = true

	// drain anything queued before Start
	m.signalPreload()

	m.log.WithFields(map[string]interface{}{
		"memory_interval": m.config.MemorySampleInterval.String(),
		"memory_source":   m.config.MemorySource,
	}).Info("performance monitor started")
	return nil
}

// Stop cancels in-flight loads and stops background work. It blocks until
// the dispatcher has exited.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	sched := m.sched
	m.mu.Unlock()

	m.cancel()
	if sched != nil {
		<-sched.Stop().Done()
	}
	m.preloadLimiter.Close()
	m.tiers.Close()
	m.wg.Wait()

	m.log.Info("performance monitor stopped")
}

// metricsFor returns the metrics record of id, creating it. Caller holds mu.
func (m *Monitor) metricsFor(id string) *Metrics {
	mt, ok := m.metrics[id]
	if !ok {
		mt = &Metrics{ModuleID: id, Status: state.LoadStatusLoading}
		m.metrics[id] = mt
	}
	return mt
}

// LoadModule loads id through factory with caching, deduplication and an
// optional timeout. Concurrent calls for the same id share one factory
// invocation. Cancelling ctx abandons the wait but not the shared load.
func (m *Monitor) LoadModule(ctx context.Context, id string, factory Factory, opts LoadOptions) (any, error) {
	if factory == nil {
		return nil, fmt.Errorf("module %s: %w", id, ErrNilFactory)
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, ErrMonitorStopped
	}

	if opts.Cache {
		if instance, ok := m.cache[id]; ok {
			mt := m.metricsFor(id)
			mt.LoadTime = 0
			mt.Status = state.LoadStatusCached
			m.mu.Unlock()
			m.collector.RecordCacheHit(id)
			return instance, nil
		}
	}

	call, ok := m.inflight[id]
	if !ok {
		call = &loadCall{done: make(chan struct{})}
		m.inflight[id] = call
		m.metricsFor(id).Status = state.LoadStatusLoading
		inFlight := len(m.inflight)
		m.mu.Unlock()

		m.collector.RecordLoadsInFlight(inFlight)
		go m.runLoad(ctx, id, factory, opts, call)
	} else {
		m.mu.Unlock()
	}

	return call.wait(ctx, id)
}

func (m *Monitor) runLoad(parent context.Context, id string, factory Factory, opts LoadOptions, call *loadCall) {
	// The load outlives any single caller but keeps its values (trace, chain).
	ctx := context.WithoutCancel(parent)
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	stopOnShutdown := context.AfterFunc(m.ctx, cancel)
	defer stopOnShutdown()

	priority := opts.Priority.Normalize()
	ctx, span := m.tracer.Start(ctx, "federation.module.load", trace.WithAttributes(
		attribute.String("module.id", id),
		attribute.String("module.priority", string(priority)),
		attribute.Bool("module.preload", opts.Preload),
		attribute.Bool("module.cache", opts.Cache),
	))
	defer span.End()

	start := time.Now()
	instance, err := m.invoke(ctx, id, factory, opts.Timeout)
	elapsed := time.Since(start)

	m.mu.Lock()
	delete(m.inflight, id)
	inFlight := len(m.inflight)
	mt := m.metricsFor(id)
	mt.LoadTime = elapsed
	mt.InitializationTime = elapsed
	if err != nil {
		mt.Errors++
		mt.Status = state.LoadStatusError
	} else {
		mt.Status = state.LoadStatusLoaded
		if opts.Cache {
			m.cache[id] = instance
		}
	}
	call.instance, call.err = instance, err
	close(call.done)
	m.mu.Unlock()

	m.collector.RecordLoadsInFlight(inFlight)
	m.collector.RecordLoad(id, string(priority), elapsed, err)

	entry := m.log.WithContext(ctx).WithFields(map[string]interface{}{
		"module":   id,
		"priority": string(priority),
		"duration": elapsed.String(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		entry.WithError(err).Warn("module load failed")
		return
	}
	span.SetStatus(codes.Ok, "")
	entry.Debug("module loaded")

	for _, v := range m.CheckBudget(id) {
		m.collector.RecordBudgetViolation(id, v.Metric, string(v.Severity))
		m.log.WithFields(map[string]interface{}{
			"module":   id,
			"metric":   v.Metric,
			"actual":   v.Actual,
			"budget":   v.Budget,
			"severity": string(v.Severity),
		}).Warn("performance budget exceeded")
	}
}

type factoryResult struct {
	instance any
	err      error
}

// invoke runs factory and races it against ctx.
func (m *Monitor) invoke(ctx context.Context, id string, factory Factory, timeout time.Duration) (any, error) {
	results := make(chan factoryResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- factoryResult{err: fmt.Errorf("module %s: %w: %v", id, ErrFactoryPanic, r)}
			}
		}()
		instance, err := factory(ctx)
		results <- factoryResult{instance: instance, err: err}
	}()

	select {
	case res := <-results:
		return res.instance, res.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded && timeout > 0 {
			return nil, &LoadTimeoutError{ModuleID: id, Timeout: timeout}
		}
		if m.ctx.Err() != nil {
			return nil, fmt.Errorf("module %s: %w", id, ErrMonitorStopped)
		}
		return nil, fmt.Errorf("module %s: %w", id, ctx.Err())
	}
}

// IsLoading reports whether a load for id is in flight.
func (m *Monitor) IsLoading(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inflight[id]
	return ok
}

// InFlight returns the number of loads in flight.
func (m *Monitor) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inflight)
}

// RecordDependencies stores the dependency ids of a module and the time
// spent resolving them.
func (m *Monitor) RecordDependencies(id string, deps []string, took time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt := m.metricsFor(id)
	mt.Dependencies = append([]string(nil), deps...)
	mt.DependencyLoadTime = took
}

// GetMetrics returns a copy of the metrics of id.
func (m *Monitor) GetMetrics(id string) (Metrics, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, ok := m.metrics[id]
	if !ok {
		return Metrics{}, false
	}
	return mt.clone(), true
}

// GetAllMetrics returns a copy of every metrics record keyed by module id.
func (m *Monitor) GetAllMetrics() map[string]Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Metrics, len(m.metrics))
	for id, mt := range m.metrics {
		out[id] = mt.clone()
	}
	return out
}

// sortedIDs returns metric ids in lexical order. Caller holds mu.
func (m *Monitor) sortedIDs() []string {
	ids := make([]string, 0, len(m.metrics))
	for id := range m.metrics {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CleanupModule drops the cached instance and timing markers of id and marks
// its metrics as cached with no memory. Event and error counters are kept.
func (m *Monitor) CleanupModule(id string) {
	m.mu.Lock()
	delete(m.cache, id)
	delete(m.markers, id)
	if mt, ok := m.metrics[id]; ok {
		mt.Status = state.LoadStatusCached
		mt.MemoryUsage = 0
	}
	m.mu.Unlock()

	m.collector.Forget(id)
	m.log.WithField("module", id).Debug("module cleaned up")
}

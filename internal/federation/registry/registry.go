// Package registry implements the module registry of the federation core.
// It owns module registrations and lifecycle state, resolves dependencies,
// deduplicates concurrent loads, validates and instruments instances, and
// fronts the event bus and shared state used for cross-module coordination.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/R3E-Network/module_federation/internal/federation/contract"
	"github.com/R3E-Network/module_federation/internal/federation/events"
	"github.com/R3E-Network/module_federation/internal/federation/metrics"
	"github.com/R3E-Network/module_federation/internal/federation/monitor"
	"github.com/R3E-Network/module_federation/internal/federation/state"
	"github.com/R3E-Network/module_federation/pkg/logger"
)

// Config holds registry configuration.
type Config struct {
	// LoadTimeout bounds every module load.
	LoadTimeout time.Duration
	// CacheTTL is how long a cacheable instance survives in the instance
	// cache. 0 keeps entries until unload.
	CacheTTL time.Duration
	// KnownModules is the dependency-ordered list used by
	// InitializeAllModules. Empty means every registered module.
	KnownModules []string
	// ModuleConfig is passed to each module's Initialize hook.
	ModuleConfig map[string]map[string]any
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{
		LoadTimeout: 10 * time.Second,
	}
}

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

// Registry loads and coordinates federated modules.
type Registry struct {
	mu            sync.RWMutex
	registrations map[string]*Registration
	states        map[string]*ModuleState
	instances     map[string]any
	inflight      map[string]*loadCall
	order         []string
	cache         *gocache.Cache
	closed        bool

	sharedMu sync.RWMutex
	shared   map[string]any

	config    Config
	log       *logger.Logger
	monitor   *monitor.Monitor
	bus       *events.Bus
	contracts *contract.Table
	collector metrics.MetricsCollector
}

var _ contract.Coordinator = (*Registry)(nil)

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMonitor sets the performance monitor.
func WithMonitor(m *monitor.Monitor) Option {
	return func(r *Registry) {
		if m != nil {
			r.monitor = m
		}
	}
}

// WithBus sets the event bus.
func WithBus(b *events.Bus) Option {
	return func(r *Registry) {
		if b != nil {
			r.bus = b
		}
	}
}

// WithContracts sets the contract table.
func WithContracts(t *contract.Table) Option {
	return func(r *Registry) {
		if t != nil {
			r.contracts = t
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(mc metrics.MetricsCollector) Option {
	return func(r *Registry) {
		if mc != nil {
			r.collector = mc
		}
	}
}

// New creates a registry. Components not supplied through options are
// created with defaults sharing the registry logger and collector.
func New(cfg Config, opts ...Option) *Registry {
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultConfig().LoadTimeout
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}

	r := &Registry{
		registrations: make(map[string]*Registration),
		states:        make(map[string]*ModuleState),
		instances:     make(map[string]any),
		inflight:      make(map[string]*loadCall),
		cache:         gocache.New(ttl, 10*time.Minute),
		shared:        make(map[string]any),
		config:        cfg,
		log:           logger.NewDefault("registry"),
		collector:     metrics.NewNoOpCollector(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.monitor == nil {
		r.monitor = monitor.New(monitor.DefaultConfig(),
			monitor.WithLogger(r.log.Named("monitor")),
			monitor.WithMetrics(r.collector))
	}
	if r.bus == nil {
		r.bus = events.NewBus(events.DefaultConfig(),
			events.WithLogger(r.log.Named("events")),
			events.WithMetrics(r.collector))
	}
	if r.contracts == nil {
		r.contracts = contract.DefaultTable()
	}
	return r
}

// Start starts the monitor's background work so queued preloads run.
func (r *Registry) Start() error {
	return r.monitor.Start()
}

// Monitor returns the performance monitor.
func (r *Registry) Monitor() *monitor.Monitor {
	return r.monitor
}

// Bus returns the event bus.
func (r *Registry) Bus() *events.Bus {
	return r.bus
}

// Register adds a module. Dependencies may be registered later.
func (r *Registry) Register(reg Registration) error {
	md := reg.Metadata
	if md.ID == "" {
		return fmt.Errorf("%w: empty module id", ErrInvalidRegistration)
	}
	if reg.Factory == nil && reg.Instance == nil {
		return fmt.Errorf("%w: module %s has neither factory nor instance", ErrInvalidRegistration, md.ID)
	}
	md.Priority = md.Priority.Normalize()
	md.Dependencies = append([]string(nil), md.Dependencies...)
	reg.Metadata = md

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRegistryClosed
	}
	if _, exists := r.registrations[md.ID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("module %s: %w", md.ID, ErrAlreadyRegistered)
	}

	st := &ModuleState{
		ID:           md.ID,
		Status:       state.StatusInitializing,
		Dependencies: append([]string(nil), md.Dependencies...),
	}
	for _, dep := range md.Dependencies {
		if depState, ok := r.states[dep]; ok {
			depState.Dependents = appendUnique(depState.Dependents, md.ID)
		}
	}
	for _, other := range r.order {
		for _, dep := range r.registrations[other].Metadata.Dependencies {
			if dep == md.ID {
				st.Dependents = appendUnique(st.Dependents, other)
			}
		}
	}
	r.registrations[md.ID] = &reg
	r.states[md.ID] = st
	r.order = append(r.order, md.ID)
	r.mu.Unlock()

	r.collector.RecordModuleStatus(md.ID, int(state.StatusInitializing))
	r.log.WithFields(map[string]interface{}{
		"module":   md.ID,
		"version":  md.Version,
		"priority": string(md.Priority),
		"contract": md.Contract,
	}).Info("module registered")
	r.bus.Emit(events.EventModuleRegistered, md, "")

	if md.Preload {
		r.monitor.PreloadModule(md.ID, r.preload(md.ID))
	}
	return nil
}

func (r *Registry) preload(id string) monitor.PreloadFunc {
	return func(ctx context.Context) error {
		r.mu.Lock()
		if st, ok := r.states[id]; ok && st.Instance == nil && r.inflight[id] == nil {
			// a module already past preloading keeps its status
			_ = r.setStatusLocked(st, state.StatusPreloading)
		}
		r.mu.Unlock()

		_, err := r.GetModule(ctx, id)
		return err
	}
}

func appendUnique(list []string, id string) []string {
	for _, v := range list {
		if v == id {
			return list
		}
	}
	return append(list, id)
}

// GetModule returns the instance of id, loading it and its dependencies on
// first use. Concurrent callers share one load. A failed load is not
// remembered, so the next call retries.
func (r *Registry) GetModule(ctx context.Context, id string) (any, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	reg, ok := r.registrations[id]
	if !ok {
		r.mu.Unlock()
		return nil, &ModuleNotFoundError{ID: id}
	}
	st := r.states[id]
	st.LastAccess = time.Now()

	if instance, ok := r.instances[id]; ok {
		r.mu.Unlock()
		return instance, nil
	}

	if reg.Metadata.Cacheable {
		if instance, ok := r.cache.Get(id); ok {
			r.instances[id] = instance
			st.Instance = instance
			r.transitionLocked(st, state.StatusReady)
			r.mu.Unlock()
			r.collector.RecordModuleStatus(id, int(state.StatusReady))
			r.log.WithField("module", id).Debug("module restored from cache")
			return instance, nil
		}
	}

	call, ok := r.inflight[id]
	if !ok {
		call = &loadCall{done: make(chan struct{})}
		r.inflight[id] = call
		r.mu.Unlock()
		go r.load(context.WithoutCancel(ctx), reg, call)
	} else {
		r.mu.Unlock()
	}

	return call.wait(ctx, id)
}

func (r *Registry) load(ctx context.Context, reg *Registration, call *loadCall) {
	md := reg.Metadata
	opts := monitor.LoadOptions{
		Preload:  md.Preload,
		Priority: md.Priority,
		Cache:    md.Cacheable,
		Timeout:  r.config.LoadTimeout,
	}
	instance, err := r.monitor.LoadModule(ctx, md.ID, func(ctx context.Context) (any, error) {
		return r.instantiate(ctx, reg)
	}, opts)

	r.mu.Lock()
	delete(r.inflight, md.ID)
	st := r.states[md.ID]
	if err != nil {
		r.transitionLocked(st, state.StatusError)
		st.LastError = err
	} else {
		r.instances[md.ID] = instance
		st.Instance = instance
		r.transitionLocked(st, state.StatusReady)
		st.LastError = nil
		if md.Cacheable {
			r.cache.SetDefault(md.ID, instance)
		}
	}
	status := st.Status
	call.instance, call.err = instance, err
	close(call.done)
	r.mu.Unlock()

	r.collector.RecordModuleStatus(md.ID, int(status))
	if err != nil {
		r.log.WithContext(ctx).WithField("module", md.ID).WithError(err).Error("module load failed")
		r.bus.Emit(events.EventModuleError, ModuleError{ModuleID: md.ID, Err: err}, "")
		return
	}
	r.log.WithContext(ctx).WithField("module", md.ID).Info("module ready")
	r.bus.Emit(events.EventModuleReady, md.ID, "")
}

// ModuleError is the payload of a module:error event.
type ModuleError struct {
	ModuleID string `json:"moduleId"`
	Err      error  `json:"-"`
}

// instantiate is the load pipeline run inside the monitor's timed load.
func (r *Registry) instantiate(ctx context.Context, reg *Registration) (any, error) {
	md := reg.Metadata

	depStart := time.Now()
	deps := make(map[string]any, len(md.Dependencies))
	for _, dep := range md.Dependencies {
		instance, err := r.resolveDependency(ctx, md.ID, dep)
		if err != nil {
			r.collector.RecordDependencySkipped(md.ID, err.Reason())
			r.log.WithFields(map[string]interface{}{
				"module":     md.ID,
				"dependency": dep,
				"reason":     err.Reason(),
			}).WithError(err).Warn("dependency skipped")
			continue
		}
		deps[dep] = instance
	}
	r.monitor.RecordDependencies(md.ID, md.Dependencies, time.Since(depStart))

	raw := reg.Instance
	if raw == nil {
		var err error
		raw, err = reg.Factory(ctx)
		if err != nil {
			return nil, err
		}
	}
	if raw == nil {
		return nil, fmt.Errorf("module %s: %w", md.ID, ErrNilInstance)
	}

	if err := r.contracts.Validate(md.ID, md.Contract, raw); err != nil {
		r.log.WithField("module", md.ID).WithError(err).Warn("contract violation")
	}

	instance, instrumented := r.contracts.Instrument(r.monitor, md.ID, md.Contract, raw)
	if !instrumented {
		r.log.WithField("module", md.ID).Debug("module calls are not instrumented")
	}

	if initialize, ok := contract.AsInitializer(raw); ok {
		r.monitor.StartTiming(md.ID, "initialize", map[string]any{"dependencies": len(deps)})
		err := initialize(ctx, contract.InitContext{
			ModuleID:     md.ID,
			Dependencies: deps,
			Config:       r.config.ModuleConfig[md.ID],
			Bus:          r,
		})
		r.monitor.EndTiming(md.ID, "initialize")
		if err != nil {
			return nil, fmt.Errorf("initialize module %s: %w", md.ID, err)
		}
	}
	return instance, nil
}

func (r *Registry) resolveDependency(ctx context.Context, id, dep string) (any, *DependencyLoadError) {
	if !r.IsRegistered(dep) {
		return nil, &DependencyLoadError{ModuleID: id, Dependency: dep, Err: &ModuleNotFoundError{ID: dep}}
	}
	if r.reaches(dep, id) {
		return nil, &DependencyLoadError{ModuleID: id, Dependency: dep, Err: ErrDependencyCycle}
	}
	instance, err := r.GetModule(ctx, dep)
	if err != nil {
		return nil, &DependencyLoadError{ModuleID: id, Dependency: dep, Err: err}
	}
	return instance, nil
}

// reaches reports whether target is reachable from start through declared
// dependencies.
func (r *Registry) reaches(start, target string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]bool{}
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == target {
			return true
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		if reg, ok := r.registrations[id]; ok {
			stack = append(stack, reg.Metadata.Dependencies...)
		}
	}
	return false
}

// UnloadModule destroys the instance of id and resets it to stopped. The
// registration is kept, so a later GetModule loads it again. The instance is
// detached from the registry and the monitor in one step before its destroy
// hook runs, so concurrent callers never see it while it is torn down and
// only one unload destroys it.
func (r *Registry) UnloadModule(ctx context.Context, id string) error {
	instance, ok, err := r.detach(id, true)
	if err != nil || !ok {
		return err
	}

	if destroy, ok := contract.AsDestroyer(contract.Unwrap(instance)); ok {
		if err := destroy(ctx); err != nil {
			r.log.WithField("module", id).WithError(err).Warn("module destroy failed")
		}
	}

	r.collector.RecordModuleStatus(id, int(state.StatusStopped))
	r.log.WithField("module", id).Info("module unloaded")
	r.bus.Emit(events.EventModuleUnregistered, id, "")
	return nil
}

// ReleaseModule takes a loaded module out of service without destroying it.
// A cacheable instance stays in the instance cache for Config.CacheTTL and a
// GetModule within that window restores it without running the factory.
// Non-cacheable modules are unloaded.
func (r *Registry) ReleaseModule(ctx context.Context, id string) error {
	r.mu.RLock()
	reg, ok := r.registrations[id]
	r.mu.RUnlock()
	if !ok {
		return &ModuleNotFoundError{ID: id}
	}
	if !reg.Metadata.Cacheable {
		return r.UnloadModule(ctx, id)
	}

	if _, ok, err := r.detach(id, false); err != nil || !ok {
		return err
	}
	r.collector.RecordModuleStatus(id, int(state.StatusStopped))
	r.log.WithField("module", id).Info("module released")
	return nil
}

// detach removes the live instance of id, marks it stopped and purges the
// monitor's copy while holding mu. purge also drops the instance cache
// entry; a released cacheable instance found only there is returned for
// destruction. The boolean is false when nothing was loaded.
func (r *Registry) detach(id string, purge bool) (any, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.registrations[id]; !ok {
		return nil, false, &ModuleNotFoundError{ID: id}
	}
	instance, loaded := r.instances[id]
	if !loaded && purge {
		instance, loaded = r.cache.Get(id)
	}
	if purge {
		r.cache.Delete(id)
	}
	if !loaded {
		return nil, false, nil
	}

	delete(r.instances, id)
	st := r.states[id]
	st.Instance = nil
	r.transitionLocked(st, state.StatusStopped)
	r.monitor.CleanupModule(id)
	return instance, true, nil
}

// setStatusLocked moves st to status, refusing transitions the lifecycle
// does not allow. Caller holds mu.
func (r *Registry) setStatusLocked(st *ModuleState, status state.Status) error {
	if st.Status == status {
		return nil
	}
	if !state.CanTransition(st.Status, status) {
		return state.TransitionError{Module: st.ID, From: st.Status, To: status}
	}
	st.Status = status
	return nil
}

// transitionLocked is setStatusLocked for transitions the registry expects
// to hold; a refused one is logged. Caller holds mu.
func (r *Registry) transitionLocked(st *ModuleState, status state.Status) {
	if err := r.setStatusLocked(st, status); err != nil {
		r.log.WithField("module", st.ID).WithError(err).Warn("module status unchanged")
	}
}

// Shutdown unloads every loaded module, dependents before their
// dependencies, then stops the monitor and closes the bus. Loads still in
// flight are cancelled.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	order := r.dependencyOrderLocked(r.order)
	r.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		if !r.IsLoaded(order[i]) {
			continue
		}
		if err := r.UnloadModule(ctx, order[i]); err != nil {
			r.log.WithField("module", order[i]).WithError(err).Warn("unload during shutdown failed")
		}
	}

	r.monitor.Stop()
	r.bus.Emit(events.EventRegistryShutdown, nil, "")
	r.bus.Close()
	r.cache.Flush()
	r.collector.Reset()
	r.log.Info("module registry shut down")
	return nil
}

// dependencyOrderLocked orders ids so that dependencies come before their
// dependents. Cycles are broken at the first revisit. Caller holds mu.
func (r *Registry) dependencyOrderLocked(ids []string) []string {
	visited := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		reg, ok := r.registrations[id]
		if !ok {
			return
		}
		for _, dep := range reg.Metadata.Dependencies {
			visit(dep)
		}
		out = append(out, id)
	}
	for _, id := range ids {
		visit(id)
	}
	return out
}

// IsRegistered reports whether id has been registered.
func (r *Registry) IsRegistered(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.registrations[id]
	return ok
}

// IsLoaded reports whether id has a live instance.
func (r *Registry) IsLoaded(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.instances[id]
	return ok
}

// IsModuleReady reports whether id is loaded and ready.
func (r *Registry) IsModuleReady(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.states[id]
	return ok && st.Status.IsReady() && st.Instance != nil
}

// GetAvailableModules returns the ids of loaded modules, sorted.
func (r *Registry) GetAvailableModules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.instances))
	for id := range r.instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetRegisteredModules returns the metadata of every registration in
// registration order.
func (r *Registry) GetRegisteredModules() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Metadata, 0, len(r.order))
	for _, id := range r.order {
		md := r.registrations[id].Metadata
		md.Dependencies = append([]string(nil), md.Dependencies...)
		out = append(out, md)
	}
	return out
}

// GetModuleState returns a copy of the state of id.
func (r *Registry) GetModuleState(id string) (ModuleState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.states[id]
	if !ok {
		return ModuleState{}, false
	}
	return st.clone(), true
}

// GetModuleStatus returns a snapshot of every module's state and metrics.
func (r *Registry) GetModuleStatus() map[string]ModuleStatus {
	r.mu.RLock()
	snapshot := make(map[string]ModuleStatus, len(r.states))
	for id, st := range r.states {
		status := ModuleStatus{State: st.clone()}
		if st.LastError != nil {
			status.Error = st.LastError.Error()
		}
		snapshot[id] = status
	}
	r.mu.RUnlock()

	for id, status := range snapshot {
		if mt, ok := r.monitor.GetMetrics(id); ok {
			status.Metrics = &mt
			snapshot[id] = status
		}
	}
	return snapshot
}

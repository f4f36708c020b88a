package registry

import (
	"context"
	"time"

	"github.com/R3E-Network/module_federation/internal/federation/monitor"
)

// LoadModulesParallel loads ids tier by tier using each module's declared
// priority. Failed or unknown ids map to nil.
func (r *Registry) LoadModulesParallel(ctx context.Context, ids []string) map[string]any {
	items := make([]monitor.BatchItem, 0, len(ids))
	for _, id := range ids {
		item := monitor.BatchItem{ID: id}
		r.mu.RLock()
		if reg, ok := r.registrations[id]; ok {
			item.Options.Priority = reg.Metadata.Priority
		}
		r.mu.RUnlock()
		items = append(items, item)
	}

	return r.monitor.LoadTiers(ctx, items, func(ctx context.Context, item monitor.BatchItem) (any, error) {
		return r.GetModule(ctx, item.ID)
	})
}

// InitializeAllModules loads every known module that is not yet loaded,
// high priority first. Known modules come from Config.KnownModules, or every
// registration in dependency order.
func (r *Registry) InitializeAllModules(ctx context.Context) map[string]any {
	r.mu.RLock()
	known := r.config.KnownModules
	if len(known) == 0 {
		known = r.dependencyOrderLocked(r.order)
	}
	var ids []string
	for _, id := range known {
		if _, ok := r.registrations[id]; !ok {
			r.log.WithField("module", id).Warn("known module is not registered")
			continue
		}
		if _, loaded := r.instances[id]; loaded {
			continue
		}
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	start := time.Now()
	results := r.LoadModulesParallel(ctx, ids)

	failed := 0
	for _, instance := range results {
		if instance == nil {
			failed++
		}
	}
	r.log.WithFields(map[string]interface{}{
		"modules":  len(ids),
		"failed":   failed,
		"duration": time.Since(start).String(),
	}).Info("modules initialized")
	return results
}

// GetPerformanceReport returns the monitor's report.
func (r *Registry) GetPerformanceReport() monitor.Report {
	return r.monitor.GenerateReport()
}

// GetMetrics returns the metrics of id.
func (r *Registry) GetMetrics(id string) (monitor.Metrics, bool) {
	return r.monitor.GetMetrics(id)
}

// GetAllMetrics returns the metrics of every module.
func (r *Registry) GetAllMetrics() map[string]monitor.Metrics {
	return r.monitor.GetAllMetrics()
}

// GetAverageEventLatency returns the monitor's rolling average latency.
func (r *Registry) GetAverageEventLatency() time.Duration {
	return r.monitor.AverageEventLatency()
}

// SetBudget overrides the performance budget of id.
func (r *Registry) SetBudget(id string, b monitor.Budget) {
	r.monitor.SetBudget(id, b)
}

// CheckBudget returns the current budget violations of id.
func (r *Registry) CheckBudget(id string) []monitor.Violation {
	return r.monitor.CheckBudget(id)
}

package monitor

import (
	"context"
	"sync"

	"github.com/R3E-Network/module_federation/internal/federation/state"
)

// BatchItem is one module of a batch load.
type BatchItem struct {
	ID      string
	Factory Factory
	Options LoadOptions
}

// LoadFunc loads a single batch item.
type LoadFunc func(ctx context.Context, item BatchItem) (any, error)

// LoadModulesParallel loads items through LoadModule, tier by tier. Failed
// items map to nil; the batch never aborts.
func (m *Monitor) LoadModulesParallel(ctx context.Context, items []BatchItem) map[string]any {
	return m.LoadTiers(ctx, items, func(ctx context.Context, item BatchItem) (any, error) {
		return m.LoadModule(ctx, item.ID, item.Factory, item.Options)
	})
}

// LoadTiers buckets items by priority (empty means normal) and runs the
// buckets high, normal, low. Items of a bucket run concurrently, capped by
// the tier limiter, and the next bucket starts only after every item of the
// previous one has settled.
func (m *Monitor) LoadTiers(ctx context.Context, items []BatchItem, load LoadFunc) map[string]any {
	results := make(map[string]any, len(items))
	buckets := make(map[state.Priority][]BatchItem, len(state.Tiers))
	for _, item := range items {
		tier := item.Options.Priority.Normalize()
		buckets[tier] = append(buckets[tier], item)
	}

	var mu sync.Mutex
	for _, tier := range state.Tiers {
		batch := buckets[tier]
		if len(batch) == 0 {
			continue
		}

		var wg sync.WaitGroup
		for _, item := range batch {
			wg.Add(1)
			go func(item BatchItem) {
				defer wg.Done()

				instance, err := m.loadInTier(ctx, tier, item, load)
				if err != nil {
					m.log.WithFields(map[string]interface{}{
						"module":   item.ID,
						"priority": string(tier),
					}).WithError(err).Warn("batch load failed")
					instance = nil
				}

				mu.Lock()
				results[item.ID] = instance
				mu.Unlock()
			}(item)
		}
		wg.Wait()
	}
	return results
}

func (m *Monitor) loadInTier(ctx context.Context, tier state.Priority, item BatchItem, load LoadFunc) (any, error) {
	if err := m.tiers.Acquire(ctx, tier); err != nil {
		return nil, err
	}
	defer m.tiers.Release(tier)
	return load(ctx, item)
}

// TierStats returns limiter statistics for capped tiers.
func (m *Monitor) TierStats() map[state.Priority]LimiterStats {
	return m.tiers.Stats()
}

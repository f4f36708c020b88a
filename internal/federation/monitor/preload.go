package monitor

import (
	"context"
	"time"
)

// PreloadFunc performs a deferred load. It is usually a closure over the
// registry's GetModule.
type PreloadFunc func(ctx context.Context) error

// PreloadModule queues id for loading once the monitor is idle. It returns
// false when id is already pending. Queued ids are dispatched after Start.
func (m *Monitor) PreloadModule(id string, load PreloadFunc) bool {
	if load == nil {
		return false
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return false
	}
	if _, ok := m.pending[id]; ok {
		m.mu.Unlock()
		return false
	}
	m.pending[id] = struct{}{}
	m.preloadQueue = append(m.preloadQueue, preloadEntry{id: id, load: load})
	depth := len(m.preloadQueue)
	m.mu.Unlock()

	m.collector.RecordPreloadQueue(depth)
	m.signalPreload()
	return true
}

// IsPreloadScheduled reports whether id is queued and not yet dispatched.
func (m *Monitor) IsPreloadScheduled(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[id]
	return ok
}

// PendingPreloads returns the number of queued preloads.
func (m *Monitor) PendingPreloads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.preloadQueue)
}

func (m *Monitor) signalPreload() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Monitor) dispatchPreloads() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.wake:
		}

		for {
			m.mu.Lock()
			empty := len(m.preloadQueue) == 0
			m.mu.Unlock()
			if empty {
				break
			}

			if !m.waitIdle() {
				return
			}
			if err := m.preloadPacer.Wait(m.ctx); err != nil {
				return
			}
			if err := m.preloadLimiter.Acquire(m.ctx); err != nil {
				return
			}

			entry, ok := m.popPreload()
			if !ok {
				m.preloadLimiter.Release()
				break
			}

			m.wg.Add(1)
			go m.runPreload(entry)
		}
	}
}

func (m *Monitor) popPreload() (preloadEntry, bool) {
	m.mu.Lock()
	if len(m.preloadQueue) == 0 {
		m.mu.Unlock()
		return preloadEntry{}, false
	}
	entry := m.preloadQueue[0]
	m.preloadQueue = m.preloadQueue[1:]
	delete(m.pending, entry.id)
	depth := len(m.preloadQueue)
	m.mu.Unlock()

	m.collector.RecordPreloadQueue(depth)
	return entry, true
}

func (m *Monitor) runPreload(entry preloadEntry) {
	defer m.wg.Done()
	defer m.preloadLimiter.Release()

	start := time.Now()
	err := entry.load(m.ctx)
	fields := map[string]interface{}{
		"module":   entry.id,
		"duration": time.Since(start).String(),
	}
	if err != nil {
		m.log.WithFields(fields).WithError(err).Warn("preload failed")
		return
	}
	m.log.WithFields(fields).Debug("module preloaded")
}

// waitIdle blocks until no load is in flight or MaxIdleWait elapses. It
// returns false when the monitor stops.
func (m *Monitor) waitIdle() bool {
	deadline := time.NewTimer(m.config.MaxIdleWait)
	defer deadline.Stop()
	ticker := time.NewTicker(m.config.IdlePollInterval)
	defer ticker.Stop()

	for {
		if m.InFlight() == 0 {
			return true
		}
		select {
		case <-m.ctx.Done():
			return false
		case <-deadline.C:
			return true
		case <-ticker.C:
		}
	}
}

package monitor

import (
	"sort"
	"time"
)

// StartTiming opens a named marker for a module. Starting a marker that is
// already open restarts it.
func (m *Monitor) StartTiming(moduleID, name string, metadata map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byName, ok := m.markers[moduleID]
	if !ok {
		byName = make(map[string]*TimingMarker)
		m.markers[moduleID] = byName
	}
	byName[name] = &TimingMarker{
		Name:     name,
		Start:    time.Now(),
		Metadata: metadata,
	}
}

// EndTiming closes a marker and folds its duration into the latency window.
// It returns false when no such marker was started.
func (m *Monitor) EndTiming(moduleID, name string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	marker, ok := m.markers[moduleID][name]
	if !ok || !marker.End.IsZero() {
		return 0, false
	}
	marker.End = time.Now()
	marker.Duration = marker.End.Sub(marker.Start)
	m.pushLatencyLocked(marker.Duration)
	return marker.Duration, true
}

// Markers returns copies of the markers recorded for a module, ordered by
// start time.
func (m *Monitor) Markers(moduleID string) []TimingMarker {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]TimingMarker, 0, len(m.markers[moduleID]))
	for _, marker := range m.markers[moduleID] {
		out = append(out, *marker)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func (m *Monitor) pushLatencyLocked(d time.Duration) {
	m.latency[m.latencyHead] = d
	m.latencyHead = (m.latencyHead + 1) % len(m.latency)
	if m.latencyLen < len(m.latency) {
		m.latencyLen++
	}
}

// AverageEventLatency returns the mean of the latest latency samples, or 0
// when none have been recorded.
func (m *Monitor) AverageEventLatency() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.averageLatencyLocked()
}

func (m *Monitor) averageLatencyLocked() time.Duration {
	if m.latencyLen == 0 {
		return 0
	}
	var total time.Duration
	for i := 0; i < m.latencyLen; i++ {
		total += m.latency[i]
	}
	return total / time.Duration(m.latencyLen)
}

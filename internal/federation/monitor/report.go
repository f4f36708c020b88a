package monitor

import (
	"fmt"
	"sort"
	"time"

	"github.com/R3E-Network/module_federation/internal/federation/state"
)

// Report thresholds.
const (
	slowestModulesLimit   = 5
	lazyLoadInitThreshold = 1000 * time.Millisecond
	highMemoryThreshold   = 100 * MiB
	errorCountThreshold   = 5
	highLatencyThreshold  = 100 * time.Millisecond
)

// GenerateReport aggregates every module record into a report.
func (m *Monitor) GenerateReport() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := Report{
		Timestamp:           time.Now().UTC(),
		TotalModules:        len(m.metrics),
		AverageEventLatency: m.averageLatencyLocked(),
		SlowestModules:      []Metrics{},
		Violations:          []Violation{},
		Recommendations:     []string{},
	}

	var loadedTotal time.Duration
	var loaded []Metrics
	ids := m.sortedIDs()
	for _, id := range ids {
		mt := m.metrics[id]
		report.TotalMemoryUsage += mt.MemoryUsage
		if mt.Status == state.LoadStatusLoaded {
			loaded = append(loaded, mt.clone())
			loadedTotal += mt.LoadTime
		}
		report.Violations = append(report.Violations, m.checkBudgetLocked(id)...)
	}

	if len(loaded) > 0 {
		report.AverageLoadTime = loadedTotal / time.Duration(len(loaded))
		sort.SliceStable(loaded, func(i, j int) bool { return loaded[i].LoadTime > loaded[j].LoadTime })
		if len(loaded) > slowestModulesLimit {
			loaded = loaded[:slowestModulesLimit]
		}
		report.SlowestModules = loaded
	}

	report.Recommendations = m.recommendLocked(ids, report)
	return report
}

func (m *Monitor) recommendLocked(ids []string, report Report) []string {
	recs := []string{}
	for _, id := range ids {
		mt := m.metrics[id]
		if mt.InitializationTime > lazyLoadInitThreshold {
			recs = append(recs, fmt.Sprintf("Consider lazy loading %s: initialization took %v", id, mt.InitializationTime.Round(time.Millisecond)))
		}
		if mt.MemoryUsage > highMemoryThreshold {
			recs = append(recs, fmt.Sprintf("Module %s uses %.1f MB of memory; reduce retained state or split the module", id, float64(mt.MemoryUsage)/float64(MiB)))
		}
		if mt.Errors > errorCountThreshold {
			recs = append(recs, fmt.Sprintf("Module %s reported %d errors; review its error handling", id, mt.Errors))
		}
	}
	for _, v := range report.Violations {
		if v.Severity == SeverityError {
			recs = append(recs, "Performance budgets exceeded; optimize modules with error-level violations")
			break
		}
	}
	if report.AverageEventLatency > highLatencyThreshold {
		recs = append(recs, fmt.Sprintf("Average event latency is %v; debounce or batch cross-module events", report.AverageEventLatency.Round(time.Millisecond)))
	}
	return recs
}

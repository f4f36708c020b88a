package monitor

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/R3E-Network/module_federation/internal/federation/state"
)

func TestGenerateReport_Empty(t *testing.T) {
	m := newTestMonitor(t, Config{})
	r := m.GenerateReport()

	assert.Equal(t, 0, r.TotalModules)
	assert.Equal(t, time.Duration(0), r.AverageLoadTime)
	assert.Empty(t, r.SlowestModules)
	assert.Empty(t, r.Violations)
	assert.Empty(t, r.Recommendations)
	assert.False(t, r.Timestamp.IsZero())
}

func TestGenerateReport_Aggregates(t *testing.T) {
	m := newTestMonitor(t, Config{})

	for i := 1; i <= 7; i++ {
		id := fmt.Sprintf("mod-%d", i)
		seed(m, id, func(mt *Metrics) {
			mt.Status = state.LoadStatusLoaded
			mt.LoadTime = time.Duration(i) * 10 * time.Millisecond
			mt.MemoryUsage = MiB
		})
	}
	// not loaded: excluded from average and slowest
	seed(m, "broken", func(mt *Metrics) {
		mt.Status = state.LoadStatusError
		mt.LoadTime = time.Hour
		mt.Errors = 6
	})

	r := m.GenerateReport()

	assert.Equal(t, 8, r.TotalModules)
	assert.Equal(t, 40*time.Millisecond, r.AverageLoadTime)
	assert.Equal(t, 7*MiB, r.TotalMemoryUsage)
	require.Len(t, r.SlowestModules, 5)
	assert.Equal(t, "mod-7", r.SlowestModules[0].ModuleID)
	assert.Equal(t, "mod-3", r.SlowestModules[4].ModuleID)

	require.Len(t, r.Recommendations, 1)
	assert.Contains(t, r.Recommendations[0], "broken")
	assert.Contains(t, r.Recommendations[0], "6 errors")
}

func TestGenerateReport_Recommendations(t *testing.T) {
	m := newTestMonitor(t, Config{})

	seed(m, "heavy", func(mt *Metrics) {
		mt.Status = state.LoadStatusLoaded
		mt.InitializationTime = 1500 * time.Millisecond
		mt.MemoryUsage = 150 * MiB
	})
	m.mu.Lock()
	m.pushLatencyLocked(250 * time.Millisecond)
	m.mu.Unlock()

	r := m.GenerateReport()

	joined := strings.Join(r.Recommendations, "\n")
	assert.Contains(t, joined, "lazy loading heavy")
	assert.Contains(t, joined, "150.0 MB")
	assert.Contains(t, joined, "Performance budgets exceeded")
	assert.Contains(t, joined, "event latency")
	assert.Len(t, r.Recommendations, 4)

	require.Len(t, r.Violations, 2)
	for _, v := range r.Violations {
		assert.Equal(t, SeverityError, v.Severity)
	}
	assert.Equal(t, 250*time.Millisecond, r.AverageEventLatency)
}

func TestGenerateReport_SlowestProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := New(Config{}, withQuietLogger())
		defer m.Stop()

		n := rapid.IntRange(0, 15).Draw(t, "modules")
		for i := 0; i < n; i++ {
			loadMs := rapid.IntRange(0, 5000).Draw(t, "loadMs")
			status := rapid.SampledFrom([]state.LoadStatus{
				state.LoadStatusLoaded, state.LoadStatusError, state.LoadStatusCached,
			}).Draw(t, "status")
			seed(m, fmt.Sprintf("m%d", i), func(mt *Metrics) {
				mt.Status = status
				mt.LoadTime = time.Duration(loadMs) * time.Millisecond
			})
		}

		r := m.GenerateReport()
		if len(r.SlowestModules) > 5 {
			t.Fatalf("slowest has %d entries", len(r.SlowestModules))
		}
		for i, mt := range r.SlowestModules {
			if mt.Status != state.LoadStatusLoaded {
				t.Fatalf("slowest contains %s with status %s", mt.ModuleID, mt.Status)
			}
			if i > 0 && r.SlowestModules[i-1].LoadTime < mt.LoadTime {
				t.Fatalf("slowest not sorted descending at %d", i)
			}
		}
	})
}

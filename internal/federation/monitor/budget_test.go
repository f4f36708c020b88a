package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/R3E-Network/module_federation/pkg/testutil"
)

func TestIsCoreModule(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"core", true},
		{"core-x", true},
		{"core.data", true},
		{"core/auth", true},
		{"corex", false},
		{"scheduling", false},
		{"my-core", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCoreModule(tt.id))
		})
	}
}

func TestBudgetFor(t *testing.T) {
	m := newTestMonitor(t, Config{})

	assert.Equal(t, CoreBudget, m.BudgetFor("core-x"))
	assert.Equal(t, DefaultBudget, m.BudgetFor("scheduling"))

	custom := Budget{MaxInitTime: time.Second, MaxMemoryUsage: MiB, WarningThreshold: 0.5}
	m.SetBudget("core-x", custom)
	assert.Equal(t, custom, m.BudgetFor("core-x"))
}

func TestCheckBudget_Thresholds(t *testing.T) {
	tests := []struct {
		name string
		init time.Duration
		want []Severity
	}{
		{"below threshold", 700 * time.Millisecond, nil},
		{"at threshold", 800 * time.Millisecond, nil},
		{"between threshold and budget", 900 * time.Millisecond, []Severity{SeverityWarning}},
		{"at budget", 1000 * time.Millisecond, []Severity{SeverityError}},
		{"above budget", 1500 * time.Millisecond, []Severity{SeverityError}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMonitor(t, Config{})
			seed(m, "planner", func(mt *Metrics) { mt.InitializationTime = tt.init })

			var got []Severity
			for _, v := range m.CheckBudget("planner") {
				assert.Equal(t, MetricInitializationTime, v.Metric)
				assert.Equal(t, "planner", v.ModuleID)
				assert.Equal(t, float64(1000), v.Budget)
				got = append(got, v.Severity)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckBudget_MemoryIndependentOfInit(t *testing.T) {
	m := newTestMonitor(t, Config{})
	m.SetBudget("line", Budget{MaxInitTime: time.Second, MaxMemoryUsage: 10 * MiB, WarningThreshold: 0.8})
	seed(m, "line", func(mt *Metrics) {
		mt.InitializationTime = 1200 * time.Millisecond
		mt.MemoryUsage = 9 * MiB
	})

	violations := m.CheckBudget("line")
	require.Len(t, violations, 2)
	assert.Equal(t, MetricInitializationTime, violations[0].Metric)
	assert.Equal(t, SeverityError, violations[0].Severity)
	assert.Equal(t, MetricMemoryUsage, violations[1].Metric)
	assert.Equal(t, SeverityWarning, violations[1].Severity)
	assert.Equal(t, float64(9*MiB), violations[1].Actual)
}

func TestCheckBudget_UnknownModule(t *testing.T) {
	m := newTestMonitor(t, Config{})
	assert.Empty(t, m.CheckBudget("nope"))
}

func TestCheckBudget_CoreModuleSlowFactory(t *testing.T) {
	m := newTestMonitor(t, Config{})

	_, err := m.LoadModule(context.Background(), "core-x", func(context.Context) (any, error) {
		time.Sleep(300 * time.Millisecond)
		return struct{}{}, nil
	}, LoadOptions{})
	require.NoError(t, err)

	violations := m.CheckBudget("core-x")
	require.NotEmpty(t, violations)
	assert.Equal(t, MetricInitializationTime, violations[0].Metric)
	assert.Equal(t, SeverityError, violations[0].Severity)
	assert.Equal(t, float64(200), violations[0].Budget)
}

func TestCheckBudget_RecordsViolationsOncePerLoad(t *testing.T) {
	collector := testutil.NewMockCollector()
	m := New(Config{}, withQuietLogger(), WithMetrics(collector))
	t.Cleanup(m.Stop)

	const key = "RecordBudgetViolation:core-x/initializationTime/error"
	_, err := m.LoadModule(context.Background(), "core-x", func(context.Context) (any, error) {
		time.Sleep(250 * time.Millisecond)
		return struct{}{}, nil
	}, LoadOptions{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return collector.Count(key) == 1 }, time.Second, 5*time.Millisecond)

	for i := 0; i < 5; i++ {
		m.GenerateReport()
		require.Len(t, m.CheckBudget("core-x"), 1)
	}
	assert.Equal(t, 1, collector.Count(key), "polling budgets must not count new violations")
}

func TestCheckBudget_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		budgetMs := rapid.Int64Range(10, 5000).Draw(t, "budgetMs")
		threshold := rapid.SampledFrom([]float64{0.5, 0.6, 0.7, 0.8, 0.9}).Draw(t, "threshold")
		actualMs := rapid.Int64Range(0, 2*budgetMs).Draw(t, "actualMs")

		m := New(Config{}, withQuietLogger())
		defer m.Stop()
		m.SetBudget("mod", Budget{MaxInitTime: time.Duration(budgetMs) * time.Millisecond, WarningThreshold: threshold})
		seed(m, "mod", func(mt *Metrics) { mt.InitializationTime = time.Duration(actualMs) * time.Millisecond })

		violations := m.CheckBudget("mod")
		switch {
		case actualMs >= budgetMs:
			if len(violations) != 1 || violations[0].Severity != SeverityError {
				t.Fatalf("actual %d >= budget %d: got %+v, want one error", actualMs, budgetMs, violations)
			}
		case float64(actualMs) > float64(budgetMs)*threshold:
			if len(violations) != 1 || violations[0].Severity != SeverityWarning {
				t.Fatalf("actual %d in warning band of %d (%.1f): got %+v", actualMs, budgetMs, threshold, violations)
			}
		default:
			if len(violations) != 0 {
				t.Fatalf("actual %d below threshold of %d: got %+v", actualMs, budgetMs, violations)
			}
		}
	})
}

package metrics

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector("test")
	if c == nil {
		t.Fatal("NewCollector returned nil")
	}
	if c.Registry() == nil {
		t.Error("registry should not be nil")
	}
}

func TestNewCollector_DefaultNamespace(t *testing.T) {
	c := NewCollector("")
	c.RecordLoad("m1", "high", 10*time.Millisecond, nil)

	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "federation_module_loads_total" {
			found = true
		}
	}
	if !found {
		t.Error("expected federation_module_loads_total to be registered under the default namespace")
	}
}

func TestCollector_LoadMetrics(t *testing.T) {
	c := NewCollector("test")

	c.RecordLoad("m1", "high", 100*time.Millisecond, nil)
	c.RecordLoad("m1", "high", 50*time.Millisecond, errors.New("load failed"))
	c.RecordLoad("m2", "normal", 10*time.Millisecond, nil)

	if got := testutil.ToFloat64(c.loadTotal.WithLabelValues("m1", "success")); got != 1 {
		t.Errorf("m1 success loads = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.loadTotal.WithLabelValues("m1", "error")); got != 1 {
		t.Errorf("m1 error loads = %v, want 1", got)
	}

	c.RecordCacheHit("m1")
	c.RecordCacheHit("m1")
	if got := testutil.ToFloat64(c.cacheHits.WithLabelValues("m1")); got != 2 {
		t.Errorf("cache hits = %v, want 2", got)
	}
}

func TestCollector_CallMetrics(t *testing.T) {
	c := NewCollector("test")

	c.RecordCall("m1", "ScheduleJob", time.Millisecond, nil)
	c.RecordCall("m1", "ScheduleJob", time.Millisecond, errors.New("x"))
	c.RecordSlowCall("m1", "ScheduleJob")

	if got := testutil.ToFloat64(c.callTotal.WithLabelValues("m1", "ScheduleJob", "success")); got != 1 {
		t.Errorf("success calls = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.slowCalls.WithLabelValues("m1", "ScheduleJob")); got != 1 {
		t.Errorf("slow calls = %v, want 1", got)
	}
}

func TestCollector_GaugesAndReset(t *testing.T) {
	c := NewCollector("test")

	c.RecordModuleStatus("m1", 2)
	c.RecordMemory("m1", 1024)
	c.RecordLoadsInFlight(3)
	c.RecordPreloadQueue(4)

	if got := testutil.ToFloat64(c.memoryUsage.WithLabelValues("m1")); got != 1024 {
		t.Errorf("memory = %v, want 1024", got)
	}

	c.Forget("m1")
	if got := testutil.CollectAndCount(c.memoryUsage); got != 0 {
		t.Errorf("memory series after Forget = %d, want 0", got)
	}

	c.Reset()
	if got := testutil.ToFloat64(c.loadsInFlight); got != 0 {
		t.Errorf("in flight after reset = %v, want 0", got)
	}
}

func TestCollector_BusAndBudget(t *testing.T) {
	c := NewCollector("test")

	// Should not panic
	c.RecordEmit("type")
	c.RecordEmit("target")
	c.RecordRequest(nil)
	c.RecordRequest(errors.New("timeout"))
	c.RecordListenerPanic()
	c.RecordBudgetViolation("core-x", "initializationTime", "error")
	c.RecordDependencySkipped("m1", "missing")

	if got := testutil.ToFloat64(c.budgetViolations.WithLabelValues("core-x", "initializationTime", "error")); got != 1 {
		t.Errorf("violations = %v, want 1", got)
	}
}

func TestCollector_WriteText(t *testing.T) {
	c := NewCollector("plant")
	c.RecordLoad("scheduling", "normal", 40*time.Millisecond, nil)
	c.RecordMemory("scheduling", 2048)

	var buf bytes.Buffer
	if err := c.WriteText(&buf); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`plant_module_loads_total{module="scheduling",result="success"} 1`,
		`plant_module_memory_bytes{module="scheduling"} 2048`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestNoOpCollector(t *testing.T) {
	var c MetricsCollector = NewNoOpCollector()

	// Should not panic
	c.RecordModuleStatus("m", 1)
	c.RecordLoad("m", "high", time.Second, nil)
	c.RecordCall("m", "f", time.Second, errors.New("x"))
	c.RecordMemory("m", 1)
	c.Forget("m")
	c.Reset()
}

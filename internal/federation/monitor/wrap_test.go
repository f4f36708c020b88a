package monitor

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/R3E-Network/module_federation/pkg/testutil"
)

func TestWrapMethod_PreservesResultAndError(t *testing.T) {
	m := newTestMonitor(t, Config{})
	errNoCapacity := errors.New("no capacity")

	schedule := func(job string, hours int) (string, error) {
		if hours > 8 {
			return "", errNoCapacity
		}
		return fmt.Sprintf("%s@%dh", job, hours), nil
	}
	wrapped, ok := m.WrapMethod("scheduling", "ScheduleJob", schedule).(func(string, int) (string, error))
	require.True(t, ok, "wrapper must keep the signature")

	got, err := wrapped("weld", 4)
	require.NoError(t, err)
	assert.Equal(t, "weld@4h", got)

	_, err = wrapped("paint", 12)
	assert.Same(t, errNoCapacity, err)

	mt, _ := m.GetMetrics("scheduling")
	assert.Equal(t, int64(2), mt.EventCount)
	assert.Equal(t, int64(1), mt.Errors)
	assert.False(t, mt.LastEventTime.IsZero())
}

func TestWrapMethod_Variadic(t *testing.T) {
	m := newTestMonitor(t, Config{})
	join := func(sep string, parts ...string) string { return strings.Join(parts, sep) }

	wrapped := m.WrapMethod("fmt", "Join", join).(func(string, ...string) string)
	assert.Equal(t, "a-b-c", wrapped("-", "a", "b", "c"))
	assert.Equal(t, "", wrapped("-"))

	mt, _ := m.GetMetrics("fmt")
	assert.Equal(t, int64(2), mt.EventCount)
	assert.Equal(t, int64(0), mt.Errors)
}

func TestWrapMethod_PanicIsRecordedAndReraised(t *testing.T) {
	m := newTestMonitor(t, Config{})
	wrapped := m.WrapMethod("line", "Stop", func() { panic("jammed") }).(func())

	assert.PanicsWithValue(t, "jammed", wrapped)

	mt, _ := m.GetMetrics("line")
	assert.Equal(t, int64(1), mt.EventCount)
	assert.Equal(t, int64(1), mt.Errors)
}

func TestWrapMethod_NonFunctionPassesThrough(t *testing.T) {
	m := newTestMonitor(t, Config{})
	assert.Equal(t, 42, m.WrapMethod("x", "value", 42))

	var nilFn func()
	assert.Nil(t, m.WrapMethod("x", "nil", nilFn).(func()))
	assert.Empty(t, m.GetAllMetrics())
}

func TestWrapMethod_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := New(Config{}, withQuietLogger())
		defer m.Stop()

		sentinel := errors.New("rejected")
		fn := func(a, b int, fail bool) (int, error) {
			if fail {
				return a, sentinel
			}
			return a + b, nil
		}
		wrapped := m.WrapMethod("calc", "Add", fn).(func(int, int, bool) (int, error))

		calls := rapid.IntRange(1, 20).Draw(t, "calls")
		failures := 0
		for i := 0; i < calls; i++ {
			a := rapid.Int().Draw(t, "a")
			b := rapid.Int().Draw(t, "b")
			fail := rapid.Bool().Draw(t, "fail")

			wantV, wantErr := fn(a, b, fail)
			gotV, gotErr := wrapped(a, b, fail)
			if gotV != wantV || gotErr != wantErr {
				t.Fatalf("wrapped(%d, %d, %v) = (%d, %v), want (%d, %v)", a, b, fail, gotV, gotErr, wantV, wantErr)
			}
			if fail {
				failures++
			}

			mt, _ := m.GetMetrics("calc")
			if mt.EventCount != int64(i+1) {
				t.Fatalf("EventCount = %d after %d calls", mt.EventCount, i+1)
			}
		}

		mt, _ := m.GetMetrics("calc")
		if mt.Errors != int64(failures) {
			t.Fatalf("Errors = %d, want %d", mt.Errors, failures)
		}
	})
}

func TestTrack_AndCall(t *testing.T) {
	m := newTestMonitor(t, Config{SlowCallThreshold: time.Millisecond})

	err := m.Track("quality", "Inspect", func() error {
		time.Sleep(3 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	rate, err := Call(m, "quality", "DefectRate", func() (float64, error) { return 0.25, nil })
	require.NoError(t, err)
	assert.Equal(t, 0.25, rate)

	boom := errors.New("sensor offline")
	_, err = Call(m, "quality", "DefectRate", func() (float64, error) { return 0, boom })
	assert.Same(t, boom, err)

	mt, _ := m.GetMetrics("quality")
	assert.Equal(t, int64(3), mt.EventCount)
	assert.Equal(t, int64(1), mt.Errors)
	assert.Greater(t, m.AverageEventLatency(), time.Duration(0))
}

func TestTrack_RecordsSlowCalls(t *testing.T) {
	collector := testutil.NewMockCollector()
	m := New(Config{SlowCallThreshold: 2 * time.Millisecond}, withQuietLogger(), WithMetrics(collector))
	t.Cleanup(m.Stop)

	require.NoError(t, m.Track("shop-floor", "LineStatus", func() error { return nil }))
	require.NoError(t, m.Track("shop-floor", "ReportOutput", func() error {
		time.Sleep(5 * time.Millisecond)
		return nil
	}))

	assert.Equal(t, 1, collector.Count("RecordCall:shop-floor/LineStatus/ok"))
	assert.Equal(t, 1, collector.Count("RecordCall:shop-floor/ReportOutput/ok"))
	assert.Equal(t, 0, collector.Count("RecordSlowCall:shop-floor/LineStatus"))
	assert.Equal(t, 1, collector.Count("RecordSlowCall:shop-floor/ReportOutput"))
}

func TestTrack_PanicReraised(t *testing.T) {
	m := newTestMonitor(t, Config{})
	assert.PanicsWithValue(t, "boom", func() {
		_ = m.Track("x", "y", func() error { panic("boom") })
	})
	mt, _ := m.GetMetrics("x")
	assert.Equal(t, int64(1), mt.Errors)
}

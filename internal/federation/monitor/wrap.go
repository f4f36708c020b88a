package monitor

import (
	"fmt"
	"reflect"
	"time"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// observe records one instrumented call.
func (m *Monitor) observe(moduleID, method string, took time.Duration, err error) {
	m.mu.Lock()
	mt := m.metricsFor(moduleID)
	mt.EventCount++
	mt.LastEventTime = time.Now()
	if err != nil {
		mt.Errors++
	}
	m.pushLatencyLocked(took)
	m.mu.Unlock()

	m.collector.RecordCall(moduleID, method, took, err)
	if took > m.config.SlowCallThreshold {
		m.collector.RecordSlowCall(moduleID, method)
		m.log.WithFields(map[string]interface{}{
			"module":    moduleID,
			"method":    method,
			"duration":  took.String(),
			"threshold": m.config.SlowCallThreshold.String(),
		}).Warn("slow module call")
	}
}

// Track runs fn as an instrumented call of moduleID.method. The error of fn
// is returned unchanged; a panic is recorded as a failure and re-raised.
func (m *Monitor) Track(moduleID, method string, fn func() error) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			m.observe(moduleID, method, time.Since(start), fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	err = fn()
	m.observe(moduleID, method, time.Since(start), err)
	return err
}

// Call runs fn as an instrumented call and returns its result unchanged.
func Call[T any](m *Monitor, moduleID, method string, fn func() (T, error)) (T, error) {
	var result T
	err := m.Track(moduleID, method, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}

// WrapMethod returns a function with the same signature as fn that records
// every call against moduleID.method. A call fails when its last result is a
// non-nil error or when it panics. Values that are not functions are returned
// as is.
func (m *Monitor) WrapMethod(moduleID, method string, fn any) any {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return fn
	}
	t := v.Type()

	errIndex := -1
	if n := t.NumOut(); n > 0 && t.Out(n-1) == errorType {
		errIndex = n - 1
	}

	wrapped := reflect.MakeFunc(t, func(args []reflect.Value) []reflect.Value {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				m.observe(moduleID, method, time.Since(start), fmt.Errorf("panic: %v", r))
				panic(r)
			}
		}()

		var out []reflect.Value
		if t.IsVariadic() {
			out = v.CallSlice(args)
		} else {
			out = v.Call(args)
		}

		var err error
		if errIndex >= 0 && !out[errIndex].IsNil() {
			err = out[errIndex].Interface().(error)
		}
		m.observe(moduleID, method, time.Since(start), err)
		return out
	})
	return wrapped.Interface()
}

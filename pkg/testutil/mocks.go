// Package testutil provides common testing utilities and mock implementations.
package testutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/R3E-Network/module_federation/internal/federation/metrics"
)

// MemoryStore is a generic in-memory store for testing.
type MemoryStore[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore[K comparable, V any]() *MemoryStore[K, V] {
	return &MemoryStore[K, V]{items: make(map[K]V)}
}

// Set stores an item.
func (s *MemoryStore[K, V]) Set(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
}

// Update applies fn to the current value of key under the store lock.
func (s *MemoryStore[K, V]) Update(key K, fn func(V) V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = fn(s.items[key])
}

// Get retrieves an item.
func (s *MemoryStore[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Delete removes an item.
func (s *MemoryStore[K, V]) Delete(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

// All returns all items.
func (s *MemoryStore[K, V]) All() map[K]V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[K]V, len(s.items))
	for k, v := range s.items {
		result[k] = v
	}
	return result
}

// Count returns the number of items.
func (s *MemoryStore[K, V]) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// MockCollector is a metrics.MetricsCollector that counts every recording.
// Keys have the form "<Method>:<labels joined by '/'>", for example
// "RecordSlowCall:scheduling/ScheduleJob".
type MockCollector struct {
	counts *MemoryStore[string, int]
	gauges *MemoryStore[string, float64]
}

var _ metrics.MetricsCollector = (*MockCollector)(nil)

// NewMockCollector creates an empty recording collector.
func NewMockCollector() *MockCollector {
	return &MockCollector{
		counts: NewMemoryStore[string, int](),
		gauges: NewMemoryStore[string, float64](),
	}
}

func (c *MockCollector) inc(method string, labels ...string) {
	key := method + ":"
	for i, l := range labels {
		if i > 0 {
			key += "/"
		}
		key += l
	}
	c.counts.Update(key, func(n int) int { return n + 1 })
}

// Count returns how many times key was recorded.
func (c *MockCollector) Count(key string) int {
	n, _ := c.counts.Get(key)
	return n
}

// Counts returns a copy of all recorded counts.
func (c *MockCollector) Counts() map[string]int {
	return c.counts.All()
}

// Gauge returns the last value set for key, for example "Memory:quality".
func (c *MockCollector) Gauge(key string) (float64, bool) {
	return c.gauges.Get(key)
}

func errLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (c *MockCollector) RecordModuleStatus(module string, status int) {
	c.inc("RecordModuleStatus", module)
	c.gauges.Set("Status:"+module, float64(status))
}

func (c *MockCollector) RecordLoad(module, priority string, _ time.Duration, err error) {
	c.inc("RecordLoad", module, priority, errLabel(err))
}

func (c *MockCollector) RecordCacheHit(module string) {
	c.inc("RecordCacheHit", module)
}

func (c *MockCollector) RecordLoadsInFlight(count int) {
	c.gauges.Set("LoadsInFlight", float64(count))
}

func (c *MockCollector) RecordPreloadQueue(depth int) {
	c.gauges.Set("PreloadQueue", float64(depth))
}

func (c *MockCollector) RecordDependencySkipped(module, reason string) {
	c.inc("RecordDependencySkipped", module, reason)
}

func (c *MockCollector) RecordCall(module, method string, _ time.Duration, err error) {
	c.inc("RecordCall", module, method, errLabel(err))
}

func (c *MockCollector) RecordSlowCall(module, method string) {
	c.inc("RecordSlowCall", module, method)
}

func (c *MockCollector) RecordBudgetViolation(module, metric, severity string) {
	c.inc("RecordBudgetViolation", module, metric, severity)
}

func (c *MockCollector) RecordMemory(module string, bytes float64) {
	c.gauges.Set("Memory:"+module, bytes)
}

func (c *MockCollector) RecordEmit(scope string) {
	c.inc("RecordEmit", scope)
}

func (c *MockCollector) RecordRequest(err error) {
	c.inc("RecordRequest", errLabel(err))
}

func (c *MockCollector) RecordListenerPanic() {
	c.inc("RecordListenerPanic")
}

func (c *MockCollector) Forget(module string) {
	c.gauges.Delete("Memory:" + module)
	c.inc("Forget", module)
}

func (c *MockCollector) Reset() {
	for key := range c.gauges.All() {
		c.gauges.Delete(key)
	}
	c.inc("Reset")
}

// String summarises the recorded counts.
func (c *MockCollector) String() string {
	return fmt.Sprintf("MockCollector%v", c.counts.All())
}

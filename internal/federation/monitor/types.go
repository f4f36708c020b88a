package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/R3E-Network/module_federation/internal/federation/state"
)

// Byte sizes used by budgets and recommendations.
const (
	KiB uint64 = 1 << 10
	MiB uint64 = 1 << 20
)

// Metric names reported in violations.
const (
	MetricInitializationTime = "initializationTime"
	MetricMemoryUsage        = "memoryUsage"
)

// Severity of a budget violation.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Common errors
var (
	ErrLoadTimeout    = errors.New("module load timed out")
	ErrMonitorStopped = errors.New("performance monitor stopped")
	ErrFactoryPanic   = errors.New("module factory panicked")
	ErrNilFactory     = errors.New("module factory is nil")
)

// LoadTimeoutError is returned when a factory does not finish within the
// load timeout.
type LoadTimeoutError struct {
	ModuleID string
	Timeout  time.Duration
}

func (e *LoadTimeoutError) Error() string {
	return fmt.Sprintf("module %s: load did not finish within %v", e.ModuleID, e.Timeout)
}

// Unwrap returns ErrLoadTimeout.
func (e *LoadTimeoutError) Unwrap() error {
	return ErrLoadTimeout
}

// IsLoadTimeout reports whether err is a load timeout.
func IsLoadTimeout(err error) bool {
	return errors.Is(err, ErrLoadTimeout)
}

// Factory produces a module instance. The context is cancelled when the load
// times out or the monitor stops.
type Factory func(ctx context.Context) (any, error)

// LoadOptions controls a single LoadModule call.
type LoadOptions struct {
	Preload  bool
	Priority state.Priority
	Cache    bool
	// Timeout bounds the factory. 0 disables the timeout.
	Timeout time.Duration
}

// Metrics is the per-module performance record.
type Metrics struct {
	ModuleID           string           `json:"moduleId"`
	InitializationTime time.Duration    `json:"initializationTime"`
	MemoryUsage        uint64           `json:"memoryUsage"`
	EventCount         int64            `json:"eventCount"`
	LastEventTime      time.Time        `json:"lastEventTime"`
	LoadTime           time.Duration    `json:"loadTime"`
	Status             state.LoadStatus `json:"status"`
	Errors             int64            `json:"errors"`
	Dependencies       []string         `json:"dependencies,omitempty"`
	DependencyLoadTime time.Duration    `json:"dependencyLoadTime"`
}

func (m *Metrics) clone() Metrics {
	out := *m
	if m.Dependencies != nil {
		out.Dependencies = append([]string(nil), m.Dependencies...)
	}
	return out
}

// Budget is the performance ceiling applied to a module.
type Budget struct {
	MaxInitTime      time.Duration `json:"maxInitTime" yaml:"max_init_time"`
	MaxMemoryUsage   uint64        `json:"maxMemoryUsage" yaml:"max_memory_usage"`
	MaxEventLatency  time.Duration `json:"maxEventLatency" yaml:"max_event_latency"`
	WarningThreshold float64       `json:"warningThreshold" yaml:"warning_threshold"`
}

// DefaultBudget applies to modules without an override.
var DefaultBudget = Budget{
	MaxInitTime:      1000 * time.Millisecond,
	MaxMemoryUsage:   50 * MiB,
	MaxEventLatency:  100 * time.Millisecond,
	WarningThreshold: 0.8,
}

// CoreBudget applies to core modules without an override.
var CoreBudget = Budget{
	MaxInitTime:      200 * time.Millisecond,
	MaxMemoryUsage:   20 * MiB,
	MaxEventLatency:  50 * time.Millisecond,
	WarningThreshold: 0.8,
}

// IsCoreModule reports whether id follows the core naming convention.
func IsCoreModule(id string) bool {
	if id == "core" {
		return true
	}
	for _, sep := range []string{"-", ".", "/"} {
		if strings.HasPrefix(id, "core"+sep) {
			return true
		}
	}
	return false
}

// Violation is a budget breach found by CheckBudget.
type Violation struct {
	ModuleID string   `json:"moduleId"`
	Metric   string   `json:"metric"`
	Actual   float64  `json:"actual"`
	Budget   float64  `json:"budget"`
	Severity Severity `json:"severity"`
}

// TimingMarker is a named interval recorded against a module.
type TimingMarker struct {
	Name     string         `json:"name"`
	Start    time.Time      `json:"start"`
	End      time.Time      `json:"end,omitempty"`
	Duration time.Duration  `json:"duration"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Report is the aggregate performance snapshot.
type Report struct {
	Timestamp           time.Time     `json:"timestamp"`
	TotalModules        int           `json:"totalModules"`
	AverageLoadTime     time.Duration `json:"averageLoadTime"`
	TotalMemoryUsage    uint64        `json:"totalMemoryUsage"`
	AverageEventLatency time.Duration `json:"averageEventLatency"`
	SlowestModules      []Metrics     `json:"slowestModules"`
	Violations          []Violation   `json:"violations"`
	Recommendations     []string      `json:"recommendations"`
}

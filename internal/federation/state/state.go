// Package state provides the shared status and priority definitions used by
// the module registry and the performance monitor. Keeping them in one place
// gives both components the same vocabulary for "ready", "loaded" and tiers.
package state

import (
	"encoding/json"
	"fmt"
)

// Status represents the registry-side lifecycle status of a module.
type Status int32

const (
	// StatusInitializing indicates the module is registered but not loaded.
	StatusInitializing Status = iota

	// StatusPreloading indicates an idle-time preload has been dispatched.
	StatusPreloading

	// StatusReady indicates the module instance is loaded and usable.
	StatusReady

	// StatusError indicates the last load attempt failed.
	StatusError

	// StatusStopped indicates the module was unloaded.
	StatusStopped
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusPreloading:
		return "preloading"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	case StatusStopped:
		return "stopped"
	default:
		return fmt.Sprintf("status(%d)", s)
	}
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ParseStatus(str)
	return nil
}

// ParseStatus converts a string to Status. Unknown values map to
// StatusInitializing.
func ParseStatus(s string) Status {
	switch s {
	case "preloading":
		return StatusPreloading
	case "ready", "loaded": // accept the monitor's wording
		return StatusReady
	case "error", "failed":
		return StatusError
	case "stopped", "unloaded":
		return StatusStopped
	default:
		return StatusInitializing
	}
}

// IsReady returns true if the module instance can be handed out.
func (s Status) IsReady() bool {
	return s == StatusReady
}

// ValidTransitions defines allowed status transitions. Any status may move to
// StatusError; that edge is handled by CanTransition and not listed here.
var ValidTransitions = map[Status][]Status{
	StatusInitializing: {StatusPreloading, StatusReady, StatusStopped},
	StatusPreloading:   {StatusReady, StatusStopped},
	StatusReady:        {StatusStopped},
	StatusError:        {StatusPreloading, StatusReady, StatusStopped},
	StatusStopped:      {StatusPreloading, StatusReady},
}

// CanTransition returns true if the transition from -> to is valid.
func CanTransition(from, to Status) bool {
	if to == StatusError {
		return true
	}
	for _, s := range ValidTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError represents an invalid status transition.
type TransitionError struct {
	Module string
	From   Status
	To     Status
}

// Error implements error.
func (e TransitionError) Error() string {
	return fmt.Sprintf("module %s: invalid status transition: %s -> %s", e.Module, e.From, e.To)
}

// LoadStatus is the monitor-side view of a module load.
type LoadStatus string

const (
	LoadStatusLoading LoadStatus = "loading"
	LoadStatusLoaded  LoadStatus = "loaded"
	LoadStatusError   LoadStatus = "error"
	LoadStatusCached  LoadStatus = "cached"
)

// Priority is the load-ordering tier of a module.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Tiers lists the priorities in load order.
var Tiers = []Priority{PriorityHigh, PriorityNormal, PriorityLow}

// Normalize returns p, or PriorityNormal when p is empty or unknown.
func (p Priority) Normalize() Priority {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return p
	default:
		return PriorityNormal
	}
}

package registry

import (
	"context"
	"time"

	"github.com/R3E-Network/module_federation/internal/federation/monitor"
	"github.com/R3E-Network/module_federation/internal/federation/state"
)

// Factory produces a module instance.
type Factory = monitor.Factory

// Metadata describes a module. It is immutable after registration.
type Metadata struct {
	ID           string         `json:"id" yaml:"id"`
	Name         string         `json:"name" yaml:"name"`
	Version      string         `json:"version" yaml:"version"`
	Dependencies []string       `json:"dependencies,omitempty" yaml:"dependencies"`
	Contract     string         `json:"contract,omitempty" yaml:"contract"`
	Priority     state.Priority `json:"priority" yaml:"priority"`
	Preload      bool           `json:"preload" yaml:"preload"`
	Cacheable    bool           `json:"cacheable" yaml:"cacheable"`
}

// Registration is a module known to the registry. Instance, when set, is
// used instead of calling Factory.
type Registration struct {
	Metadata Metadata
	Factory  Factory
	Instance any
}

// ModuleState is the registry-side lifecycle record of a module.
type ModuleState struct {
	ID           string       `json:"id"`
	Status       state.Status `json:"status"`
	Instance     any          `json:"-"`
	LastError    error        `json:"-"`
	Dependencies []string     `json:"dependencies,omitempty"`
	Dependents   []string     `json:"dependents,omitempty"`
	LastAccess   time.Time    `json:"lastAccess"`
}

func (s *ModuleState) clone() ModuleState {
	out := *s
	out.Dependencies = append([]string(nil), s.Dependencies...)
	out.Dependents = append([]string(nil), s.Dependents...)
	return out
}

// ModuleStatus pairs the state of a module with its performance metrics.
type ModuleStatus struct {
	State   ModuleState      `json:"state"`
	Metrics *monitor.Metrics `json:"metrics,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// StateChange is the payload of a state:change event.
type StateChange struct {
	Key      string `json:"key"`
	OldValue any    `json:"oldValue"`
	NewValue any    `json:"newValue"`
}

// FromFunc adapts a plain constructor. It is called on every load.
func FromFunc[T any](fn func() T) Factory {
	return func(context.Context) (any, error) {
		return fn(), nil
	}
}

// FromConstructor adapts a constructor that can fail. Every load gets a new
// value.
func FromConstructor[T any](fn func(ctx context.Context) (T, error)) Factory {
	return func(ctx context.Context) (any, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// FromSingleton returns v on every load.
func FromSingleton(v any) Factory {
	return func(context.Context) (any, error) {
		return v, nil
	}
}

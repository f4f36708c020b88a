package registry

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrModuleNotFound      = errors.New("module not found")
	ErrAlreadyRegistered   = errors.New("module already registered")
	ErrInvalidRegistration = errors.New("invalid module registration")
	ErrRegistryClosed      = errors.New("module registry is shut down")
	ErrDependencyLoad      = errors.New("dependency load failed")
	ErrDependencyCycle     = errors.New("dependency cycle")
	ErrNilInstance         = errors.New("module factory returned nil instance")
)

// ModuleNotFoundError is returned for ids that were never registered.
type ModuleNotFoundError struct {
	ID string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("module %s not found", e.ID)
}

// Unwrap returns ErrModuleNotFound.
func (e *ModuleNotFoundError) Unwrap() error {
	return ErrModuleNotFound
}

// DependencyLoadError describes a dependency that was skipped while loading
// a module. It is logged; the dependent module still loads.
type DependencyLoadError struct {
	ModuleID   string
	Dependency string
	Err        error
}

func (e *DependencyLoadError) Error() string {
	return fmt.Sprintf("module %s: dependency %s: %v", e.ModuleID, e.Dependency, e.Err)
}

// Unwrap returns both ErrDependencyLoad and the underlying cause.
func (e *DependencyLoadError) Unwrap() []error {
	return []error{ErrDependencyLoad, e.Err}
}

// Reason returns a short label for metrics.
func (e *DependencyLoadError) Reason() string {
	switch {
	case errors.Is(e.Err, ErrModuleNotFound):
		return "missing"
	case errors.Is(e.Err, ErrDependencyCycle):
		return "cycle"
	default:
		return "failed"
	}
}

// IsNotFound reports whether err is a missing module error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrModuleNotFound)
}

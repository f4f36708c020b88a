package contract

import (
	"context"

	"github.com/R3E-Network/module_federation/internal/federation/events"
)

// Coordinator is the cross-module surface handed to a module on
// initialization.
type Coordinator interface {
	Emit(eventType string, payload any, target string)
	Subscribe(eventType string, handler events.Handler) func()
	SubscribeTarget(target string, handler events.Handler) func()
	SendMessage(ctx context.Context, target string, body any) (any, error)
	Respond(req events.Message, response any)
	Broadcast(body any)
	SetSharedState(key string, value any)
	GetSharedState(key string) (any, bool)
}

// InitContext is passed to Initializer.Initialize.
type InitContext struct {
	ModuleID string
	// Dependencies holds the resolved dependency instances keyed by id.
	// Dependencies that failed to load are absent.
	Dependencies map[string]any
	Config       map[string]any
	Bus          Coordinator
}

// Initializer is implemented by modules that need setup after their
// dependencies are resolved.
type Initializer interface {
	Initialize(ctx context.Context, ic InitContext) error
}

// Destroyer is implemented by modules that release resources on unload.
type Destroyer interface {
	Destroy(ctx context.Context) error
}

// Capability keys recognised as lifecycle hooks on a Capabilities module.
const (
	HookInitialize = "Initialize"
	HookDestroy    = "Destroy"
)

// AsInitializer returns the initialization hook of instance, if any.
func AsInitializer(instance any) (func(context.Context, InitContext) error, bool) {
	switch v := instance.(type) {
	case Initializer:
		return v.Initialize, true
	case Capabilities:
		fn, ok := v[HookInitialize].(func(context.Context, InitContext) error)
		return fn, ok
	}
	return nil, false
}

// AsDestroyer returns the destroy hook of instance, if any.
func AsDestroyer(instance any) (func(context.Context) error, bool) {
	switch v := instance.(type) {
	case Destroyer:
		return v.Destroy, true
	case Capabilities:
		fn, ok := v[HookDestroy].(func(context.Context) error)
		return fn, ok
	}
	return nil, false
}

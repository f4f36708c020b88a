package registry

import (
	"context"
	"sort"

	"github.com/R3E-Network/module_federation/internal/federation/events"
)

// Emit delivers payload to target's listeners, or to eventType's listeners
// when target is empty.
func (r *Registry) Emit(eventType string, payload any, target string) {
	r.bus.Emit(eventType, payload, target)
}

// Subscribe registers handler for eventType and returns its unsubscribe
// function.
func (r *Registry) Subscribe(eventType string, handler events.Handler) func() {
	return r.bus.Subscribe(eventType, handler)
}

// SubscribeTarget registers handler for events addressed to target.
func (r *Registry) SubscribeTarget(target string, handler events.Handler) func() {
	return r.bus.SubscribeTarget(target, handler)
}

// SendMessage sends body to target and waits for its response.
func (r *Registry) SendMessage(ctx context.Context, target string, body any) (any, error) {
	return r.bus.Request(ctx, target, body)
}

// Respond answers a message received through SendMessage.
func (r *Registry) Respond(req events.Message, response any) {
	r.bus.Respond(req, response)
}

// Broadcast emits body to every broadcast listener.
func (r *Registry) Broadcast(body any) {
	r.bus.Broadcast(body)
}

// RecentEvents returns the latest n bus events, newest first.
func (r *Registry) RecentEvents(n int) []events.Event {
	return r.bus.Recent(n)
}

// SetSharedState stores value under key and emits a state:change event.
func (r *Registry) SetSharedState(key string, value any) {
	r.sharedMu.Lock()
	old := r.shared[key]
	r.shared[key] = value
	r.sharedMu.Unlock()

	r.bus.Emit(events.EventStateChange, StateChange{Key: key, OldValue: old, NewValue: value}, "")
}

// GetSharedState returns the value stored under key.
func (r *Registry) GetSharedState(key string) (any, bool) {
	r.sharedMu.RLock()
	defer r.sharedMu.RUnlock()
	v, ok := r.shared[key]
	return v, ok
}

// SyncState writes every entry of values, in key order, emitting one
// state:change per key.
func (r *Registry) SyncState(values map[string]any) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		r.SetSharedState(k, values[k])
	}
}

// SharedStateSnapshot returns a copy of the shared state.
func (r *Registry) SharedStateSnapshot() map[string]any {
	r.sharedMu.RLock()
	defer r.sharedMu.RUnlock()

	out := make(map[string]any, len(r.shared))
	for k, v := range r.shared {
		out[k] = v
	}
	return out
}

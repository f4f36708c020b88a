// Package events provides the in-process event bus used for cross-module
// coordination. Listeners subscribe either to an event type (broadcast
// delivery) or to a target module id (directed delivery). Request/response
// is layered on top with correlation ids. A bounded ring of recent events is
// kept for dashboards and debugging.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/module_federation/internal/federation/metrics"
	"github.com/R3E-Network/module_federation/pkg/logger"
)

// Well-known event types.
const (
	EventModuleRegistered   = "module:registered"
	EventModuleReady        = "module:ready"
	EventModuleError        = "module:error"
	EventModuleUnregistered = "module:unregistered"
	EventStateChange        = "state:change"
	EventMessage            = "message"
	EventBroadcast          = "broadcast"
	EventRegistryShutdown   = "registry:shutdown"

	// ResponsePrefix prefixes the event type that answers a request.
	ResponsePrefix = "response:"
)

// Common errors
var (
	ErrRequestTimeout = errors.New("request timed out")
	ErrBusClosed      = errors.New("event bus is closed")
)

// Event is a single bus delivery.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Message is the payload of a request sent with Request.
type Message struct {
	ID   string `json:"id"`
	From string `json:"from,omitempty"`
	Body any    `json:"body,omitempty"`
}

// Handler processes events as they are emitted.
type Handler func(Event)

// Config holds bus configuration.
type Config struct {
	// RequestTimeout bounds Request when the context has no earlier deadline.
	RequestTimeout time.Duration
	// HistorySize is the number of recent events kept. Default 1000.
	HistorySize int
}

// DefaultConfig returns the default bus configuration.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 5 * time.Second,
		HistorySize:    1000,
	}
}

type handlerEntry struct {
	id      int64
	handler Handler
}

// Bus is a thread-safe publish/subscribe bus.
type Bus struct {
	mu       sync.RWMutex
	byType   map[string][]handlerEntry
	byTarget map[string][]handlerEntry
	nextID   int64
	closed   bool

	// recent events ring
	history []Event
	head    int
	count   int

	config  Config
	log     *logger.Logger
	metrics metrics.MetricsCollector
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the bus logger.
func WithLogger(l *logger.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.log = l
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(mc metrics.MetricsCollector) Option {
	return func(b *Bus) {
		if mc != nil {
			b.metrics = mc
		}
	}
}

// NewBus creates a new event bus.
func NewBus(cfg Config, opts ...Option) *Bus {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 1000
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}
	b := &Bus{
		byType:   make(map[string][]handlerEntry),
		byTarget: make(map[string][]handlerEntry),
		history:  make([]Event, cfg.HistorySize),
		config:   cfg,
		log:      logger.NewDefault("events"),
		metrics:  metrics.NewNoOpCollector(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Emit delivers payload to the listeners of target when target is set,
// otherwise to the listeners of eventType. Listeners run synchronously on the
// caller's goroutine; a panicking listener is logged and skipped.
func (b *Bus) Emit(eventType string, payload any, target string) Event {
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Target:    target,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return event
	}
	b.history[b.head] = event
	b.head = (b.head + 1) % len(b.history)
	if b.count < len(b.history) {
		b.count++
	}

	var source []handlerEntry
	scope := "type"
	if target != "" {
		source = b.byTarget[target]
		scope = "target"
	} else {
		source = b.byType[eventType]
	}
	handlers := make([]handlerEntry, len(source))
	copy(handlers, source)
	b.mu.Unlock()

	b.metrics.RecordEmit(scope)

	// Notify handlers outside the lock
	for _, h := range handlers {
		b.deliver(h, event)
	}
	return event
}

func (b *Bus) deliver(h handlerEntry, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.RecordListenerPanic()
			b.log.WithFields(map[string]interface{}{
				"event_type": event.Type,
				"target":     event.Target,
				"panic":      fmt.Sprint(r),
			}).Error("event listener panicked")
		}
	}()
	h.handler(event)
}

// Subscribe registers a handler for events of eventType and returns a
// function that removes it.
func (b *Bus) Subscribe(eventType string, handler Handler) func() {
	return b.add(b.byType, eventType, handler)
}

// SubscribeTarget registers a handler for events addressed to target.
func (b *Bus) SubscribeTarget(target string, handler Handler) func() {
	return b.add(b.byTarget, target, handler)
}

func (b *Bus) add(table map[string][]handlerEntry, key string, handler Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	table[key] = append(table[key], handlerEntry{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			entries := table[key]
			for i, h := range entries {
				if h.id == id {
					table[key] = append(entries[:i:i], entries[i+1:]...)
					break
				}
			}
			if len(table[key]) == 0 {
				delete(table, key)
			}
		})
	}
}

// Request sends body to target as an EventMessage and waits for the matching
// response event. It fails with ErrRequestTimeout when no response arrives
// within the configured request timeout.
func (b *Bus) Request(ctx context.Context, target string, body any) (any, error) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil, ErrBusClosed
	}

	msg := Message{ID: uuid.NewString(), Body: body}
	responses := make(chan any, 1)

	unsubscribe := b.Subscribe(ResponsePrefix+msg.ID, func(e Event) {
		select {
		case responses <- e.Payload:
		default:
		}
	})
	defer unsubscribe()

	timer := time.NewTimer(b.config.RequestTimeout)
	defer timer.Stop()

	b.Emit(EventMessage, msg, target)

	select {
	case resp := <-responses:
		if err, ok := resp.(error); ok {
			b.metrics.RecordRequest(err)
			return nil, err
		}
		b.metrics.RecordRequest(nil)
		return resp, nil
	case <-ctx.Done():
		b.metrics.RecordRequest(ctx.Err())
		return nil, fmt.Errorf("request %s to %s cancelled: %w", msg.ID, target, ctx.Err())
	case <-timer.C:
		err := fmt.Errorf("request %s to %s after %v: %w", msg.ID, target, b.config.RequestTimeout, ErrRequestTimeout)
		b.metrics.RecordRequest(err)
		return nil, err
	}
}

// Respond answers a request received as an EventMessage. An error response
// is returned to the requester as its error.
func (b *Bus) Respond(req Message, response any) {
	b.Emit(ResponsePrefix+req.ID, response, "")
}

// Broadcast emits body as an EventBroadcast to every broadcast listener.
func (b *Bus) Broadcast(body any) {
	b.Emit(EventBroadcast, body, "")
}

// Recent returns the most recent n events, newest first.
func (b *Bus) Recent(n int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || b.count == 0 {
		return nil
	}

	size := len(b.history)
	var result []Event
	for i := 0; i < b.count && len(result) < n; i++ {
		result = append(result, b.history[(b.head-1-i+size)%size])
	}
	return result
}

// Close drops every listener. Emit becomes a no-op afterwards.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.byType = make(map[string][]handlerEntry)
	b.byTarget = make(map[string][]handlerEntry)
}

package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/R3E-Network/module_federation/internal/federation/state"
)

// Limiter errors
var (
	ErrAcquireTimeout = errors.New("timed out waiting for a load slot")
	ErrLimiterClosed  = errors.New("load limiter is closed")
)

// LimiterConfig configures a Limiter.
type LimiterConfig struct {
	// MaxConcurrent caps concurrent slot holders. 0 means unlimited.
	MaxConcurrent int

	// AcquireTimeout bounds the wait for a slot. 0 waits as long as the
	// context allows.
	AcquireTimeout time.Duration
}

// Limiter is a counting semaphore over load slots.
type Limiter struct {
	config LimiterConfig
	slots  chan struct{} // nil when unlimited
	done   chan struct{}
	once   sync.Once

	active   atomic.Int32
	waiting  atomic.Int32
	acquired atomic.Int64
	timeouts atomic.Int64
}

// NewLimiter creates a load limiter.
func NewLimiter(config LimiterConfig) *Limiter {
	l := &Limiter{config: config, done: make(chan struct{})}
	if config.MaxConcurrent > 0 {
		l.slots = make(chan struct{}, config.MaxConcurrent)
	}
	return l
}

// Acquire takes a slot, waiting until one is free, ctx ends, the acquire
// timeout elapses or the limiter is closed.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case <-l.done:
		return ErrLimiterClosed
	default:
	}
	if l.slots == nil {
		l.taken()
		return nil
	}

	l.waiting.Add(1)
	defer l.waiting.Add(-1)

	var expired <-chan time.Time
	if l.config.AcquireTimeout > 0 {
		timer := time.NewTimer(l.config.AcquireTimeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case l.slots <- struct{}{}:
		l.taken()
		return nil
	case <-l.done:
		return ErrLimiterClosed
	case <-ctx.Done():
		l.timeouts.Add(1)
		return ctx.Err()
	case <-expired:
		l.timeouts.Add(1)
		return fmt.Errorf("%w after %v", ErrAcquireTimeout, l.config.AcquireTimeout)
	}
}

func (l *Limiter) taken() {
	l.active.Add(1)
	l.acquired.Add(1)
}

// Release frees a slot taken by Acquire.
func (l *Limiter) Release() {
	l.active.Add(-1)
	if l.slots != nil {
		select {
		case <-l.slots:
		default:
		}
	}
}

// Close fails current and future waiters with ErrLimiterClosed.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.done) })
}

// LimiterStats is a snapshot of limiter counters.
type LimiterStats struct {
	MaxConcurrent int   `json:"max_concurrent"`
	Active        int   `json:"active"`
	Waiting       int   `json:"waiting"`
	TotalAcquired int64 `json:"total_acquired"`
	TotalTimeouts int64 `json:"total_timeouts"`
}

// Stats returns current statistics.
func (l *Limiter) Stats() LimiterStats {
	return LimiterStats{
		MaxConcurrent: l.config.MaxConcurrent,
		Active:        int(l.active.Load()),
		Waiting:       int(l.waiting.Load()),
		TotalAcquired: l.acquired.Load(),
		TotalTimeouts: l.timeouts.Load(),
	}
}

// TierLimiter holds one limiter per priority tier.
type TierLimiter struct {
	limiters map[state.Priority]*Limiter
}

// NewTierLimiter creates a tier limiter with the same config on every tier.
// A zero MaxConcurrent leaves tiers unlimited.
func NewTierLimiter(config LimiterConfig) *TierLimiter {
	tl := &TierLimiter{limiters: make(map[state.Priority]*Limiter, len(state.Tiers))}
	if config.MaxConcurrent > 0 {
		for _, tier := range state.Tiers {
			tl.limiters[tier] = NewLimiter(config)
		}
	}
	return tl
}

// Acquire takes a slot of tier. Unlimited tiers always succeed.
func (tl *TierLimiter) Acquire(ctx context.Context, tier state.Priority) error {
	if l, ok := tl.limiters[tier]; ok {
		return l.Acquire(ctx)
	}
	return nil
}

// Release frees a slot of tier.
func (tl *TierLimiter) Release(tier state.Priority) {
	if l, ok := tl.limiters[tier]; ok {
		l.Release()
	}
}

// Stats returns statistics for capped tiers.
func (tl *TierLimiter) Stats() map[state.Priority]LimiterStats {
	result := make(map[state.Priority]LimiterStats, len(tl.limiters))
	for tier, l := range tl.limiters {
		result[tier] = l.Stats()
	}
	return result
}

// Close closes every tier.
func (tl *TierLimiter) Close() {
	for _, l := range tl.limiters {
		l.Close()
	}
}

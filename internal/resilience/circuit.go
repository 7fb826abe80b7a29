// Package resilience wraps provider calls with retries, concurrency gates and
// circuit breakers.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// BreakerState is the state of a provider breaker as reported in gate stats.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// ErrCircuitOpen matches every call rejected by an open breaker.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// OpenError is returned for a call rejected while the provider's breaker is
// open or while its half-open trial call is still running.
type OpenError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("%s: circuit breaker is open, retry in %s", e.Provider, e.RetryAfter.Round(time.Millisecond))
}

func (e *OpenError) Unwrap() error { return ErrCircuitOpen }

// BreakerConfig controls when a provider is taken out of rotation.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive transient failures that
	// opens the breaker. Default: 5.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before one trial call is
	// let through. Default: 30s.
	Cooldown time.Duration
}

// BreakerStats is a point-in-time view of a breaker.
type BreakerStats struct {
	State               BreakerState `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	Trips               int64        `json:"trips"`
	OpenedAt            *time.Time   `json:"opened_at,omitempty"`
}

// Breaker tracks the health of one provider gate. Only transient failures
// count: a permanent error means the provider answered. A call cancelled by
// its caller says nothing either way.
type Breaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	trips    int64
	openedAt time.Time
	trial    bool
}

// NewBreaker creates a closed breaker for the named gate.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{name: name, cfg: cfg, now: time.Now, state: BreakerClosed}
}

// Name returns the gate name the breaker guards.
func (b *Breaker) Name() string { return b.name }

// Allow admits one call. The returned func must be called with the call's
// result. While open, Allow returns an *OpenError until the cooldown has
// passed; then exactly one trial call is admitted and decides whether the
// breaker closes or opens again.
func (b *Breaker) Allow() (func(err error), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		wait := b.cfg.Cooldown - b.now().Sub(b.openedAt)
		if wait > 0 {
			return nil, &OpenError{Provider: b.name, RetryAfter: wait}
		}
		b.setState(BreakerHalfOpen)
		b.trial = true
		return b.trialDone, nil
	case BreakerHalfOpen:
		if b.trial {
			return nil, &OpenError{Provider: b.name}
		}
		b.trial = true
		return b.trialDone, nil
	default:
		return b.done, nil
	}
}

func (b *Breaker) done(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if errors.Is(err, context.Canceled) {
		return
	}
	if !IsTransient(err) {
		b.failures = 0
		return
	}
	b.failures++
	if b.state == BreakerClosed && b.failures >= b.cfg.FailureThreshold {
		b.open()
	}
}

func (b *Breaker) trialDone(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trial = false
	switch {
	case errors.Is(err, context.Canceled):
		// Leave the breaker half-open for the next caller's trial.
	case IsTransient(err):
		b.failures++
		b.open()
	default:
		b.failures = 0
		b.setState(BreakerClosed)
	}
}

// open must be called with b.mu held.
func (b *Breaker) open() {
	b.openedAt = b.now()
	b.trips++
	b.setState(BreakerOpen)
}

// setState must be called with b.mu held.
func (b *Breaker) setState(to BreakerState) {
	if b.state == to {
		return
	}
	zap.L().Warn("resilience: breaker state change",
		zap.String("provider", b.name),
		zap.String("from", string(b.state)),
		zap.String("to", string(to)),
		zap.Int("consecutive_failures", b.failures),
	)
	b.state = to
}

// State returns the current state. An open breaker whose cooldown has passed
// reports half-open: the next call is the trial.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

func (b *Breaker) currentState() BreakerState {
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return BreakerHalfOpen
	}
	return b.state
}

// Stats returns the breaker's counters.
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := BreakerStats{
		State:               b.currentState(),
		ConsecutiveFailures: b.failures,
		Trips:               b.trips,
	}
	if b.state != BreakerClosed {
		at := b.openedAt
		s.OpenedAt = &at
	}
	return s
}

// Run calls fn when the breaker admits it and records the result.
func Run[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	finish, err := b.Allow()
	if err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	finish(err)
	return val, err
}

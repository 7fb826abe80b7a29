package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// GateConfig bounds the calls made to one provider.
type GateConfig struct {
	// MaxConcurrency caps simultaneous in-flight calls. Default: 5.
	MaxConcurrency int
	// RatePerSec, when > 0, limits call starts per second.
	RatePerSec float64
	// Burst for the rate limiter. Default: 1.
	Burst int
	// Timeout bounds each attempt. Default: 30s.
	Timeout time.Duration
	// Breaker, when non-nil, wraps every attempt.
	Breaker *Breaker
}

// Gate enforces a provider's concurrency ceiling, rate limit and per-call
// timeout. One Gate is shared by every job and domain using the provider.
type Gate struct {
	name     string
	cfg      GateConfig
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	inFlight atomic.Int64
	calls    atomic.Int64
	failures atomic.Int64
}

// NewGate creates a gate for the named provider.
func NewGate(name string, cfg GateConfig) *Gate {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	g := &Gate{
		name: name,
		cfg:  cfg,
		sem:  semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
	}
	if cfg.RatePerSec > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
	}
	return g
}

// Name returns the provider name.
func (g *Gate) Name() string { return g.name }

// GateStats is a point-in-time view of a gate.
type GateStats struct {
	Name     string `json:"name"`
	InFlight int64  `json:"in_flight"`
	Calls    int64  `json:"calls"`
	Failures int64  `json:"failures"`
	Breaker  string `json:"breaker,omitempty"`
	Trips    int64  `json:"breaker_trips,omitempty"`
}

// Stats returns the gate's counters.
func (g *Gate) Stats() GateStats {
	s := GateStats{
		Name:     g.name,
		InFlight: g.inFlight.Load(),
		Calls:    g.calls.Load(),
		Failures: g.failures.Load(),
	}
	if g.cfg.Breaker != nil {
		bs := g.cfg.Breaker.Stats()
		s.Breaker = string(bs.State)
		s.Trips = bs.Trips
	}
	return s
}

// Call runs one attempt of fn under the gate: it waits for a concurrency
// slot and the rate limiter, then runs fn with the per-call timeout. A
// timeout that fires while ctx is still live is reported as a transient
// ProviderError.
func Call[T any](ctx context.Context, g *Gate, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return zero, eris.Wrapf(err, "resilience: %s acquire", g.name)
	}
	defer g.sem.Release(1)

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return zero, eris.Wrapf(err, "resilience: %s rate wait", g.name)
		}
	}

	g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	g.calls.Add(1)

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	run := fn
	if g.cfg.Breaker != nil {
		run = func(ctx context.Context) (T, error) {
			return Run(ctx, g.cfg.Breaker, fn)
		}
	}

	val, err := run(callCtx)
	if err == nil {
		return val, nil
	}
	g.failures.Add(1)

	if errors.Is(err, ErrCircuitOpen) {
		return zero, Permanent(g.name, op, 0, err)
	}
	if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return zero, Transient(g.name, op, 0, eris.Wrapf(err, "timed out after %s", g.cfg.Timeout))
	}
	return zero, Classify(g.name, op, 0, err)
}

// Invoke runs fn through the gate with retries. It returns the value, the
// number of attempts and the final error.
func Invoke[T any](ctx context.Context, g *Gate, retry RetryConfig, op string, fn func(ctx context.Context) (T, error)) (T, int, error) {
	return DoVal(ctx, retry, func(ctx context.Context) (T, error) {
		return Call(ctx, g, op, fn)
	})
}

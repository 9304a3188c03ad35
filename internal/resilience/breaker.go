// Package resilience keeps a failing speech or model backend from taking the
// whole service down with it.
//
// [Breaker] is a three-state circuit breaker (closed, open, half-open).
// [Chain] orders several backends of the same capability behind one breaker
// each and fails over in order. [LLM], [STT] and [TTS] expose a Chain as the
// matching provider interface so the rest of the service never knows how
// many backends are configured.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vilakkam/vilakkam/internal/observe"
)

// ErrCircuitOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until ResetTimeout has
	// passed since the last failure.
	StateOpen

	// StateHalfOpen lets up to HalfOpenMax probe calls through. Any failure
	// re-opens the breaker; HalfOpenMax successes close it.
	StateHalfOpen
)

// String returns the state name used in logs and metrics.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero values take defaults.
type BreakerConfig struct {
	// Name labels the breaker in logs.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the probe budget in the half-open state. Default: 3.
	HalfOpenMax int

	// Now overrides the clock. Default: time.Now.
	Now func() time.Time
}

// Breaker implements the circuit breaker pattern around a single backend.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	now          func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probes    int
	probeWins int
}

// NewBreaker returns a closed Breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		now:          cfg.Now,
	}
}

// Do runs fn unless the breaker is open. Errors marked with [Permanent] and
// cancellation by the caller are returned as-is and do not count against the
// backend.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.acquire(ctx)
	if err != nil {
		return err
	}

	err = fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case err == nil:
		b.onSuccess(ctx, probe)
	case IsPermanent(err) || (errors.Is(err, context.Canceled) && ctx.Err() != nil):
		if probe {
			// A probe that told us nothing about the backend is handed back.
			b.probes--
		}
	default:
		b.onFailure(ctx, probe)
	}
	return err
}

func (b *Breaker) acquire(ctx context.Context) (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			return false, ErrCircuitOpen
		}
		b.transition(ctx, StateHalfOpen)
		b.probes, b.probeWins = 0, 0
	}
	if b.state == StateHalfOpen {
		if b.probes >= b.halfOpenMax {
			return false, ErrCircuitOpen
		}
		b.probes++
		return true, nil
	}
	return false, nil
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure(ctx context.Context, probe bool) {
	b.openedAt = b.now()
	if probe {
		b.transition(ctx, StateOpen)
		return
	}
	b.failures++
	if b.failures >= b.maxFailures && b.state == StateClosed {
		b.transition(ctx, StateOpen)
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess(ctx context.Context, probe bool) {
	if !probe {
		b.failures = 0
		return
	}
	b.probeWins++
	if b.probeWins >= b.halfOpenMax && b.state == StateHalfOpen {
		b.failures = 0
		b.transition(ctx, StateClosed)
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(ctx context.Context, to State) {
	from := b.state
	b.state = to
	log := observe.Logger(ctx).With("breaker", b.name, "from", from.String(), "to", to.String())
	if to == StateOpen {
		log.WarnContext(ctx, "resilience: circuit opened", "consecutive_failures", b.failures)
	} else {
		log.InfoContext(ctx, "resilience: circuit state changed")
	}
}

// State returns the current state. An open breaker whose reset timeout has
// passed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.resetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures, b.probes, b.probeWins = 0, 0, 0
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as caused by the input rather than the backend. Such
// errors neither trip a breaker nor trigger failover.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with [Permanent].
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

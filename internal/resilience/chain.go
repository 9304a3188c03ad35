package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/vilakkam/vilakkam/internal/observe"
)

// ErrAllFailed is returned when every member of a [Chain] failed or was
// skipped by its breaker. It wraps the last member's error.
var ErrAllFailed = errors.New("resilience: all providers failed")

// Member is one named backend in a [Chain].
type Member[T any] struct {
	Name  string
	Value T
}

// ChainConfig configures a [Chain].
type ChainConfig struct {
	// Breaker is the template for each member's breaker. Name is replaced
	// with the member name.
	Breaker BreakerConfig

	// Metrics receives per-attempt provider counters. Default:
	// observe.DefaultMetrics().
	Metrics *observe.Metrics
}

type link[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Chain tries its members in order until one succeeds.
type Chain[T any] struct {
	kind    string
	links   []link[T]
	metrics *observe.Metrics
}

// NewChain builds a Chain for the capability kind ("llm", "stt", "tts").
// The first member is the primary.
func NewChain[T any](kind string, cfg ChainConfig, members ...Member[T]) (*Chain[T], error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("resilience: %s chain needs at least one provider", kind)
	}
	c := &Chain[T]{kind: kind, metrics: cfg.Metrics}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	seen := make(map[string]bool, len(members))
	for _, m := range members {
		if seen[m.Name] {
			return nil, fmt.Errorf("resilience: duplicate %s provider %q", kind, m.Name)
		}
		seen[m.Name] = true
		bc := cfg.Breaker
		bc.Name = kind + "/" + m.Name
		c.links = append(c.links, link[T]{name: m.Name, value: m.Value, breaker: NewBreaker(bc)})
	}
	return c, nil
}

// Names returns the member names in failover order.
func (c *Chain[T]) Names() []string {
	names := make([]string, len(c.links))
	for i, l := range c.links {
		names[i] = l.name
	}
	return names
}

// State returns the breaker state of the named member.
func (c *Chain[T]) State(name string) (State, bool) {
	for _, l := range c.links {
		if l.name == name {
			return l.breaker.State(), true
		}
	}
	return 0, false
}

// Call runs fn against each member of c in order until one succeeds. A
// [Permanent] error stops the chain and is returned unwrapped. So does a
// cancelled ctx.
func Call[T, R any](ctx context.Context, c *Chain[T], fn func(context.Context, Member[T]) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	log := observe.Logger(ctx)
	for i := range c.links {
		l := &c.links[i]
		var out R
		err := l.breaker.Do(ctx, func(ctx context.Context) error {
			var err error
			out, err = fn(ctx, Member[T]{Name: l.name, Value: l.value})
			return err
		})
		switch {
		case err == nil:
			c.metrics.RecordProviderRequest(ctx, l.name, c.kind, "ok")
			return out, nil
		case errors.Is(err, ErrCircuitOpen):
			c.metrics.RecordProviderRequest(ctx, l.name, c.kind, "circuit_open")
			log.DebugContext(ctx, "resilience: skipping provider, circuit open", "kind", c.kind, "provider", l.name)
		case IsPermanent(err):
			c.metrics.RecordProviderRequest(ctx, l.name, c.kind, "rejected")
			var p permanentError
			errors.As(err, &p)
			return zero, p.err
		default:
			c.metrics.RecordProviderRequest(ctx, l.name, c.kind, "error")
			c.metrics.RecordProviderError(ctx, l.name, c.kind)
			if ctx.Err() != nil {
				return zero, err
			}
			log.WarnContext(ctx, "resilience: provider failed", "kind", c.kind, "provider", l.name, "err", err)
		}
		lastErr = err
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

// Package ratelimit provides per-key sliding-window admission control.
//
// A [Limiter] answers one question per inbound request: may this client
// identifier do more work right now? Two implementations are provided:
//
//   - [SlidingWindow] keeps exact timestamps in process memory. It is the
//     default and suits a single replica.
//   - [Redis] keeps the same window as a sorted set in Redis so several
//     replicas share one budget per client.
//
// Both count only admitted requests; a rejected call never consumes budget.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Limiter decides whether a request identified by key is admitted.
//
// Implementations must be safe for concurrent use, and admission decisions for
// a single key must be linearizable.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// Compile-time interface assertions.
var (
	_ Limiter = (*SlidingWindow)(nil)
	_ Limiter = (*Redis)(nil)
)

// Option configures a SlidingWindow.
type Option func(*SlidingWindow)

// WithClock replaces the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(l *SlidingWindow) {
		l.now = now
	}
}

// SlidingWindow is an in-memory sliding-window limiter.
//
// State is one ascending timestamp slice per key, guarded by a single mutex
// over the whole map. A key is created lazily on its first admitted request.
// Allow never deletes a key; a key whose window has expired keeps an entry
// until [SlidingWindow.Prune] removes it. With [SlidingWindow.RunPruner]
// running, memory is bounded by the number of distinct clients seen within
// one window plus one prune interval. Under a flood of unique keys (spoofed or
// rotating identifiers) that bound is the request rate times that span; put a
// proxy-level limit in front when that matters.
type SlidingWindow struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	now    func() time.Time
	hits   map[string][]time.Time
}

// New returns a SlidingWindow admitting at most maxRequests per key within
// any trailing window.
func New(maxRequests int, window time.Duration, opts ...Option) (*SlidingWindow, error) {
	if maxRequests <= 0 {
		return nil, errors.New("ratelimit: maxRequests must be positive")
	}
	if window <= 0 {
		return nil, errors.New("ratelimit: window must be positive")
	}
	l := &SlidingWindow{
		max:    maxRequests,
		window: window,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// Allow reports whether key may proceed. An admitted call records the current
// time; a rejected call leaves the window untouched.
func (l *SlidingWindow) Allow(_ context.Context, key string) bool {
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	q := l.hits[key]
	i := 0
	for i < len(q) && q[i].Before(cutoff) {
		i++
	}
	q = q[i:]

	if len(q) >= l.max {
		l.hits[key] = q
		return false
	}
	if len(q) == 0 {
		// Fresh slice so the backing array of an expired window is released.
		q = make([]time.Time, 0, l.max)
	}
	l.hits[key] = append(q, now)
	return true
}

// Len returns the number of keys with an entry, including keys whose window
// has expired but that [SlidingWindow.Prune] has not yet removed.
func (l *SlidingWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}

// Prune drops every key whose newest timestamp is older than the window.
// It returns the number of keys removed.
func (l *SlidingWindow) Prune() int {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, q := range l.hits {
		if len(q) == 0 || q[len(q)-1].Before(cutoff) {
			delete(l.hits, key)
			removed++
		}
	}
	return removed
}

// RunPruner calls Prune every interval until ctx is cancelled.
func (l *SlidingWindow) RunPruner(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Prune()
		}
	}
}

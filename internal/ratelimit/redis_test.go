package ratelimit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedis emulates the sliding-window script against an in-memory sorted
// set so the limiter's argument plumbing can be tested without a server.
type fakeRedis struct {
	mu    sync.Mutex
	sets  map[string][]int64
	err   error
	calls int
	keys  []string
	ttls  []int64
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{sets: make(map[string][]int64)}
}

func (f *fakeRedis) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.keys = append(f.keys, keys...)
	if f.err != nil {
		return redis.NewCmdResult(nil, f.err)
	}
	if !strings.Contains(script, "ZREMRANGEBYSCORE") {
		return redis.NewCmdResult(nil, errors.New("unexpected script"))
	}

	now := args[0].(int64)
	cutoff := args[1].(int64)
	maxRequests := args[2].(int)
	f.ttls = append(f.ttls, args[4].(int64))

	kept := f.sets[keys[0]][:0]
	for _, score := range f.sets[keys[0]] {
		if score >= cutoff {
			kept = append(kept, score)
		}
	}
	f.sets[keys[0]] = kept
	if len(kept) >= maxRequests {
		return redis.NewCmdResult(int64(0), nil)
	}
	f.sets[keys[0]] = append(kept, now)
	return redis.NewCmdResult(int64(1), nil)
}

func TestNewRedis_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewRedis(nil, 5, time.Minute); err == nil {
		t.Error("expected error for nil client")
	}
	if _, err := NewRedis(newFakeRedis(), 0, time.Minute); err == nil {
		t.Error("expected error for zero maxRequests")
	}
	if _, err := NewRedis(newFakeRedis(), 5, time.Microsecond); err == nil {
		t.Error("expected error for sub-millisecond window")
	}
}

func TestRedis_SixthRequestRejected(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	fr := newFakeRedis()
	l, err := NewRedis(fr, 5, time.Minute, WithRedisClock(clk.Now), WithKeyPrefix("test:"))
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	ctx := context.Background()

	for i := range 5 {
		if !l.Allow(ctx, "1.2.3.4") {
			t.Fatalf("request %d rejected", i+1)
		}
		clk.Advance(time.Second)
	}
	if l.Allow(ctx, "1.2.3.4") {
		t.Fatal("6th request admitted")
	}

	clk.Advance(time.Minute)
	if !l.Allow(ctx, "1.2.3.4") {
		t.Fatal("request after window rejected")
	}

	if fr.keys[0] != "test:1.2.3.4" {
		t.Errorf("key = %q, want prefixed key", fr.keys[0])
	}
	if fr.ttls[0] != time.Minute.Milliseconds() {
		t.Errorf("ttl = %d, want %d", fr.ttls[0], time.Minute.Milliseconds())
	}
}

func TestRedis_FailsOpen(t *testing.T) {
	t.Parallel()

	fr := newFakeRedis()
	fr.err = errors.New("connection refused")
	l, _ := NewRedis(fr, 1, time.Minute)

	for range 3 {
		if !l.Allow(context.Background(), "k") {
			t.Fatal("limiter rejected while redis is down, want fail-open")
		}
	}
	if fr.calls != 3 {
		t.Errorf("calls = %d, want 3", fr.calls)
	}
}

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims, counts and conditionally appends in one atomic
// step. Scores are unix milliseconds.
//
// KEYS[1] window key
// ARGV[1] now, ARGV[2] cutoff, ARGV[3] max, ARGV[4] member, ARGV[5] ttl ms
const slidingWindowScript = `
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[2])
local count = redis.call('ZCARD', KEYS[1])
if count >= tonumber(ARGV[3]) then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`

// Evaler is the subset of a go-redis client used by Redis. *redis.Client,
// *redis.ClusterClient and *redis.Ring all satisfy it.
type Evaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// RedisOption configures a Redis limiter.
type RedisOption func(*Redis)

// WithKeyPrefix sets the prefix prepended to every client key. Defaults to
// "vilakkam:ratelimit:".
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// WithRedisClock replaces the time source. Intended for tests.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(r *Redis) {
		r.now = now
	}
}

// Redis is a sliding-window limiter whose state lives in Redis sorted sets,
// one per client key, each expiring one window after its last admission.
//
// When Redis cannot be reached the limiter fails open: the request is admitted
// and the error is logged.
type Redis struct {
	client Evaler
	max    int
	window time.Duration
	prefix string
	now    func() time.Time
	seq    atomic.Uint64
}

// NewRedis returns a Redis-backed limiter admitting at most maxRequests per
// key within any trailing window.
func NewRedis(client Evaler, maxRequests int, window time.Duration, opts ...RedisOption) (*Redis, error) {
	if client == nil {
		return nil, errors.New("ratelimit: redis client must not be nil")
	}
	if maxRequests <= 0 {
		return nil, errors.New("ratelimit: maxRequests must be positive")
	}
	if window < time.Millisecond {
		return nil, errors.New("ratelimit: window must be at least 1ms")
	}
	r := &Redis{
		client: client,
		max:    maxRequests,
		window: window,
		prefix: "vilakkam:ratelimit:",
		now:    time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Allow implements Limiter.
func (r *Redis) Allow(ctx context.Context, key string) bool {
	ok, err := r.allow(ctx, key)
	if err != nil {
		slog.Warn("ratelimit: redis check failed, admitting request", "key", key, "err", err)
		return true
	}
	return ok
}

func (r *Redis) allow(ctx context.Context, key string) (bool, error) {
	now := r.now()
	nowMs := now.UnixMilli()
	cutoff := nowMs - r.window.Milliseconds()
	// Members must be unique even when two requests share a millisecond.
	member := strconv.FormatInt(now.UnixNano(), 36) + "-" + strconv.FormatUint(r.seq.Add(1), 36)

	res, err := r.client.Eval(ctx, slidingWindowScript, []string{r.prefix + key},
		nowMs, cutoff, r.max, member, r.window.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("ratelimit: eval: %w", err)
	}
	return res == 1, nil
}

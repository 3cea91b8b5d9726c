package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Store names.
const (
	StoreLocal = "local"
	StoreRedis = "redis"
)

// Decision is the outcome of a limiter check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

const (
	defaultEntryTTL        = 10 * time.Minute
	defaultCleanupInterval = time.Minute
)

type localEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// localLimiter is an in-process token bucket per key.
type localLimiter struct {
	limit rate.Limit
	burst int

	mu          sync.Mutex
	entries     map[string]*localEntry
	lastCleanup time.Time
	now         func() time.Time
}

func newLocalLimiter(requests int, window time.Duration, burst int) *localLimiter {
	return &localLimiter{
		limit:       rate.Limit(float64(requests) / window.Seconds()),
		burst:       burst,
		entries:     make(map[string]*localEntry),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (l *localLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	l.cleanup(now)
	entry, ok := l.entries[key]
	if !ok {
		entry = &localEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = entry
	}
	entry.lastAccess = now
	limiter := entry.limiter
	l.mu.Unlock()

	d := Decision{Limit: l.burst}
	r := limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		d.RetryAfter = delay
		return d, nil
	}
	d.Allowed = true
	d.Remaining = max(int(limiter.TokensAt(now)), 0)
	return d, nil
}

// cleanup drops idle entries. Callers hold l.mu.
func (l *localLimiter) cleanup(now time.Time) {
	if now.Sub(l.lastCleanup) < defaultCleanupInterval {
		return
	}
	l.lastCleanup = now
	for key, entry := range l.entries {
		if now.Sub(entry.lastAccess) > defaultEntryTTL {
			delete(l.entries, key)
		}
	}
}

func (l *localLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// fixedWindowScript counts requests per window atomically.
// Returns: allowed (0 or 1), remaining count, reset time in ms.
var fixedWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])

	local window_start = math.floor(now / window_ms) * window_ms
	local window_key = key .. ':' .. window_start

	local count = tonumber(redis.call('GET', window_key) or '0')

	local allowed = 0
	if count + 1 <= limit then
		count = redis.call('INCR', window_key)
		if count == 1 then
			redis.call('PEXPIRE', window_key, window_ms)
		end
		allowed = 1
	end

	return {allowed, limit - count, window_start + window_ms - now}
`)

// redisLimiter is a fixed window shared by every gateway instance using
// the same redis.
type redisLimiter struct {
	client   redis.Scripter
	prefix   string
	requests int
	window   time.Duration
	now      func() time.Time
}

func newRedisLimiter(client redis.Scripter, prefix string, requests int, window time.Duration) *redisLimiter {
	return &redisLimiter{
		client:   client,
		prefix:   prefix,
		requests: requests,
		window:   window,
		now:      time.Now,
	}
}

func (r *redisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := fixedWindowScript.Run(ctx, r.client,
		[]string{r.prefix + key},
		r.requests,
		r.window.Milliseconds(),
		r.now().UnixMilli(),
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("fixed window script error: %w", err)
	}
	return parseScriptResult(res, r.requests)
}

var errScriptResult = errors.New("unexpected script result format")

// parseScriptResult parses [allowed, remaining, reset_ms].
func parseScriptResult(res any, limit int) (Decision, error) {
	values, ok := res.([]any)
	if !ok || len(values) < 3 {
		return Decision{}, fmt.Errorf("%w: %v", errScriptResult, res)
	}

	d := Decision{Limit: limit}
	if v, ok := values[0].(int64); ok && v == 1 {
		d.Allowed = true
	}
	if v, ok := values[1].(int64); ok && v > 0 {
		d.Remaining = int(v)
	}
	if !d.Allowed {
		if v, ok := values[2].(int64); ok {
			d.RetryAfter = time.Duration(v) * time.Millisecond
		}
	}
	return d, nil
}

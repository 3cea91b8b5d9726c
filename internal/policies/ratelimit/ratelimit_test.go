package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/flowgate/internal/execution"
	"github.com/vyrodovalexey/flowgate/internal/policies/policytest"
	"github.com/vyrodovalexey/flowgate/internal/policy"
)

type hitRecorder struct {
	mu   sync.Mutex
	hits map[string]int
}

func newHitRecorder() *hitRecorder {
	return &hitRecorder{hits: make(map[string]int)}
}

func (r *hitRecorder) RecordRateLimitHit(store string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits[store]++
}

func (r *hitRecorder) count(store string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits[store]
}

func newRequestContext(t *testing.T, remoteAddr string) *execution.Context {
	t.Helper()
	req := policytest.Request(http.MethodGet, "/")
	req.RemoteAddr = remoteAddr
	return policytest.NewContext(t, req)
}

func TestPolicy_Local(t *testing.T) {
	t.Parallel()

	rec := newHitRecorder()
	p := policytest.MustBuild(t, Plugin(WithRecorder(rec)), "requests: 2\nwindow: 1h\nheaders: true\n")

	for i := 0; i < 2; i++ {
		r := policytest.RunRequest(t, newRequestContext(t, "10.0.0.1:5000"), p)
		require.True(t, r.IsSuccess(), "request %d", i)
	}

	ctx := newRequestContext(t, "10.0.0.1:5001")
	r := policytest.RunRequest(t, ctx, p)
	require.True(t, r.IsFailure())
	assert.Equal(t, http.StatusTooManyRequests, r.StatusCode)
	assert.Equal(t, KeyTooManyRequests, r.Key)
	assert.NotEmpty(t, ctx.Response().Headers.Get(HeaderRetryAfter))
	assert.Equal(t, "2", ctx.Response().Headers.Get(HeaderLimit))
	assert.Equal(t, 1, rec.count(StoreLocal))

	// Another client has its own bucket.
	r = policytest.RunRequest(t, newRequestContext(t, "10.0.0.2:5000"), p)
	assert.True(t, r.IsSuccess())
}

func TestPolicy_KeyExpression(t *testing.T) {
	t.Parallel()

	p := policytest.MustBuild(t, Plugin(WithRecorder(newHitRecorder())),
		"requests: 1\nwindow: 1h\nkey: \"request.headers['x-api-key']\"\n")

	run := func(apiKey string) policy.Result {
		ctx := newRequestContext(t, "10.0.0.1:1")
		ctx.Request().Headers.Set("X-Api-Key", apiKey)
		return policytest.RunRequest(t, ctx, p)
	}

	assert.True(t, run("a").IsSuccess())
	assert.True(t, run("b").IsSuccess())
	assert.True(t, run("a").IsFailure())
}

func TestPolicy_KeyExpressionError(t *testing.T) {
	t.Parallel()

	p := policytest.MustBuild(t, Plugin(WithRecorder(newHitRecorder())),
		"requests: 1\nkey: \"request.headers['missing']\"\n")

	r := policytest.RunRequest(t, newRequestContext(t, "10.0.0.1:1"), p)
	require.True(t, r.IsFailure())
	assert.ErrorIs(t, r.Err, policy.ErrPolicyExecution)
}

func TestPolicy_Redis(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	rec := newHitRecorder()
	plugin := Plugin(WithRedis(client, "flowgate:"), WithRecorder(rec))

	// Two instances share the window through redis.
	a := policytest.MustBuild(t, plugin, "requests: 3\nwindow: 1h\nstore: redis\n")
	b := policytest.MustBuild(t, plugin, "requests: 3\nwindow: 1h\nstore: redis\n")

	for i, p := range []policy.ExecutablePolicy{a, b, a} {
		r := policytest.RunRequest(t, newRequestContext(t, "10.0.0.1:1"), p)
		require.True(t, r.IsSuccess(), "request %d", i)
	}

	r := policytest.RunRequest(t, newRequestContext(t, "10.0.0.1:1"), b)
	require.True(t, r.IsFailure())
	assert.Equal(t, http.StatusTooManyRequests, r.StatusCode)
	assert.Equal(t, 1, rec.count(StoreRedis))

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], "flowgate:ratelimit:10.0.0.1:")
}

func TestPolicy_RedisFallback(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	p := policytest.MustBuild(t, Plugin(WithRedis(client, ""), WithRecorder(newHitRecorder())),
		"requests: 1\nwindow: 1h\nstore: redis\n")

	mr.Close()

	assert.True(t, policytest.RunRequest(t, newRequestContext(t, "10.0.0.1:1"), p).IsSuccess())
	assert.True(t, policytest.RunRequest(t, newRequestContext(t, "10.0.0.1:1"), p).IsFailure())
}

func TestPlugin_RedisNotConfigured(t *testing.T) {
	t.Parallel()

	_, err := policytest.Build(Plugin(), "requests: 1\nstore: redis\n")
	assert.ErrorIs(t, err, ErrRedisNotConfigured)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  string
		wantErr bool
		check   func(t *testing.T, c *Config)
	}{
		{
			name:   "defaults",
			config: "requests: 5",
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, time.Second, c.Window.Duration())
				assert.Equal(t, 5, c.Burst)
				assert.Equal(t, StoreLocal, c.Store)
			},
		},
		{name: "missing requests", config: "window: 1s", wantErr: true},
		{name: "negative window", config: "requests: 1\nwindow: -1s", wantErr: true},
		{name: "unknown store", config: "requests: 1\nstore: memcached", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := &Config{}
			err := policytest.DecodeInto(tt.config, c)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, c)
		})
	}
}

func TestLocalLimiter_Cleanup(t *testing.T) {
	t.Parallel()

	now := time.Now()
	l := newLocalLimiter(1, time.Second, 1)
	l.now = func() time.Time { return now }

	_, err := l.Allow(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 1, l.size())

	now = now.Add(defaultEntryTTL + defaultCleanupInterval + time.Second)
	_, err = l.Allow(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, 1, l.size())
}

func TestLocalLimiter_Refill(t *testing.T) {
	t.Parallel()

	now := time.Now()
	l := newLocalLimiter(1, time.Second, 1)
	l.now = func() time.Time { return now }

	d, _ := l.Allow(context.Background(), "a")
	assert.True(t, d.Allowed)

	d, _ = l.Allow(context.Background(), "a")
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	now = now.Add(time.Second)
	d, _ = l.Allow(context.Background(), "a")
	assert.True(t, d.Allowed)
}

func TestParseScriptResult(t *testing.T) {
	t.Parallel()

	d, err := parseScriptResult([]any{int64(0), int64(-1), int64(1500)}, 10)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 1500*time.Millisecond, d.RetryAfter)
	assert.Equal(t, "2", retryAfterSeconds(d.RetryAfter))

	_, err = parseScriptResult("nope", 10)
	assert.ErrorIs(t, err, errScriptResult)
}

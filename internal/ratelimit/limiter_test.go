package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"url-rewrite/internal/common/errors"
	"url-rewrite/internal/common/logging"
)

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	return rdb, mr
}

func TestNew_Config(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))

	_, err = New(Config{RequestsPerSecond: 1, Backend: BackendRedis}, nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))

	_, err = New(Config{RequestsPerSecond: 1, Backend: "memcached"}, nil)
	assert.Error(t, err)

	l, err := New(Config{RequestsPerSecond: 1}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Local{}, l)
}

func TestLocal_BurstPerKey(t *testing.T) {
	l, err := New(Config{RequestsPerSecond: 1, Burst: 2}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok, "request %d within burst", i)
	}
	ok, _ := l.Allow(ctx, "a")
	assert.False(t, ok)

	// other clients have their own bucket
	ok, _ = l.Allow(ctx, "b")
	assert.True(t, ok)
}

func TestRedis_Window(t *testing.T) {
	rdb, _ := newRedis(t)
	l, err := New(Config{RequestsPerSecond: 5, Burst: 2, Backend: BackendRedis}, rdb)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	l.(*Redis).now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(time.Second)
	ok, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok, "a new window starts a new count")
}

func TestRedis_SharedAcrossInstances(t *testing.T) {
	rdb, _ := newRedis(t)
	cfg := Config{RequestsPerSecond: 1, Burst: 1, Backend: BackendRedis}
	first, err := New(cfg, rdb)
	require.NoError(t, err)
	second, err := New(cfg, rdb)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	first.(*Redis).now = func() time.Time { return now }
	second.(*Redis).now = func() time.Time { return now }

	ok, _ := first.Allow(context.Background(), "c")
	assert.True(t, ok)
	ok, _ = second.Allow(context.Background(), "c")
	assert.False(t, ok)
}

func TestMiddleware(t *testing.T) {
	l, err := New(Config{RequestsPerSecond: 1, Burst: 1}, nil)
	require.NoError(t, err)

	h := Middleware(l, nil, logging.NewNopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/contexts", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, call("192.0.2.1:1234").Code)
	denied := call("192.0.2.1:5678")
	assert.Equal(t, http.StatusTooManyRequests, denied.Code)
	assert.Equal(t, "1", denied.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, denied.Body.String())

	assert.Equal(t, http.StatusNoContent, call("192.0.2.2:1234").Code)
}

func TestMiddleware_FailsOpen(t *testing.T) {
	rdb, mr := newRedis(t)
	l, err := New(Config{RequestsPerSecond: 1, Burst: 1, Backend: BackendRedis}, rdb)
	require.NoError(t, err)
	mr.Close()

	h := Middleware(l, nil, logging.NewNopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/contexts", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.2:80", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "203.0.113.8"}, "10.0.0.2:80", "203.0.113.8"},
		{"remote addr", nil, "198.51.100.3:4567", "198.51.100.3"},
		{"ipv6 remote", nil, "[2001:db8::1]:443", "2001:db8::1"},
		{"no port", nil, "pipe", "pipe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientKey(req))
		})
	}
}

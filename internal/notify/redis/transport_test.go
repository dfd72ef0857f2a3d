package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"url-rewrite/internal/common/logging"
)

func setupTransport(t *testing.T) (*Transport, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	tr, err := NewTransport(client, "rewrite-rules", logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr, mr
}

func TestNewTransport_Validation(t *testing.T) {
	_, err := NewTransport(nil, "c", nil)
	assert.Error(t, err)

	_, err = NewTransport(redis.NewClient(&redis.Options{}), "", nil)
	assert.Error(t, err)
}

func TestTransport_PublishSubscribe(t *testing.T) {
	tr, _ := setupTransport(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var received []string
	require.NoError(t, tr.Subscribe(ctx, func(_ context.Context, body []byte) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, string(body))
		return nil
	}))

	require.NoError(t, tr.Publish(ctx, []byte(`{"id":"r1"}`)))
	require.NoError(t, tr.Publish(ctx, []byte(`{"id":"r2"}`)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{`{"id":"r1"}`, `{"id":"r2"}`}, received)
	mu.Unlock()
}

func TestTransport_FanOut(t *testing.T) {
	tr, _ := setupTransport(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var a, b sync.WaitGroup
	a.Add(1)
	b.Add(1)
	require.NoError(t, tr.Subscribe(ctx, func(context.Context, []byte) error { a.Done(); return nil }))
	require.NoError(t, tr.Subscribe(ctx, func(context.Context, []byte) error { b.Done(); return nil }))

	require.NoError(t, tr.Publish(ctx, []byte("x")))

	done := make(chan struct{})
	go func() {
		a.Wait()
		b.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("both subscribers should receive the message")
	}
}

func TestTransport_Health(t *testing.T) {
	tr, mr := setupTransport(t)
	assert.NoError(t, tr.Health(context.Background()))

	mr.Close()
	assert.Error(t, tr.Health(context.Background()))
}

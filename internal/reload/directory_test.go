package reload

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"url-rewrite/internal/common/logging"
)

type fakeLister struct {
	mu    sync.Mutex
	names []string
	err   error
	calls atomic.Int32
}

func (l *fakeLister) Contexts(ctx context.Context) ([]string, error) {
	l.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	return append([]string(nil), l.names...), nil
}

func (l *fakeLister) set(names ...string) {
	l.mu.Lock()
	l.names = names
	l.mu.Unlock()
}

func newTestDirectory(l *fakeLister, clock *time.Time) *Directory {
	d := NewDirectory(l, time.Minute, logging.NewNopLogger(), "web")
	d.now = func() time.Time { return *clock }
	return d
}

func TestDirectory_PinnedAndListed(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	l := &fakeLister{names: []string{"intranet"}}
	d := newTestDirectory(l, &clock)
	ctx := context.Background()

	assert.True(t, d.Known(ctx, "web"))
	assert.Equal(t, int32(0), l.calls.Load())

	assert.True(t, d.Known(ctx, "intranet"))
	assert.Equal(t, int32(1), l.calls.Load())
	assert.True(t, d.Known(ctx, "web"))
}

func TestDirectory_UnknownNamesListOncePerInterval(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	l := &fakeLister{names: []string{"intranet"}}
	d := newTestDirectory(l, &clock)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		assert.False(t, d.Known(ctx, "junk-"+string(rune('a'+i%26))))
	}
	assert.Equal(t, int32(1), l.calls.Load())

	l.set("intranet", "shop")
	assert.False(t, d.Known(ctx, "shop"))

	clock = clock.Add(2 * time.Minute)
	assert.True(t, d.Known(ctx, "shop"))
	assert.Equal(t, int32(2), l.calls.Load())
}

func TestDirectory_RejectsInvalidNames(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	l := &fakeLister{}
	d := newTestDirectory(l, &clock)

	assert.False(t, d.Known(context.Background(), ""))
	assert.False(t, d.Known(context.Background(), "../etc"))
	assert.Equal(t, int32(0), l.calls.Load())

	d.Add("bad name")
	assert.False(t, d.Known(context.Background(), "bad name"))
}

func TestDirectory_AddIsVisibleBeforeNextListing(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	l := &fakeLister{}
	d := newTestDirectory(l, &clock)
	ctx := context.Background()

	assert.False(t, d.Known(ctx, "shop"))
	d.Add("shop")
	assert.True(t, d.Known(ctx, "shop"))
	assert.Equal(t, int32(1), l.calls.Load())
}

func TestDirectory_ListingFailureKeepsNames(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	l := &fakeLister{names: []string{"intranet"}}
	d := newTestDirectory(l, &clock)
	ctx := context.Background()

	require.NoError(t, d.Refresh(ctx))

	l.mu.Lock()
	l.err = errors.New("store down")
	l.mu.Unlock()
	clock = clock.Add(2 * time.Minute)

	assert.Error(t, d.Refresh(ctx))
	assert.True(t, d.Known(ctx, "intranet"))
	assert.False(t, d.Known(ctx, "other"))
	assert.Equal(t, int32(2), l.calls.Load())
}

func TestDirectory_ListingSurvivesCancelledCaller(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	l := &fakeLister{names: []string{"intranet"}}
	d := newTestDirectory(l, &clock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, d.Known(ctx, "intranet"))
}

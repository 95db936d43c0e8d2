package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/queue/memory"
)

func TestDispatcherDrainsQueue(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue[int](10)
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(context.Background(), i))
	}
	q.Close()

	var mu sync.Mutex
	seen := map[int]bool{}
	d := New[int](q, 3, func(_ context.Context, item int) {
		mu.Lock()
		seen[item] = true
		mu.Unlock()
	}, zap.NewNop())

	d.Run(context.Background())
	assert.Len(t, seen, 10)
}

func TestDispatcherBoundsConcurrency(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue[int](8)
	for i := 0; i < 8; i++ {
		require.NoError(t, q.Enqueue(context.Background(), i))
	}
	q.Close()

	var active, peak atomic.Int32
	d := New[int](q, 2, func(_ context.Context, _ int) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		active.Add(-1)
	}, nil)

	d.Run(context.Background())
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestDispatcherStopsOnCancel(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue[int](1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New[int](q, 2, func(context.Context, int) {}, nil).Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

type failingSource struct{ calls atomic.Int32 }

func (f *failingSource) Dequeue(context.Context) (int, error) {
	f.calls.Add(1)
	return 0, errors.New("broken")
}

func TestDispatcherStopsOnSourceError(t *testing.T) {
	t.Parallel()

	src := &failingSource{}
	New[int](src, 1, func(context.Context, int) {}, zap.NewNop()).Run(context.Background())
	assert.Equal(t, int32(1), src.calls.Load())
}

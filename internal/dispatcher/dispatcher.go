// Package dispatcher fans queued work out to a fixed pool of workers.
package dispatcher

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/queue/memory"
)

// Source is the queue the workers drain.
type Source[T any] interface {
	Dequeue(ctx context.Context) (T, error)
}

// Handler processes one item.
type Handler[T any] func(ctx context.Context, item T)

// Dispatcher runs Workers goroutines over a Source.
type Dispatcher[T any] struct {
	source  Source[T]
	workers int
	handle  Handler[T]
	logger  *zap.Logger
}

// New creates a Dispatcher. workers below 1 is treated as 1.
func New[T any](source Source[T], workers int, handle Handler[T], logger *zap.Logger) *Dispatcher[T] {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher[T]{source: source, workers: workers, handle: handle, logger: logger}
}

// Run blocks until the source is closed and drained, or ctx ends.
func (d *Dispatcher[T]) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.work(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (d *Dispatcher[T]) work(ctx context.Context, id int) {
	for {
		item, err := d.source.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, memory.ErrClosed) && ctx.Err() == nil {
				d.logger.Error("dequeue failed", zap.Int("worker", id), zap.Error(err))
			}
			return
		}
		d.handle(ctx, item)
	}
}

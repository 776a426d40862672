package queue

import (
	"context"
	"sync"

	"github.com/raushankrgupta/nima-backend/logging"
)

const defaultBuffer = 256

// LocalDispatcher runs tasks on a fixed pool of goroutines in this process.
type LocalDispatcher struct {
	router  *Router
	log     logging.Logger
	tasks   chan Task
	workers int

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewLocalDispatcher(router *Router, workers int, log logging.Logger) *LocalDispatcher {
	return newLocalDispatcher(router, workers, defaultBuffer, log)
}

func newLocalDispatcher(router *Router, workers, buffer int, log logging.Logger) *LocalDispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &LocalDispatcher{
		router:  router,
		log:     log,
		tasks:   make(chan Task, buffer),
		workers: workers,
	}
}

// Start launches the workers. Tasks run with ctx, not with the context of
// the request that dispatched them.
func (d *LocalDispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for t := range d.tasks {
				_ = d.router.Route(ctx, t)
			}
		}()
	}
}

func (d *LocalDispatcher) Dispatch(ctx context.Context, t Task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	select {
	case d.tasks <- t:
		d.log.Info(ctx, "task dispatched", "kind", t.Kind, "id", t.ID)
		return nil
	default:
		return ErrQueueFull
	}
}

// Enqueue is Dispatch that waits for room in the queue instead of failing
// with ErrQueueFull. It gives up when ctx is done.
func (d *LocalDispatcher) Enqueue(ctx context.Context, t Task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	select {
	case d.tasks <- t:
		d.log.Info(ctx, "task dispatched", "kind", t.Kind, "id", t.ID)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (d *LocalDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.tasks)
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}

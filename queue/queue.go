// Package queue schedules background tasks fire-and-forget. The caller gets
// control back as soon as a task is accepted; results are observed by
// polling the records the task updates.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/raushankrgupta/nima-backend/logging"
)

const (
	KindWorkflowRun   = "workflow.run"
	KindTryOnGenerate = "tryon.generate"
)

var (
	ErrUnknownKind = errors.New("unknown task kind")
	ErrQueueFull   = errors.New("task queue is full")
	ErrClosed      = errors.New("dispatcher is closed")
)

// Task names the work to do. Handlers load everything else from the store.
type Task struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, t Task) error
	Close() error
}

type Handler func(ctx context.Context, id string) error

// Router maps task kinds to handlers.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	log      logging.Logger
}

func NewRouter(log logging.Logger) *Router {
	return &Router{handlers: make(map[string]Handler), log: log}
}

func (r *Router) Handle(kind string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

func (r *Router) Route(ctx context.Context, t Task) error {
	r.mu.RLock()
	h, ok := r.handlers[t.Kind]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, t.Kind)
	}

	if err := h(ctx, t.ID); err != nil {
		r.log.Error(ctx, "task failed", "kind", t.Kind, "id", t.ID, "error", err)
		return err
	}
	return nil
}

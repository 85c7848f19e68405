package bridge

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/probehost/internal/infrastructure/logging"
)

// Executor runs one run's capability I/O on a single goroutine in
// submission order. Sync calls and async requests share the queue.
type Executor struct {
	queue  chan *task
	done   chan struct{}
	logger *logging.Logger

	mu     sync.Mutex
	closed bool
}

type task struct {
	ctx    context.Context
	fn     func(ctx context.Context) (interface{}, error)
	result chan taskResult
}

type taskResult struct {
	value interface{}
	err   error
}

// NewExecutor starts the worker goroutine.
func NewExecutor(logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.Nop()
	}
	e := &Executor{
		queue:  make(chan *task, 64),
		done:   make(chan struct{}),
		logger: logger,
	}
	go e.loop()
	return e
}

func (e *Executor) loop() {
	for {
		select {
		case t := <-e.queue:
			t.result <- e.run(t)
		case <-e.done:
			// Fail whatever was queued after shutdown began.
			for {
				select {
				case t := <-e.queue:
					t.result <- taskResult{err: ErrClosed}
				default:
					return
				}
			}
		}
	}
}

func (e *Executor) run(t *task) (res taskResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("capability panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			res = taskResult{err: fmt.Errorf("internal error: %v", r)}
		}
	}()

	if err := t.ctx.Err(); err != nil {
		return taskResult{err: err}
	}
	v, err := t.fn(t.ctx)
	return taskResult{value: v, err: err}
}

// submit queues fn and returns a channel that receives its result exactly once.
func (e *Executor) submit(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) <-chan taskResult {
	t := &task{ctx: ctx, fn: fn, result: make(chan taskResult, 1)}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		t.result <- taskResult{err: ErrClosed}
		return t.result
	}
	select {
	case e.queue <- t:
		e.mu.Unlock()
	case <-ctx.Done():
		e.mu.Unlock()
		t.result <- taskResult{err: ctx.Err()}
	}
	return t.result
}

// await waits for a submitted task or for ctx.
func await(ctx context.Context, pending <-chan taskResult) (interface{}, error) {
	select {
	case res := <-pending:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the worker after the task in flight returns.
// Callers cancel the run context first so that task observes it.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.done)
}

package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/taskgraph/internal/logging"
	"github.com/viant/taskgraph/model/task"
)

// Handler performs the work of a single task. Returning an error records the
// task FAILED with the error text.
type Handler func(ctx context.Context, t *task.Task) error

// Listener is invoked once a handler returns, whether it failed or not.
type Listener func(t *task.Task, err error, elapsed time.Duration)

// LogListener returns a Listener writing one structured line per execution.
func LogListener(logger *logging.Logger) Listener {
	return func(t *task.Task, err error, elapsed time.Duration) {
		if t == nil {
			return
		}
		if err != nil {
			logger.WithTask(t.ID).Warn("task execution failed", "type", t.Type, "elapsed", elapsed, "error", err)
			return
		}
		logger.WithTask(t.ID).Debug("task executed", "type", t.Type, "elapsed", elapsed)
	}
}

// Option is used to customise the executor instance.
type Option func(*service)

// WithHandler registers a handler for the task type
func WithHandler(taskType string, h Handler) Option {
	return func(s *service) {
		s.handlers[taskType] = h
	}
}

// WithDefaultHandler overrides the handler used for unregistered task types
func WithDefaultHandler(h Handler) Option {
	return func(s *service) {
		s.fallback = h
	}
}

// WithListener overrides the listener invoked after every executed task. Passing nil disables the
// callback entirely.
func WithListener(l Listener) Option {
	return func(s *service) {
		s.listener = l
	}
}

// Service represents a task executor.
type Service interface {
	Execute(ctx context.Context, t *task.Task) error
}

type service struct {
	handlers map[string]Handler
	fallback Handler
	listener Listener
}

// Execute runs the handler registered for the task type.
func (s *service) Execute(ctx context.Context, t *task.Task) error {
	if t == nil {
		return ErrNilTask
	}
	handler, ok := s.handlers[t.Type]
	if !ok {
		handler = s.fallback
	}
	started := time.Now()
	err := handler(ctx, t)
	if s.listener != nil {
		s.listener(t, err, time.Since(started))
	}
	return err
}

// Sleep waits for the task duration. Cancelling ctx interrupts the wait and
// returns the context error.
func Sleep(ctx context.Context, t *task.Task) error {
	timer := time.NewTimer(t.Duration())
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("task %s interrupted: %w", t.ID, ctx.Err())
	}
}

// New creates an executor; unregistered types use Sleep unless overridden.
func New(options ...Option) Service {
	s := &service{handlers: map[string]Handler{}, fallback: Sleep}
	for _, opt := range options {
		opt(s)
	}
	if s.fallback == nil {
		s.fallback = Sleep
	}
	return s
}

package processor

import (
	"context"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/panics"
	"github.com/viant/taskgraph/internal/logging"
	"github.com/viant/taskgraph/model/task"
	"github.com/viant/taskgraph/progress"
	"github.com/viant/taskgraph/service/dao"
	"github.com/viant/taskgraph/service/executor"
	"github.com/viant/taskgraph/service/messaging"
	"github.com/viant/taskgraph/tracing"
)

// Service executes claimed tasks
type Service struct {
	store    dao.TaskService
	executor executor.Service
	queue    messaging.Queue[task.StatusView]
	progress *progress.Progress
	logger   *logging.Logger
	inFlight sync.WaitGroup
}

// Dispatch starts the task in its own goroutine and returns immediately. The
// execution is detached from ctx cancellation: stopping the loop does not
// interrupt running tasks.
func (s *Service) Dispatch(ctx context.Context, t *task.Task) {
	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Done()
		s.run(context.WithoutCancel(ctx), t)
	}()
}

func (s *Service) run(ctx context.Context, t *task.Task) {
	ctx, span := tracing.StartSpan(ctx, "task.execute", tracing.KindConsumer)
	span.WithAttributes(map[string]string{"task.id": t.ID, "task.type": t.Type})
	logger := s.logger.WithTask(t.ID)
	logger.Info("task started", "type", t.Type, "duration_ms", t.DurationMs)

	err := s.execute(ctx, t, logger)
	defer tracing.EndSpan(span, err)
	if err != nil {
		s.fail(ctx, t, err, logger)
	} else {
		s.complete(ctx, t, logger)
	}
}

func (s *Service) execute(ctx context.Context, t *task.Task, logger *logging.Logger) (err error) {
	var catcher panics.Catcher
	catcher.Try(func() {
		err = s.executor.Execute(ctx, t)
	})
	if recovered := catcher.Recovered(); recovered != nil {
		logger.Error("task panicked", "panic", recovered.String())
		return fmt.Errorf("panic: %v", recovered.Value)
	}
	return err
}

func (s *Service) complete(ctx context.Context, t *task.Task, logger *logging.Logger) {
	ok, err := s.store.Complete(ctx, t.ID)
	if err != nil {
		logger.Error("failed to record completion", "error", err)
		s.fail(ctx, t, fmt.Errorf("record completion: %w", err), logger)
		return
	}
	if !ok {
		logger.Warn("task no longer running, completion ignored")
		s.progress.Update(progress.Delta{Running: -1, Lost: 1})
		return
	}
	logger.Info("task completed")
	s.progress.Update(progress.Delta{Running: -1, Completed: 1})
	s.publish(ctx, &task.StatusView{ID: t.ID, Status: task.StatusCompleted})
}

func (s *Service) fail(ctx context.Context, t *task.Task, cause error, logger *logging.Logger) {
	if err := s.store.Fail(ctx, t.ID, cause.Error()); err != nil {
		logger.Error("failed to record failure", "error", err, "cause", cause)
		s.progress.Update(progress.Delta{Running: -1})
		return
	}
	logger.Warn("task failed", "error", cause)
	s.progress.Update(progress.Delta{Running: -1, Failed: 1})
	s.publish(ctx, &task.StatusView{ID: t.ID, Status: task.StatusFailed})
}

func (s *Service) publish(ctx context.Context, view *task.StatusView) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Publish(ctx, view); err != nil {
		s.logger.Warn("failed to publish completion", "task", view.ID, "error", err)
	}
}

// Shutdown waits for executions started by this instance. When ctx ends first
// the remaining tasks stay RUNNING in the store until recovered.
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// New creates a processor
func New(options ...Option) (*Service, error) {
	s := &Service{}
	for _, opt := range options {
		opt(s)
	}
	if s.store == nil {
		return nil, fmt.Errorf("task store is required")
	}
	if s.executor == nil {
		s.executor = executor.New()
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	return s, nil
}

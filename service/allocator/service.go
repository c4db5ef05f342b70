package allocator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"
	"github.com/viant/taskgraph/internal/logging"
	"github.com/viant/taskgraph/model/task"
	"github.com/viant/taskgraph/progress"
	"github.com/viant/taskgraph/service/dao"
	"github.com/viant/taskgraph/service/messaging"
	"github.com/viant/taskgraph/tracing"
)

// Config represents allocator service configuration
type Config struct {
	// MaxConcurrency caps RUNNING tasks across every worker sharing the store
	MaxConcurrency int
	// PollInterval is the time between ticks
	PollInterval time.Duration
}

// DefaultConfig returns the default allocator configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 3,
		PollInterval:   time.Second,
	}
}

// Dispatcher starts a claimed task without blocking
type Dispatcher interface {
	Dispatch(ctx context.Context, t *task.Task)
}

// Service claims eligible tasks and dispatches them
type Service struct {
	config     Config
	store      dao.TaskService
	dispatcher Dispatcher
	queue      messaging.Queue[task.StatusView]
	progress   *progress.Progress
	logger     *logging.Logger
	wake       chan struct{}
	shutdownCh chan struct{}
	closeOnce  sync.Once
}

// New creates a new allocator service
func New(store dao.TaskService, dispatcher Dispatcher, config Config, options ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("task store is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if config.PollInterval <= 0 {
		return nil, fmt.Errorf("invalid poll interval: %v", config.PollInterval)
	}
	s := &Service{
		config:     config,
		store:      store,
		dispatcher: dispatcher,
		wake:       make(chan struct{}, 1),
		shutdownCh: make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	return s, nil
}

// Start runs the loop until ctx is done or Shutdown is called. Tick errors are
// logged and retried on the next interval.
func (s *Service) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()
	if s.queue != nil {
		go s.consumeCompletions(ctx)
	}
	s.logger.Info("worker loop started", "max_concurrency", s.config.MaxConcurrency, "poll_interval", s.config.PollInterval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.shutdownCh:
			return nil
		case <-ticker.C:
			s.safeTick(ctx)
		case <-s.wake:
			s.safeTick(ctx)
		}
	}
}

func (s *Service) safeTick(ctx context.Context) {
	var catcher panics.Catcher
	catcher.Try(func() {
		if _, err := s.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("tick failed", "error", err)
		}
	})
	if recovered := catcher.Recovered(); recovered != nil {
		s.logger.Error("tick panicked", "panic", recovered.String())
	}
}

// Tick performs one poll: count RUNNING, claim the remaining capacity and
// dispatch every claimed task. It returns the number of dispatched tasks.
func (s *Service) Tick(ctx context.Context) (dispatched int, err error) {
	ctx, span := tracing.StartSpan(ctx, "allocator.Tick", tracing.KindInternal)
	defer func() {
		span.WithInt("dispatched", dispatched)
		tracing.EndSpan(span, err)
	}()

	running, err := s.store.CountByStatus(ctx, task.StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to count running tasks: %w", err)
	}
	available := s.config.MaxConcurrency - running
	if available <= 0 {
		return 0, nil
	}
	claimed, err := s.Claim(ctx, available)
	if err != nil {
		return 0, err
	}
	if len(claimed) == 0 {
		return 0, nil
	}
	s.progress.Update(progress.Delta{Claimed: len(claimed), Running: len(claimed)})
	for _, aTask := range claimed {
		s.dispatcher.Dispatch(ctx, aTask)
	}
	return len(claimed), nil
}

// Claim atomically moves up to max eligible tasks to RUNNING, oldest first.
// A non-positive max returns an empty result without touching the store.
func (s *Service) Claim(ctx context.Context, max int) ([]*task.Task, error) {
	if max <= 0 {
		return []*task.Task{}, nil
	}
	ctx, span := tracing.StartSpan(ctx, "allocator.Claim", tracing.KindInternal)
	claimed, err := s.store.Claim(ctx, max)
	span.WithInt("requested", max).WithInt("claimed", len(claimed))
	tracing.EndSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("failed to claim tasks: %w", err)
	}
	if len(claimed) > 0 {
		ids := make([]string, len(claimed))
		for i, aTask := range claimed {
			ids[i] = aTask.ID
		}
		s.logger.Debug("claimed tasks", "ids", ids, "requested", max)
	}
	return claimed, nil
}

// Wake requests an early tick; concurrent requests collapse into one.
func (s *Service) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) consumeCompletions(ctx context.Context) {
	for {
		message, err := s.queue.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("failed to consume completion", "error", err)
			continue
		}
		_ = message.Ack()
		s.Wake()
	}
}

// Shutdown stops the loop; it is safe to call more than once.
func (s *Service) Shutdown() {
	s.closeOnce.Do(func() {
		close(s.shutdownCh)
	})
}

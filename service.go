package taskgraph

import (
	"context"
	"fmt"

	"github.com/viant/taskgraph/internal/clock"
	"github.com/viant/taskgraph/internal/idgen"
	"github.com/viant/taskgraph/internal/logging"
	"github.com/viant/taskgraph/model/task"
	"github.com/viant/taskgraph/progress"
	"github.com/viant/taskgraph/service/allocator"
	"github.com/viant/taskgraph/service/dao"
	"github.com/viant/taskgraph/service/executor"
	"github.com/viant/taskgraph/service/messaging"
	mmemory "github.com/viant/taskgraph/service/messaging/memory"
	"github.com/viant/taskgraph/service/processor"
	"github.com/viant/taskgraph/tracing"
)

// Version is reported as the tracing service version
const Version = "0.1.0"

// Service wires the task store, worker loop and execution pipeline
type Service struct {
	config          *Config
	runtime         *Runtime
	store           dao.TaskService
	ownsStore       bool
	logger          *logging.Logger
	ownsLogger      bool
	workerID        string
	executorOptions []executor.Option
	queue           messaging.Queue[task.StatusView]
	optionErr       error
}

func (s *Service) init(ctx context.Context, options []Option) error {
	for _, option := range options {
		option(s)
	}
	if s.optionErr != nil {
		return s.optionErr
	}
	if s.config == nil {
		s.config = DefaultConfig()
	}
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := s.ensureBaseSetup(ctx); err != nil {
		return err
	}

	tracker := progress.New(s.workerID, clock.Now())
	logger := s.logger.WithWorker(s.workerID)
	exec := executor.New(append([]executor.Option{executor.WithListener(executor.LogListener(logger))}, s.executorOptions...)...)

	processorOptions := []processor.Option{
		processor.WithStore(s.store),
		processor.WithExecutor(exec),
		processor.WithProgress(tracker),
		processor.WithLogger(logger),
	}
	allocatorOptions := []allocator.Option{
		allocator.WithProgress(tracker),
		allocator.WithLogger(logger),
	}
	if s.queue != nil {
		processorOptions = append(processorOptions, processor.WithCompletionQueue(s.queue))
		allocatorOptions = append(allocatorOptions, allocator.WithCompletionQueue(s.queue))
	}
	proc, err := processor.New(processorOptions...)
	if err != nil {
		return err
	}
	alloc, err := allocator.New(s.store, proc, allocator.Config{
		MaxConcurrency: s.config.Worker.MaxConcurrency,
		PollInterval:   s.config.Worker.PollInterval,
	}, allocatorOptions...)
	if err != nil {
		return err
	}
	s.runtime = &Runtime{
		config:    s.config,
		store:     s.store,
		allocator: alloc,
		processor: proc,
		progress:  tracker,
		logger:    logger,
	}
	return nil
}

func (s *Service) ensureBaseSetup(ctx context.Context) error {
	if s.logger == nil {
		logger, err := logging.New(s.config.Logging)
		if err != nil {
			return err
		}
		s.logger = logger
		s.ownsLogger = true
	}
	if s.workerID == "" {
		s.workerID = idgen.WorkerID()
	}
	if s.config.Tracing.Enabled {
		if err := tracing.Init(s.config.Tracing.ServiceName, Version, s.config.Tracing.OutputFile); err != nil {
			return fmt.Errorf("failed to initialise tracing: %w", err)
		}
	}
	if s.store == nil {
		store, err := OpenStore(ctx, s.config.Store)
		if err != nil {
			return fmt.Errorf("failed to open %s store: %w", s.config.Store.Kind, err)
		}
		s.store = store
		s.ownsStore = true
	}
	if s.config.Worker.WakeOnCompletion && s.queue == nil {
		s.queue = mmemory.NewQueue[task.StatusView](mmemory.Config{DropWhenFull: true})
	}
	return nil
}

// Runtime returns the scheduler runtime
func (s *Service) Runtime() *Runtime {
	return s.runtime
}

// Logger returns the service logger
func (s *Service) Logger() *logging.Logger {
	return s.logger
}

// Config returns the effective configuration
func (s *Service) Config() *Config {
	return s.config
}

// Close releases the store and logger opened by New
func (s *Service) Close() error {
	var err error
	if s.ownsStore && s.store != nil {
		err = s.store.Close()
	}
	if s.ownsLogger && s.logger != nil {
		if cErr := s.logger.Close(); err == nil {
			err = cErr
		}
	}
	return err
}

// New creates a Service; the task store is opened from Config.Store unless WithStore is used.
func New(ctx context.Context, options ...Option) (*Service, error) {
	ret := &Service{}
	if err := ret.init(ctx, options); err != nil {
		if ret.ownsStore && ret.store != nil {
			_ = ret.store.Close()
		}
		return nil, err
	}
	return ret, nil
}

package processor

import (
	"github.com/viant/taskgraph/internal/logging"
	"github.com/viant/taskgraph/model/task"
	"github.com/viant/taskgraph/progress"
	"github.com/viant/taskgraph/service/dao"
	"github.com/viant/taskgraph/service/executor"
	"github.com/viant/taskgraph/service/messaging"
)

// Option customises the processor
type Option func(*Service)

// WithStore sets the task store receiving outcomes
func WithStore(store dao.TaskService) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithExecutor sets the task executor
func WithExecutor(executor executor.Service) Option {
	return func(s *Service) {
		s.executor = executor
	}
}

// WithCompletionQueue publishes a status event after every recorded outcome
func WithCompletionQueue(queue messaging.Queue[task.StatusView]) Option {
	return func(s *Service) {
		s.queue = queue
	}
}

// WithProgress sets the per-instance counters
func WithProgress(tracker *progress.Progress) Option {
	return func(s *Service) {
		s.progress = tracker
	}
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

package allocator

import (
	"github.com/viant/taskgraph/internal/logging"
	"github.com/viant/taskgraph/model/task"
	"github.com/viant/taskgraph/progress"
	"github.com/viant/taskgraph/service/messaging"
)

// Option customises the allocator
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithProgress sets the per-instance counters
func WithProgress(tracker *progress.Progress) Option {
	return func(s *Service) {
		s.progress = tracker
	}
}

// WithCompletionQueue makes every consumed completion event trigger an early tick
func WithCompletionQueue(queue messaging.Queue[task.StatusView]) Option {
	return func(s *Service) {
		s.queue = queue
	}
}

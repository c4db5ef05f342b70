package taskgraph

import (
	"fmt"

	"github.com/viant/taskgraph/internal/logging"
	"github.com/viant/taskgraph/service/dao"
	"github.com/viant/taskgraph/service/executor"
	"github.com/viant/taskgraph/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customises the Service
type Option func(s *Service)

// WithConfig replaces the default configuration
func WithConfig(config *Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithStore supplies an already opened task store; Config.Store is then ignored
// and the caller keeps ownership of the store.
func WithStore(store dao.TaskService) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithLogger sets the logger; by default one is built from Config.Logging
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithHandler registers the execution handler for a task type
func WithHandler(taskType string, handler executor.Handler) Option {
	return func(s *Service) {
		s.executorOptions = append(s.executorOptions, executor.WithHandler(taskType, handler))
	}
}

// WithExecutorOptions passes options to the task executor
func WithExecutorOptions(opts ...executor.Option) Option {
	return func(s *Service) {
		s.executorOptions = append(s.executorOptions, opts...)
	}
}

// WithWorkerID overrides the generated worker instance id
func WithWorkerID(id string) Option {
	return func(s *Service) {
		s.workerID = id
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom SpanExporter. The first
// successful initialisation wins; a failure is returned by New.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		if exporter == nil {
			s.optionErr = fmt.Errorf("tracing exporter is required")
			return
		}
		if err := tracing.InitWithExporter(serviceName, serviceVersion, exporter); err != nil {
			s.optionErr = fmt.Errorf("failed to initialise tracing: %w", err)
		}
	}
}

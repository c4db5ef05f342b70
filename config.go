package taskgraph

import (
	"fmt"
	"time"

	"github.com/viant/taskgraph/internal/logging"
)

// Store kinds
const (
	StoreMemory   = "memory"
	StoreFS       = "fs"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config is a serialisable representation of the scheduler configuration. It
// can be populated from YAML, JSON or environment variables.
type Config struct {
	Worker  WorkerConfig   `json:"worker" yaml:"worker" mapstructure:"worker"`
	Store   StoreConfig    `json:"store" yaml:"store" mapstructure:"store"`
	HTTP    HTTPConfig     `json:"http" yaml:"http" mapstructure:"http"`
	Logging logging.Config `json:"logging" yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig  `json:"tracing" yaml:"tracing" mapstructure:"tracing"`
}

// WorkerConfig controls the worker loop
type WorkerConfig struct {
	MaxConcurrency   int           `json:"maxConcurrency" yaml:"maxConcurrency" mapstructure:"max_concurrency"`
	PollInterval     time.Duration `json:"pollInterval" yaml:"pollInterval" mapstructure:"poll_interval"`
	WakeOnCompletion bool          `json:"wakeOnCompletion" yaml:"wakeOnCompletion" mapstructure:"wake_on_completion"`
}

// StoreConfig selects and locates the task store
type StoreConfig struct {
	Kind string `json:"kind" yaml:"kind" mapstructure:"kind"`
	// Path is the base directory of the fs store or the sqlite database file
	Path string `json:"path" yaml:"path" mapstructure:"path"`
	DSN  string `json:"dsn" yaml:"dsn" mapstructure:"dsn"`
}

// HTTPConfig configures the HTTP API
type HTTPConfig struct {
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`
}

// TracingConfig configures OpenTelemetry export
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"serviceName" yaml:"serviceName" mapstructure:"service_name"`
	OutputFile  string `json:"outputFile" yaml:"outputFile" mapstructure:"output_file"`
}

// DefaultConfig returns a Config populated with default values
func DefaultConfig() *Config {
	return &Config{
		Worker: WorkerConfig{
			MaxConcurrency:   3,
			PollInterval:     time.Second,
			WakeOnCompletion: true,
		},
		Store: StoreConfig{
			Kind: StoreMemory,
		},
		HTTP: HTTPConfig{
			Addr: ":4000",
		},
		Logging: logging.Config{
			Level:  logging.LevelInfo,
			Format: logging.FormatText,
		},
		Tracing: TracingConfig{
			ServiceName: "taskgraph",
		},
	}
}

// Validate returns an error describing the first invalid setting or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.Worker.MaxConcurrency <= 0 {
		return fmt.Errorf("worker.maxConcurrency must be > 0")
	}
	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker.pollInterval must be > 0")
	}
	switch c.Store.Kind {
	case StoreMemory:
	case StoreFS, StoreSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for %s store", c.Store.Kind)
		}
	case StorePostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for postgres store")
		}
	default:
		return fmt.Errorf("unsupported store kind: %q", c.Store.Kind)
	}
	return nil
}

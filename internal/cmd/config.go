package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
	"github.com/viant/taskgraph"
)

// Environment variables understood for compatibility with existing deployments
const (
	envMaxConcurrentTasks = "MAX_CONCURRENT_TASKS"
	envPollIntervalMs     = "POLL_INTERVAL_MS"
	envDatabaseURL        = "DATABASE_URL"
	envPort               = "PORT"
)

func setDefaults() {
	defaults := taskgraph.DefaultConfig()

	viper.SetDefault("worker.max_concurrency", defaults.Worker.MaxConcurrency)
	viper.SetDefault("worker.poll_interval", defaults.Worker.PollInterval)
	viper.SetDefault("worker.wake_on_completion", defaults.Worker.WakeOnCompletion)

	viper.SetDefault("store.kind", defaults.Store.Kind)
	viper.SetDefault("store.path", defaults.Store.Path)
	viper.SetDefault("store.dsn", defaults.Store.DSN)

	viper.SetDefault("http.addr", defaults.HTTP.Addr)

	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.format", defaults.Logging.Format)
	viper.SetDefault("logging.file", defaults.Logging.File)

	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)
	viper.SetDefault("tracing.output_file", defaults.Tracing.OutputFile)
}

func bindLegacyEnv() {
	_ = viper.BindEnv("worker.max_concurrency", "TASKGRAPH_WORKER_MAX_CONCURRENCY", envMaxConcurrentTasks)
	_ = viper.BindEnv("store.dsn", "TASKGRAPH_STORE_DSN", envDatabaseURL)
}

// loadConfig reads the configuration from viper and applies the legacy
// environment variables that do not map one to one onto config keys.
func loadConfig() (*taskgraph.Config, error) {
	cfg := taskgraph.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := applyLegacyEnv(cfg); err != nil {
		return nil, err
	}
	if cfg.Store.DSN != "" && !storeKindExplicit() {
		cfg.Store.Kind = taskgraph.StorePostgres
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyLegacyEnv(cfg *taskgraph.Config) error {
	if value := os.Getenv(envPollIntervalMs); value != "" && os.Getenv("TASKGRAPH_WORKER_POLL_INTERVAL") == "" {
		ms, err := strconv.Atoi(value)
		if err != nil || ms <= 0 {
			return fmt.Errorf("invalid %s: %q", envPollIntervalMs, value)
		}
		cfg.Worker.PollInterval = time.Duration(ms) * time.Millisecond
	}
	if port := os.Getenv(envPort); port != "" && os.Getenv("TASKGRAPH_HTTP_ADDR") == "" {
		cfg.HTTP.Addr = ":" + port
	}
	return nil
}

func storeKindExplicit() bool {
	if viper.InConfig("store.kind") || os.Getenv("TASKGRAPH_STORE_KIND") != "" {
		return true
	}
	flag := rootCmd.PersistentFlags().Lookup("store")
	return flag != nil && flag.Changed
}

package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log levels supported by the logger
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Output formats
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Config controls logger construction
type Config struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"`
	// File, when set, receives log output instead of stderr.
	File string `json:"file" yaml:"file" mapstructure:"file"`
}

// Logger provides structured logging with persistent attributes.
// It is safe for concurrent use.
type Logger struct {
	logger *slog.Logger
	closer *closer
}

type closer struct {
	mu   sync.Mutex
	file *os.File
}

// New creates a Logger from config
func New(cfg Config) (*Logger, error) {
	var writer io.Writer = os.Stderr
	c := &closer{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		c.file = file
		writer = file
	}
	return &Logger{logger: slog.New(newHandler(writer, cfg)), closer: c}, nil
}

// NewWithWriter creates a Logger writing to w; used by tests and embedding hosts.
func NewWithWriter(w io.Writer, cfg Config) *Logger {
	return &Logger{logger: slog.New(newHandler(w, cfg)), closer: &closer{}}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return NewWithWriter(io.Discard, Config{Level: LevelError})
}

func newHandler(w io.Writer, cfg Config) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.ToLower(cfg.Format) == FormatText {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// parseLevel converts a string log level to slog.Level.
// Defaults to INFO if the level string is not recognized.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a child Logger with additional key-value attributes.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	return &Logger{logger: l.logger.With(args...), closer: l.closer}
}

// WithWorker tags entries with the worker instance id
func (l *Logger) WithWorker(workerID string) *Logger {
	return l.With("worker_id", workerID)
}

// WithTask tags entries with the task id
func (l *Logger) WithTask(taskID string) *Logger {
	return l.With("task_id", taskID)
}

// Debug logs a message at DEBUG level with optional key-value pairs.
func (l *Logger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

// Info logs a message at INFO level with optional key-value pairs.
func (l *Logger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

// Warn logs a message at WARN level with optional key-value pairs.
func (l *Logger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

// Error logs a message at ERROR level with optional key-value pairs.
func (l *Logger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// Slog exposes the underlying slog.Logger
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	l.closer.mu.Lock()
	defer l.closer.mu.Unlock()
	if l.closer.file == nil {
		return nil
	}
	err := l.closer.file.Close()
	l.closer.file = nil
	return err
}

type key struct{}

// WithLogger returns a new context with the logger embedded.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, key{}, logger)
}

// FromContext extracts the Logger from a context, falling back to Default.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(key{}).(*Logger); ok && logger != nil {
		return logger
	}
	return Default()
}

var (
	defaultOnce   sync.Once
	defaultLogger *Logger
)

// Default returns a process-wide INFO JSON logger on stderr.
func Default() *Logger {
	defaultOnce.Do(func() {
		defaultLogger = NewWithWriter(os.Stderr, Config{Level: LevelInfo, Format: FormatJSON})
	})
	return defaultLogger
}

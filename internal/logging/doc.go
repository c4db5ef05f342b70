// Package logging provides structured logging for the scheduler. It wraps
// log/slog with JSON or text output, persistent attributes and context
// propagation so that worker loops and executions share one configured sink.
package logging

// Package tracing wraps OpenTelemetry so that the worker loop, claims and task
// executions can open spans without importing the SDK directly. Until Init is
// called the global no-op provider is in effect and spans cost nothing.
package tracing

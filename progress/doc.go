// Package progress keeps per-instance execution counters for a worker. The
// counters describe only what this process claimed and executed; global state
// always comes from the task store.
package progress

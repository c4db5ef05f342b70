// Package processor starts claimed tasks and records their outcome. Dispatch
// never blocks the worker loop; each execution runs in its own goroutine and
// reports success or failure back to the task store.
package processor

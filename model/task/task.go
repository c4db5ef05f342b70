package task

import (
	"time"
)

// Task represents a single schedulable unit of work
type Task struct {
	ID           string    `json:"id" yaml:"id"`
	Type         string    `json:"type" yaml:"type"`
	DurationMs   int64     `json:"duration_ms" yaml:"duration_ms"`
	Dependencies []string  `json:"dependencies" yaml:"dependencies"`
	Status       Status    `json:"status" yaml:"status"`
	LastError    *string   `json:"last_error" yaml:"last_error,omitempty"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
}

// StatusView is the reduced projection returned by status look-ups
type StatusView struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

// New creates a queued task from a validated descriptor
func New(d *Descriptor, now time.Time) *Task {
	deps := make([]string, len(d.Dependencies))
	copy(deps, d.Dependencies)
	return &Task{
		ID:           d.ID,
		Type:         d.Type,
		DurationMs:   d.DurationMs,
		Dependencies: deps,
		Status:       StatusQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Duration returns the execution magnitude as time.Duration
func (t *Task) Duration() time.Duration {
	return time.Duration(t.DurationMs) * time.Millisecond
}

// View returns the id/status projection
func (t *Task) View() *StatusView {
	return &StatusView{ID: t.ID, Status: t.Status}
}

// Error returns the last error message or empty string
func (t *Task) Error() string {
	if t.LastError == nil {
		return ""
	}
	return *t.LastError
}

// Claim transitions the task to RUNNING and clears the previous error.
func (t *Task) Claim(now time.Time) {
	t.Status = StatusRunning
	t.LastError = nil
	t.UpdatedAt = now
}

// Complete transitions the task to COMPLETED
func (t *Task) Complete(now time.Time) {
	t.Status = StatusCompleted
	t.LastError = nil
	t.UpdatedAt = now
}

// Fail transitions the task to FAILED recording the message
func (t *Task) Fail(message string, now time.Time) {
	t.Status = StatusFailed
	t.LastError = &message
	t.UpdatedAt = now
}

// Requeue moves a stale RUNNING task back to QUEUED.
func (t *Task) Requeue(now time.Time) {
	t.Status = StatusQueued
	t.LastError = nil
	t.UpdatedAt = now
}

// Clone creates a deep copy so that callers can mutate the result without
// affecting stored state.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	if t.Dependencies != nil {
		clone.Dependencies = make([]string, len(t.Dependencies))
		copy(clone.Dependencies, t.Dependencies)
	}
	if t.LastError != nil {
		msg := *t.LastError
		clone.LastError = &msg
	}
	return &clone
}

// Before orders tasks by creation time, then id.
func (t *Task) Before(other *Task) bool {
	if !t.CreatedAt.Equal(other.CreatedAt) {
		return t.CreatedAt.Before(other.CreatedAt)
	}
	return t.ID < other.ID
}

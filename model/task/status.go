package task

// Status represents the current lifecycle state of a task
type Status string

const (
	// StatusQueued is the initial state; the task waits for its dependencies and a free slot.
	StatusQueued Status = "QUEUED"
	// StatusRunning means the task was claimed and an execution is in flight.
	StatusRunning Status = "RUNNING"
	// StatusCompleted is terminal.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed records an execution error. Failed tasks are never retried automatically.
	StatusFailed Status = "FAILED"
)

// Statuses lists all states in lifecycle order.
var Statuses = []Status{StatusQueued, StatusRunning, StatusCompleted, StatusFailed}

var transitions = map[Status]map[Status]bool{
	StatusQueued:  {StatusRunning: true},
	StatusRunning: {StatusCompleted: true, StatusFailed: true, StatusQueued: true},
}

// String returns the wire representation
func (s Status) String() string {
	return string(s)
}

// IsValid returns true for one of the known states
func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true for COMPLETED.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
// Failure reporting is unconditional in the stores, so FAILED is additionally
// accepted from any non-terminal state.
func CanTransition(from, to Status) bool {
	if to == StatusFailed && !from.IsTerminal() {
		return true
	}
	return transitions[from][to]
}

package dao

import (
	"context"

	"github.com/viant/taskgraph/model/task"
)

// Reader defines look-up operations shared by all stores
type Reader[K comparable, T any] interface {
	Load(ctx context.Context, id K) (*T, error)

	List(ctx context.Context, parameters ...*Parameter) ([]*T, error)
}

// TaskService is the durable task store. Every state mutation is an atomic
// store operation; implementations never cache status between calls.
type TaskService interface {
	Reader[string, task.Task]

	// Insert stores a new QUEUED task, returning ErrDuplicateID on id collision.
	Insert(ctx context.Context, t *task.Task) (*task.Task, error)

	// CountByStatus counts tasks currently in the supplied status.
	CountByStatus(ctx context.Context, status task.Status) (int, error)

	// Claim selects up to limit eligible tasks, oldest first, and marks them
	// RUNNING in one atomic unit. Candidates locked by a concurrent claim are
	// skipped, not waited on.
	Claim(ctx context.Context, limit int) ([]*task.Task, error)

	// Complete moves a RUNNING task to COMPLETED. It returns false when the task
	// was not RUNNING.
	Complete(ctx context.Context, id string) (bool, error)

	// Fail sets FAILED with the message regardless of the current status.
	Fail(ctx context.Context, id string, message string) error

	// Recover moves every RUNNING task back to QUEUED clearing its error, and
	// returns the number of reset tasks.
	Recover(ctx context.Context) (int, error)

	Close() error
}

// Watcher is implemented by stores that can report record changes made by
// other processes, letting a worker loop tick early.
type Watcher interface {
	Watch(ctx context.Context, onChange func(id string)) error
}

package taskgraph

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/viant/taskgraph/internal/clock"
	"github.com/viant/taskgraph/internal/logging"
	"github.com/viant/taskgraph/model/task"
	"github.com/viant/taskgraph/progress"
	"github.com/viant/taskgraph/service/allocator"
	"github.com/viant/taskgraph/service/dao"
	"github.com/viant/taskgraph/service/processor"
)

// Runtime exposes the scheduler operations
type Runtime struct {
	config    *Config
	store     dao.TaskService
	allocator *allocator.Service
	processor *processor.Service
	progress  *progress.Progress
	logger    *logging.Logger

	mux     sync.Mutex
	started bool
	stop    context.CancelFunc
	loop    sync.WaitGroup
}

// Submit validates the descriptor and stores a new QUEUED task. Invalid input
// fails with task.ErrValidation before any store write; an existing id fails
// with dao.ErrDuplicateID.
func (r *Runtime) Submit(ctx context.Context, descriptor *task.Descriptor) (*task.Task, error) {
	if err := descriptor.Validate(); err != nil {
		return nil, err
	}
	created, err := r.store.Insert(ctx, task.New(descriptor, clock.Now()))
	if err != nil {
		return nil, err
	}
	r.logger.WithTask(created.ID).Info("task submitted", "type", created.Type, "dependencies", created.Dependencies)
	return created, nil
}

// Task returns the full record, or nil when absent
func (r *Runtime) Task(ctx context.Context, id string) (*task.Task, error) {
	ret, err := r.store.Load(ctx, id)
	if errors.Is(err, dao.ErrNotFound) {
		return nil, nil
	}
	return ret, err
}

// Status returns the id/status projection, or nil when absent
func (r *Runtime) Status(ctx context.Context, id string) (*task.StatusView, error) {
	ret, err := r.Task(ctx, id)
	if ret == nil || err != nil {
		return nil, err
	}
	return ret.View(), nil
}

// Tasks lists tasks newest first, optionally restricted to statuses
func (r *Runtime) Tasks(ctx context.Context, statuses ...task.Status) ([]*task.Task, error) {
	if len(statuses) == 0 {
		return r.store.List(ctx)
	}
	return r.store.List(ctx, dao.WithStatus(statuses...))
}

// Recover moves every RUNNING task back to QUEUED. Run it once at process
// start, before the worker loop, to requeue work interrupted by a crash.
func (r *Runtime) Recover(ctx context.Context) (int, error) {
	count, err := r.store.Recover(ctx)
	if err != nil {
		return 0, err
	}
	r.logger.Info("recovered running tasks", "count", count)
	return count, nil
}

// Claim atomically moves up to max eligible tasks to RUNNING
func (r *Runtime) Claim(ctx context.Context, max int) ([]*task.Task, error) {
	return r.allocator.Claim(ctx, max)
}

// MarkCompleted completes a RUNNING task; false means it was not RUNNING.
func (r *Runtime) MarkCompleted(ctx context.Context, id string) (bool, error) {
	return r.store.Complete(ctx, id)
}

// MarkFailed records the task FAILED with message regardless of its status
func (r *Runtime) MarkFailed(ctx context.Context, id string, message string) error {
	return r.store.Fail(ctx, id, message)
}

// CountRunning returns the global number of RUNNING tasks
func (r *Runtime) CountRunning(ctx context.Context) (int, error) {
	return r.store.CountByStatus(ctx, task.StatusRunning)
}

// Tick runs a single worker loop iteration
func (r *Runtime) Tick(ctx context.Context) (int, error) {
	return r.allocator.Tick(ctx)
}

// Progress returns this instance's execution counters
func (r *Runtime) Progress() progress.Counters {
	return r.progress.Snapshot()
}

// Start launches the worker loop in the background. Stores able to report
// changes from other processes additionally wake the loop early.
func (r *Runtime) Start(ctx context.Context) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if r.started {
		return fmt.Errorf("runtime already started")
	}
	r.started = true
	ctx, r.stop = context.WithCancel(ctx)

	r.loop.Add(1)
	go func() {
		defer r.loop.Done()
		if err := r.allocator.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("worker loop stopped", "error", err)
		}
	}()

	if watcher, ok := r.store.(dao.Watcher); ok && r.config.Worker.WakeOnCompletion {
		r.loop.Add(1)
		go func() {
			defer r.loop.Done()
			err := watcher.Watch(ctx, func(string) { r.allocator.Wake() })
			if err != nil {
				r.logger.Warn("store watcher stopped", "error", err)
			}
		}()
	}
	return nil
}

// Shutdown stops the worker loop and waits for in-flight executions until ctx
// ends. Executions still running at that point stay RUNNING in the store.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mux.Lock()
	stop := r.stop
	r.mux.Unlock()
	r.allocator.Shutdown()
	if stop != nil {
		stop()
	}
	r.loop.Wait()
	return r.processor.Shutdown(ctx)
}

package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/viant/taskgraph/internal/clock"
	"github.com/viant/taskgraph/model/task"
	"github.com/viant/taskgraph/service/dao"
	"github.com/viant/taskgraph/service/dao/criteria"
	"github.com/viant/taskgraph/service/resolver"
)

// Service implements an in-memory task store.  All operations are
// thread-safe and return **copies** of the underlying objects to prevent data
// races when callers mutate the returned instances.  Claim runs inside a
// single short critical section, which makes select-and-mark atomic for every
// goroutine sharing the instance.
type Service struct {
	tasks map[string]*task.Task
	mux   sync.RWMutex
}

// Compile-time check that Service implements the task DAO interface.
var _ dao.TaskService = (*Service)(nil)

// Insert stores a new task
func (s *Service) Insert(_ context.Context, t *task.Task) (*task.Task, error) {
	if t == nil {
		return nil, dao.ErrNilEntity
	}
	if t.ID == "" {
		return nil, dao.ErrInvalidID
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	if _, ok := s.tasks[t.ID]; ok {
		return nil, fmt.Errorf("%w: %s", dao.ErrDuplicateID, t.ID)
	}
	stored := t.Clone()
	if stored.Status == "" {
		stored.Status = task.StatusQueued
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = clock.Now()
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}
	if stored.Dependencies == nil {
		stored.Dependencies = []string{}
	}
	s.tasks[t.ID] = stored
	return stored.Clone(), nil
}

// Load retrieves a copy of the task or dao.ErrNotFound.
func (s *Service) Load(_ context.Context, id string) (*task.Task, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	s.mux.RLock()
	defer s.mux.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, dao.ErrNotFound
	}
	return t.Clone(), nil
}

// List returns copies of stored tasks, newest first, optionally filtered by status.
func (s *Service) List(_ context.Context, parameters ...*dao.Parameter) ([]*task.Task, error) {
	s.mux.RLock()
	out := make([]*task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if !criteria.FilterByStatus(t.Status, parameters) {
			continue
		}
		out = append(out, t.Clone())
	}
	s.mux.RUnlock()
	resolver.SortNewestFirst(out)
	return out, nil
}

// CountByStatus counts tasks in status
func (s *Service) CountByStatus(_ context.Context, status task.Status) (int, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	count := 0
	for _, t := range s.tasks {
		if t.Status == status {
			count++
		}
	}
	return count, nil
}

// Claim selects and marks up to limit eligible tasks
func (s *Service) Claim(_ context.Context, limit int) ([]*task.Task, error) {
	if limit <= 0 {
		return []*task.Task{}, nil
	}
	s.mux.Lock()
	defer s.mux.Unlock()

	candidates := make([]*task.Task, 0)
	for _, t := range s.tasks {
		if t.Status == task.StatusQueued {
			candidates = append(candidates, t)
		}
	}
	ready := resolver.Ready(candidates, s.lookup, limit)
	now := clock.Now()
	claimed := make([]*task.Task, 0, len(ready))
	for _, t := range ready {
		t.Claim(now)
		claimed = append(claimed, t.Clone())
	}
	return claimed, nil
}

// lookup must be called with the lock held
func (s *Service) lookup(id string) (task.Status, bool) {
	t, ok := s.tasks[id]
	if !ok {
		return "", false
	}
	return t.Status, true
}

// Complete marks a RUNNING task COMPLETED
func (s *Service) Complete(_ context.Context, id string) (bool, error) {
	if id == "" {
		return false, dao.ErrInvalidID
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Status != task.StatusRunning {
		return false, nil
	}
	t.Complete(clock.Now())
	return true, nil
}

// Fail marks a task FAILED unconditionally
func (s *Service) Fail(_ context.Context, id string, message string) error {
	if id == "" {
		return dao.ErrInvalidID
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", dao.ErrNotFound, id)
	}
	t.Fail(message, clock.Now())
	return nil
}

// Recover requeues all RUNNING tasks
func (s *Service) Recover(_ context.Context) (int, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	now := clock.Now()
	count := 0
	for _, t := range s.tasks {
		if t.Status == task.StatusRunning {
			t.Requeue(now)
			count++
		}
	}
	return count, nil
}

// Close is a no-op
func (s *Service) Close() error {
	return nil
}

// New constructor.
func New() *Service {
	return &Service{tasks: map[string]*task.Task{}}
}

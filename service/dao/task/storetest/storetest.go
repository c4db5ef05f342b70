// Package storetest holds the conformance suite every task store backend must
// pass. Backend packages call Run from their own tests with a factory that
// returns an empty store.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/taskgraph/model/task"
	"github.com/viant/taskgraph/service/dao"
)

// Factory returns an empty store; cleanup is registered on t by the factory.
type Factory func(t *testing.T) dao.TaskService

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// NewTask builds a queued task created offset seconds after a fixed base time
func NewTask(id string, offset int, deps ...string) *task.Task {
	created := base.Add(time.Duration(offset) * time.Second)
	if deps == nil {
		deps = []string{}
	}
	return &task.Task{
		ID:           id,
		Type:         "test",
		DurationMs:   10,
		Dependencies: deps,
		Status:       task.StatusQueued,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

// Run executes the conformance suite
func Run(t *testing.T, factory Factory) {
	t.Run("insert and load", func(t *testing.T) { testInsertLoad(t, factory(t)) })
	t.Run("duplicate id", func(t *testing.T) { testDuplicate(t, factory(t)) })
	t.Run("list", func(t *testing.T) { testList(t, factory(t)) })
	t.Run("empty dependencies claimable", func(t *testing.T) { testEmptyDependencies(t, factory(t)) })
	t.Run("dependency chain", func(t *testing.T) { testDependencyChain(t, factory(t)) })
	t.Run("missing dependency blocks", func(t *testing.T) { testMissingDependency(t, factory(t)) })
	t.Run("failed dependency blocks", func(t *testing.T) { testFailedDependency(t, factory(t)) })
	t.Run("claim order and limit", func(t *testing.T) { testClaimOrder(t, factory(t)) })
	t.Run("claim zero", func(t *testing.T) { testClaimZero(t, factory(t)) })
	t.Run("concurrent claims exclusive", func(t *testing.T) { testConcurrentClaims(t, factory(t)) })
	t.Run("complete conditional", func(t *testing.T) { testComplete(t, factory(t)) })
	t.Run("fail unconditional", func(t *testing.T) { testFail(t, factory(t)) })
	t.Run("recover", func(t *testing.T) { testRecover(t, factory(t)) })
	t.Run("count by status", func(t *testing.T) { testCount(t, factory(t)) })
	t.Run("reads during transitions", func(t *testing.T) { testReadsDuringTransitions(t, factory(t)) })
}

func insert(t *testing.T, store dao.TaskService, tasks ...*task.Task) {
	t.Helper()
	for _, aTask := range tasks {
		_, err := store.Insert(context.Background(), aTask)
		require.NoError(t, err)
	}
}

func ids(tasks []*task.Task) []string {
	ret := make([]string, 0, len(tasks))
	for _, aTask := range tasks {
		ret = append(ret, aTask.ID)
	}
	return ret
}

func testInsertLoad(t *testing.T, store dao.TaskService) {
	ctx := context.Background()
	created, err := store.Insert(ctx, NewTask("A", 0, "X", "Y"))
	require.NoError(t, err)
	assert.Equal(t, task.StatusQueued, created.Status)

	loaded, err := store.Load(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "A", loaded.ID)
	assert.Equal(t, "test", loaded.Type)
	assert.Equal(t, int64(10), loaded.DurationMs)
	assert.Equal(t, []string{"X", "Y"}, loaded.Dependencies)
	assert.Equal(t, task.StatusQueued, loaded.Status)
	assert.Nil(t, loaded.LastError)
	assert.True(t, base.Equal(loaded.CreatedAt), "created_at: %v", loaded.CreatedAt)

	_, err = store.Load(ctx, "missing")
	assert.True(t, errors.Is(err, dao.ErrNotFound), "%v", err)
}

func testDuplicate(t *testing.T, store dao.TaskService) {
	ctx := context.Background()
	insert(t, store, NewTask("A", 0))
	_, err := store.Insert(ctx, NewTask("A", 1))
	assert.True(t, errors.Is(err, dao.ErrDuplicateID), "%v", err)
	loaded, err := store.Load(ctx, "A")
	require.NoError(t, err)
	assert.True(t, base.Equal(loaded.CreatedAt))
}

func testList(t *testing.T, store dao.TaskService) {
	ctx := context.Background()
	insert(t, store, NewTask("A", 0), NewTask("B", 1), NewTask("C", 2))
	claimed, err := store.Claim(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, ids(claimed))

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B", "A"}, ids(all))

	running, err := store.List(ctx, dao.WithStatus(task.StatusRunning))
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ids(running))
}

func testEmptyDependencies(t *testing.T, store dao.TaskService) {
	ctx := context.Background()
	insert(t, store, NewTask("A", 0))
	claimed, err := store.Claim(ctx, 5)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, task.StatusRunning, claimed[0].Status)

	loaded, err := store.Load(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, task.StatusRunning, loaded.Status)
}

func testDependencyChain(t *testing.T, store dao.TaskService) {
	ctx := context.Background()
	a := NewTask("A", 0)
	a.DurationMs = 100
	b := NewTask("B", 1, "A")
	b.DurationMs = 50
	insert(t, store, a, b)

	claimed, err := store.Claim(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ids(claimed))

	claimed, err = store.Claim(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, claimed, "B must wait while A is RUNNING")

	ok, err := store.Complete(ctx, "A")
	require.NoError(t, err)
	assert.True(t, ok)

	claimed, err = store.Claim(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, ids(claimed))
}

func testMissingDependency(t *testing.T, store dao.TaskService) {
	ctx := context.Background()
	insert(t, store, NewTask("A", 0, "ghost"), NewTask("B", 1))
	claimed, err := store.Claim(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, ids(claimed))

	claimed, err = store.Claim(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	loaded, err := store.Load(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, task.StatusQueued, loaded.Status)
}

func testFailedDependency(t *testing.T, store dao.TaskService) {
	ctx := context.Background()
	insert(t, store, NewTask("A", 0), NewTask("B", 1, "A"))
	_, err := store.Claim(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, store.Fail(ctx, "A", "boom"))

	claimed, err := store.Claim(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func testClaimOrder(t *testing.T, store dao.TaskService) {
	ctx := context.Background()
	insert(t, store, NewTask("late", 5), NewTask("early", 1), NewTask("middle", 3), NewTask("blocked", 0, "late"))

	claimed, err := store.Claim(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "middle"}, ids(claimed))

	claimed, err = store.Claim(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"late"}, ids(claimed))
}

func testClaimZero(t *testing.T, store dao.TaskService) {
	ctx := context.Background()
	claimed, err := store.Claim(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	insert(t, store, NewTask("A", 0))
	claimed, err = store.Claim(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, claimed)
	claimed, err = store.Claim(ctx, -1)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	loaded, err := store.Load(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, task.StatusQueued, loaded.Status)
}

func testConcurrentClaims(t *testing.T, store dao.TaskService) {
	ctx := context.Background()
	const total = 30
	const claimers = 6
	for i := 0; i < total; i++ {
		insert(t, store, NewTask(fmt.Sprintf("T%02d", i), i))
	}

	var mu sync.Mutex
	seen := map[string]int{}
	var errs []error
	var wg sync.WaitGroup
	for c := 0; c < claimers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for attempt := 0; attempt < total; attempt++ {
				claimed, err := store.Claim(ctx, 3)
				mu.Lock()
				if err != nil {
					errs = append(errs, err)
				}
				for _, aTask := range claimed {
					seen[aTask.ID]++
				}
				done := len(seen) == total
				mu.Unlock()
				if done {
					return
				}
			}
		}()
	}
	wg.Wait()
	assert.Empty(t, errs)

	for id, count := range seen {
		assert.Equal(t, 1, count, "task %s claimed %d times", id, count)
	}
	running, err := store.CountByStatus(ctx, task.StatusRunning)
	require.NoError(t, err)
	assert.Equal(t, len(seen), running)
	assert.Equal(t, total, len(seen))
}

func testComplete(t *testing.T, store dao.TaskService) {
	ctx := context.Background()
	insert(t, store, NewTask("A", 0))

	ok, err := store.Complete(ctx, "A")
	require.NoError(t, err)
	assert.False(t, ok, "queued task must not complete")

	_, err = store.Claim(ctx, 1)
	require.NoError(t, err)

	ok, err = store.Complete(ctx, "A")
	require.NoError(t, err)
	assert.True(t, ok)

	first, err := store.Load(ctx, "A")
	require.NoError(t, err)

	ok, err = store.Complete(ctx, "A")
	require.NoError(t, err)
	assert.False(t, ok)

	second, err := store.Load(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, second.Status)
	assert.True(t, first.UpdatedAt.Equal(second.UpdatedAt))

	ok, err = store.Complete(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testFail(t *testing.T, store dao.TaskService) {
	ctx := context.Background()
	insert(t, store, NewTask("A", 0), NewTask("B", 1))
	_, err := store.Claim(ctx, 2)
	require.NoError(t, err)

	require.NoError(t, store.Fail(ctx, "A", "exit status 1"))
	loaded, err := store.Load(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, loaded.Status)
	require.NotNil(t, loaded.LastError)
	assert.Equal(t, "exit status 1", *loaded.LastError)

	count, err := store.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.NoError(t, store.Fail(ctx, "B", "late failure"))
	loaded, err = store.Load(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, loaded.Status, "failure reporting overrides a recovery reset")

	err = store.Fail(ctx, "missing", "x")
	assert.True(t, errors.Is(err, dao.ErrNotFound), "%v", err)
}

func testRecover(t *testing.T, store dao.TaskService) {
	ctx := context.Background()
	insert(t, store, NewTask("queued", 9, "ghost"), NewTask("r1", 0), NewTask("r2", 1), NewTask("done", 2), NewTask("failed", 3))
	claimed, err := store.Claim(ctx, 4)
	require.NoError(t, err)
	require.Len(t, claimed, 4)
	_, err = store.Complete(ctx, "done")
	require.NoError(t, err)
	require.NoError(t, store.Fail(ctx, "failed", "boom"))

	count, err := store.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	expect := map[string]task.Status{
		"queued": task.StatusQueued,
		"r1":     task.StatusQueued,
		"r2":     task.StatusQueued,
		"done":   task.StatusCompleted,
		"failed": task.StatusFailed,
	}
	for id, status := range expect {
		loaded, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, status, loaded.Status, id)
	}
	failed, err := store.Load(ctx, "failed")
	require.NoError(t, err)
	assert.Equal(t, "boom", failed.Error())
	r1, err := store.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, r1.LastError)

	count, err = store.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	claimed, err = store.Claim(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, ids(claimed), "recovered tasks are claimable again")
}

func testCount(t *testing.T, store dao.TaskService) {
	ctx := context.Background()
	insert(t, store, NewTask("A", 0), NewTask("B", 1), NewTask("C", 2))
	_, err := store.Claim(ctx, 2)
	require.NoError(t, err)

	running, err := store.CountByStatus(ctx, task.StatusRunning)
	require.NoError(t, err)
	assert.Equal(t, 2, running)
	queued, err := store.CountByStatus(ctx, task.StatusQueued)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)
}

// testReadsDuringTransitions loads a task while another goroutine moves it
// through its states; run with -race to catch shared record access.
func testReadsDuringTransitions(t *testing.T, store dao.TaskService) {
	ctx := context.Background()
	insert(t, store, NewTask("A", 0))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			loaded, err := store.Load(ctx, "A")
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, "A", loaded.ID)
			if loaded.Status == task.StatusQueued {
				assert.Empty(t, loaded.Error())
			}
			if _, err = store.List(ctx); !assert.NoError(t, err) {
				return
			}
		}
	}()

	claimed, err := store.Claim(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	ok, err := store.Complete(ctx, "A")
	require.NoError(t, err)
	assert.True(t, ok)
	wg.Wait()

	loaded, err := store.Load(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, loaded.Status)
}

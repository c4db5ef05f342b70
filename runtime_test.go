package taskgraph

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/taskgraph/internal/logging"
	"github.com/viant/taskgraph/model/task"
	"github.com/viant/taskgraph/service/dao"
	"github.com/viant/taskgraph/service/dao/task/memory"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Worker.PollInterval = 5 * time.Millisecond
	cfg.Worker.MaxConcurrency = 2
	return cfg
}

func newRuntime(t *testing.T, options ...Option) (*Service, *Runtime) {
	options = append([]Option{WithConfig(testConfig()), WithLogger(logging.Nop())}, options...)
	srv, err := New(context.Background(), options...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv, srv.Runtime()
}

func TestRuntime_Submit(t *testing.T) {
	testCases := []struct {
		description string
		descriptor  *task.Descriptor
		expectErr   error
	}{
		{description: "valid", descriptor: &task.Descriptor{ID: "A", Type: "build", DurationMs: 100}},
		{description: "zero duration", descriptor: &task.Descriptor{ID: "A", Type: "build"}, expectErr: task.ErrValidation},
		{description: "negative duration", descriptor: &task.Descriptor{ID: "A", Type: "build", DurationMs: -5}, expectErr: task.ErrValidation},
		{description: "missing type", descriptor: &task.Descriptor{ID: "A", DurationMs: 5}, expectErr: task.ErrValidation},
		{description: "nil", expectErr: task.ErrValidation},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			ctx := context.Background()
			_, rt := newRuntime(t)
			created, err := rt.Submit(ctx, testCase.descriptor)
			if testCase.expectErr != nil {
				assert.ErrorIs(t, err, testCase.expectErr)
				tasks, err := rt.Tasks(ctx)
				require.NoError(t, err)
				assert.Empty(t, tasks, "invalid submission must not write")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, task.StatusQueued, created.Status)
			assert.Equal(t, []string{}, created.Dependencies)
			assert.False(t, created.CreatedAt.IsZero())
		})
	}
}

func TestRuntime_Lookups(t *testing.T) {
	ctx := context.Background()
	_, rt := newRuntime(t)
	_, err := rt.Submit(ctx, &task.Descriptor{ID: "A", Type: "build", DurationMs: 10})
	require.NoError(t, err)
	_, err = rt.Submit(ctx, &task.Descriptor{ID: "A", Type: "other", DurationMs: 10})
	assert.ErrorIs(t, err, dao.ErrDuplicateID)

	missing, err := rt.Task(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
	view, err := rt.Status(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, view)

	view, err = rt.Status(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, &task.StatusView{ID: "A", Status: task.StatusQueued}, view)

	claimed, err := rt.Claim(ctx, 5)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	running, err := rt.CountRunning(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, running)

	ok, err := rt.MarkCompleted(ctx, "A")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = rt.MarkCompleted(ctx, "A")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, rt.MarkFailed(ctx, "A", "late"))
	completed, err := rt.Tasks(ctx, task.StatusCompleted)
	require.NoError(t, err)
	assert.Empty(t, completed)
	failed, err := rt.Tasks(ctx, task.StatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "late", failed[0].Error())
}

func TestRuntime_DependencyScenario(t *testing.T) {
	ctx := context.Background()
	var mux sync.Mutex
	var order []string
	record := func(ctx context.Context, t *task.Task) error {
		mux.Lock()
		order = append(order, t.ID)
		mux.Unlock()
		return nil
	}
	_, rt := newRuntime(t, WithHandler("step", record))
	_, err := rt.Submit(ctx, &task.Descriptor{ID: "B", Type: "step", DurationMs: 50, Dependencies: []string{"A"}})
	require.NoError(t, err)
	_, err = rt.Submit(ctx, &task.Descriptor{ID: "A", Type: "step", DurationMs: 100})
	require.NoError(t, err)

	require.NoError(t, rt.Start(ctx))
	assert.Error(t, rt.Start(ctx))
	require.Eventually(t, func() bool {
		tasks, err := rt.Tasks(ctx, task.StatusCompleted)
		return err == nil && len(tasks) == 2
	}, 3*time.Second, 5*time.Millisecond)
	require.NoError(t, rt.Shutdown(ctx))

	mux.Lock()
	assert.Equal(t, []string{"A", "B"}, order)
	mux.Unlock()
	counters := rt.Progress()
	assert.Equal(t, 2, counters.Completed)
	assert.Equal(t, 0, counters.Running)
}

func TestRuntime_FailedExecution(t *testing.T) {
	ctx := context.Background()
	_, rt := newRuntime(t, WithHandler("broken", func(ctx context.Context, t *task.Task) error {
		return errors.New("exit status 1")
	}))
	_, err := rt.Submit(ctx, &task.Descriptor{ID: "A", Type: "broken", DurationMs: 5})
	require.NoError(t, err)
	_, err = rt.Submit(ctx, &task.Descriptor{ID: "B", Type: "broken", DurationMs: 5, Dependencies: []string{"A"}})
	require.NoError(t, err)

	dispatched, err := rt.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, dispatched)
	require.NoError(t, rt.Shutdown(ctx))

	a, err := rt.Task(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, a.Status)
	assert.Equal(t, "exit status 1", a.Error())

	dispatched, err = rt.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, dispatched, "dependents of a FAILED task stay QUEUED")
}

// A worker that dies mid-execution leaves its task RUNNING; the next process
// recovers and runs it again.
func TestRuntime_AtLeastOnceAfterCrash(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	var executions atomic.Int32
	release := make(chan struct{})

	_, crashed := newRuntime(t, WithStore(store), WithWorkerID("crashed"), WithHandler("job", func(ctx context.Context, t *task.Task) error {
		executions.Add(1)
		<-release
		return nil
	}))
	_, err := crashed.Submit(ctx, &task.Descriptor{ID: "A", Type: "job", DurationMs: 5})
	require.NoError(t, err)
	dispatched, err := crashed.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, dispatched)
	require.Eventually(t, func() bool { return executions.Load() == 1 }, time.Second, time.Millisecond)

	_, restarted := newRuntime(t, WithStore(store), WithWorkerID("restarted"), WithHandler("job", func(ctx context.Context, t *task.Task) error {
		executions.Add(1)
		return nil
	}))
	recovered, err := restarted.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)
	dispatched, err = restarted.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, dispatched)
	require.NoError(t, restarted.Shutdown(ctx))

	a, err := restarted.Task(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, a.Status)
	assert.Equal(t, int32(2), executions.Load())

	close(release)
	require.NoError(t, crashed.Shutdown(ctx))
	assert.Equal(t, 1, crashed.Progress().Lost, "the stale execution must not overwrite the outcome")
}

func TestRuntime_SharedStoreExclusiveExecution(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Store = StoreConfig{Kind: StoreSQLite, Path: filepath.Join(t.TempDir(), "tasks.db")}

	var mux sync.Mutex
	counts := map[string]int{}
	handler := func(ctx context.Context, t *task.Task) error {
		mux.Lock()
		counts[t.ID]++
		mux.Unlock()
		return nil
	}
	var runtimes []*Runtime
	for i := 0; i < 3; i++ {
		srv, err := New(ctx, WithConfig(cfg), WithLogger(logging.Nop()), WithHandler("job", handler))
		require.NoError(t, err)
		t.Cleanup(func() { _ = srv.Close() })
		runtimes = append(runtimes, srv.Runtime())
	}
	ids := []string{"A", "B", "C", "D", "E", "F", "G", "H"}
	for _, id := range ids {
		_, err := runtimes[0].Submit(ctx, &task.Descriptor{ID: id, Type: "job", DurationMs: 5})
		require.NoError(t, err)
	}
	for _, rt := range runtimes {
		require.NoError(t, rt.Start(ctx))
	}
	require.Eventually(t, func() bool {
		tasks, err := runtimes[0].Tasks(ctx, task.StatusCompleted)
		return err == nil && len(tasks) == len(ids)
	}, 5*time.Second, 10*time.Millisecond)
	for _, rt := range runtimes {
		require.NoError(t, rt.Shutdown(ctx))
	}
	mux.Lock()
	defer mux.Unlock()
	for _, id := range ids {
		assert.Equal(t, 1, counts[id], id)
	}
}

func TestNew_TracingExporter(t *testing.T) {
	testCases := []struct {
		description string
		exporter    sdktrace.SpanExporter
		expectErr   string
	}{
		{description: "missing exporter", expectErr: "tracing exporter is required"},
		{description: "in-memory exporter", exporter: tracetest.NewInMemoryExporter()},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			srv, err := New(context.Background(),
				WithConfig(testConfig()),
				WithLogger(logging.Nop()),
				WithTracingExporter("taskgraph-test", Version, testCase.exporter),
			)
			if testCase.expectErr != "" {
				assert.ErrorContains(t, err, testCase.expectErr)
				assert.Nil(t, srv)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, srv.Close())
		})
	}
}

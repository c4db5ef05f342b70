package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/taskgraph/internal/clock"
	"github.com/viant/taskgraph/model/task"
	"github.com/viant/taskgraph/service/dao"
	"github.com/viant/taskgraph/service/dao/task/memory"
)

// storeRuntime adapts a store to the Runtime interface
type storeRuntime struct {
	store     dao.TaskService
	listError error
	panicking bool
}

func (s *storeRuntime) Submit(ctx context.Context, d *task.Descriptor) (*task.Task, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return s.store.Insert(ctx, task.New(d, clock.Now()))
}

func (s *storeRuntime) Task(ctx context.Context, id string) (*task.Task, error) {
	if s.panicking {
		panic("boom")
	}
	ret, err := s.store.Load(ctx, id)
	if errors.Is(err, dao.ErrNotFound) {
		return nil, nil
	}
	return ret, err
}

func (s *storeRuntime) Status(ctx context.Context, id string) (*task.StatusView, error) {
	ret, err := s.Task(ctx, id)
	if ret == nil || err != nil {
		return nil, err
	}
	return ret.View(), nil
}

func (s *storeRuntime) Tasks(ctx context.Context, statuses ...task.Status) ([]*task.Task, error) {
	if s.listError != nil {
		return nil, s.listError
	}
	if len(statuses) == 0 {
		return s.store.List(ctx)
	}
	return s.store.List(ctx, dao.WithStatus(statuses...))
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Submit(t *testing.T) {
	testCases := []struct {
		description  string
		body         string
		expectStatus int
		expectError  string
	}{
		{description: "created", body: `{"id":"A","type":"build","duration_ms":100}`, expectStatus: http.StatusCreated},
		{description: "fractional duration", body: `{"id":"A","type":"build","duration_ms":0.5}`, expectStatus: http.StatusCreated},
		{description: "zero duration", body: `{"id":"A","type":"build","duration_ms":0}`, expectStatus: http.StatusBadRequest},
		{description: "string duration", body: `{"id":"A","type":"build","duration_ms":"100"}`, expectStatus: http.StatusBadRequest},
		{description: "numeric id", body: `{"id":1,"type":"build","duration_ms":100}`, expectStatus: http.StatusBadRequest},
		{description: "dependencies not array", body: `{"id":"A","type":"build","duration_ms":100,"dependencies":"B"}`, expectStatus: http.StatusBadRequest},
		{description: "malformed", body: `{"id":`, expectStatus: http.StatusBadRequest, expectError: "invalid JSON body"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			store := memory.New()
			h := NewServer(&storeRuntime{store: store}, nil).Handler()
			rec := do(t, h, http.MethodPost, "/api/tasks", testCase.body)
			assert.Equal(t, testCase.expectStatus, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			if testCase.expectStatus != http.StatusCreated {
				var payload map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
				assert.NotEmpty(t, payload["error"])
				if testCase.expectError != "" {
					assert.Equal(t, testCase.expectError, payload["error"])
				}
				count, err := store.CountByStatus(context.Background(), task.StatusQueued)
				require.NoError(t, err)
				assert.Equal(t, 0, count)
				return
			}
			var created task.Task
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
			assert.Equal(t, "A", created.ID)
			assert.Equal(t, task.StatusQueued, created.Status)
			assert.Equal(t, []string{}, created.Dependencies)
			assert.Nil(t, created.LastError)
		})
	}
}

func TestServer_Duplicate(t *testing.T) {
	h := NewServer(&storeRuntime{store: memory.New()}, nil).Handler()
	body := `{"id":"A","type":"build","duration_ms":100}`
	assert.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/tasks", body).Code)
	rec := do(t, h, http.MethodPost, "/api/tasks", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_Reads(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "new"} {
		_, err := store.Insert(ctx, task.New(&task.Descriptor{ID: id, Type: "t", DurationMs: 5}, base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}
	_, err := store.Claim(ctx, 1)
	require.NoError(t, err)
	h := NewServer(&storeRuntime{store: store}, nil).Handler()

	testCases := []struct {
		description  string
		path         string
		expectStatus int
		expectBody   string
	}{
		{description: "health", path: "/health", expectStatus: http.StatusOK, expectBody: `{"status":"ok"}`},
		{description: "status", path: "/api/tasks/old/status", expectStatus: http.StatusOK, expectBody: `{"id":"old","status":"RUNNING"}`},
		{description: "status missing", path: "/api/tasks/x/status", expectStatus: http.StatusNotFound, expectBody: `{"error":"Task not found"}`},
		{description: "get missing", path: "/api/tasks/x", expectStatus: http.StatusNotFound, expectBody: `{"error":"Task not found"}`},
		{description: "bad status filter", path: "/api/tasks?status=DONE", expectStatus: http.StatusBadRequest},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, testCase.path, "")
			assert.Equal(t, testCase.expectStatus, rec.Code)
			if testCase.expectBody != "" {
				assert.JSONEq(t, testCase.expectBody, rec.Body.String())
			}
		})
	}

	rec := do(t, h, http.MethodGet, "/api/tasks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tasks []*task.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	require.Len(t, tasks, 2)
	assert.Equal(t, "new", tasks[0].ID)
	assert.Equal(t, "old", tasks[1].ID)

	rec = do(t, h, http.MethodGet, "/api/tasks?status=RUNNING", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "old", tasks[0].ID)

	rec = do(t, h, http.MethodGet, "/api/tasks/new", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var aTask map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &aTask))
	assert.Equal(t, float64(5), aTask["duration_ms"])
	assert.Contains(t, aTask, "last_error")
	assert.Contains(t, aTask, "created_at")
}

func TestServer_InternalErrors(t *testing.T) {
	testCases := []struct {
		description string
		runtime     *storeRuntime
		path        string
	}{
		{description: "store error", runtime: &storeRuntime{store: memory.New(), listError: errors.New("connection reset")}, path: "/api/tasks"},
		{description: "panic", runtime: &storeRuntime{store: memory.New(), panicking: true}, path: "/api/tasks/A"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			rec := do(t, NewServer(testCase.runtime, nil).Handler(), http.MethodGet, testCase.path, "")
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.JSONEq(t, `{"error":"Internal Server Error"}`, rec.Body.String())
		})
	}
}

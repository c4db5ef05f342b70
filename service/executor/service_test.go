package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/taskgraph/model/task"
)

func TestService_Execute(t *testing.T) {
	boom := errors.New("boom")
	testCases := []struct {
		description string
		options     []Option
		task        *task.Task
		timeout     time.Duration
		expectErr   error
		expectCalls int
	}{
		{
			description: "default sleeps for duration",
			task:        &task.Task{ID: "A", Type: "sleep", DurationMs: 5},
		},
		{
			description: "registered handler",
			options: []Option{WithHandler("fail", func(ctx context.Context, t *task.Task) error {
				return boom
			})},
			task:      &task.Task{ID: "A", Type: "fail", DurationMs: 5},
			expectErr: boom,
		},
		{
			description: "default interrupted by context",
			task:        &task.Task{ID: "A", Type: "sleep", DurationMs: 10_000},
			timeout:     10 * time.Millisecond,
			expectErr:   context.DeadlineExceeded,
		},
		{
			description: "nil task",
			expectErr:   ErrNilTask,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			calls := 0
			options := append(testCase.options, WithListener(func(t *task.Task, err error, elapsed time.Duration) {
				calls++
			}))
			srv := New(options...)
			ctx := context.Background()
			if testCase.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, testCase.timeout)
				defer cancel()
			}
			err := srv.Execute(ctx, testCase.task)
			if testCase.expectErr != nil {
				assert.ErrorIs(t, err, testCase.expectErr)
			} else {
				assert.NoError(t, err)
			}
			if testCase.task != nil {
				assert.Equal(t, 1, calls)
			}
		})
	}
}

func TestWithDefaultHandler(t *testing.T) {
	var seen string
	srv := New(WithDefaultHandler(func(ctx context.Context, t *task.Task) error {
		seen = t.ID
		return nil
	}))
	assert.NoError(t, srv.Execute(context.Background(), &task.Task{ID: "B", Type: "anything", DurationMs: 10_000}))
	assert.Equal(t, "B", seen)
}

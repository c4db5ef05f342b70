package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/taskgraph/model/task"
)

func TestQueue(t *testing.T) {
	queue := NewQueue[task.StatusView](DefaultConfig())
	ctx := context.Background()

	require.NoError(t, queue.Publish(ctx, &task.StatusView{ID: "A", Status: task.StatusCompleted}))
	assert.Equal(t, 1, queue.Size())

	message, err := queue.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, queue.Size())
	assert.Equal(t, "A", message.T().ID)
	assert.Equal(t, task.StatusCompleted, message.T().Status)

	assert.NoError(t, message.Ack())
	assert.ErrorIs(t, message.Ack(), ErrProcessed)
}

func TestQueue_Retries(t *testing.T) {
	config := DefaultConfig()
	config.MaxRetries = 1
	config.RetryDelay = 5 * time.Millisecond
	queue := NewQueue[task.StatusView](config)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, queue.Publish(ctx, &task.StatusView{ID: "A"}))
	message, err := queue.Consume(ctx)
	require.NoError(t, err)
	require.NoError(t, message.Nack(errors.New("retry")))

	message, err = queue.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", message.T().ID)
	require.NoError(t, message.Nack(errors.New("give up")))
	assert.Equal(t, 1, queue.DeadLetters())
}

func TestQueue_Full(t *testing.T) {
	testCases := []struct {
		description  string
		dropWhenFull bool
		expectErr    bool
		expectDrop   int
	}{
		{description: "drop", dropWhenFull: true, expectDrop: 1},
		{description: "block until context done", expectErr: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			queue := NewQueue[task.StatusView](Config{QueueBuffer: 1, DropWhenFull: testCase.dropWhenFull})
			require.NoError(t, queue.Publish(context.Background(), &task.StatusView{ID: "A"}))

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()
			err := queue.Publish(ctx, &task.StatusView{ID: "B"})
			assert.Equal(t, testCase.expectErr, err != nil)
			assert.Equal(t, testCase.expectDrop, queue.Dropped())
			assert.Equal(t, 1, queue.Size())
		})
	}
}

func TestQueue_ConsumeCancelled(t *testing.T) {
	queue := NewQueue[task.StatusView](DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := queue.Consume(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

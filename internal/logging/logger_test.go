package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewWithWriter(buf, Config{Level: LevelDebug, Format: FormatJSON})
	logger.WithWorker("w1").WithTask("A").Info("task completed", "duration_ms", 100)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "task completed", entry["msg"])
	assert.Equal(t, "w1", entry["worker_id"])
	assert.Equal(t, "A", entry["task_id"])
	assert.EqualValues(t, 100, entry["duration_ms"])
}

func TestLogger_Level(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewWithWriter(buf, Config{Level: LevelWarn, Format: FormatText})
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input  string
		expect slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"Error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expect, parseLevel(tc.input))
		})
	}
}

func TestLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "taskgraph.log")
	logger, err := New(Config{Level: LevelInfo, File: path})
	require.NoError(t, err)
	logger.Info("hello")
	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewWithWriter(buf, Config{})
	ctx := WithLogger(context.Background(), logger)
	FromContext(ctx).Info("from ctx")
	assert.True(t, strings.Contains(buf.String(), "from ctx"))
	assert.NotNil(t, FromContext(context.Background()))
}

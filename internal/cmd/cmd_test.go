package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/taskgraph"
	"github.com/viant/taskgraph/model/task"
)

func resetFlags(cmd *cobra.Command) {
	reset := func(flag *pflag.Flag) {
		if slice, ok := flag.Value.(pflag.SliceValue); ok {
			_ = slice.Replace(nil)
		} else {
			_ = flag.Value.Set(flag.DefValue)
		}
		flag.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}

func executeCommand(args ...string) (string, error) {
	viper.Reset()
	resetFlags(rootCmd)
	stdout := new(bytes.Buffer)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), err
}

func storeArgs(dir string, args ...string) []string {
	return append(args, "--store", taskgraph.StoreFS, "--store-path", dir)
}

func decodeTasks(t *testing.T, output string) []task.Task {
	var ret []task.Task
	require.NoError(t, json.Unmarshal([]byte(output), &ret), output)
	return ret
}

func TestSubmitAndQuery(t *testing.T) {
	dir := t.TempDir()

	output, err := executeCommand(storeArgs(dir, "submit", "--id", "build", "--type", "compile", "--duration", "500")...)
	require.NoError(t, err)
	submitted := decodeTasks(t, output)
	require.Len(t, submitted, 1)
	assert.Equal(t, "build", submitted[0].ID)
	assert.Equal(t, task.StatusQueued, submitted[0].Status)

	_, err = executeCommand(storeArgs(dir, "submit", "--id", "test", "--type", "check", "--duration", "200", "--depends-on", "build")...)
	require.NoError(t, err)

	output, err = executeCommand(storeArgs(dir, "get", "test")...)
	require.NoError(t, err)
	var found task.Task
	require.NoError(t, json.Unmarshal([]byte(output), &found))
	assert.Equal(t, []string{"build"}, found.Dependencies)
	assert.Equal(t, int64(200), found.DurationMs)

	output, err = executeCommand(storeArgs(dir, "get", "build", "--status")...)
	require.NoError(t, err)
	var view task.StatusView
	require.NoError(t, json.Unmarshal([]byte(output), &view))
	assert.Equal(t, task.StatusView{ID: "build", Status: task.StatusQueued}, view)

	output, err = executeCommand(storeArgs(dir, "list")...)
	require.NoError(t, err)
	listed := decodeTasks(t, output)
	require.Len(t, listed, 2)
	assert.Equal(t, "test", listed[0].ID)

	output, err = executeCommand(storeArgs(dir, "list", "--status", "RUNNING")...)
	require.NoError(t, err)
	assert.Empty(t, decodeTasks(t, output))

	_, err = executeCommand(storeArgs(dir, "list", "--status", "DONE")...)
	assert.Error(t, err)

	_, err = executeCommand(storeArgs(dir, "get", "missing")...)
	assert.ErrorContains(t, err, "task not found")

	output, err = executeCommand(storeArgs(dir, "recover")...)
	require.NoError(t, err)
	assert.Equal(t, "recovered 0 task(s)\n", output)
}

func TestSubmitRejects(t *testing.T) {
	var testCases = []struct {
		description string
		args        []string
	}{
		{description: "missing id", args: []string{"submit", "--type", "x", "--duration", "10"}},
		{description: "zero duration", args: []string{"submit", "--id", "a", "--type", "x"}},
		{description: "duplicate id", args: []string{"submit", "--id", "dup", "--type", "x", "--duration", "10"}},
	}

	dir := t.TempDir()
	_, err := executeCommand(storeArgs(dir, "submit", "--id", "dup", "--type", "x", "--duration", "10")...)
	require.NoError(t, err)

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			_, err := executeCommand(storeArgs(dir, testCase.args...)...)
			assert.Error(t, err)
		})
	}

	output, err := executeCommand(storeArgs(dir, "list")...)
	require.NoError(t, err)
	assert.Len(t, decodeTasks(t, output), 1)
}

func TestSubmitFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "tasks.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`tasks:
  - id: A
    type: build
    duration_ms: 100
  - id: B
    type: test
    duration_ms: 50
    dependencies: [A]
`), 0o644))

	output, err := executeCommand(storeArgs(filepath.Join(dir, "store"), "submit", "--file", file, "-o", "yaml")...)
	require.NoError(t, err)
	assert.Contains(t, output, "id: A")
	assert.Contains(t, output, "status: QUEUED")

	output, err = executeCommand(storeArgs(filepath.Join(dir, "store"), "list")...)
	require.NoError(t, err)
	assert.Len(t, decodeTasks(t, output), 2)
}

func TestLoadConfig(t *testing.T) {
	var testCases = []struct {
		description string
		env         map[string]string
		args        []string
		config      string
		verify      func(t *testing.T, cfg *taskgraph.Config)
		expectErr   bool
	}{
		{
			description: "defaults",
			verify: func(t *testing.T, cfg *taskgraph.Config) {
				assert.Equal(t, taskgraph.DefaultConfig(), cfg)
			},
		},
		{
			description: "legacy variables",
			env: map[string]string{
				"MAX_CONCURRENT_TASKS": "7",
				"POLL_INTERVAL_MS":     "250",
				"PORT":                 "8080",
				"DATABASE_URL":         "postgres://localhost/tasks",
			},
			verify: func(t *testing.T, cfg *taskgraph.Config) {
				assert.Equal(t, 7, cfg.Worker.MaxConcurrency)
				assert.Equal(t, 250*time.Millisecond, cfg.Worker.PollInterval)
				assert.Equal(t, ":8080", cfg.HTTP.Addr)
				assert.Equal(t, taskgraph.StorePostgres, cfg.Store.Kind)
				assert.Equal(t, "postgres://localhost/tasks", cfg.Store.DSN)
			},
		},
		{
			description: "prefixed variables",
			env: map[string]string{
				"TASKGRAPH_WORKER_POLL_INTERVAL": "2s",
				"TASKGRAPH_STORE_KIND":           "fs",
				"TASKGRAPH_STORE_PATH":           "/tmp/tasks",
				"DATABASE_URL":                   "postgres://localhost/tasks",
			},
			verify: func(t *testing.T, cfg *taskgraph.Config) {
				assert.Equal(t, 2*time.Second, cfg.Worker.PollInterval)
				assert.Equal(t, taskgraph.StoreFS, cfg.Store.Kind)
				assert.Equal(t, "/tmp/tasks", cfg.Store.Path)
			},
		},
		{
			description: "config file",
			config:      "worker:\n  max_concurrency: 5\nstore:\n  kind: sqlite\n  path: tasks.db\nlogging:\n  level: debug\n",
			verify: func(t *testing.T, cfg *taskgraph.Config) {
				assert.Equal(t, 5, cfg.Worker.MaxConcurrency)
				assert.Equal(t, taskgraph.StoreSQLite, cfg.Store.Kind)
				assert.Equal(t, "tasks.db", cfg.Store.Path)
				assert.Equal(t, "debug", cfg.Logging.Level)
			},
		},
		{
			description: "flag overrides store",
			args:        []string{"--store", "fs", "--store-path", "/var/tasks"},
			verify: func(t *testing.T, cfg *taskgraph.Config) {
				assert.Equal(t, taskgraph.StoreFS, cfg.Store.Kind)
				assert.Equal(t, "/var/tasks", cfg.Store.Path)
			},
		},
		{description: "invalid poll interval", env: map[string]string{"POLL_INTERVAL_MS": "soon"}, expectErr: true},
		{description: "invalid concurrency", env: map[string]string{"MAX_CONCURRENT_TASKS": "0"}, expectErr: true},
		{description: "missing store path", env: map[string]string{"TASKGRAPH_STORE_KIND": "sqlite"}, expectErr: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			for key, value := range testCase.env {
				t.Setenv(key, value)
			}
			viper.Reset()
			resetFlags(rootCmd)
			args := testCase.args
			if testCase.config != "" {
				file := filepath.Join(t.TempDir(), "taskgraph.yaml")
				require.NoError(t, os.WriteFile(file, []byte(testCase.config), 0o644))
				args = append(args, "--config", file)
			}
			require.NoError(t, rootCmd.PersistentFlags().Parse(args))
			initConfig()

			cfg, err := loadConfig()
			if testCase.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			testCase.verify(t, cfg)
		})
	}
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/viant/taskgraph/model/task"
	"github.com/viant/taskgraph/service/manifest"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit one or more tasks",
	Long: `Submit stores new QUEUED tasks. A single task is described with flags;
a batch is read from a YAML or JSON manifest holding either a list of tasks
or a document with a top level "tasks" list. The manifest may be a local
path or any URL the afs storage layer supports.`,
	Example: `  taskgraph submit --id build --type compile --duration 500
  taskgraph submit --id test --type check --duration 200 --depends-on build
  taskgraph submit --file tasks.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		descriptors, err := submitDescriptors(cmd)
		if err != nil {
			return err
		}
		srv, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer srv.Close()

		submitted := make([]*task.Task, 0, len(descriptors))
		for _, descriptor := range descriptors {
			created, err := srv.Runtime().Submit(cmd.Context(), descriptor)
			if err != nil {
				return fmt.Errorf("failed to submit task %q: %w", descriptor.ID, err)
			}
			submitted = append(submitted, created)
		}
		return printValue(cmd, submitted)
	},
}

func init() {
	submitCmd.Flags().StringP("file", "f", "", "YAML or JSON task manifest path or URL")
	submitCmd.Flags().String("id", "", "task id")
	submitCmd.Flags().String("type", "", "task type")
	submitCmd.Flags().Int64("duration", 0, "task duration in milliseconds")
	submitCmd.Flags().StringSlice("depends-on", nil, "ids of tasks that must complete first")
	addOutputFlag(submitCmd)
	rootCmd.AddCommand(submitCmd)
}

func submitDescriptors(cmd *cobra.Command) ([]*task.Descriptor, error) {
	file, _ := cmd.Flags().GetString("file")
	if file != "" {
		return manifest.New().Load(cmd.Context(), file)
	}
	descriptor := &task.Descriptor{}
	descriptor.ID, _ = cmd.Flags().GetString("id")
	descriptor.Type, _ = cmd.Flags().GetString("type")
	descriptor.DurationMs, _ = cmd.Flags().GetInt64("duration")
	descriptor.Dependencies, _ = cmd.Flags().GetStringSlice("depends-on")
	if err := descriptor.Validate(); err != nil {
		return nil, err
	}
	return []*task.Descriptor{descriptor}, nil
}

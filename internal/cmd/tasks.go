package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/viant/taskgraph/model/task"
)

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer srv.Close()

		statusOnly, _ := cmd.Flags().GetBool("status")
		var value interface{}
		if statusOnly {
			var view *task.StatusView
			if view, err = srv.Runtime().Status(cmd.Context(), args[0]); err == nil && view != nil {
				value = view
			}
		} else {
			var found *task.Task
			if found, err = srv.Runtime().Task(cmd.Context(), args[0]); err == nil && found != nil {
				value = found
			}
		}
		if err != nil {
			return err
		}
		if value == nil {
			return fmt.Errorf("task not found: %s", args[0])
		}
		return printValue(cmd, value)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		names, _ := cmd.Flags().GetStringSlice("status")
		statuses := make([]task.Status, 0, len(names))
		for _, name := range names {
			status := task.Status(name)
			if !status.IsValid() {
				return fmt.Errorf("unsupported status: %q", name)
			}
			statuses = append(statuses, status)
		}
		srv, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer srv.Close()

		tasks, err := srv.Runtime().Tasks(cmd.Context(), statuses...)
		if err != nil {
			return err
		}
		return printValue(cmd, tasks)
	},
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Requeue tasks left RUNNING by a crashed process",
	Long: `Recover moves every RUNNING task back to QUEUED. Run it only while no
worker shares the store, since tasks in flight elsewhere are requeued too.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer srv.Close()

		count, err := srv.Runtime().Recover(cmd.Context())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "recovered %d task(s)\n", count)
		return err
	},
}

func init() {
	getCmd.Flags().Bool("status", false, "show only id and status")
	addOutputFlag(getCmd)
	listCmd.Flags().StringSlice("status", nil, "filter by status (QUEUED, RUNNING, COMPLETED, FAILED)")
	addOutputFlag(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(recoverCmd)
}

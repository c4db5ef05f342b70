// Package cmd implements the taskgraph command line.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "taskgraph",
	Short: "Dependency-aware task scheduler",
	Long: `taskgraph schedules tasks that depend on one another. Tasks are kept in a
durable store; worker loops in one or many processes claim tasks whose
dependencies completed and run them under a global concurrency cap.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is ./taskgraph.yaml)")
	rootCmd.PersistentFlags().String("store", "", "store kind: memory, fs, sqlite or postgres")
	rootCmd.PersistentFlags().String("store-path", "", "fs store directory or sqlite database file")
}

func initConfig() {
	setDefaults()
	_ = viper.BindPFlag("store.kind", rootCmd.PersistentFlags().Lookup("store"))
	_ = viper.BindPFlag("store.path", rootCmd.PersistentFlags().Lookup("store-path"))

	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("taskgraph")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/taskgraph")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("TASKGRAPH")
	// TASKGRAPH_WORKER_MAX_CONCURRENCY for worker.max_concurrency
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindLegacyEnv()

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

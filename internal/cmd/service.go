package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/viant/taskgraph"
	"gopkg.in/yaml.v3"
)

// Output formats
const (
	outputJSON = "json"
	outputYAML = "yaml"
)

func openService(ctx context.Context) (*taskgraph.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return taskgraph.New(ctx, taskgraph.WithConfig(cfg))
}

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", outputJSON, "output format: json or yaml")
}

func printValue(cmd *cobra.Command, value interface{}) error {
	format, _ := cmd.Flags().GetString("output")
	return encode(cmd.OutOrStdout(), format, value)
}

func encode(w io.Writer, format string, value interface{}) error {
	switch format {
	case "", outputJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(value)
	case outputYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(value); err != nil {
			return err
		}
		return encoder.Close()
	default:
		return fmt.Errorf("unsupported output format: %q", format)
	}
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"montage/internal/daemonctl"
)

func newPipelineCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pipeline <asset-id>",
		Short: "Show pipeline step states for an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *daemonctl.Client) error {
				view, err := client.Pipeline(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				rows := make([][]string, 0, len(view.Steps))
				for _, step := range view.Steps {
					detail := step.Error
					if detail == "" && len(step.Metadata) > 0 {
						detail = summarizeMetadata(step.Metadata)
					}
					rows = append(rows, []string{step.StepID, step.Label, step.Status, dash(detail)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]tableColumn{
					{title: "Step"},
					{title: "Label"},
					{title: "Status"},
					{title: "Detail"},
				}, rows))
				return nil
			})
		},
	}
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   "run <asset-id> <step>",
		Short: "Run or resubmit a pipeline step for an asset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseParams(params)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *daemonctl.Client) error {
				step, err := client.RunStep(cmd.Context(), args[0], args[1], parsed)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if step.Error != "" {
					fmt.Fprintf(out, "Step %s is %s: %s\n", step.StepID, step.Status, step.Error)
					return nil
				}
				fmt.Fprintf(out, "Step %s is %s\n", step.StepID, step.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVar(&params, "param", nil, "Step parameter as key=value (repeatable)")
	return cmd
}

func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}

// summarizeMetadata picks a few representative keys so step tables stay
// readable.
func summarizeMetadata(metadata map[string]any) string {
	for _, key := range []string{"progress_percent", "shot_count", "word_count", "loudness_lufs", "size_bytes"} {
		if value, ok := metadata[key]; ok {
			return fmt.Sprintf("%s=%v", key, value)
		}
	}
	return fmt.Sprintf("%d metadata keys", len(metadata))
}

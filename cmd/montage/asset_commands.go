package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"montage/internal/api"
	"montage/internal/daemonctl"
)

func newAssetsCommand(ctx *commandContext) *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "assets",
		Short: "List assets in the library",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *daemonctl.Client) error {
				assets, err := client.ListAssets(cmd.Context(), projectID)
				if err != nil {
					return err
				}
				if len(assets) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No assets registered")
					return nil
				}

				rows := make([][]string, 0, len(assets))
				for _, asset := range assets {
					rows = append(rows, []string{
						asset.ID,
						asset.Name,
						asset.Kind,
						asset.Source,
						dash(asset.ProjectID),
						formatSize(asset.SizeBytes),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]tableColumn{
					{title: "ID"},
					{title: "Name"},
					{title: "Kind"},
					{title: "Source"},
					{title: "Project"},
					{title: "Size", numeric: true},
				}, rows))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Filter by project id")
	return cmd
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Register a local file as an asset and run its pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			return ctx.withClient(func(client *daemonctl.Client) error {
				asset, err := client.CreateAsset(cmd.Context(), api.CreateAssetRequest{
					Path:      path,
					ProjectID: projectID,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered %s as %s (%s)\n", asset.Name, asset.ID, asset.Kind)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project id for the new asset")
	return cmd
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

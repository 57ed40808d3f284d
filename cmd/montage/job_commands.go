package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"montage/internal/api"
	"montage/internal/daemonctl"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var prompt string
	var duration float64
	var aspectRatio string
	var projectID string
	var wait bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new video clip from a text prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt == "" {
				return fmt.Errorf("--prompt is required")
			}
			params := map[string]any{"prompt": prompt}
			if duration > 0 {
				params["duration_seconds"] = duration
			}
			if aspectRatio != "" {
				params["aspect_ratio"] = aspectRatio
			}
			return ctx.withClient(func(client *daemonctl.Client) error {
				job, err := client.StartJob(cmd.Context(), api.StartJobRequest{
					Kind:      "generate",
					ProjectID: projectID,
					Params:    params,
				})
				if err != nil {
					return err
				}
				return reportJob(cmd, client, job, wait)
			})
		},
	}

	cmd.Flags().StringVar(&prompt, "prompt", "", "Text prompt describing the clip")
	cmd.Flags().Float64Var(&duration, "duration", 0, "Requested clip duration in seconds")
	cmd.Flags().StringVar(&aspectRatio, "aspect", "", "Aspect ratio, e.g. 16:9")
	cmd.Flags().StringVar(&projectID, "project", "", "Project id for the generated asset")
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the job finishes")
	return cmd
}

func newEffectCommand(ctx *commandContext) *cobra.Command {
	var inputs []string
	var projectID string
	var wait bool

	cmd := &cobra.Command{
		Use:   "effect <asset-id>",
		Short: "Apply a rendered effect to an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseParams(inputs)
			if err != nil {
				return err
			}
			if len(parsed) == 0 {
				return fmt.Errorf("at least one --input key=value is required")
			}
			return ctx.withClient(func(client *daemonctl.Client) error {
				job, err := client.StartJob(cmd.Context(), api.StartJobRequest{
					Kind:      "effect",
					AssetID:   args[0],
					ProjectID: projectID,
					Params:    map[string]any{"input": parsed},
				})
				if err != nil {
					return err
				}
				return reportJob(cmd, client, job, wait)
			})
		},
	}

	cmd.Flags().StringArrayVar(&inputs, "input", nil, "Effect input as key=value (repeatable)")
	cmd.Flags().StringVar(&projectID, "project", "", "Project id for the result asset")
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the job finishes")
	return cmd
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var status string
	var assetID string
	var projectID string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List generative jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *daemonctl.Client) error {
				jobs, err := client.ListJobs(cmd.Context(), status, assetID, projectID)
				if err != nil {
					return err
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs recorded")
					return nil
				}

				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						job.ID,
						job.Kind,
						job.Status,
						fmt.Sprintf("%.0f%%", job.Progress),
						dash(job.ResultAssetID),
						dash(job.Error),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]tableColumn{
					{title: "ID"},
					{title: "Kind"},
					{title: "Status"},
					{title: "Progress", numeric: true},
					{title: "Result"},
					{title: "Error"},
				}, rows))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by job status")
	cmd.Flags().StringVar(&assetID, "asset", "", "Filter by owning asset id")
	cmd.Flags().StringVar(&projectID, "project", "", "Filter by project id")
	return cmd
}

func newJobCommand(ctx *commandContext) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "job <job-id>",
		Short: "Show one job, polling its provider for fresh state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *daemonctl.Client) error {
				job, err := client.GetJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return reportJob(cmd, client, job, wait)
			})
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the job finishes")
	return cmd
}

func reportJob(cmd *cobra.Command, client *daemonctl.Client, job *api.JobView, wait bool) error {
	out := cmd.OutOrStdout()
	if wait && job.Status != "succeeded" && job.Status != "failed" {
		fmt.Fprintf(out, "Job %s %s, waiting...\n", job.ID, job.Status)
		finished, err := client.WaitForJob(cmd.Context(), job.ID, 2*time.Second)
		if err != nil {
			return err
		}
		job = finished
	}

	switch job.Status {
	case "succeeded":
		fmt.Fprintf(out, "Job %s succeeded", job.ID)
		if job.ResultAssetID != "" {
			fmt.Fprintf(out, ", new asset %s", job.ResultAssetID)
		}
		fmt.Fprintln(out)
	case "failed":
		fmt.Fprintf(out, "Job %s failed: %s\n", job.ID, job.Error)
	default:
		fmt.Fprintf(out, "Job %s is %s (%.0f%%)\n", job.ID, job.Status, job.Progress)
	}
	return nil
}

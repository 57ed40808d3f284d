package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"montage/internal/daemonctl"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and library status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			client, err := daemonctl.New(ctx.apiAddress(), daemonctl.WithToken(ctx.apiToken()))
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
					fmt.Fprintln(out, renderStatusLine("Montage", statusWarn, "Not running (start with `montaged`)", colorize))
					return nil
				}
				return err
			}

			if status.Running {
				fmt.Fprintln(out, renderStatusLine("Montage", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Montage", statusWarn, "Not running", colorize))
			}
			fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.DBPath, colorize))
			fmt.Fprintln(out, renderStatusLine("Media dir", statusInfo, status.MediaDir, colorize))
			fmt.Fprintln(out, renderStatusLine("Assets", statusInfo, fmt.Sprintf("%d", status.Assets), colorize))

			stepsKind := statusOK
			if status.StepsFailed > 0 {
				stepsKind = statusError
			} else if status.StepsWaiting > 0 {
				stepsKind = statusInfo
			}
			fmt.Fprintln(out, renderStatusLine("Steps", stepsKind,
				fmt.Sprintf("%d waiting, %d failed", status.StepsWaiting, status.StepsFailed), colorize))

			jobsKind := statusOK
			if status.JobsFailed > 0 {
				jobsKind = statusError
			} else if status.JobsRunning > 0 {
				jobsKind = statusInfo
			}
			fmt.Fprintln(out, renderStatusLine("Jobs", jobsKind,
				fmt.Sprintf("%d running, %d failed", status.JobsRunning, status.JobsFailed), colorize))
			return nil
		},
	}
}

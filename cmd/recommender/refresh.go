package main

import (
	"context"
	"fmt"
	"time"

	"job-recommender/internal/app"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the listing catalog, then recompute every user",
	Long:  "Runs the scheduler sequence once in the foreground: one refresh request per configured source with the cooldown in between, then recompute-all.",
	RunE:  runRefresh,
}

type refreshOutput struct {
	Trigger  string         `json:"trigger"`
	Sources  []sourceOutput `json:"sources"`
	Summary  summaryOutput  `json:"summary"`
	Duration string         `json:"duration"`
}

type sourceOutput struct {
	Source string `json:"source"`
	TaskID string `json:"task_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
		rep, err := c.Scheduler.RunNow(ctx)
		if err != nil {
			return fmt.Errorf("refresh run failed: %w", err)
		}

		out := refreshOutput{
			Trigger: rep.Trigger,
			Sources: make([]sourceOutput, 0, len(rep.Refreshed)),
			Summary: summaryOutput{
				ProcessedUsers:       rep.Summary.ProcessedUsers,
				SucceededUsers:       rep.Summary.SucceededUsers,
				TotalRecommendations: rep.Summary.TotalRecommendations,
				Duration:             rep.Summary.Duration.String(),
			},
			Duration: rep.Finished.Sub(rep.Started).Round(time.Millisecond).String(),
		}
		for _, s := range rep.Refreshed {
			out.Sources = append(out.Sources, sourceOutput{Source: s.Source, TaskID: s.TaskID, Error: errString(s.Err)})
		}
		return printJSON(cmd.OutOrStdout(), out)
	})
}

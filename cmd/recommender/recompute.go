package main

import (
	"context"
	"fmt"

	"job-recommender/internal/app"

	"github.com/spf13/cobra"
)

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute cached recommendations for one user",
	Long:  "Runs a single calculation cycle for --user under the user's distributed lock and prints the outcome.",
	RunE:  runRecompute,
}

var recomputeAllCmd = &cobra.Command{
	Use:   "recompute-all",
	Short: "Recompute cached recommendations for every user with a career profile",
	RunE:  runRecomputeAll,
}

var (
	recomputeUser  int64
	recomputeMax   int
	recomputeBatch int
)

type cycleOutput struct {
	UserID               int64  `json:"user_id"`
	Success              bool   `json:"success"`
	SavedCount           int    `json:"saved_count"`
	TotalRecommendations int    `json:"total_recommendations"`
	Source               string `json:"source"`
	Error                string `json:"error,omitempty"`
}

type summaryOutput struct {
	ProcessedUsers       int              `json:"processed_users"`
	SucceededUsers       int              `json:"succeeded_users"`
	TotalRecommendations int              `json:"total_recommendations"`
	Errors               map[int64]string `json:"errors,omitempty"`
	Duration             string           `json:"duration"`
}

func init() {
	recomputeCmd.Flags().Int64VarP(&recomputeUser, "user", "u", 0, "User id (required)")
	recomputeCmd.Flags().IntVarP(&recomputeMax, "max", "m", 0, "Maximum rows to keep (0 uses RECOMMENDATION_MAX_PER_USER)")
	if err := recomputeCmd.MarkFlagRequired("user"); err != nil {
		panic(fmt.Sprintf("failed to mark user flag as required: %v", err))
	}

	recomputeAllCmd.Flags().IntVarP(&recomputeBatch, "batch", "b", 0, "Users processed concurrently (0 uses RECOMMENDATION_BATCH_SIZE)")
	recomputeAllCmd.Flags().IntVarP(&recomputeMax, "max", "m", 0, "Maximum rows to keep per user")

	rootCmd.AddCommand(recomputeCmd)
	rootCmd.AddCommand(recomputeAllCmd)
}

func runRecompute(cmd *cobra.Command, _ []string) error {
	if recomputeUser <= 0 {
		return fmt.Errorf("--user must be a positive id")
	}
	return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
		res := c.Calculator.CalculateForUser(ctx, recomputeUser, recomputeMax)
		if err := printJSON(cmd.OutOrStdout(), cycleOutput{
			UserID:               res.UserID,
			Success:              res.Success,
			SavedCount:           res.SavedCount,
			TotalRecommendations: res.TotalRecommendations,
			Source:               string(res.Source),
			Error:                errString(res.Err),
		}); err != nil {
			return err
		}
		return res.Err
	})
}

func runRecomputeAll(cmd *cobra.Command, _ []string) error {
	return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
		batch := recomputeBatch
		if batch <= 0 {
			batch = c.Config.Recommendation.BatchSize
		}
		sum, err := c.Calculator.CalculateForAllUsers(ctx, batch, recomputeMax)
		if err != nil {
			return fmt.Errorf("recompute-all failed: %w", err)
		}
		out := summaryOutput{
			ProcessedUsers:       sum.ProcessedUsers,
			SucceededUsers:       sum.SucceededUsers,
			TotalRecommendations: sum.TotalRecommendations,
			Duration:             sum.Duration.String(),
		}
		if len(sum.PerUserErrors) > 0 {
			out.Errors = make(map[int64]string, len(sum.PerUserErrors))
			for uid, e := range sum.PerUserErrors {
				out.Errors[uid] = errString(e)
			}
		}
		return printJSON(cmd.OutOrStdout(), out)
	})
}

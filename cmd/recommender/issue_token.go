package main

import (
	"fmt"

	"job-recommender/internal/pkg/jwt"

	"github.com/spf13/cobra"
)

var issueTokenCmd = &cobra.Command{
	Use:   "issue-token",
	Short: "Issue an access token for a user",
	RunE:  runIssueToken,
}

var issueTokenUser int64

func init() {
	issueTokenCmd.Flags().Int64VarP(&issueTokenUser, "user", "u", 0, "User id (required)")
	if err := issueTokenCmd.MarkFlagRequired("user"); err != nil {
		panic(fmt.Sprintf("failed to mark user flag as required: %v", err))
	}
	rootCmd.AddCommand(issueTokenCmd)
}

func runIssueToken(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if issueTokenUser <= 0 {
		return fmt.Errorf("--user must be a positive id")
	}

	svc := jwt.NewHMACService(cfg.JWT.AccessSecret, cfg.JWT.AccessExpiresIn)
	token, err := svc.GenerateAccessToken(issueTokenUser)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

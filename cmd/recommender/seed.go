package main

import (
	"context"
	"fmt"
	"time"

	"job-recommender/internal/database/postgres"
	"job-recommender/internal/database/seeder"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert sample listings and a demo career profile into a development database",
	RunE:  runSeed,
}

var seedDemoUser int64

func init() {
	seedCmd.Flags().Int64Var(&seedDemoUser, "demo-user", 0, "Also give this user id a ranked career profile")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, lg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.App.Environment == "production" {
		return fmt.Errorf("refusing to seed a production database")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.Database, lg)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	r := seeder.Runner{Seeders: seeder.Defaults(seedDemoUser), Log: lg}
	if err := r.Run(ctx, db); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "seed complete")
	return nil
}

package main

import (
	"context"
	"fmt"
	"time"

	"job-recommender/internal/database/migration"
	"job-recommender/internal/database/postgres"
	"job-recommender/migrations"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE:  runMigrate,
}

var migrateDir string

func init() {
	migrateCmd.Flags().StringVar(&migrateDir, "dir", "", "Read migrations from this directory instead of the embedded set")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, lg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.Database, lg)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	r := migration.Runner{FS: migrations.FS, Log: lg}
	if migrateDir != "" {
		r = migration.Runner{Dir: migrateDir, Log: lg}
	}
	if err := r.Run(ctx, db.SQLDB()); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
	return nil
}

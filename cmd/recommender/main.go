// Package main is the operator CLI for the recommendation pipeline.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"job-recommender/internal/app"
	"job-recommender/internal/config"
	"job-recommender/internal/logger"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "recommender",
	Short:         "Job recommendation pipeline operations",
	Long:          "Runs migrations, recomputes cached recommendations for one or all users, triggers catalog refreshes and issues access tokens.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, logger.NewStructured(cfg.Log.Level, cfg.Log.Format), nil
}

// withContainer builds the full service graph, runs fn and closes everything afterwards.
func withContainer(cmd *cobra.Command, fn func(ctx context.Context, c *app.Container) error) error {
	cfg, lg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := app.NewContainer(ctx, cfg, lg)
	if err != nil {
		return fmt.Errorf("failed to init container: %w", err)
	}
	defer func() {
		_ = c.Close()
	}()
	return fn(ctx, c)
}

func printJSON(w io.Writer, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

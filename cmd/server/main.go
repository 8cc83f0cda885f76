package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"job-recommender/internal/app"
	"job-recommender/internal/config"
	"job-recommender/internal/database/migration"
	"job-recommender/internal/logger"
	"job-recommender/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	lg := logger.NewStructured(cfg.Log.Level, cfg.Log.Format).With(map[string]interface{}{
		"app": cfg.App.AppName,
		"env": cfg.App.Environment,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := app.NewContainer(ctx, cfg, lg)
	if err != nil {
		lg.Error("failed to build container", map[string]interface{}{"err": err})
		os.Exit(1)
	}

	migCtx, migCancel := context.WithTimeout(ctx, 2*time.Minute)
	err = migration.Runner{FS: migrations.FS, Log: lg}.Run(migCtx, container.DB.SQLDB())
	migCancel()
	if err != nil {
		lg.Error("migration failed", map[string]interface{}{"err": err})
		_ = container.Close()
		os.Exit(1)
	}

	bootstrap, cleanup, err := app.Bootstrap(container)
	if err != nil {
		lg.Error("failed to bootstrap app", map[string]interface{}{"err": err})
		_ = container.Close()
		os.Exit(1)
	}
	defer func() {
		if err := cleanup(); err != nil {
			lg.Warn("cleanup error", map[string]interface{}{"err": err})
		}
	}()

	addr, err := app.ListenAddr(cfg.App.HTTPPort)
	if err != nil {
		lg.Error("invalid HTTP port", map[string]interface{}{"err": err})
		return
	}

	if cfg.Scheduler.Enabled {
		if err := container.Scheduler.Start(ctx); err != nil {
			lg.Error("failed to start scheduler", map[string]interface{}{"err": err})
			return
		}
	} else {
		lg.Info("scheduler disabled", nil)
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("http server listening", map[string]interface{}{"addr": addr})
		errCh <- bootstrap.Fiber.Listen(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			lg.Error("server error", map[string]interface{}{"err": err})
		}
	case <-ctx.Done():
		lg.Info("shutdown signal received", nil)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := bootstrap.Fiber.ShutdownWithContext(shutdownCtx); err != nil {
		lg.Warn("http shutdown error", map[string]interface{}{"err": err})
	}
	if cfg.Scheduler.Enabled {
		if err := container.Scheduler.Stop(shutdownCtx); err != nil {
			lg.Warn("scheduler stop error", map[string]interface{}{"err": err})
		}
	}
	if err := container.Calculator.Wait(shutdownCtx); err != nil {
		lg.Warn("detached cycles still running at shutdown", map[string]interface{}{"err": err})
	}
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vertextoedge/audio-fetch-cache/internal/logger"
	"github.com/vertextoedge/audio-fetch-cache/internal/service/maintenance"
	"github.com/vertextoedge/audio-fetch-cache/internal/service/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the cache with its HTTP API and maintenance loop",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, zapLogger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	zapLogger.Info("starting audio-fetch-cache",
		zap.String("version", version),
		zap.String("config", configPath),
	)

	a, err := newApp(cfg, zapLogger)
	if err != nil {
		return err
	}
	defer a.close()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.start(ctx); err != nil {
		return err
	}

	// Create maintenance service
	maintenanceService := maintenance.New(&maintenance.Config{
		ReconcileInterval:     cfg.Maintenance.GetReconcileInterval(),
		EvictionCheckInterval: cfg.Maintenance.GetEvictionCheckInterval(),
		SweepInterval:         cfg.Maintenance.GetSweepInterval(),
		CleanupInterval:       cfg.Maintenance.GetCleanupInterval(),
		TempFileMaxAge:        cfg.Maintenance.GetTempFileMaxAge(),
	}, a.cache, a.fs, zapLogger)

	go func() {
		if err := maintenanceService.Start(ctx); err != nil && err != context.Canceled {
			zapLogger.Error("maintenance service stopped with error", zap.Error(err))
		}
	}()

	// Create HTTP server
	var httpServer *server.Server
	if cfg.HTTP.Enabled {
		serverCfg := &server.Config{
			BindAddr:      cfg.HTTP.BindAddr,
			AdminUsername: cfg.HTTP.AdminUsername,
			AdminPassword: cfg.HTTP.AdminPassword,
			ReadTimeout:   cfg.HTTP.GetReadTimeout(),
			WriteTimeout:  cfg.HTTP.GetWriteTimeout(),
			IdleTimeout:   cfg.HTTP.GetIdleTimeout(),
		}
		var db server.Pinger
		if a.db != nil {
			db = a.db
		}
		httpServer = server.New(serverCfg, a.cache, db, a.metrics, zapLogger)

		go func() {
			if err := httpServer.Start(); err != nil {
				zapLogger.Error("HTTP server failed", zap.Error(err))
				cancel()
			}
		}()
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	zapLogger.Info("application started successfully",
		zap.Bool("http_enabled", cfg.HTTP.Enabled),
		zap.String("http_addr", cfg.HTTP.BindAddr),
		zap.String("cache_dir", cfg.Cache.RootDir),
		zap.String("database", cfg.Database.Driver),
	)

	select {
	case <-sigChan:
		zapLogger.Info("shutdown signal received, stopping services...")
	case <-ctx.Done():
		zapLogger.Info("stopping services after server failure...")
	}

	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	maintenanceService.Stop()

	if httpServer != nil {
		if err := httpServer.Stop(shutdownCtx); err != nil {
			zapLogger.Error("failed to stop HTTP server gracefully", zap.Error(err))
		}
	}

	zapLogger.Info("application stopped successfully")
	return nil
}

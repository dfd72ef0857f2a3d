package app

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"url-rewrite/internal/common/logging"
	"url-rewrite/internal/config"
)

// Run is the main entry point for the application
func Run() error {
	// Load and validate configuration (reads .env first)
	cfg := config.Load()

	if err := logging.InitGlobalLogger(cfg.LogLevel, cfg.LogFile, cfg.LogJSON); err != nil {
		return err
	}
	defer logging.MustSync()

	logging.Info("Starting url rewrite service",
		logging.Field{"cpus", runtime.NumCPU()},
		logging.Field{"rules_source", cfg.RulesSource},
		logging.Field{"bus", cfg.NotifyBus},
	)

	if err := cfg.Validate(); err != nil {
		logging.Error("Configuration validation failed", err)
		return err
	}

	// Initialize application
	app, err := New(cfg)
	if err != nil {
		logging.Error("Failed to initialize application", err)
		return err
	}
	defer app.Cleanup()

	srv, err := app.RunServer()
	if err != nil {
		logging.Error("Failed to build HTTP handler", err)
		return err
	}
	if err := srv.Start(); err != nil {
		logging.Error("Server failed to start", err)
		return err
	}

	// Wait for interrupt signal or a listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logging.Info("Shutting down server...", logging.Field{"signal", sig.String()})
	case err := <-srv.Err():
		logging.Error("Listener failed, shutting down", err)
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownDuration())
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", err)
		return err
	}
	if err := app.Shutdown(ctx); err != nil {
		logging.Warn("Error during app shutdown", logging.Err(err))
	}

	logging.Info("Server exited")
	return nil
}

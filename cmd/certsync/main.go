package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/signdesk/certsync/internal/api"
	"github.com/signdesk/certsync/internal/app"
	"github.com/signdesk/certsync/internal/config"
	"github.com/signdesk/certsync/internal/logging"
)

var (
	// Version information (set via ldflags)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "/etc/certsync/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("certsync\n")
		fmt.Printf("Version:    %s\n", Version)
		fmt.Printf("Commit:     %s\n", Commit)
		fmt.Printf("Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging, os.Stderr)
	logger.Info("starting certsync", "version", Version, "commit", Commit, "config", *configPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, application); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// run serves until ctx is done or the HTTP server fails.
// It owns application and closes it on every return path.
func run(ctx context.Context, application *app.App) error {
	defer application.Close()

	cfg := application.Config
	logger := application.Logger

	if application.Reconciler != nil {
		if err := application.Reconciler.Start(); err != nil {
			return fmt.Errorf("failed to start reconciler: %w", err)
		}
	}

	// Create HTTP server
	server := api.NewServer(cfg, api.Dependencies{
		Engine:        application.Engine,
		Requests:      application.Backend.Requests,
		Audits:        application.Backend.Audits,
		Notifications: application.Backend.Notifications,
		Logger:        logger,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.ListenAddr, "environment", cfg.BRy.Environment)
		errCh <- server.Run()
	}()

	// Wait for interrupt signal or server failure
	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
		if serveErr != nil {
			serveErr = fmt.Errorf("http server failed: %w", serveErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeout())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown incomplete", "error", err)
	}

	return serveErr
}

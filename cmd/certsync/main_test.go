package main

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signdesk/certsync/internal/app"
	"github.com/signdesk/certsync/internal/config"
	"github.com/signdesk/certsync/internal/db/repository"
	"github.com/signdesk/certsync/internal/logging"
)

func newTestApp(t *testing.T, mutate func(*config.Config)) *app.App {
	t.Helper()
	cfg := &config.Config{
		Server:   config.ServerConfig{ListenAddr: "127.0.0.1:0", ShutdownTimeout: "2s"},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "certsync.db")},
		Email:    config.EmailConfig{Provider: "log", From: "no-reply@example.com"},
		Admin:    config.AdminConfig{Token: "t"},
		Logging:  config.LoggingConfig{Level: "info", Format: "text"},
	}
	if mutate != nil {
		mutate(cfg)
	}
	a, err := app.New(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	return a
}

// backendClosed reports whether queries fail for a reason other than a missing row.
func backendClosed(a *app.App) bool {
	_, err := a.Backend.Requests.GetByProtocol(context.Background(), "P1")
	return err != nil && !errors.Is(err, repository.ErrNotFound)
}

func TestRunClosesAppWhenReconcilerFails(t *testing.T) {
	a := newTestApp(t, func(cfg *config.Config) {
		// a zero interval is refused by the scheduler
		cfg.Reconcile = config.ReconcileConfig{Enabled: true}
	})

	err := run(context.Background(), a)
	if err == nil || !strings.Contains(err.Error(), "failed to start reconciler") {
		t.Fatalf("expected reconciler error, got %v", err)
	}
	if !backendClosed(a) {
		t.Fatalf("expected database closed after failed start")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	a := newTestApp(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := run(ctx, a); err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
	if !backendClosed(a) {
		t.Fatalf("expected database closed after shutdown")
	}
}

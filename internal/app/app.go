// Package app wires configuration into the storage, notification, sync and
// polling components shared by the server and the admin tool.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/signdesk/certsync/internal/bry"
	"github.com/signdesk/certsync/internal/certsync"
	"github.com/signdesk/certsync/internal/config"
	"github.com/signdesk/certsync/internal/notify"
	"github.com/signdesk/certsync/internal/poller"
	"github.com/signdesk/certsync/internal/storage"
)

const emailTimeout = 15 * time.Second

// App holds the wired components
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Backend    *storage.Backend
	Dispatcher *notify.Dispatcher
	Engine     *certsync.Engine

	// Reconciler is nil unless reconcile.enabled is set
	Reconciler *poller.Poller
}

// New opens the database and builds every component from cfg
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	backend, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Info("database ready", "driver", backend.Driver)

	var mailer notify.Mailer
	switch cfg.Email.Provider {
	case "resend":
		mailer = notify.NewResendMailer(cfg.Email.APIKey, cfg.Email.APIBaseURL, emailTimeout)
	default:
		mailer = notify.NewLogMailer(logger)
	}
	dispatcher := notify.NewDispatcher(mailer, cfg.Email.From,
		notify.WithRecorder(backend.Notifications),
		notify.WithLogger(logger),
	)

	opts := []certsync.Option{
		certsync.WithAudit(backend.Audits),
		certsync.WithEmissionBaseURL(bry.EmissionBaseURL(cfg.BRy.Environment, cfg.BRy.EmissionBaseURL)),
		certsync.WithLogger(logger),
	}
	if cfg.BRy.APIBaseURL != "" {
		client := bry.NewClient(cfg.BRy.APIBaseURL, cfg.BRy.APIToken, cfg.GetBRyTimeout())
		opts = append(opts, certsync.WithFetcher(client))
	}
	engine := certsync.NewEngine(backend.Requests, dispatcher, opts...)

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Backend:    backend,
		Dispatcher: dispatcher,
		Engine:     engine,
	}

	if cfg.Reconcile.Enabled {
		a.Reconciler = poller.New(
			certsync.SyncFetcher{Engine: engine},
			cfg.GetReconcileInterval(),
			poller.WithSource(certsync.InFlightSource{Store: backend.Requests, Limit: cfg.GetReconcileBatchSize()}),
			poller.WithFetchTimeout(cfg.GetBRyTimeout()),
			poller.OnChange(func(changes []poller.Change) {
				for _, ch := range changes {
					logger.Info("reconciled status change", "protocol", ch.Protocol, "from", ch.From, "to", ch.To)
				}
			}),
			poller.WithLogger(logger),
		)
	}

	return a, nil
}

// Close stops the reconciler and closes the database
func (a *App) Close() error {
	if a.Reconciler != nil {
		if err := a.Reconciler.Stop(); err != nil {
			a.Logger.Warn("failed to stop reconciler", "error", err)
		}
	}
	return a.Backend.Close()
}

// Package storage opens the configured database backend and exposes its
// repositories behind the repository interfaces.
package storage

import (
	"context"
	"fmt"

	"github.com/signdesk/certsync/internal/config"
	"github.com/signdesk/certsync/internal/db"
	"github.com/signdesk/certsync/internal/db/pgstore"
	"github.com/signdesk/certsync/internal/db/repository"
)

// Backend bundles the repositories of one database
type Backend struct {
	Driver        string
	Requests      repository.Requests
	Audits        repository.Audits
	Notifications repository.Notifications

	close func() error
}

// Open connects to the configured database and runs its migrations
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Backend, error) {
	switch cfg.Driver {
	case "", "sqlite":
		database, err := db.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(database); err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return &Backend{
			Driver:        "sqlite",
			Requests:      repository.NewRequestRepository(database.DB),
			Audits:        repository.NewAuditRepository(database.DB),
			Notifications: repository.NewNotificationRepository(database.DB),
			close:         database.Close,
		}, nil

	case "postgres":
		pool, err := pgstore.Connect(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		if err := pgstore.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &Backend{
			Driver:        "postgres",
			Requests:      pgstore.NewRequestStore(pool),
			Audits:        pgstore.NewAuditStore(pool),
			Notifications: pgstore.NewNotificationStore(pool),
			close: func() error {
				pool.Close()
				return nil
			},
		}, nil
	}

	return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
}

// Close releases the underlying connection or pool
func (b *Backend) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close()
}

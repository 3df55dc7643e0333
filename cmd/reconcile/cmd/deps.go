package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/reconcile/internal/config"
	"github.com/JonMunkholm/reconcile/internal/jobrepo"
	"github.com/JonMunkholm/reconcile/internal/ledger"
	"github.com/JonMunkholm/reconcile/internal/store/postgres"
	"github.com/JonMunkholm/reconcile/internal/store/sqlite"
)

// openStore opens the configured ledger store and ensures its schema.
func openStore(ctx context.Context, db config.DatabaseConfig) (ledger.Store, error) {
	var (
		store ledger.Store
		err   error
	)
	switch db.Driver {
	case config.DriverPostgres:
		store, err = postgres.Open(ctx, db.URL, postgres.PoolOptions{
			MaxConns:        db.MaxConns,
			MinConns:        db.MinConns,
			MaxConnLifetime: db.MaxConnLifetime,
			MaxConnIdleTime: db.MaxConnIdleTime,
		})
	default:
		var s *sqlite.Store
		if s, err = sqlite.Open(db.SQLitePath); err == nil {
			slog.Info("opened sqlite ledger", "path", s.Path())
			store = s
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", db.Driver, err)
	}

	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate %s store: %w", db.Driver, err)
	}
	return store, nil
}

func openRepository(b config.BatchConfig) (*jobrepo.Repository, error) {
	repo, err := jobrepo.Open(b.RepositoryPath, b.RepositoryTimeout)
	if err != nil {
		if jobrepo.IsLocked(err) {
			return nil, fmt.Errorf("execution history %s is held by another process: %w", b.RepositoryPath, err)
		}
		return nil, err
	}
	return repo, nil
}

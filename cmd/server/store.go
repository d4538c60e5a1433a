package main

import (
	"context"
	"fmt"
	"group-cart/errors"
	"group-cart/infrastructure/sqlstore"
	"group-cart/internal"
	"group-cart/repositories"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

type openedStore struct {
	store  repositories.Store
	badger *badger.DB
	close  func()
}

// openStore opens the backend selected by STORE_DRIVER.
func openStore(ctx context.Context, config internal.Config, logger *slog.Logger) (openedStore, error) {
	switch config.StoreDriver {
	case internal.StoreBadger:
		db, err := badger.Open(buildBadgerOpts(ctx, config, logger))
		if err != nil {
			return openedStore{}, fmt.Errorf("database opening failed: %w", err)
		}
		store, err := repositories.NewBadgerStore(db, logger, config.LimitMessages)
		if err != nil {
			_ = db.Close()
			return openedStore{}, err
		}
		return openedStore{
			store:  store,
			badger: db,
			close: func() {
				// The sequences must be released before the database lock.
				_ = store.Close()
				logger.Info("Closing BadgerDB...")
				_ = db.Close()
			},
		}, nil
	case internal.StoreSQLite:
		db, err := sqlstore.Open(config.SQLitePath, logger)
		if err != nil {
			return openedStore{}, err
		}
		store := sqlstore.NewStore(db, logger, config.LimitMessages)
		return openedStore{
			store: store,
			close: func() {
				logger.Info("Closing SQLite...")
				_ = store.Close()
			},
		}, nil
	default:
		return openedStore{}, fmt.Errorf("%w: %q", errors.ErrUnknownStorage, config.StoreDriver)
	}
}

func buildBadgerOpts(ctx context.Context, config internal.Config, logger *slog.Logger) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}

	return options
}

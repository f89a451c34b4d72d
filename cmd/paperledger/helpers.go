package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/paperledger/paperledger/internal/common"
	"github.com/paperledger/paperledger/internal/config"
	"github.com/paperledger/paperledger/internal/engine"
	"github.com/paperledger/paperledger/internal/service"
	"github.com/paperledger/paperledger/internal/storage"
)

// initStorage opens the database at the configured path and brings the
// schema up to date.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbPath, err := config.DatabasePath(viper.GetString("database.path"))
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, common.NewUserError(fmt.Sprintf("could not open the database at %s", dbPath), err)
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// initEngine opens storage and wraps it in the processing engine. The caller
// must invoke the returned cleanup function.
func initEngine(ctx context.Context) (*engine.Engine, func(), error) {
	store, err := initStorage(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	cleanup := func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close storage", "error", closeErr)
		}
	}
	return engine.New(store), cleanup, nil
}

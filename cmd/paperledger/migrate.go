package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/paperledger/paperledger/internal/common"
	"github.com/paperledger/paperledger/internal/config"
	"github.com/paperledger/paperledger/internal/storage"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Running against an up-to-date database is a no-op.`,
		RunE: runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	dbPath, err := config.DatabasePath(viper.GetString("database.path"))
	if err != nil {
		return err
	}

	slog.Info("running database migrations", "database", dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return common.NewUserError(fmt.Sprintf("could not open the database at %s", dbPath), err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Printf("Database at %s is at schema version %d.\n", dbPath, storage.ExpectedSchemaVersion)
	return nil
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS documents (
					id TEXT PRIMARY KEY,
					vendor_name TEXT NOT NULL,
					tax_id TEXT,
					amount TEXT NOT NULL,
					currency TEXT NOT NULL,
					due_date DATETIME NOT NULL,
					bank_account TEXT,
					raw_text TEXT,
					fingerprint TEXT NOT NULL,
					vendor_key TEXT NOT NULL,
					category TEXT NOT NULL DEFAULT 'unknown',
					status TEXT NOT NULL DEFAULT 'draft',
					fallback INTEGER NOT NULL DEFAULT 0,
					template_id INTEGER,
					instance_id INTEGER,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_documents_fingerprint ON documents(fingerprint)`,
				`CREATE INDEX idx_documents_vendor_key ON documents(vendor_key)`,
				`CREATE INDEX idx_documents_due_date ON documents(due_date)`,

				`CREATE TABLE IF NOT EXISTS recurring_templates (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					display_name TEXT NOT NULL,
					fingerprint TEXT NOT NULL,
					vendor_fingerprint TEXT NOT NULL,
					category TEXT NOT NULL DEFAULT 'unknown',
					source TEXT NOT NULL DEFAULT 'manual',
					due_day INTEGER NOT NULL,
					tolerance_days INTEGER NOT NULL DEFAULT 5,
					reminder_offsets TEXT,
					amount_min TEXT NOT NULL DEFAULT '0',
					amount_max TEXT NOT NULL DEFAULT '0',
					currency TEXT,
					iban TEXT,
					active INTEGER NOT NULL DEFAULT 1,
					matched_count INTEGER NOT NULL DEFAULT 0,
					paid_count INTEGER NOT NULL DEFAULT 0,
					missed_count INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE UNIQUE INDEX idx_templates_active_fingerprint
					ON recurring_templates(fingerprint) WHERE active = 1`,

				`CREATE TABLE IF NOT EXISTS recurring_instances (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					template_id INTEGER NOT NULL,
					period_key TEXT NOT NULL,
					due_date DATETIME NOT NULL,
					expected_amount TEXT NOT NULL DEFAULT '0',
					document_id TEXT,
					status TEXT NOT NULL DEFAULT 'expected',
					historical INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(template_id, period_key),
					FOREIGN KEY (template_id) REFERENCES recurring_templates(id)
				)`,
				`CREATE INDEX idx_instances_status ON recurring_instances(status)`,

				`CREATE TABLE IF NOT EXISTS recurring_candidates (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					fingerprint TEXT NOT NULL UNIQUE,
					vendor_fingerprint TEXT NOT NULL,
					display_name TEXT,
					currency TEXT,
					iban TEXT,
					category TEXT NOT NULL DEFAULT 'unknown',
					state TEXT NOT NULL DEFAULT 'none',
					document_count INTEGER NOT NULL DEFAULT 0,
					first_due_date DATETIME,
					last_due_date DATETIME,
					dominant_due_day INTEGER NOT NULL DEFAULT 0,
					dominant_day_share REAL NOT NULL DEFAULT 0,
					day_stddev REAL NOT NULL DEFAULT 0,
					bucket_stability REAL NOT NULL DEFAULT 0,
					amount_mean REAL NOT NULL DEFAULT 0,
					amount_stddev REAL NOT NULL DEFAULT 0,
					amount_min TEXT NOT NULL DEFAULT '0',
					amount_max TEXT NOT NULL DEFAULT '0',
					confidence REAL NOT NULL DEFAULT 0,
					stable_iban INTEGER NOT NULL DEFAULT 0,
					keyword_hit INTEGER NOT NULL DEFAULT 0,
					fallback INTEGER NOT NULL DEFAULT 0,
					suggested_at DATETIME,
					snoozed_until DATETIME,
					decided_at DATETIME,
					template_id INTEGER,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS bank_account_history (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					fingerprint TEXT NOT NULL,
					iban TEXT NOT NULL,
					first_seen DATETIME NOT NULL,
					last_seen DATETIME NOT NULL,
					use_count INTEGER NOT NULL DEFAULT 1,
					is_primary INTEGER NOT NULL DEFAULT 0,
					verification TEXT NOT NULL DEFAULT 'unverified',
					UNIQUE(fingerprint, iban)
				)`,

				`CREATE TABLE IF NOT EXISTS invoice_patterns (
					fingerprint TEXT PRIMARY KEY,
					invoice_count INTEGER NOT NULL DEFAULT 0,
					due_days TEXT,
					amount_mean REAL NOT NULL DEFAULT 0,
					amount_min TEXT NOT NULL DEFAULT '0',
					amount_max TEXT NOT NULL DEFAULT '0',
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Anomaly records",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS anomalies (
					id TEXT PRIMARY KEY,
					document_id TEXT NOT NULL,
					fingerprint TEXT NOT NULL,
					type TEXT NOT NULL,
					severity TEXT NOT NULL,
					detected_at DATETIME NOT NULL,
					version INTEGER NOT NULL DEFAULT 1,
					context TEXT,
					resolution TEXT NOT NULL DEFAULT 'unresolved',
					resolved_at DATETIME,
					UNIQUE(document_id, type)
				)`,
				`CREATE INDEX idx_anomalies_fingerprint ON anomalies(fingerprint)`,
				`CREATE INDEX idx_anomalies_detected_at ON anomalies(detected_at)`,
			}
			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Exact running variance for invoice patterns",
		Up: func(tx *sql.Tx) error {
			// Rows created before this migration keep a NULL amount_m2 and
			// fall back to the range-based std-dev estimate.
			_, err := tx.Exec(`ALTER TABLE invoice_patterns ADD COLUMN amount_m2 REAL`)
			return err
		},
	},
}

// Migrate applies all pending migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/paperledger/paperledger/internal/common"
	"github.com/paperledger/paperledger/internal/model"
	"github.com/paperledger/paperledger/internal/service"
)

// ErrAnomalyNotFound is returned when an anomaly is not found.
var ErrAnomalyNotFound = fmt.Errorf("anomaly %w", common.ErrNotFound)

const anomalyColumns = `id, document_id, fingerprint, type, severity,
	detected_at, version, context, resolution, resolved_at`

// SaveAnomaly upserts an anomaly keyed by (document, type). Re-detection
// refreshes the finding but never touches an existing resolution.
func (s *queries) SaveAnomaly(ctx context.Context, anomaly *model.Anomaly) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if anomaly == nil {
		return fmt.Errorf("%w: anomaly", ErrNilParameter)
	}
	if err := validateString(anomaly.ID, "anomaly id"); err != nil {
		return err
	}
	if err := validateString(anomaly.DocumentID, "document id"); err != nil {
		return err
	}

	var contextJSON *string
	if anomaly.Context != nil {
		data, err := json.Marshal(anomaly.Context)
		if err != nil {
			return fmt.Errorf("failed to marshal anomaly context: %w", err)
		}
		str := string(data)
		contextJSON = &str
	}

	query := `
		INSERT INTO anomalies (
			id, document_id, fingerprint, type, severity, detected_at, version,
			context, resolution, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id, type) DO UPDATE SET
			severity = excluded.severity,
			detected_at = excluded.detected_at,
			version = excluded.version,
			context = excluded.context`

	_, err := s.q.ExecContext(ctx, query,
		anomaly.ID, anomaly.DocumentID, anomaly.Fingerprint,
		string(anomaly.Type), string(anomaly.Severity), anomaly.DetectedAt,
		anomaly.Version, contextJSON, string(anomaly.Resolution),
		anomaly.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save anomaly: %w", err)
	}

	slog.Debug("saved anomaly",
		"document_id", anomaly.DocumentID,
		"type", anomaly.Type,
		"severity", anomaly.Severity)
	return nil
}

// ResolveAnomaly records a user's decision on an anomaly. Kept separate from
// SaveAnomaly so re-detection can never masquerade as a resolution.
func (s *queries) ResolveAnomaly(ctx context.Context, id string, resolution model.Resolution, resolvedAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if err := validateString(string(resolution), "resolution"); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx,
		`UPDATE anomalies SET resolution = ?, resolved_at = ? WHERE id = ?`,
		string(resolution), resolvedAt, id)
	if err != nil {
		return fmt.Errorf("failed to resolve anomaly: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAnomalyNotFound
	}
	slog.Info("resolved anomaly", "id", id, "resolution", resolution)
	return nil
}

// GetAnomaly retrieves an anomaly by id.
func (s *queries) GetAnomaly(ctx context.Context, id string) (*model.Anomaly, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.q.QueryRowContext(ctx,
		`SELECT `+anomalyColumns+` FROM anomalies WHERE id = ?`, id)
	anomaly, err := scanAnomaly(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAnomalyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query anomaly: %w", err)
	}
	return anomaly, nil
}

// GetAnomaliesByDocument returns all anomalies recorded for a document.
func (s *queries) GetAnomaliesByDocument(ctx context.Context, documentID string) ([]model.Anomaly, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(documentID, "documentID"); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT `+anomalyColumns+` FROM anomalies WHERE document_id = ? ORDER BY detected_at`,
		documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomalies: %w", err)
	}
	defer closeRows(rows)
	return collectAnomalies(rows)
}

// GetAnomalies returns anomalies matching the filter, newest first.
func (s *queries) GetAnomalies(ctx context.Context, filter service.AnomalyFilter) ([]model.Anomaly, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if filter.Since != nil && filter.Until != nil && filter.Until.Before(*filter.Since) {
		return nil, fmt.Errorf("%w: %v before %v", ErrInvalidDateRange, filter.Until, filter.Since)
	}

	query := `SELECT ` + anomalyColumns + ` FROM anomalies WHERE 1=1`
	var args []any
	if filter.Since != nil {
		query += ` AND detected_at >= ?`
		args = append(args, *filter.Since)
	}
	if filter.Until != nil {
		query += ` AND detected_at <= ?`
		args = append(args, *filter.Until)
	}
	if filter.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, string(filter.Severity))
	}
	if filter.Resolution != "" {
		query += ` AND resolution = ?`
		args = append(args, string(filter.Resolution))
	}
	if filter.Fingerprint != "" {
		query += ` AND fingerprint = ?`
		args = append(args, filter.Fingerprint)
	}
	query += ` ORDER BY detected_at DESC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomalies: %w", err)
	}
	defer closeRows(rows)
	return collectAnomalies(rows)
}

func collectAnomalies(rows *sql.Rows) ([]model.Anomaly, error) {
	var anomalies []model.Anomaly
	for rows.Next() {
		anomaly, err := scanAnomaly(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		anomalies = append(anomalies, *anomaly)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating anomalies: %w", err)
	}
	return anomalies, nil
}

func scanAnomaly(row scanner) (*model.Anomaly, error) {
	var (
		anomaly     model.Anomaly
		typ         string
		severity    string
		contextJSON sql.NullString
		resolution  string
		resolvedAt  sql.NullTime
	)
	if err := row.Scan(
		&anomaly.ID, &anomaly.DocumentID, &anomaly.Fingerprint, &typ,
		&severity, &anomaly.DetectedAt, &anomaly.Version, &contextJSON,
		&resolution, &resolvedAt,
	); err != nil {
		return nil, err
	}

	anomaly.Type = model.AnomalyType(typ)
	anomaly.Severity = model.Severity(severity)
	anomaly.Resolution = model.Resolution(resolution)
	if resolvedAt.Valid {
		anomaly.ResolvedAt = &resolvedAt.Time
	}
	if contextJSON.Valid && contextJSON.String != "" {
		if err := json.Unmarshal([]byte(contextJSON.String), &anomaly.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal anomaly context: %w", err)
		}
	}
	return &anomaly, nil
}

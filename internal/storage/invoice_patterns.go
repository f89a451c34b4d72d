package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/paperledger/paperledger/internal/common"
	"github.com/paperledger/paperledger/internal/model"
)

// ErrPatternNotFound is returned when an invoice pattern is not found.
var ErrPatternNotFound = fmt.Errorf("invoice pattern %w", common.ErrNotFound)

// SaveInvoicePattern upserts the pattern row for a fingerprint.
func (s *queries) SaveInvoicePattern(ctx context.Context, pattern *model.InvoicePattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if pattern == nil {
		return fmt.Errorf("%w: pattern", ErrNilParameter)
	}
	if err := validateString(pattern.Fingerprint, "fingerprint"); err != nil {
		return err
	}

	daysJSON, err := json.Marshal(pattern.DueDays)
	if err != nil {
		return fmt.Errorf("failed to marshal due days: %w", err)
	}

	var m2 *float64
	if pattern.HasVariance {
		m2 = &pattern.AmountM2
	}

	query := `
		INSERT INTO invoice_patterns (
			fingerprint, invoice_count, due_days, amount_mean, amount_m2,
			amount_min, amount_max, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			invoice_count = excluded.invoice_count,
			due_days = excluded.due_days,
			amount_mean = excluded.amount_mean,
			amount_m2 = excluded.amount_m2,
			amount_min = excluded.amount_min,
			amount_max = excluded.amount_max,
			updated_at = excluded.updated_at`

	_, err = s.q.ExecContext(ctx, query,
		pattern.Fingerprint, pattern.InvoiceCount, string(daysJSON),
		pattern.AmountMean, m2, pattern.AmountMin.String(),
		pattern.AmountMax.String(), pattern.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save invoice pattern: %w", err)
	}
	return nil
}

// GetInvoicePattern retrieves the pattern for a fingerprint.
func (s *queries) GetInvoicePattern(ctx context.Context, fingerprint string) (*model.InvoicePattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(fingerprint, "fingerprint"); err != nil {
		return nil, err
	}

	var (
		pattern   model.InvoicePattern
		daysJSON  sql.NullString
		m2        sql.NullFloat64
		amountMin string
		amountMax string
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT fingerprint, invoice_count, due_days, amount_mean, amount_m2,
			amount_min, amount_max, updated_at
		FROM invoice_patterns
		WHERE fingerprint = ?`, fingerprint).Scan(
		&pattern.Fingerprint, &pattern.InvoiceCount, &daysJSON,
		&pattern.AmountMean, &m2, &amountMin, &amountMax, &pattern.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPatternNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query invoice pattern: %w", err)
	}

	if daysJSON.Valid && daysJSON.String != "" {
		if err := json.Unmarshal([]byte(daysJSON.String), &pattern.DueDays); err != nil {
			return nil, fmt.Errorf("failed to unmarshal due days: %w", err)
		}
	}
	if m2.Valid {
		pattern.AmountM2 = m2.Float64
		pattern.HasVariance = true
	}
	if pattern.AmountMin, err = decimal.NewFromString(amountMin); err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amountMin, err)
	}
	if pattern.AmountMax, err = decimal.NewFromString(amountMax); err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amountMax, err)
	}
	return &pattern, nil
}

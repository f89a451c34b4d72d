package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/paperledger/paperledger/internal/common"
	"github.com/paperledger/paperledger/internal/model"
)

// ErrTemplateNotFound is returned when a recurring template is not found.
var ErrTemplateNotFound = fmt.Errorf("recurring template %w", common.ErrNotFound)

const templateColumns = `id, display_name, fingerprint, vendor_fingerprint,
	category, source, due_day, tolerance_days, reminder_offsets, amount_min,
	amount_max, currency, iban, active, matched_count, paid_count,
	missed_count, created_at, updated_at`

// SaveTemplate inserts a new template (ID zero) or updates an existing one.
func (s *queries) SaveTemplate(ctx context.Context, template *model.RecurringTemplate) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if template == nil {
		return fmt.Errorf("%w: template", ErrNilParameter)
	}
	if err := template.Validate(); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}

	var offsetsJSON *string
	if len(template.ReminderOffsets) > 0 {
		data, err := json.Marshal(template.ReminderOffsets)
		if err != nil {
			return fmt.Errorf("failed to marshal reminder offsets: %w", err)
		}
		str := string(data)
		offsetsJSON = &str
	}

	if template.ID == 0 {
		query := `
			INSERT INTO recurring_templates (
				display_name, fingerprint, vendor_fingerprint, category, source,
				due_day, tolerance_days, reminder_offsets, amount_min, amount_max,
				currency, iban, active, matched_count, paid_count, missed_count
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

		result, err := s.q.ExecContext(ctx, query,
			template.DisplayName, template.Fingerprint, template.VendorFingerprint,
			string(template.Category), string(template.Source), template.DueDay,
			template.ToleranceDays, offsetsJSON, template.AmountMin.String(),
			template.AmountMax.String(), template.Currency, template.IBAN,
			template.Active, template.MatchedCount, template.PaidCount,
			template.MissedCount,
		)
		if err != nil {
			return fmt.Errorf("failed to create template: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		template.ID = id
		slog.Info("created recurring template", "id", id, "name", template.DisplayName)
		return nil
	}

	query := `
		UPDATE recurring_templates SET
			display_name = ?, fingerprint = ?, vendor_fingerprint = ?,
			category = ?, source = ?, due_day = ?, tolerance_days = ?,
			reminder_offsets = ?, amount_min = ?, amount_max = ?, currency = ?,
			iban = ?, active = ?, matched_count = ?, paid_count = ?,
			missed_count = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	result, err := s.q.ExecContext(ctx, query,
		template.DisplayName, template.Fingerprint, template.VendorFingerprint,
		string(template.Category), string(template.Source), template.DueDay,
		template.ToleranceDays, offsetsJSON, template.AmountMin.String(),
		template.AmountMax.String(), template.Currency, template.IBAN,
		template.Active, template.MatchedCount, template.PaidCount,
		template.MissedCount, template.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

// GetTemplate retrieves a template by id.
func (s *queries) GetTemplate(ctx context.Context, id int64) (*model.RecurringTemplate, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.q.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM recurring_templates WHERE id = ?`, id)
	template, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query template: %w", err)
	}
	return template, nil
}

// GetActiveTemplateByFingerprint retrieves the active template covering a
// fingerprint, matching either the vendor+amount or vendor-only column.
func (s *queries) GetActiveTemplateByFingerprint(ctx context.Context, fingerprint string) (*model.RecurringTemplate, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(fingerprint, "fingerprint"); err != nil {
		return nil, err
	}

	row := s.q.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM recurring_templates
		WHERE active = 1 AND (fingerprint = ? OR vendor_fingerprint = ?)
		LIMIT 1`, fingerprint, fingerprint)
	template, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query template: %w", err)
	}
	return template, nil
}

// GetTemplates returns all templates, optionally only active ones.
func (s *queries) GetTemplates(ctx context.Context, activeOnly bool) ([]model.RecurringTemplate, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + templateColumns + ` FROM recurring_templates`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY display_name`

	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer closeRows(rows)

	var templates []model.RecurringTemplate
	for rows.Next() {
		template, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, *template)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}
	return templates, nil
}

func scanTemplate(row scanner) (*model.RecurringTemplate, error) {
	var (
		template    model.RecurringTemplate
		category    string
		source      string
		offsetsJSON sql.NullString
		amountMin   string
		amountMax   string
		currency    sql.NullString
		iban        sql.NullString
	)
	if err := row.Scan(
		&template.ID, &template.DisplayName, &template.Fingerprint,
		&template.VendorFingerprint, &category, &source, &template.DueDay,
		&template.ToleranceDays, &offsetsJSON, &amountMin, &amountMax,
		&currency, &iban, &template.Active, &template.MatchedCount,
		&template.PaidCount, &template.MissedCount, &template.CreatedAt,
		&template.UpdatedAt,
	); err != nil {
		return nil, err
	}

	template.Category = model.Category(category)
	template.Source = model.TemplateSource(source)
	template.Currency = currency.String
	template.IBAN = iban.String

	if offsetsJSON.Valid {
		if err := json.Unmarshal([]byte(offsetsJSON.String), &template.ReminderOffsets); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reminder offsets: %w", err)
		}
	}

	var err error
	if template.AmountMin, err = decimal.NewFromString(amountMin); err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amountMin, err)
	}
	if template.AmountMax, err = decimal.NewFromString(amountMax); err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amountMax, err)
	}
	return &template, nil
}

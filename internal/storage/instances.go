package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/paperledger/paperledger/internal/common"
	"github.com/paperledger/paperledger/internal/model"
)

// ErrInstanceNotFound is returned when a recurring instance is not found.
var ErrInstanceNotFound = fmt.Errorf("recurring instance %w", common.ErrNotFound)

const instanceColumns = `id, template_id, period_key, due_date,
	expected_amount, document_id, status, historical, created_at, updated_at`

// SaveInstance inserts a new instance (ID zero) or updates an existing one.
// The (template, period) uniqueness constraint turns duplicate inserts into
// an error rather than a second row.
func (s *queries) SaveInstance(ctx context.Context, instance *model.RecurringInstance) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if instance == nil {
		return fmt.Errorf("%w: instance", ErrNilParameter)
	}
	if err := validateString(instance.PeriodKey, "period key"); err != nil {
		return err
	}

	if instance.ID == 0 {
		query := `
			INSERT INTO recurring_instances (
				template_id, period_key, due_date, expected_amount, document_id,
				status, historical
			) VALUES (?, ?, ?, ?, ?, ?, ?)`

		result, err := s.q.ExecContext(ctx, query,
			instance.TemplateID, instance.PeriodKey, instance.DueDate,
			instance.ExpectedAmount.String(), instance.DocumentID,
			string(instance.Status), instance.Historical,
		)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint") {
				return fmt.Errorf("%w: instance for template %d period %s",
					common.ErrDuplicateEntry, instance.TemplateID, instance.PeriodKey)
			}
			return fmt.Errorf("failed to create instance: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		instance.ID = id
		slog.Debug("created recurring instance",
			"id", id, "template_id", instance.TemplateID, "period", instance.PeriodKey)
		return nil
	}

	query := `
		UPDATE recurring_instances SET
			due_date = ?, expected_amount = ?, document_id = ?, status = ?,
			historical = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	result, err := s.q.ExecContext(ctx, query,
		instance.DueDate, instance.ExpectedAmount.String(), instance.DocumentID,
		string(instance.Status), instance.Historical, instance.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update instance: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrInstanceNotFound
	}
	return nil
}

// GetInstance retrieves an instance by id.
func (s *queries) GetInstance(ctx context.Context, id int64) (*model.RecurringInstance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.q.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM recurring_instances WHERE id = ?`, id)
	instance, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInstanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query instance: %w", err)
	}
	return instance, nil
}

// GetInstancesByTemplate returns a template's instances ordered by due date.
func (s *queries) GetInstancesByTemplate(ctx context.Context, templateID int64) ([]model.RecurringInstance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT `+instanceColumns+` FROM recurring_instances
		WHERE template_id = ? ORDER BY due_date`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}
	defer closeRows(rows)
	return collectInstances(rows)
}

// GetInstanceByPeriod retrieves the unique instance for a template and period.
func (s *queries) GetInstanceByPeriod(ctx context.Context, templateID int64, periodKey string) (*model.RecurringInstance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(periodKey, "periodKey"); err != nil {
		return nil, err
	}

	row := s.q.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM recurring_instances
		WHERE template_id = ? AND period_key = ?`, templateID, periodKey)
	instance, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInstanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query instance: %w", err)
	}
	return instance, nil
}

// GetInstancesByStatus returns all instances in the given status.
func (s *queries) GetInstancesByStatus(ctx context.Context, status model.InstanceStatus) ([]model.RecurringInstance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT `+instanceColumns+` FROM recurring_instances
		WHERE status = ? ORDER BY due_date`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}
	defer closeRows(rows)
	return collectInstances(rows)
}

// DeleteInstancesByStatus hard-deletes a template's instances in the given
// statuses. Used when deactivating a template; terminal instances stay for
// history.
func (s *queries) DeleteInstancesByStatus(ctx context.Context, templateID int64, statuses ...model.InstanceStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(statuses) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(statuses))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(statuses)+1)
	args = append(args, templateID)
	for _, st := range statuses {
		args = append(args, string(st))
	}

	result, err := s.q.ExecContext(ctx,
		`DELETE FROM recurring_instances WHERE template_id = ? AND status IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to delete instances: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	slog.Debug("deleted instances", "template_id", templateID, "count", deleted)
	return nil
}

func collectInstances(rows *sql.Rows) ([]model.RecurringInstance, error) {
	var instances []model.RecurringInstance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, *instance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}
	return instances, nil
}

func scanInstance(row scanner) (*model.RecurringInstance, error) {
	var (
		instance   model.RecurringInstance
		amount     string
		documentID sql.NullString
		status     string
	)
	if err := row.Scan(
		&instance.ID, &instance.TemplateID, &instance.PeriodKey,
		&instance.DueDate, &amount, &documentID, &status,
		&instance.Historical, &instance.CreatedAt, &instance.UpdatedAt,
	); err != nil {
		return nil, err
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}
	instance.ExpectedAmount = parsed
	instance.Status = model.InstanceStatus(status)
	if documentID.Valid {
		instance.DocumentID = &documentID.String
	}
	return &instance, nil
}

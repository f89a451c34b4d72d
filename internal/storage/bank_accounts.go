package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/paperledger/paperledger/internal/common"
	"github.com/paperledger/paperledger/internal/model"
)

// ErrBankAccountNotFound is returned when a bank account entry is not found.
var ErrBankAccountNotFound = fmt.Errorf("bank account history %w", common.ErrNotFound)

// SaveBankAccountHistory inserts a new entry (ID zero) or updates an
// existing one. Entries are unique per (fingerprint, IBAN) pair.
func (s *queries) SaveBankAccountHistory(ctx context.Context, history *model.BankAccountHistory) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if history == nil {
		return fmt.Errorf("%w: history", ErrNilParameter)
	}
	if err := validateString(history.Fingerprint, "fingerprint"); err != nil {
		return err
	}
	if err := validateString(history.IBAN, "iban"); err != nil {
		return err
	}

	if history.ID == 0 {
		query := `
			INSERT INTO bank_account_history (
				fingerprint, iban, first_seen, last_seen, use_count, is_primary,
				verification
			) VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(fingerprint, iban) DO UPDATE SET
				last_seen = excluded.last_seen,
				use_count = use_count + 1`

		result, err := s.q.ExecContext(ctx, query,
			history.Fingerprint, history.IBAN, history.FirstSeen,
			history.LastSeen, history.UseCount, history.Primary,
			string(history.Verification),
		)
		if err != nil {
			return fmt.Errorf("failed to save bank account history: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		history.ID = id
		slog.Debug("saved bank account history",
			"fingerprint", history.Fingerprint, "account", history.MaskedIBAN())
		return nil
	}

	query := `
		UPDATE bank_account_history SET
			last_seen = ?, use_count = ?, is_primary = ?, verification = ?
		WHERE id = ?`

	result, err := s.q.ExecContext(ctx, query,
		history.LastSeen, history.UseCount, history.Primary,
		string(history.Verification), history.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update bank account history: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrBankAccountNotFound
	}
	return nil
}

// GetBankAccountHistory returns all account entries for a vendor, primary
// first, then most recently seen.
func (s *queries) GetBankAccountHistory(ctx context.Context, fingerprint string) ([]model.BankAccountHistory, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(fingerprint, "fingerprint"); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT id, fingerprint, iban, first_seen, last_seen, use_count,
			is_primary, verification
		FROM bank_account_history
		WHERE fingerprint = ?
		ORDER BY is_primary DESC, last_seen DESC`, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to query bank account history: %w", err)
	}
	defer closeRows(rows)

	var entries []model.BankAccountHistory
	for rows.Next() {
		var entry model.BankAccountHistory
		var verification string
		if err := rows.Scan(
			&entry.ID, &entry.Fingerprint, &entry.IBAN, &entry.FirstSeen,
			&entry.LastSeen, &entry.UseCount, &entry.Primary, &verification,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bank account history: %w", err)
		}
		entry.Verification = model.VerificationStatus(verification)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bank account history: %w", err)
	}
	return entries, nil
}

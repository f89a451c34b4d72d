package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/paperledger/paperledger/internal/common"
	"github.com/paperledger/paperledger/internal/model"
)

// ErrCandidateNotFound is returned when a recurring candidate is not found.
var ErrCandidateNotFound = fmt.Errorf("recurring candidate %w", common.ErrNotFound)

const candidateColumns = `id, fingerprint, vendor_fingerprint, display_name,
	currency, iban, category, state, document_count, first_due_date,
	last_due_date, dominant_due_day, dominant_day_share, day_stddev,
	bucket_stability, amount_mean, amount_stddev, amount_min, amount_max,
	confidence, stable_iban, keyword_hit, fallback, suggested_at,
	snoozed_until, decided_at, template_id, created_at, updated_at`

// SaveCandidate inserts a new candidate (ID zero) or updates an existing
// one. Candidates are unique per fingerprint.
func (s *queries) SaveCandidate(ctx context.Context, candidate *model.RecurringCandidate) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if candidate == nil {
		return fmt.Errorf("%w: candidate", ErrNilParameter)
	}
	if err := validateString(candidate.Fingerprint, "fingerprint"); err != nil {
		return err
	}

	if candidate.ID == 0 {
		query := `
			INSERT INTO recurring_candidates (
				fingerprint, vendor_fingerprint, display_name, currency, iban,
				category, state, document_count, first_due_date, last_due_date,
				dominant_due_day, dominant_day_share, day_stddev,
				bucket_stability, amount_mean, amount_stddev, amount_min,
				amount_max, confidence, stable_iban, keyword_hit, fallback,
				suggested_at, snoozed_until, decided_at, template_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

		result, err := s.q.ExecContext(ctx, query, candidateArgs(candidate)...)
		if err != nil {
			return fmt.Errorf("failed to create candidate: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		candidate.ID = id
		slog.Debug("created recurring candidate",
			"id", id, "fingerprint", candidate.Fingerprint, "confidence", candidate.Confidence)
		return nil
	}

	query := `
		UPDATE recurring_candidates SET
			fingerprint = ?, vendor_fingerprint = ?, display_name = ?,
			currency = ?, iban = ?, category = ?, state = ?,
			document_count = ?, first_due_date = ?, last_due_date = ?,
			dominant_due_day = ?, dominant_day_share = ?, day_stddev = ?,
			bucket_stability = ?, amount_mean = ?, amount_stddev = ?,
			amount_min = ?, amount_max = ?, confidence = ?, stable_iban = ?,
			keyword_hit = ?, fallback = ?, suggested_at = ?, snoozed_until = ?,
			decided_at = ?, template_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	args := append(candidateArgs(candidate), candidate.ID)
	result, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update candidate: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrCandidateNotFound
	}
	return nil
}

func candidateArgs(c *model.RecurringCandidate) []any {
	return []any{
		c.Fingerprint, c.VendorFingerprint, c.DisplayName, c.Currency, c.IBAN,
		string(c.Category), string(c.State), c.DocumentCount, c.FirstDueDate,
		c.LastDueDate, c.DominantDueDay, c.DominantDayShare, c.DayStdDev,
		c.BucketStability, c.AmountMean, c.AmountStdDev, c.AmountMin.String(),
		c.AmountMax.String(), c.Confidence, c.StableIBAN, c.KeywordHit,
		c.Fallback, c.SuggestedAt, c.SnoozedUntil, c.DecidedAt, c.TemplateID,
	}
}

// GetCandidate retrieves a candidate by id.
func (s *queries) GetCandidate(ctx context.Context, id int64) (*model.RecurringCandidate, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.q.QueryRowContext(ctx,
		`SELECT `+candidateColumns+` FROM recurring_candidates WHERE id = ?`, id)
	candidate, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCandidateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query candidate: %w", err)
	}
	return candidate, nil
}

// GetCandidateByFingerprint retrieves the unique candidate for a fingerprint.
func (s *queries) GetCandidateByFingerprint(ctx context.Context, fingerprint string) (*model.RecurringCandidate, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(fingerprint, "fingerprint"); err != nil {
		return nil, err
	}

	row := s.q.QueryRowContext(ctx,
		`SELECT `+candidateColumns+` FROM recurring_candidates WHERE fingerprint = ?`,
		fingerprint)
	candidate, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCandidateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query candidate: %w", err)
	}
	return candidate, nil
}

// GetCandidates returns all candidates ordered by confidence.
func (s *queries) GetCandidates(ctx context.Context) ([]model.RecurringCandidate, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT `+candidateColumns+` FROM recurring_candidates ORDER BY confidence DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer closeRows(rows)

	var candidates []model.RecurringCandidate
	for rows.Next() {
		candidate, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, *candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candidates: %w", err)
	}
	return candidates, nil
}

func scanCandidate(row scanner) (*model.RecurringCandidate, error) {
	var (
		c            model.RecurringCandidate
		displayName  sql.NullString
		currency     sql.NullString
		iban         sql.NullString
		category     string
		state        string
		firstDue     sql.NullTime
		lastDue      sql.NullTime
		amountMin    string
		amountMax    string
		suggestedAt  sql.NullTime
		snoozedUntil sql.NullTime
		decidedAt    sql.NullTime
		templateID   sql.NullInt64
	)
	if err := row.Scan(
		&c.ID, &c.Fingerprint, &c.VendorFingerprint, &displayName, &currency,
		&iban, &category, &state, &c.DocumentCount, &firstDue, &lastDue,
		&c.DominantDueDay, &c.DominantDayShare, &c.DayStdDev,
		&c.BucketStability, &c.AmountMean, &c.AmountStdDev, &amountMin,
		&amountMax, &c.Confidence, &c.StableIBAN, &c.KeywordHit, &c.Fallback,
		&suggestedAt, &snoozedUntil, &decidedAt, &templateID, &c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}

	c.DisplayName = displayName.String
	c.Currency = currency.String
	c.IBAN = iban.String
	c.Category = model.Category(category)
	c.State = model.SuggestionState(state)
	if firstDue.Valid {
		c.FirstDueDate = firstDue.Time
	}
	if lastDue.Valid {
		c.LastDueDate = lastDue.Time
	}
	if suggestedAt.Valid {
		c.SuggestedAt = &suggestedAt.Time
	}
	if snoozedUntil.Valid {
		c.SnoozedUntil = &snoozedUntil.Time
	}
	if decidedAt.Valid {
		c.DecidedAt = &decidedAt.Time
	}
	if templateID.Valid {
		c.TemplateID = &templateID.Int64
	}

	var err error
	if c.AmountMin, err = decimal.NewFromString(amountMin); err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amountMin, err)
	}
	if c.AmountMax, err = decimal.NewFromString(amountMax); err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amountMax, err)
	}
	return &c, nil
}

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

// ErrDocumentNotFound is returned when a document is not found.
var ErrDocumentNotFound = fmt.Errorf("document %w", common.ErrNotFound)

const documentColumns = `id, vendor_name, tax_id, amount, currency, due_date,
	bank_account, raw_text, fingerprint, vendor_key, category, status,
	fallback, template_id, instance_id, created_at, updated_at`

// SaveDocument inserts or updates a document by id.
func (s *queries) SaveDocument(ctx context.Context, doc *model.Document) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("%w: document", ErrNilParameter)
	}
	if err := validateString(doc.ID, "document id"); err != nil {
		return err
	}

	query := `
		INSERT INTO documents (
			id, vendor_name, tax_id, amount, currency, due_date, bank_account,
			raw_text, fingerprint, vendor_key, category, status, fallback,
			template_id, instance_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			vendor_name = excluded.vendor_name,
			tax_id = excluded.tax_id,
			amount = excluded.amount,
			currency = excluded.currency,
			due_date = excluded.due_date,
			bank_account = excluded.bank_account,
			raw_text = excluded.raw_text,
			fingerprint = excluded.fingerprint,
			vendor_key = excluded.vendor_key,
			category = excluded.category,
			status = excluded.status,
			fallback = excluded.fallback,
			template_id = excluded.template_id,
			instance_id = excluded.instance_id,
			updated_at = CURRENT_TIMESTAMP`

	_, err := s.q.ExecContext(ctx, query,
		doc.ID, doc.VendorName, doc.TaxID, doc.Amount.String(), doc.Currency,
		doc.DueDate, doc.BankAccount, doc.RawText, doc.Fingerprint,
		doc.VendorKey, string(doc.Category), string(doc.Status), doc.Fallback,
		doc.TemplateID, doc.InstanceID,
	)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}

	slog.Debug("saved document", "id", doc.ID, "fingerprint", doc.Fingerprint)
	return nil
}

// GetDocument retrieves a document by id.
func (s *queries) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.q.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}
	return doc, nil
}

// GetDocumentsByFingerprint returns a vendor's documents ordered by due date.
func (s *queries) GetDocumentsByFingerprint(ctx context.Context, fingerprint string) ([]model.Document, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(fingerprint, "fingerprint"); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE fingerprint = ? ORDER BY due_date`,
		fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer closeRows(rows)

	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return docs, nil
}

// CountDocumentsByVendor counts documents for a vendor-only fingerprint.
func (s *queries) CountDocumentsByVendor(ctx context.Context, vendorFingerprint string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(vendorFingerprint, "vendorFingerprint"); err != nil {
		return 0, err
	}

	var count int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE vendor_key = ?`, vendorFingerprint).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

// ListFingerprints returns every distinct vendor+amount fingerprint with at
// least one document.
func (s *queries) ListFingerprints(ctx context.Context) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `SELECT DISTINCT fingerprint FROM documents ORDER BY fingerprint`)
	if err != nil {
		return nil, fmt.Errorf("failed to list fingerprints: %w", err)
	}
	defer closeRows(rows)

	var fingerprints []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		fingerprints = append(fingerprints, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fingerprints: %w", err)
	}
	return fingerprints, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*model.Document, error) {
	var (
		doc         model.Document
		amount      string
		taxID       sql.NullString
		bankAccount sql.NullString
		rawText     sql.NullString
		category    string
		status      string
		templateID  sql.NullInt64
		instanceID  sql.NullInt64
	)
	if err := row.Scan(
		&doc.ID, &doc.VendorName, &taxID, &amount, &doc.Currency, &doc.DueDate,
		&bankAccount, &rawText, &doc.Fingerprint, &doc.VendorKey, &category,
		&status, &doc.Fallback, &templateID, &instanceID, &doc.CreatedAt,
		&doc.UpdatedAt,
	); err != nil {
		return nil, err
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}
	doc.Amount = parsed
	doc.TaxID = taxID.String
	doc.BankAccount = bankAccount.String
	doc.RawText = rawText.String
	doc.Category = model.Category(category)
	doc.Status = model.DocumentStatus(status)
	if templateID.Valid {
		doc.TemplateID = &templateID.Int64
	}
	if instanceID.Valid {
		doc.InstanceID = &instanceID.Int64
	}
	return &doc, nil
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		slog.Error("failed to close rows", "error", err)
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/paperledger/paperledger/internal/model"
)

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file.json> [file.json...]",
		Short: "Ingest finalized documents",
		Long: `Read one or more extracted documents from JSON files and run them
through the full pipeline: fingerprinting, anomaly detection, pattern
tracking, and recurrence matching.

Each file holds a single document:

  {
    "id": "inv-2026-0142",
    "vendor_name": "PowerCo Energy GmbH",
    "tax_id": "DE123456789",
    "currency": "EUR",
    "amount": "89.90",
    "due_date": "2026-08-15",
    "bank_account": "DE89370400440532013000",
    "status": "scheduled",
    "raw_text": "Ihre monatliche Stromrechnung..."
  }`,
		Args: cobra.MinimumNArgs(1),
		RunE: runIngest,
	}
}

// documentFile is the on-disk shape produced by the extraction step.
type documentFile struct {
	ID          string `json:"id"`
	VendorName  string `json:"vendor_name"`
	TaxID       string `json:"tax_id"`
	Currency    string `json:"currency"`
	Amount      string `json:"amount"`
	DueDate     string `json:"due_date"`
	BankAccount string `json:"bank_account"`
	Status      string `json:"status"`
	Category    string `json:"category"`
	RawText     string `json:"raw_text"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	eng, cleanup, err := initEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	now := time.Now()
	for _, path := range args {
		doc, err := readDocument(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		result, err := eng.ProcessDocument(ctx, doc, now)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		fmt.Printf("✓ %s  %s %s %s\n",
			doc.ID, doc.VendorName, doc.Amount.StringFixed(2), doc.Currency)
		for _, a := range result.Anomalies {
			fmt.Printf("  ⚠ %s [%s]\n", a.Type, a.Severity)
		}
		if result.Match != nil {
			fmt.Printf("  ↻ matched recurring %q period %s\n",
				result.Match.Template.DisplayName, result.Match.Instance.PeriodKey)
		}
		if c := result.Candidate; c != nil && c.State == model.SuggestionSuggested {
			fmt.Printf("  ★ recurrence suggested (confidence %.2f), see 'paperledger suggestions'\n",
				c.Confidence)
		}
	}
	return nil
}

func readDocument(path string) (*model.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file documentFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid document JSON: %w", err)
	}

	amount, err := decimal.NewFromString(file.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", file.Amount, err)
	}
	dueDate, err := time.Parse("2006-01-02", file.DueDate)
	if err != nil {
		return nil, fmt.Errorf("invalid due date %q: %w", file.DueDate, err)
	}

	status := model.DocumentStatus(file.Status)
	if file.Status == "" {
		status = model.DocumentStatusScheduled
	}

	return &model.Document{
		ID:          file.ID,
		VendorName:  file.VendorName,
		TaxID:       file.TaxID,
		Currency:    file.Currency,
		Amount:      amount,
		DueDate:     dueDate,
		BankAccount: file.BankAccount,
		Status:      status,
		Category:    model.Category(file.Category),
		RawText:     file.RawText,
	}, nil
}

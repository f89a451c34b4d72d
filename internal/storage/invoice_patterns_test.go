package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paperledger/paperledger/internal/common"
	"github.com/paperledger/paperledger/internal/model"
)

func TestSQLiteStorage_SaveInvoicePattern(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	pattern := &model.InvoicePattern{
		Fingerprint:  "fp-powerco",
		DueDays:      []int{15, 17, 15},
		InvoiceCount: 3,
		AmountMean:   100,
		AmountM2:     200,
		AmountMin:    decimal.RequireFromString("90"),
		AmountMax:    decimal.RequireFromString("110"),
		HasVariance:  true,
		UpdatedAt:    time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
	}
	if err := store.SaveInvoicePattern(ctx, pattern); err != nil {
		t.Fatalf("Failed to save pattern: %v", err)
	}

	got, err := store.GetInvoicePattern(ctx, "fp-powerco")
	if err != nil {
		t.Fatalf("Failed to get pattern: %v", err)
	}
	if got.InvoiceCount != 3 {
		t.Errorf("Expected count 3, got %d", got.InvoiceCount)
	}
	if len(got.DueDays) != 3 || got.DueDays[1] != 17 {
		t.Errorf("Expected due days [15 17 15], got %v", got.DueDays)
	}
	if !got.HasVariance || got.AmountM2 != 200 {
		t.Errorf("Expected exact variance 200, got %v/%f", got.HasVariance, got.AmountM2)
	}

	// Upsert replaces the aggregate for the same fingerprint.
	pattern.InvoiceCount = 4
	pattern.DueDays = append(pattern.DueDays, 16)
	if err := store.SaveInvoicePattern(ctx, pattern); err != nil {
		t.Fatalf("Failed to upsert pattern: %v", err)
	}
	got, err = store.GetInvoicePattern(ctx, "fp-powerco")
	if err != nil {
		t.Fatalf("Failed to get updated pattern: %v", err)
	}
	if got.InvoiceCount != 4 || len(got.DueDays) != 4 {
		t.Errorf("Expected updated aggregate, got count %d days %v", got.InvoiceCount, got.DueDays)
	}
}

func TestSQLiteStorage_InvoicePattern_LegacyVariance(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	// Rows without exact variance persist a NULL and come back flagged for the
	// range-based fallback.
	pattern := &model.InvoicePattern{
		Fingerprint:  "fp-legacy",
		DueDays:      []int{1, 1},
		InvoiceCount: 2,
		AmountMean:   100,
		AmountMin:    decimal.RequireFromString("80"),
		AmountMax:    decimal.RequireFromString("120"),
		HasVariance:  false,
		UpdatedAt:    time.Now(),
	}
	if err := store.SaveInvoicePattern(ctx, pattern); err != nil {
		t.Fatalf("Failed to save pattern: %v", err)
	}

	got, err := store.GetInvoicePattern(ctx, "fp-legacy")
	if err != nil {
		t.Fatalf("Failed to get pattern: %v", err)
	}
	if got.HasVariance {
		t.Error("Expected legacy row without exact variance")
	}
	if stdDev := got.AmountStdDev(); stdDev != 10 {
		t.Errorf("Expected range-based estimate 10, got %f", stdDev)
	}
}

func TestSQLiteStorage_GetInvoicePattern_NotFound(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	_, err := store.GetInvoicePattern(context.Background(), "fp-missing")
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

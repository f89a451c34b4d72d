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

func createTestCandidate(fingerprint string) *model.RecurringCandidate {
	return &model.RecurringCandidate{
		Fingerprint:       fingerprint,
		VendorFingerprint: "vk-" + fingerprint,
		DisplayName:       "PowerCo Energy",
		Currency:          "EUR",
		IBAN:              "DE89370400440532013000",
		Category:          model.CategoryUtility,
		State:             model.SuggestionNone,
		DocumentCount:     6,
		FirstDueDate:      time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		LastDueDate:       time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
		DominantDueDay:    15,
		DominantDayShare:  1.0,
		BucketStability:   1.0,
		AmountMean:        89.9,
		AmountMin:         decimal.RequireFromString("89.9"),
		AmountMax:         decimal.RequireFromString("89.9"),
		Confidence:        0.8,
		StableIBAN:        true,
	}
}

func TestSQLiteStorage_SaveCandidate(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	candidate := createTestCandidate("fp-powerco")
	if err := store.SaveCandidate(ctx, candidate); err != nil {
		t.Fatalf("Failed to save candidate: %v", err)
	}
	if candidate.ID == 0 {
		t.Fatal("Expected assigned id")
	}

	got, err := store.GetCandidate(ctx, candidate.ID)
	if err != nil {
		t.Fatalf("Failed to get candidate: %v", err)
	}
	if got.DominantDueDay != 15 || got.DocumentCount != 6 {
		t.Errorf("Expected due day 15 over 6 documents, got %d/%d", got.DominantDueDay, got.DocumentCount)
	}
	if got.Confidence != 0.8 {
		t.Errorf("Expected confidence 0.8, got %f", got.Confidence)
	}
	if !got.StableIBAN {
		t.Error("Expected stable IBAN flag to survive the round trip")
	}
	if got.SuggestedAt != nil || got.DecidedAt != nil {
		t.Error("Expected undecided candidate")
	}

	// Lifecycle transition persisted via update.
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	if err := got.Suggest(now); err != nil {
		t.Fatalf("Failed to suggest: %v", err)
	}
	if err := store.SaveCandidate(ctx, got); err != nil {
		t.Fatalf("Failed to update candidate: %v", err)
	}
	updated, err := store.GetCandidateByFingerprint(ctx, "fp-powerco")
	if err != nil {
		t.Fatalf("Failed to get candidate by fingerprint: %v", err)
	}
	if updated.State != model.SuggestionSuggested {
		t.Errorf("Expected state suggested, got %q", updated.State)
	}
	if updated.SuggestedAt == nil || !updated.SuggestedAt.Equal(now) {
		t.Errorf("Expected suggested at %v, got %v", now, updated.SuggestedAt)
	}
}

func TestSQLiteStorage_GetCandidate_NotFound(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := store.GetCandidate(ctx, 404); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetCandidateByFingerprint(ctx, "fp-missing"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_GetCandidates_OrderedByConfidence(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	low := createTestCandidate("fp-low")
	low.Confidence = 0.4
	high := createTestCandidate("fp-high")
	high.Confidence = 0.9
	for _, c := range []*model.RecurringCandidate{low, high} {
		if err := store.SaveCandidate(ctx, c); err != nil {
			t.Fatalf("Failed to save candidate: %v", err)
		}
	}

	candidates, err := store.GetCandidates(ctx)
	if err != nil {
		t.Fatalf("Failed to get candidates: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("Expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].Fingerprint != "fp-high" {
		t.Errorf("Expected highest confidence first, got %q", candidates[0].Fingerprint)
	}
}

package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paperledger/paperledger/internal/common"
	"github.com/paperledger/paperledger/internal/model"
	"github.com/paperledger/paperledger/internal/service"
)

func createTestAnomaly(id, documentID string, typ model.AnomalyType) *model.Anomaly {
	return &model.Anomaly{
		ID:          id,
		DocumentID:  documentID,
		Fingerprint: "vk-powerco",
		Type:        typ,
		Severity:    model.SeverityCritical,
		DetectedAt:  time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		Version:     model.DetectorVersion,
		Context:     map[string]any{"newAccount": "DE89**************3000"},
		Resolution:  model.ResolutionUnresolved,
	}
}

func TestSQLiteStorage_SaveAnomaly(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	anomaly := createTestAnomaly("anom-1", "doc-1", model.AnomalyBankAccountChanged)
	if err := store.SaveAnomaly(ctx, anomaly); err != nil {
		t.Fatalf("Failed to save anomaly: %v", err)
	}

	got, err := store.GetAnomaly(ctx, "anom-1")
	if err != nil {
		t.Fatalf("Failed to get anomaly: %v", err)
	}
	if got.Type != model.AnomalyBankAccountChanged {
		t.Errorf("Expected type bankAccountChanged, got %q", got.Type)
	}
	if got.Context["newAccount"] != "DE89**************3000" {
		t.Errorf("Expected context payload, got %v", got.Context)
	}
	if got.Resolution != model.ResolutionUnresolved {
		t.Errorf("Expected unresolved, got %q", got.Resolution)
	}
}

func TestSQLiteStorage_SaveAnomaly_UpsertPreservesResolution(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	anomaly := createTestAnomaly("anom-1", "doc-1", model.AnomalyBankAccountChanged)
	if err := store.SaveAnomaly(ctx, anomaly); err != nil {
		t.Fatalf("Failed to save anomaly: %v", err)
	}
	resolvedAt := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	if err := store.ResolveAnomaly(ctx, "anom-1", model.ResolutionConfirmedSafe, resolvedAt); err != nil {
		t.Fatalf("Failed to resolve anomaly: %v", err)
	}

	// Re-detection for the same (document, type) refreshes the finding but
	// must not reopen the user's decision.
	redetected := createTestAnomaly("anom-2", "doc-1", model.AnomalyBankAccountChanged)
	redetected.Severity = model.SeverityWarning
	redetected.DetectedAt = resolvedAt.AddDate(0, 0, 5)
	if err := store.SaveAnomaly(ctx, redetected); err != nil {
		t.Fatalf("Failed to upsert anomaly: %v", err)
	}

	anomalies, err := store.GetAnomaliesByDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Failed to get anomalies: %v", err)
	}
	if len(anomalies) != 1 {
		t.Fatalf("Expected 1 anomaly, got %d", len(anomalies))
	}
	if anomalies[0].ID != "anom-1" {
		t.Errorf("Expected original id to survive the upsert, got %q", anomalies[0].ID)
	}
	if anomalies[0].Severity != model.SeverityWarning {
		t.Errorf("Expected refreshed severity, got %q", anomalies[0].Severity)
	}
	if anomalies[0].Resolution != model.ResolutionConfirmedSafe {
		t.Errorf("Expected resolution to survive re-detection, got %q", anomalies[0].Resolution)
	}
	if anomalies[0].ResolvedAt == nil {
		t.Error("Expected resolved timestamp to survive re-detection")
	}
}

func TestSQLiteStorage_ResolveAnomaly_NotFound(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	err := store.ResolveAnomaly(context.Background(), "missing", model.ResolutionDismissed, time.Now())
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_GetAnomalies_Filters(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	critical := createTestAnomaly("anom-1", "doc-1", model.AnomalyBankAccountChanged)
	critical.DetectedAt = base
	info := createTestAnomaly("anom-2", "doc-2", model.AnomalyNewVendor)
	info.Severity = model.SeverityInfo
	info.DetectedAt = base.AddDate(0, 0, 10)
	info.Fingerprint = "vk-other"
	for _, a := range []*model.Anomaly{critical, info} {
		if err := store.SaveAnomaly(ctx, a); err != nil {
			t.Fatalf("Failed to save anomaly: %v", err)
		}
	}
	if err := store.ResolveAnomaly(ctx, "anom-2", model.ResolutionDismissed, base.AddDate(0, 0, 11)); err != nil {
		t.Fatalf("Failed to resolve anomaly: %v", err)
	}

	tests := []struct {
		name    string
		filter  service.AnomalyFilter
		wantIDs []string
	}{
		{
			name:    "no filter returns newest first",
			filter:  service.AnomalyFilter{},
			wantIDs: []string{"anom-2", "anom-1"},
		},
		{
			name:    "severity filter",
			filter:  service.AnomalyFilter{Severity: model.SeverityCritical},
			wantIDs: []string{"anom-1"},
		},
		{
			name:    "resolution filter",
			filter:  service.AnomalyFilter{Resolution: model.ResolutionUnresolved},
			wantIDs: []string{"anom-1"},
		},
		{
			name:    "fingerprint filter",
			filter:  service.AnomalyFilter{Fingerprint: "vk-other"},
			wantIDs: []string{"anom-2"},
		},
		{
			name: "date range filter",
			filter: func() service.AnomalyFilter {
				since := base.AddDate(0, 0, 5)
				return service.AnomalyFilter{Since: &since}
			}(),
			wantIDs: []string{"anom-2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.GetAnomalies(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Failed to get anomalies: %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("Expected %d anomalies, got %d", len(tt.wantIDs), len(got))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("Expected anomaly %q at position %d, got %q", id, i, got[i].ID)
				}
			}
		})
	}
}

func TestSQLiteStorage_GetAnomalies_InvalidRange(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	since := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	until := since.AddDate(0, 0, -5)
	_, err := store.GetAnomalies(context.Background(), service.AnomalyFilter{Since: &since, Until: &until})
	if !errors.Is(err, ErrInvalidDateRange) {
		t.Errorf("Expected ErrInvalidDateRange, got %v", err)
	}
}

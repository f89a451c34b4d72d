package anomaly

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperledger/paperledger/internal/banking"
	"github.com/paperledger/paperledger/internal/model"
	"github.com/paperledger/paperledger/internal/pattern"
	"github.com/paperledger/paperledger/internal/service"
	"github.com/paperledger/paperledger/internal/storage"
)

type testEnv struct {
	store   service.Storage
	tracker *pattern.Tracker
	engine  *Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := storage.NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	tracker := pattern.NewTracker(store)
	return &testEnv{
		store:   store,
		tracker: tracker,
		engine:  NewEngine(store, banking.NewLedger(store), tracker),
	}
}

func testDoc(id, vendor, vendorKey, iban, amount string, dueDate time.Time) *model.Document {
	return &model.Document{
		ID:          id,
		VendorName:  vendor,
		Currency:    "EUR",
		Fingerprint: "fp-" + vendorKey,
		VendorKey:   vendorKey,
		Category:    model.CategoryUtility,
		Amount:      decimal.RequireFromString(amount),
		DueDate:     dueDate,
		BankAccount: iban,
		Status:      model.DocumentStatusScheduled,
	}
}

// ingest mirrors the processing order: analysis sees only prior history, then
// the document and its aggregates are persisted.
func (env *testEnv) ingest(t *testing.T, doc *model.Document, now time.Time) []model.Anomaly {
	t.Helper()
	ctx := context.Background()

	anomalies, err := env.engine.Analyze(ctx, doc, now)
	require.NoError(t, err)
	require.NoError(t, env.store.SaveDocument(ctx, doc))
	_, err = env.tracker.Observe(ctx, doc.VendorKey, doc.DueDay(), doc.Amount, now)
	require.NoError(t, err)
	return anomalies
}

func findAnomaly(anomalies []model.Anomaly, typ model.AnomalyType) *model.Anomaly {
	for i := range anomalies {
		if anomalies[i].Type == typ {
			return &anomalies[i]
		}
	}
	return nil
}

func TestEngine_NewVendor(t *testing.T) {
	env := newTestEnv(t)
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	anomalies := env.ingest(t, testDoc("doc-1", "PowerCo Energy", "vk-powerco", "", "89.90", now), now)

	require.Len(t, anomalies, 1)
	assert.Equal(t, model.AnomalyNewVendor, anomalies[0].Type)
	assert.Equal(t, model.SeverityInfo, anomalies[0].Severity)
	assert.Equal(t, "PowerCo Energy", anomalies[0].Context["vendor"])

	// A second document from the same vendor raises nothing.
	next := now.AddDate(0, 1, 0)
	anomalies = env.ingest(t, testDoc("doc-2", "PowerCo Energy", "vk-powerco", "", "89.90", next), next)
	assert.Empty(t, anomalies)
}

func TestEngine_BankAccountChanged(t *testing.T) {
	env := newTestEnv(t)
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	const known = "DE89370400440532013000"

	for i := 0; i < 3; i++ {
		due := start.AddDate(0, i, 0)
		env.ingest(t, testDoc("doc-"+due.Format("2006-01"), "PowerCo Energy", "vk-powerco", known, "89.90", due), due)
	}

	due := start.AddDate(0, 3, 0)
	doc := testDoc("doc-switch", "PowerCo Energy", "vk-powerco", "GB29NWBK60161331926819", "89.90", due)
	anomalies := env.ingest(t, doc, due)

	found := findAnomaly(anomalies, model.AnomalyBankAccountChanged)
	require.NotNil(t, found)
	assert.Equal(t, model.SeverityCritical, found.Severity)
	assert.Equal(t, "DE89**************3000", found.Context["previousAccount"])
	assert.Equal(t, "GB29**************6819", found.Context["newAccount"])
	assert.Equal(t, true, found.Context["validFormat"])
	assert.Equal(t, "vk-powerco", found.Fingerprint)
}

func TestEngine_FirstAccountSighting(t *testing.T) {
	env := newTestEnv(t)
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	// Paper history without any bank detail.
	env.ingest(t, testDoc("doc-1", "PowerCo Energy", "vk-powerco", "", "89.90", start), start)
	second := start.AddDate(0, 1, 0)
	env.ingest(t, testDoc("doc-2", "PowerCo Energy", "vk-powerco", "", "89.90", second), second)

	third := start.AddDate(0, 2, 0)
	doc := testDoc("doc-3", "PowerCo Energy", "vk-powerco", "DE89370400440532013000", "89.90", third)
	anomalies := env.ingest(t, doc, third)

	found := findAnomaly(anomalies, model.AnomalyBankAccountChanged)
	require.NotNil(t, found)
	assert.Equal(t, model.SeverityInfo, found.Severity)
	assert.Equal(t, true, found.Context["firstSeen"])
}

func TestEngine_VendorImpersonation(t *testing.T) {
	ctx := context.Background()

	t.Run("homoglyph spoofing", func(t *testing.T) {
		env := newTestEnv(t)
		tpl := &model.RecurringTemplate{
			DisplayName:       "PowerCo Energy",
			Fingerprint:       "fp-vk-powerco",
			VendorFingerprint: "vk-powerco",
			Category:          model.CategoryUtility,
			Source:            model.TemplateSourceDetected,
			DueDay:            15,
			ToleranceDays:     model.DefaultToleranceDays,
			Active:            true,
		}
		require.NoError(t, env.store.SaveTemplate(ctx, tpl))

		now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
		// Both lowercase o's replaced with Cyrillic counterparts.
		doc := testDoc("doc-spoof", "PоwerCо Energy", "vk-spoof", "", "89.90", now)
		anomalies := env.ingest(t, doc, now)

		found := findAnomaly(anomalies, model.AnomalyVendorImpersonation)
		require.NotNil(t, found)
		assert.Equal(t, model.SeverityCritical, found.Severity)
		assert.Equal(t, "PowerCo Energy", found.Context["impersonatedVendor"])
		assert.Equal(t, 2, found.Context["homoglyphCount"])
	})

	t.Run("near-identical name with different account", func(t *testing.T) {
		env := newTestEnv(t)
		tpl := &model.RecurringTemplate{
			DisplayName:       "Amazon Web Services",
			Fingerprint:       "fp-vk-aws",
			VendorFingerprint: "vk-aws",
			Category:          model.CategorySubscription,
			Source:            model.TemplateSourceDetected,
			DueDay:            1,
			ToleranceDays:     model.DefaultToleranceDays,
			IBAN:              "DE89370400440532013000",
			Active:            true,
		}
		require.NoError(t, env.store.SaveTemplate(ctx, tpl))

		now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		doc := testDoc("doc-spoof", "Arnazon Web Services", "vk-arnazon", "GB29NWBK60161331926819", "120", now)
		anomalies := env.ingest(t, doc, now)

		found := findAnomaly(anomalies, model.AnomalyVendorImpersonation)
		require.NotNil(t, found)
		assert.Equal(t, "Amazon Web Services", found.Context["impersonatedVendor"])
		assert.Equal(t, 2, found.Context["editDistance"])
	})

	t.Run("the vendor's own template is not spoofing", func(t *testing.T) {
		env := newTestEnv(t)
		tpl := &model.RecurringTemplate{
			DisplayName:       "PowerCo Energy",
			Fingerprint:       "fp-vk-powerco",
			VendorFingerprint: "vk-powerco",
			Category:          model.CategoryUtility,
			Source:            model.TemplateSourceDetected,
			DueDay:            15,
			ToleranceDays:     model.DefaultToleranceDays,
			Active:            true,
		}
		require.NoError(t, env.store.SaveTemplate(ctx, tpl))

		now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
		doc := testDoc("doc-own", "PowerCo Energy", "vk-powerco", "", "89.90", now)
		anomalies := env.ingest(t, doc, now)
		assert.Nil(t, findAnomaly(anomalies, model.AnomalyVendorImpersonation))
	})
}

func TestEngine_UnusualTiming(t *testing.T) {
	env := newTestEnv(t)
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		due := start.AddDate(0, i, 0)
		env.ingest(t, testDoc("doc-"+due.Format("2006-01"), "PowerCo Energy", "vk-powerco", "", "100", due), due)
	}

	// Established window is the 15th plus or minus 3 days, plus 7 days grace.
	due := time.Date(2026, 4, 28, 0, 0, 0, 0, time.UTC)
	anomalies := env.ingest(t, testDoc("doc-late", "PowerCo Energy", "vk-powerco", "", "100", due), due)

	require.Len(t, anomalies, 1)
	assert.Equal(t, model.AnomalyUnusualTiming, anomalies[0].Type)
	assert.Equal(t, model.SeverityWarning, anomalies[0].Severity)
	assert.Equal(t, 28, anomalies[0].Context["observedDay"])
	assert.Equal(t, 15.0, anomalies[0].Context["medianDay"])
}

func TestEngine_TimingWithinGraceIsQuiet(t *testing.T) {
	env := newTestEnv(t)
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		due := start.AddDate(0, i, 0)
		env.ingest(t, testDoc("doc-"+due.Format("2006-01"), "PowerCo Energy", "vk-powerco", "", "100", due), due)
	}

	due := time.Date(2026, 4, 24, 0, 0, 0, 0, time.UTC)
	anomalies := env.ingest(t, testDoc("doc-shift", "PowerCo Energy", "vk-powerco", "", "100", due), due)
	assert.Empty(t, anomalies)
}

func TestEngine_AmountDeviation(t *testing.T) {
	seed := func(t *testing.T, env *testEnv, amounts ...string) time.Time {
		start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
		for i, amount := range amounts {
			due := start.AddDate(0, i, 0)
			env.ingest(t, testDoc("doc-"+due.Format("2006-01"), "PowerCo Energy", "vk-powerco", "", amount, due), due)
		}
		return start.AddDate(0, len(amounts), 0)
	}

	t.Run("extreme z-score is critical", func(t *testing.T) {
		env := newTestEnv(t)
		due := seed(t, env, "100", "110", "90")

		anomalies := env.ingest(t, testDoc("doc-spike", "PowerCo Energy", "vk-powerco", "", "200", due), due)
		require.Len(t, anomalies, 1)
		assert.Equal(t, model.AnomalyAmountDeviation, anomalies[0].Type)
		assert.Equal(t, model.SeverityCritical, anomalies[0].Severity)
		assert.InDelta(t, 10.0, anomalies[0].Context["zScore"].(float64), 0.001)
	})

	t.Run("small absolute deviation is suppressed", func(t *testing.T) {
		env := newTestEnv(t)
		due := seed(t, env, "100", "110", "90")

		anomalies := env.ingest(t, testDoc("doc-bump", "PowerCo Energy", "vk-powerco", "", "115", due), due)
		assert.Empty(t, anomalies)
	})

	t.Run("small relative deviation is suppressed", func(t *testing.T) {
		env := newTestEnv(t)
		due := seed(t, env, "500", "500", "500")

		anomalies := env.ingest(t, testDoc("doc-bump", "PowerCo Energy", "vk-powerco", "", "560", due), due)
		assert.Empty(t, anomalies)
	})

	t.Run("deviation from a perfectly stable history is critical", func(t *testing.T) {
		env := newTestEnv(t)
		due := seed(t, env, "500", "500", "500")

		anomalies := env.ingest(t, testDoc("doc-spike", "PowerCo Energy", "vk-powerco", "", "650", due), due)
		require.Len(t, anomalies, 1)
		assert.Equal(t, model.SeverityCritical, anomalies[0].Severity)
		assert.NotContains(t, anomalies[0].Context, "zScore")
	})
}

func TestEngine_MultipleFindingsPersistTogether(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	const known = "DE89370400440532013000"

	amounts := []string{"100", "110", "90"}
	for i := 0; i < 3; i++ {
		due := start.AddDate(0, i, 0)
		env.ingest(t, testDoc("doc-"+due.Format("2006-01"), "PowerCo Energy", "vk-powerco", known, amounts[i], due), due)
	}

	// One document trips two checks at once: a new account and a doubled
	// amount.
	due := start.AddDate(0, 3, 0)
	anomalies := env.ingest(t, testDoc("doc-fraud", "PowerCo Energy", "vk-powerco", "GB29NWBK60161331926819", "200", due), due)
	require.Len(t, anomalies, 2)

	saved, err := env.store.GetAnomaliesByDocument(ctx, "doc-fraud")
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.NotNil(t, findAnomaly(saved, model.AnomalyBankAccountChanged))
	assert.NotNil(t, findAnomaly(saved, model.AnomalyAmountDeviation))
}

func TestEngine_ReanalysisDoesNotDuplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	doc := testDoc("doc-1", "PowerCo Energy", "vk-powerco", "", "89.90", now)
	first, err := env.engine.Analyze(ctx, doc, now)
	require.NoError(t, err)
	require.Len(t, first, 1)

	_, err = env.engine.Analyze(ctx, doc, now.AddDate(0, 0, 1))
	require.NoError(t, err)

	stored, err := env.store.GetAnomaliesByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

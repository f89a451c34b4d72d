// Package anomaly inspects finalized documents for irregularities: changed
// bank accounts, vendor name spoofing, unusual timing, amount deviations,
// and first sightings.
package anomaly

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paperledger/paperledger/internal/banking"
	"github.com/paperledger/paperledger/internal/identity"
	"github.com/paperledger/paperledger/internal/model"
	"github.com/paperledger/paperledger/internal/pattern"
	"github.com/paperledger/paperledger/internal/service"
)

// Detection thresholds.
const (
	// timingToleranceDays is how far outside the established window a due
	// day may fall before a timing anomaly fires.
	timingToleranceDays = 7
	// minTimingWindowDays is the floor on the established timing window.
	minTimingWindowDays = 3.0
	// amountPercentFloor and amountAbsoluteFloor jointly suppress noise:
	// a deviation must exceed both before an amount anomaly fires.
	amountPercentFloor = 0.20
	// spoofing edit-distance limits by name length.
	longNameEditLimit  = 3
	shortNameEditLimit = 2
	shortNameLength    = 10
)

// amountAbsoluteFloor is the minimum absolute deviation, in currency units,
// for an amount anomaly.
var amountAbsoluteFloor = 20.0

// Engine orchestrates the five per-document checks. Checks run concurrently,
// read disjoint history, and each contributes at most one anomaly; results
// are merged before being written.
type Engine struct {
	store   service.Storage
	ledger  *banking.Ledger
	tracker *pattern.Tracker
}

// NewEngine creates an anomaly engine.
func NewEngine(store service.Storage, ledger *banking.Ledger, tracker *pattern.Tracker) *Engine {
	return &Engine{store: store, ledger: ledger, tracker: tracker}
}

// Analyze runs all checks against a document that has not yet been
// persisted. A failing check is logged and skipped; it never aborts the
// others. Detected anomalies are upserted keyed by (document, type), so
// re-analyzing unchanged data does not duplicate records.
func (e *Engine) Analyze(ctx context.Context, doc *model.Document, now time.Time) ([]model.Anomaly, error) {
	checks := []struct {
		run  func(context.Context, *model.Document, time.Time) (*model.Anomaly, error)
		name string
	}{
		{e.checkBankAccount, "bank_account"},
		{e.checkSpoofing, "spoofing"},
		{e.checkTiming, "timing"},
		{e.checkAmount, "amount"},
		{e.checkFirstSeen, "first_seen"},
	}

	var (
		mu    sync.Mutex
		found []model.Anomaly
		wg    sync.WaitGroup
	)
	for _, check := range checks {
		wg.Add(1)
		go func(name string, run func(context.Context, *model.Document, time.Time) (*model.Anomaly, error)) {
			defer wg.Done()
			a, err := run(ctx, doc, now)
			if err != nil {
				slog.Error("anomaly check failed", "check", name, "document_id", doc.ID, "error", err)
				return
			}
			if a == nil {
				return
			}
			mu.Lock()
			found = append(found, *a)
			mu.Unlock()
		}(check.name, check.run)
	}
	wg.Wait()

	if len(found) == 0 {
		return nil, nil
	}

	// The merged findings commit as one batch.
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	for i := range found {
		if err := tx.SaveAnomaly(ctx, &found[i]); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Error("rollback failed", "error", rbErr)
			}
			return nil, fmt.Errorf("failed to save anomaly: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit anomalies: %w", err)
	}
	return found, nil
}

func (e *Engine) newAnomaly(doc *model.Document, typ model.AnomalyType, severity model.Severity, now time.Time, context map[string]any) *model.Anomaly {
	return &model.Anomaly{
		ID:          uuid.NewString(),
		DocumentID:  doc.ID,
		Fingerprint: doc.VendorKey,
		Type:        typ,
		Severity:    severity,
		DetectedAt:  now,
		Version:     model.DetectorVersion,
		Context:     context,
		Resolution:  model.ResolutionUnresolved,
	}
}

// checkBankAccount records the document's account in the vendor ledger and
// flags a previously unseen account for a vendor with existing history.
func (e *Engine) checkBankAccount(ctx context.Context, doc *model.Document, now time.Time) (*model.Anomaly, error) {
	if doc.BankAccount == "" {
		return nil, nil
	}

	obs, err := e.ledger.Observe(ctx, doc.VendorKey, doc.BankAccount, now)
	if err != nil {
		return nil, err
	}

	switch {
	case obs.Changed:
		return e.newAnomaly(doc, model.AnomalyBankAccountChanged, model.SeverityCritical, now, map[string]any{
			"previousAccount": obs.Previous.MaskedIBAN(),
			"newAccount":      obs.Entry.MaskedIBAN(),
			"validFormat":     obs.ValidFormat,
		}), nil
	case obs.FirstEver:
		// First account sighting for a vendor that already has documents is
		// worth a note; a brand-new vendor is covered by the first-seen check.
		prior, err := e.store.CountDocumentsByVendor(ctx, doc.VendorKey)
		if err != nil {
			return nil, err
		}
		if prior == 0 {
			return nil, nil
		}
		return e.newAnomaly(doc, model.AnomalyBankAccountChanged, model.SeverityInfo, now, map[string]any{
			"newAccount":  obs.Entry.MaskedIBAN(),
			"firstSeen":   true,
			"validFormat": obs.ValidFormat,
		}), nil
	}
	return nil, nil
}

// checkSpoofing compares the document's vendor name against every known
// template's name. A near-identical name backed by different identifiers is
// the signature of vendor impersonation.
func (e *Engine) checkSpoofing(ctx context.Context, doc *model.Document, now time.Time) (*model.Anomaly, error) {
	templates, err := e.store.GetTemplates(ctx, false)
	if err != nil {
		return nil, err
	}

	docIBAN := banking.NormalizeIBAN(doc.BankAccount)
	for i := range templates {
		tpl := &templates[i]
		if tpl.VendorFingerprint == doc.VendorKey || tpl.Fingerprint == doc.Fingerprint {
			continue // same vendor, not spoofing
		}

		report := identity.DetectHomoglyphs(doc.VendorName, tpl.DisplayName)
		if report.Confidence > 0.3 {
			return e.newAnomaly(doc, model.AnomalyVendorImpersonation, model.SeverityCritical, now, map[string]any{
				"impersonatedVendor": tpl.DisplayName,
				"homoglyphCount":     len(report.Positions),
				"spoofConfidence":    report.Confidence,
			}), nil
		}

		if !differentIdentity(tpl, docIBAN) {
			continue
		}
		limit := longNameEditLimit
		if len([]rune(identity.Normalize(tpl.DisplayName))) < shortNameLength {
			limit = shortNameEditLimit
		}
		if d := identity.EditDistance(doc.VendorName, tpl.DisplayName); d > 0 && d <= limit {
			return e.newAnomaly(doc, model.AnomalyVendorImpersonation, model.SeverityCritical, now, map[string]any{
				"impersonatedVendor": tpl.DisplayName,
				"editDistance":       d,
			}), nil
		}
	}
	return nil, nil
}

// differentIdentity reports whether the document's identifiers differ from
// the template's. Fingerprints encode the tax id, and the pair is already
// known to have different fingerprints, so the bank account is the deciding
// identifier when the template has one.
func differentIdentity(tpl *model.RecurringTemplate, docIBAN string) bool {
	if tpl.IBAN == "" || docIBAN == "" {
		return true
	}
	return banking.NormalizeIBAN(tpl.IBAN) != docIBAN
}

// checkTiming flags a due day far outside the vendor's established window of
// median ± max(2σ, 3 days).
func (e *Engine) checkTiming(ctx context.Context, doc *model.Document, now time.Time) (*model.Anomaly, error) {
	p, found, err := e.tracker.Get(ctx, doc.VendorKey)
	if err != nil {
		return nil, err
	}
	if !found || !p.Established() {
		return nil, nil
	}

	median, ok := p.DayMedian()
	if !ok {
		return nil, nil
	}
	window := 2 * p.DayStdDev()
	if window < minTimingWindowDays {
		window = minTimingWindowDays
	}

	deviation := math.Abs(float64(doc.DueDay()) - median)
	if deviation <= window+timingToleranceDays {
		return nil, nil
	}

	return e.newAnomaly(doc, model.AnomalyUnusualTiming, model.SeverityWarning, now, map[string]any{
		"observedDay": doc.DueDay(),
		"medianDay":   median,
		"windowDays":  window,
	}), nil
}

// checkAmount flags amounts whose z-score against the vendor's running
// statistics is extreme. Small deviations are suppressed by requiring both a
// percentage and an absolute floor.
func (e *Engine) checkAmount(ctx context.Context, doc *model.Document, now time.Time) (*model.Anomaly, error) {
	p, found, err := e.tracker.Get(ctx, doc.VendorKey)
	if err != nil {
		return nil, err
	}
	if !found || !p.Established() {
		return nil, nil
	}

	amount, _ := doc.Amount.Float64()
	deviation := math.Abs(amount - p.AmountMean)
	if deviation < amountAbsoluteFloor {
		return nil, nil
	}
	if p.AmountMean != 0 && deviation/math.Abs(p.AmountMean) < amountPercentFloor {
		return nil, nil
	}

	stdDev := p.AmountStdDev()
	var severity model.Severity
	var zScore float64
	switch {
	case stdDev == 0:
		// Perfectly stable history makes any deviation past the floors extreme.
		severity = model.SeverityCritical
		zScore = math.Inf(1)
	default:
		zScore = deviation / stdDev
		switch {
		case zScore > 4:
			severity = model.SeverityCritical
		case zScore > 3:
			severity = model.SeverityWarning
		case zScore > 2:
			severity = model.SeverityInfo
		default:
			return nil, nil
		}
	}

	ctxPayload := map[string]any{
		"amount":       amount,
		"expectedMean": p.AmountMean,
		"deviation":    deviation,
	}
	if !math.IsInf(zScore, 1) {
		ctxPayload["zScore"] = zScore
	}
	return e.newAnomaly(doc, model.AnomalyAmountDeviation, severity, now, ctxPayload), nil
}

// checkFirstSeen surfaces the first document ever received from a vendor.
// Not an irregularity as such, but worth awareness.
func (e *Engine) checkFirstSeen(ctx context.Context, doc *model.Document, now time.Time) (*model.Anomaly, error) {
	prior, err := e.store.CountDocumentsByVendor(ctx, doc.VendorKey)
	if err != nil {
		return nil, err
	}
	if prior > 0 {
		return nil, nil
	}
	return e.newAnomaly(doc, model.AnomalyNewVendor, model.SeverityInfo, now, map[string]any{
		"vendor": doc.VendorName,
	}), nil
}

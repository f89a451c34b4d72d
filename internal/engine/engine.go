// Package engine orchestrates document processing: fingerprinting,
// classification, anomaly detection, pattern tracking, and recurrence
// matching, combined into single entry points with transactional writes.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/paperledger/paperledger/internal/anomaly"
	"github.com/paperledger/paperledger/internal/banking"
	"github.com/paperledger/paperledger/internal/identity"
	"github.com/paperledger/paperledger/internal/model"
	"github.com/paperledger/paperledger/internal/pattern"
	"github.com/paperledger/paperledger/internal/recurrence"
	"github.com/paperledger/paperledger/internal/service"
)

// defaultReminderOffsets are the reminder lead times, in days before the due
// date, applied to templates created from accepted suggestions.
var defaultReminderOffsets = []int{7, 1}

// Engine ties the analysis components together over one storage backend.
// Processing for the same vendor is serialized with a keyed lock so the
// read-modify-write pattern updates never race.
type Engine struct {
	store    service.Storage
	analyzer *anomaly.Engine
	locks    vendorLocks
}

// New creates an engine over the given storage.
func New(store service.Storage) *Engine {
	ledger := banking.NewLedger(store)
	tracker := pattern.NewTracker(store)
	return &Engine{
		store:    store,
		analyzer: anomaly.NewEngine(store, ledger, tracker),
	}
}

// ProcessResult describes everything one document ingestion produced.
type ProcessResult struct {
	Document  *model.Document
	Match     *recurrence.MatchResult
	Candidate *model.RecurringCandidate
	Anomalies []model.Anomaly
	Pattern   model.InvoicePattern
}

// Intents returns the side-effect intents produced by the reconciliation
// step, if any.
func (r *ProcessResult) Intents() []model.Intent {
	if r.Match == nil {
		return nil
	}
	return r.Match.Intents
}

// ProcessDocument runs the full pipeline for one document: derive its
// fingerprints and category, analyze it for anomalies against the vendor's
// prior history, then persist it, fold it into the vendor's running pattern,
// reconcile it against any recurring template, and re-score the vendor's
// recurrence candidate. The persistence steps commit as one transaction, so
// a failure never leaves a document half-linked.
//
// Draft documents are stored but not analyzed; they re-enter the pipeline
// once finalized.
func (e *Engine) ProcessDocument(ctx context.Context, doc *model.Document, now time.Time) (*ProcessResult, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is required")
	}
	if doc.ID == "" {
		return nil, fmt.Errorf("document id is required")
	}
	if doc.VendorName == "" {
		return nil, fmt.Errorf("document %s has no vendor name", doc.ID)
	}
	if doc.DueDate.IsZero() {
		return nil, fmt.Errorf("document %s has no due date", doc.ID)
	}

	annotate(doc)

	if !doc.Finalized() {
		if err := e.store.SaveDocument(ctx, doc); err != nil {
			return nil, err
		}
		slog.Debug("stored draft document", "document_id", doc.ID)
		return &ProcessResult{Document: doc}, nil
	}

	unlock := e.locks.lock(doc.VendorKey)
	defer unlock()

	// Anomaly checks compare the document against history as it stood
	// before this document, so they run before anything is persisted.
	anomalies, err := e.analyzer.Analyze(ctx, doc, now)
	if err != nil {
		return nil, fmt.Errorf("anomaly analysis failed for document %s: %w", doc.ID, err)
	}

	result := &ProcessResult{Document: doc, Anomalies: anomalies}

	err = e.withTx(ctx, func(tx service.Transaction) error {
		if err := tx.SaveDocument(ctx, doc); err != nil {
			return err
		}

		tracker := pattern.NewTracker(tx)
		pat, err := tracker.Observe(ctx, doc.VendorKey, doc.DueDay(), doc.Amount, now)
		if err != nil {
			return err
		}
		result.Pattern = pat

		scheduler := recurrence.NewScheduler(tx)
		matcher := recurrence.NewMatcher(tx, scheduler)
		match, err := matcher.MatchDocument(ctx, doc)
		if err != nil {
			return err
		}
		result.Match = match

		detector := recurrence.NewDetector(tx)
		candidate, err := detector.EvaluateVendor(ctx, doc.Fingerprint, now)
		if err != nil {
			return err
		}
		result.Candidate = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("processed document",
		"document_id", doc.ID,
		"vendor", doc.VendorName,
		"category", doc.Category,
		"anomalies", len(anomalies),
		"matched", result.Match != nil)
	return result, nil
}

// annotate derives the document's fingerprints and, when missing, its
// category from the vendor name and OCR text.
func annotate(doc *model.Document) {
	fp := identity.MakeFingerprint(doc.VendorName, doc.TaxID, &doc.Amount)
	doc.Fingerprint = fp.Value
	doc.VendorKey = fp.VendorValue
	doc.Fallback = fp.Fallback

	if doc.Category == "" || doc.Category == model.CategoryUnknown {
		doc.Category = identity.Classify(doc.VendorName, doc.RawText)
	}
}

// AnalyzeAll re-scores the recurrence candidate for every known fingerprint.
// Safe to re-run at any time; unchanged data produces unchanged candidates.
// Returns the candidates currently in the suggested state.
func (e *Engine) AnalyzeAll(ctx context.Context, now time.Time) ([]model.RecurringCandidate, error) {
	fingerprints, err := e.store.ListFingerprints(ctx)
	if err != nil {
		return nil, err
	}

	for _, fingerprint := range fingerprints {
		if err := e.evaluateFingerprint(ctx, fingerprint, now); err != nil {
			slog.Error("failed to evaluate vendor", "fingerprint", fingerprint, "error", err)
		}
	}

	return e.Suggestions(ctx, now)
}

func (e *Engine) evaluateFingerprint(ctx context.Context, fingerprint string, now time.Time) error {
	docs, err := e.store.GetDocumentsByFingerprint(ctx, fingerprint)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	unlock := e.locks.lock(docs[len(docs)-1].VendorKey)
	defer unlock()

	return e.withTx(ctx, func(tx service.Transaction) error {
		_, err := recurrence.NewDetector(tx).EvaluateVendor(ctx, fingerprint, now)
		return err
	})
}

// Suggestions returns the candidates awaiting a user decision at now, highest
// confidence first.
func (e *Engine) Suggestions(ctx context.Context, now time.Time) ([]model.RecurringCandidate, error) {
	all, err := e.store.GetCandidates(ctx)
	if err != nil {
		return nil, err
	}

	var suggestable []model.RecurringCandidate
	for _, c := range all {
		if c.State == model.SuggestionNone {
			continue
		}
		if c.Suggestable(now) {
			suggestable = append(suggestable, c)
		}
	}
	return suggestable, nil
}

// AcceptCandidate converts a suggested candidate into an active recurring
// template, schedules forward instances, and retroactively links the
// vendor's existing documents. The whole conversion commits atomically.
func (e *Engine) AcceptCandidate(ctx context.Context, candidateID int64, now time.Time) (*model.RecurringTemplate, []model.Intent, error) {
	candidate, err := e.store.GetCandidate(ctx, candidateID)
	if err != nil {
		return nil, nil, err
	}

	unlock := e.locks.lock(candidate.VendorFingerprint)
	defer unlock()

	template := templateFromCandidate(candidate)
	if err := template.Validate(); err != nil {
		return nil, nil, fmt.Errorf("candidate %d does not form a valid template: %w", candidateID, err)
	}

	var intents []model.Intent
	err = e.withTx(ctx, func(tx service.Transaction) error {
		if err := tx.SaveTemplate(ctx, template); err != nil {
			return err
		}
		if err := candidate.Accept(template.ID, now); err != nil {
			return err
		}
		if err := tx.SaveCandidate(ctx, candidate); err != nil {
			return err
		}

		scheduler := recurrence.NewScheduler(tx)
		_, scheduled, err := scheduler.ScheduleForward(ctx, template, now)
		if err != nil {
			return err
		}
		intents = append(intents, scheduled...)

		// Link the history that earned the suggestion.
		matcher := recurrence.NewMatcher(tx, scheduler)
		docs, err := tx.GetDocumentsByFingerprint(ctx, candidate.Fingerprint)
		if err != nil {
			return err
		}
		for i := range docs {
			match, err := matcher.MatchDocument(ctx, &docs[i])
			if err != nil {
				return err
			}
			if match != nil {
				intents = append(intents, match.Intents...)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	slog.Info("accepted recurrence suggestion",
		"candidate_id", candidateID,
		"template_id", template.ID,
		"vendor", template.DisplayName)
	return template, intents, nil
}

func templateFromCandidate(c *model.RecurringCandidate) *model.RecurringTemplate {
	dueDay := c.DominantDueDay
	if dueDay < 1 || dueDay > 31 {
		dueDay = c.LastDueDate.Day()
	}
	return &model.RecurringTemplate{
		DisplayName:       c.DisplayName,
		Fingerprint:       c.Fingerprint,
		VendorFingerprint: c.VendorFingerprint,
		Currency:          c.Currency,
		IBAN:              c.IBAN,
		Category:          c.Category,
		Source:            model.TemplateSourceDetected,
		ReminderOffsets:   defaultReminderOffsets,
		DueDay:            dueDay,
		ToleranceDays:     model.DefaultToleranceDays,
		AmountMin:         c.AmountMin,
		AmountMax:         c.AmountMax,
		Active:            true,
	}
}

// DismissCandidate permanently rejects a suggestion.
func (e *Engine) DismissCandidate(ctx context.Context, candidateID int64, now time.Time) error {
	candidate, err := e.store.GetCandidate(ctx, candidateID)
	if err != nil {
		return err
	}
	if err := candidate.Dismiss(now); err != nil {
		return err
	}
	return e.store.SaveCandidate(ctx, candidate)
}

// SnoozeCandidate postpones a suggestion until the given time.
func (e *Engine) SnoozeCandidate(ctx context.Context, candidateID int64, until time.Time) error {
	candidate, err := e.store.GetCandidate(ctx, candidateID)
	if err != nil {
		return err
	}
	if err := candidate.Snooze(until); err != nil {
		return err
	}
	return e.store.SaveCandidate(ctx, candidate)
}

// DeactivateTemplate stops tracking a template, removing its pending expected
// instances while keeping matched history. Returns intents cancelling the
// removed instances' side effects.
func (e *Engine) DeactivateTemplate(ctx context.Context, templateID int64) ([]model.Intent, error) {
	var intents []model.Intent
	err := e.withTx(ctx, func(tx service.Transaction) error {
		template, err := tx.GetTemplate(ctx, templateID)
		if err != nil {
			return err
		}
		intents, err = recurrence.NewScheduler(tx).Deactivate(ctx, template)
		return err
	})
	if err != nil {
		return nil, err
	}
	return intents, nil
}

// ReactivateTemplate re-enables a deactivated template and regenerates its
// forward instances.
func (e *Engine) ReactivateTemplate(ctx context.Context, templateID int64, now time.Time) ([]model.Intent, error) {
	var intents []model.Intent
	err := e.withTx(ctx, func(tx service.Transaction) error {
		template, err := tx.GetTemplate(ctx, templateID)
		if err != nil {
			return err
		}
		intents, err = recurrence.NewScheduler(tx).Reactivate(ctx, template, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return intents, nil
}

// SweepOverdue marks expired expected instances missed across all templates.
// Intended to run periodically.
func (e *Engine) SweepOverdue(ctx context.Context, now time.Time) ([]model.Intent, error) {
	var intents []model.Intent
	err := e.withTx(ctx, func(tx service.Transaction) error {
		var err error
		intents, err = recurrence.NewScheduler(tx).MarkOverdue(ctx, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return intents, nil
}

// ResolveAnomaly records a user's decision on an anomaly.
func (e *Engine) ResolveAnomaly(ctx context.Context, anomalyID string, resolution model.Resolution, now time.Time) error {
	found, err := e.store.GetAnomaly(ctx, anomalyID)
	if err != nil {
		return err
	}
	if err := found.Resolve(resolution, now); err != nil {
		return err
	}
	return e.store.ResolveAnomaly(ctx, anomalyID, resolution, now)
}

// Insights summarizes anomaly activity over a period.
func (e *Engine) Insights(ctx context.Context, from, to time.Time) (*model.InsightsSummary, error) {
	return e.analyzer.Insights(ctx, from, to)
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error.
func (e *Engine) withTx(ctx context.Context, fn func(tx service.Transaction) error) error {
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

package recurrence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/paperledger/paperledger/internal/common"
	"github.com/paperledger/paperledger/internal/model"
	"github.com/paperledger/paperledger/internal/service"
)

// Matcher reconciles arriving documents against scheduled instances.
type Matcher struct {
	store     service.Store
	scheduler *Scheduler
}

// NewMatcher creates a matcher over the given store.
func NewMatcher(store service.Store, scheduler *Scheduler) *Matcher {
	return &Matcher{store: store, scheduler: scheduler}
}

// MatchResult describes the outcome of reconciling one document.
type MatchResult struct {
	Template   *model.RecurringTemplate
	Instance   *model.RecurringInstance
	Intents    []model.Intent
	Historical bool // the matched instance was created retroactively
}

// MatchDocument finds the active template covering the document's
// fingerprint and links the document to the right instance. Returns nil when
// no template covers the vendor. Matching the same document twice is
// idempotent: the second call finds the existing link and changes nothing.
func (m *Matcher) MatchDocument(ctx context.Context, doc *model.Document) (*MatchResult, error) {
	tpl, err := m.lookupTemplate(ctx, doc)
	if err != nil || tpl == nil {
		return nil, err
	}

	// Already linked: report the existing state without touching counters.
	if doc.InstanceID != nil {
		existing, err := m.store.GetInstance(ctx, *doc.InstanceID)
		if err != nil {
			return nil, fmt.Errorf("%w: document %s references instance %d", common.ErrStaleReference, doc.ID, *doc.InstanceID)
		}
		return &MatchResult{Template: tpl, Instance: existing}, nil
	}

	instance, historical, err := m.findInstance(ctx, tpl, doc)
	if err != nil {
		return nil, err
	}

	paid := doc.Status == model.DocumentStatusPaid
	intents, err := instance.Match(doc.ID, paid)
	if err != nil {
		return nil, fmt.Errorf("failed to match instance %d: %w", instance.ID, err)
	}
	if err := m.store.SaveInstance(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to save matched instance: %w", err)
	}

	doc.TemplateID = &tpl.ID
	doc.InstanceID = &instance.ID
	if err := m.store.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to link document: %w", err)
	}

	tpl.ObserveAmount(doc.Amount)
	tpl.MatchedCount++
	if paid {
		tpl.PaidCount++
	}
	if err := m.store.SaveTemplate(ctx, tpl); err != nil {
		return nil, fmt.Errorf("failed to update template counters: %w", err)
	}

	slog.Info("matched document to recurring instance",
		"document_id", doc.ID,
		"template_id", tpl.ID,
		"period", instance.PeriodKey,
		"historical", historical)
	return &MatchResult{Template: tpl, Instance: instance, Intents: intents, Historical: historical}, nil
}

// lookupTemplate tries the vendor+amount fingerprint first, then the
// vendor-only fingerprint.
func (m *Matcher) lookupTemplate(ctx context.Context, doc *model.Document) (*model.RecurringTemplate, error) {
	tpl, err := m.store.GetActiveTemplateByFingerprint(ctx, doc.Fingerprint)
	if err == nil {
		return tpl, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up template: %w", err)
	}
	if doc.VendorKey == "" || doc.VendorKey == doc.Fingerprint {
		return nil, nil
	}
	tpl, err = m.store.GetActiveTemplateByFingerprint(ctx, doc.VendorKey)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up template: %w", err)
	}
	return tpl, nil
}

// findInstance picks the instance whose expected due date lies within the
// template's tolerance of the document's due date, measured as absolute time
// difference so cross-month windows work. Falls back to the document's
// period-key instance, and finally to a retroactively created one.
func (m *Matcher) findInstance(ctx context.Context, tpl *model.RecurringTemplate, doc *model.Document) (*model.RecurringInstance, bool, error) {
	instances, err := m.store.GetInstancesByTemplate(ctx, tpl.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load instances: %w", err)
	}

	tolerance := time.Duration(tpl.ToleranceDays) * 24 * time.Hour
	var best *model.RecurringInstance
	var bestDiff time.Duration

	for i := range instances {
		inst := &instances[i]
		if inst.Status != model.InstanceStatusExpected {
			continue
		}
		diff := doc.DueDate.Sub(inst.DueDate)
		if diff < 0 {
			diff = -diff
		}
		if diff > tolerance {
			continue
		}
		if best == nil || diff < bestDiff {
			best, bestDiff = inst, diff
		}
	}
	if best != nil {
		return best, false, nil
	}

	// No instance inside the tolerance window. Reuse the period's instance
	// if one exists rather than duplicating it.
	key := model.PeriodKeyFor(doc.DueDate)
	for i := range instances {
		if instances[i].PeriodKey == key && !instances[i].Status.Terminal() {
			return &instances[i], false, nil
		}
	}

	inst, err := m.scheduler.EnsureHistorical(ctx, tpl, doc.DueDate, doc.Amount)
	if err != nil {
		return nil, false, err
	}
	return inst, true, nil
}

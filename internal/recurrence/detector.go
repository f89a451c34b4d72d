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

// Time-eligibility gates. A vendor becomes eligible for a recurrence
// suggestion once its history is old enough to be meaningful.
const (
	minHistoryAgeDays   = 60
	minSpanDays         = 45
	minDocumentsForSpan = 3
)

// strongSignalCap limits the confidence of vendors in weak categories that
// lack an independent strong signal, keeping them below the suggestion
// threshold.
const strongSignalCap = 0.65

// veryStableCoV is the coefficient-of-variation bar under which an amount
// counts as a strong signal on its own.
const veryStableCoV = 0.05

// Detector aggregates a vendor's documents into a scored recurrence
// candidate.
type Detector struct {
	store service.Store
}

// NewDetector creates a detector over the given store.
func NewDetector(store service.Store) *Detector {
	return &Detector{store: store}
}

// EvaluateVendor recomputes the recurrence candidate for one fingerprint.
// Returns nil when the vendor cannot be a candidate: fewer than two
// documents, or an active template already covers the fingerprint.
// Re-running on unchanged data updates the existing row in place.
func (d *Detector) EvaluateVendor(ctx context.Context, fingerprint string, now time.Time) (*model.RecurringCandidate, error) {
	if tpl, err := d.store.GetActiveTemplateByFingerprint(ctx, fingerprint); err == nil && tpl != nil {
		return nil, nil
	} else if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for active template: %w", err)
	}

	docs, err := d.store.GetDocumentsByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}

	stats, err := computeStats(docs)
	if err != nil {
		// Sparse history is the normal case, not a failure.
		if errors.Is(err, common.ErrInsufficientData) {
			return nil, nil
		}
		return nil, err
	}

	candidate, err := d.loadOrInitCandidate(ctx, fingerprint, docs, now)
	if err != nil {
		return nil, err
	}

	applyStats(candidate, stats)
	candidate.UpdatedAt = now

	if !timeEligible(stats, now) {
		candidate.Confidence = 0
	} else {
		candidate.Confidence = scoreCandidate(stats)
	}

	switch {
	case candidate.Suggestable(now) && candidate.State != model.SuggestionSuggested:
		// Covers fresh candidates past the cooldown and expired snoozes.
		if err := candidate.Suggest(now); err != nil {
			return nil, err
		}
		slog.Info("new recurrence suggestion",
			"fingerprint", fingerprint,
			"vendor", candidate.DisplayName,
			"confidence", candidate.Confidence)
	case candidate.State == model.SuggestionSuggested && candidate.Confidence < model.SuggestionThreshold:
		if err := candidate.Withdraw(); err != nil {
			return nil, err
		}
		slog.Info("recurrence suggestion withdrawn",
			"fingerprint", fingerprint,
			"vendor", candidate.DisplayName,
			"confidence", candidate.Confidence)
	}

	if err := d.store.SaveCandidate(ctx, candidate); err != nil {
		return nil, fmt.Errorf("failed to save candidate: %w", err)
	}
	return candidate, nil
}

func (d *Detector) loadOrInitCandidate(ctx context.Context, fingerprint string, docs []model.Document, now time.Time) (*model.RecurringCandidate, error) {
	existing, err := d.store.GetCandidateByFingerprint(ctx, fingerprint)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("failed to load candidate: %w", err)
	}
	latest := docs[len(docs)-1]
	return &model.RecurringCandidate{
		Fingerprint:       fingerprint,
		VendorFingerprint: latest.VendorKey,
		State:             model.SuggestionNone,
		CreatedAt:         now,
	}, nil
}

func applyStats(c *model.RecurringCandidate, s vendorStats) {
	c.DisplayName = s.displayName
	c.Currency = s.currency
	c.Category = s.category
	c.DocumentCount = s.count
	c.FirstDueDate = s.firstDue
	c.LastDueDate = s.lastDue
	c.DominantDueDay = s.dominantDay
	c.DominantDayShare = s.dominantShare
	c.DayStdDev = s.dayStdDev
	c.BucketStability = s.bucketStability
	c.AmountMean = s.amountMean
	c.AmountStdDev = s.amountStdDev
	c.AmountMin = s.amountMin
	c.AmountMax = s.amountMax
	c.StableIBAN = s.stableIBAN
	c.IBAN = s.iban
	c.KeywordHit = s.keywordHit
	c.Fallback = s.fallback
}

// timeEligible gates scoring on history age: either the first document is at
// least 60 days old, or at least three documents span at least 45 days.
func timeEligible(s vendorStats, now time.Time) bool {
	if now.Sub(s.firstDue) >= time.Duration(minHistoryAgeDays)*24*time.Hour {
		return true
	}
	span := s.lastDue.Sub(s.firstDue)
	return s.count >= minDocumentsForSpan && span >= time.Duration(minSpanDays)*24*time.Hour
}

// scoreCandidate computes the weighted recurrence confidence, clamped to
// [0,1]. Categories that never recur are rejected outright, and weak
// categories without a strong independent signal are capped below the
// suggestion threshold.
func scoreCandidate(s vendorStats) float64 {
	if s.category.NeverRecurring() {
		return 0
	}

	score := s.category.RecurringWeight() * 0.10
	score += dueDateConsistencyScore(s)
	score += countSpanScore(s)

	cov := coefficientOfVariation(s.amountMean, s.amountStdDev)
	score += amountStabilityScore(cov)

	if s.stableIBAN {
		score += 0.15
	}
	if s.keywordHit {
		score += 0.05
	}
	if s.fallback {
		score -= 0.05
	}

	if s.category.RequiresStrongSignal() && !hasStrongSignal(s, cov) && score > strongSignalCap {
		score = strongSignalCap
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func dueDateConsistencyScore(s vendorStats) float64 {
	ratio := s.bucketStability
	if ratio == 0 {
		// Bucket ratio unavailable; fall back to the dominant-day share.
		ratio = s.dominantShare
	}
	switch {
	case ratio >= 0.95:
		return 0.35
	case ratio >= 0.80:
		return 0.30
	case ratio >= 0.60:
		return 0.22
	case ratio >= 0.40:
		return 0.12
	}
	return 0
}

func countSpanScore(s vendorStats) float64 {
	spanDays := int(s.lastDue.Sub(s.firstDue).Hours() / 24)
	switch {
	case s.count >= 6 && spanDays >= 150:
		return 0.20
	case s.count >= 4 && spanDays >= 90:
		return 0.17
	case s.count >= 3 && spanDays >= 45:
		return 0.15
	}
	return 0.05
}

func amountStabilityScore(cov float64) float64 {
	switch {
	case cov == 0:
		return 0.15
	case cov > 0 && cov < 0.05:
		return 0.13
	case cov >= 0.05 && cov < 0.10:
		return 0.10
	case cov >= 0.10 && cov < 0.25:
		return 0.07
	}
	return 0
}

func hasStrongSignal(s vendorStats, cov float64) bool {
	if s.stableIBAN {
		return true
	}
	if cov >= 0 && cov < veryStableCoV {
		return true
	}
	return s.keywordHit
}

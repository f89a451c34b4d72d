package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SuggestionState tracks a candidate through the suggestion lifecycle.
type SuggestionState string

const (
	// SuggestionNone means the candidate has not crossed the confidence threshold.
	SuggestionNone SuggestionState = "none"
	// SuggestionSuggested means the candidate is awaiting a user decision.
	SuggestionSuggested SuggestionState = "suggested"
	// SuggestionSnoozed means the user postponed the decision.
	SuggestionSnoozed SuggestionState = "snoozed"
	// SuggestionDismissed means the user rejected the suggestion. Terminal.
	SuggestionDismissed SuggestionState = "dismissed"
	// SuggestionAccepted means the user confirmed the suggestion and a
	// template was created. Terminal.
	SuggestionAccepted SuggestionState = "accepted"
)

// SuggestionCooldown is the minimum gap between repeated suggestions for the
// same candidate.
const SuggestionCooldown = 7 * 24 * time.Hour

// RecurringCandidate is one vendor fingerprint under statistical observation.
// A candidate is mutually exclusive with an active template for the same
// fingerprint.
type RecurringCandidate struct {
	CreatedAt         time.Time
	UpdatedAt         time.Time
	FirstDueDate      time.Time
	LastDueDate       time.Time
	SuggestedAt       *time.Time
	SnoozedUntil      *time.Time
	DecidedAt         *time.Time
	TemplateID        *int64
	Fingerprint       string
	VendorFingerprint string
	DisplayName       string
	Currency          string
	IBAN              string
	Category          Category
	State             SuggestionState
	ID                int64
	DocumentCount     int
	DominantDueDay    int
	DominantDayShare  float64
	DayStdDev         float64
	BucketStability   float64
	AmountMean        float64
	AmountStdDev      float64
	AmountMin         decimal.Decimal
	AmountMax         decimal.Decimal
	Confidence        float64
	StableIBAN        bool
	KeywordHit        bool
	Fallback          bool
}

// SpanDays returns the number of days between the first and last observed due
// dates.
func (c *RecurringCandidate) SpanDays() int {
	return int(c.LastDueDate.Sub(c.FirstDueDate).Hours() / 24)
}

// Suggestable reports whether the candidate may be surfaced to the user at
// now: confident enough, not decided, past any snooze, and outside the
// re-suggestion cooldown.
func (c *RecurringCandidate) Suggestable(now time.Time) bool {
	if c.Confidence < SuggestionThreshold {
		return false
	}
	switch c.State {
	case SuggestionDismissed, SuggestionAccepted:
		return false
	case SuggestionSnoozed:
		return c.SnoozedUntil != nil && now.After(*c.SnoozedUntil)
	case SuggestionSuggested:
		return true
	case SuggestionNone:
		if c.SuggestedAt != nil && now.Sub(*c.SuggestedAt) < SuggestionCooldown {
			return false
		}
		return true
	}
	return false
}

// SuggestionThreshold is the minimum confidence for surfacing a candidate.
const SuggestionThreshold = 0.75

// Suggest moves the candidate to suggested. Re-suggesting after a snooze
// clears the snooze.
func (c *RecurringCandidate) Suggest(now time.Time) error {
	switch c.State {
	case SuggestionDismissed, SuggestionAccepted:
		return fmt.Errorf("cannot suggest candidate in terminal state %q", c.State)
	}
	c.State = SuggestionSuggested
	c.SuggestedAt = &now
	c.SnoozedUntil = nil
	return nil
}

// Withdraw reverts a pending suggestion whose confidence fell back below the
// threshold. SuggestedAt is kept so a quick recovery waits out the cooldown.
func (c *RecurringCandidate) Withdraw() error {
	if c.State != SuggestionSuggested {
		return fmt.Errorf("cannot withdraw candidate in state %q", c.State)
	}
	c.State = SuggestionNone
	return nil
}

// Snooze postpones the suggestion until the given time.
func (c *RecurringCandidate) Snooze(until time.Time) error {
	if c.State != SuggestionSuggested {
		return fmt.Errorf("cannot snooze candidate in state %q", c.State)
	}
	c.State = SuggestionSnoozed
	c.SnoozedUntil = &until
	return nil
}

// Dismiss permanently rejects the suggestion.
func (c *RecurringCandidate) Dismiss(now time.Time) error {
	if c.State == SuggestionAccepted {
		return fmt.Errorf("cannot dismiss an accepted candidate")
	}
	c.State = SuggestionDismissed
	c.DecidedAt = &now
	return nil
}

// Accept confirms the suggestion and links the created template.
func (c *RecurringCandidate) Accept(templateID int64, now time.Time) error {
	if c.State == SuggestionDismissed || c.State == SuggestionAccepted {
		return fmt.Errorf("cannot accept candidate in terminal state %q", c.State)
	}
	c.State = SuggestionAccepted
	c.TemplateID = &templateID
	c.DecidedAt = &now
	return nil
}

package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TemplateSource indicates how a recurring template was created.
type TemplateSource string

const (
	// TemplateSourceManual indicates the user created the template directly.
	TemplateSourceManual TemplateSource = "manual"
	// TemplateSourceDetected indicates the template came from an accepted
	// recurrence suggestion.
	TemplateSourceDetected TemplateSource = "detected"
)

// RecurringTemplate is one confirmed recurring billing relationship. It is
// soft-deactivated, never hard-deleted, so history stays intact.
type RecurringTemplate struct {
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DisplayName       string
	Fingerprint       string // vendor+amount fingerprint
	VendorFingerprint string // vendor-only fingerprint
	Currency          string
	IBAN              string
	Category          Category
	Source            TemplateSource
	ReminderOffsets   []int // days before due date
	ID                int64
	DueDay            int // expected day-of-month, 1..31
	ToleranceDays     int
	MatchedCount      int
	PaidCount         int
	MissedCount       int
	AmountMin         decimal.Decimal
	AmountMax         decimal.Decimal
	Active            bool
}

// DefaultToleranceDays is the matching window applied when a template does
// not specify its own.
const DefaultToleranceDays = 5

// Validate ensures the template has usable data.
func (t *RecurringTemplate) Validate() error {
	if t.DisplayName == "" {
		return fmt.Errorf("display name is required")
	}
	if t.Fingerprint == "" {
		return fmt.Errorf("fingerprint is required")
	}
	if t.DueDay < 1 || t.DueDay > 31 {
		return fmt.Errorf("due day must be between 1 and 31")
	}
	if t.ToleranceDays < 0 {
		return fmt.Errorf("tolerance days must not be negative")
	}
	if t.AmountMin.GreaterThan(t.AmountMax) {
		return fmt.Errorf("amount min must not exceed amount max")
	}
	return nil
}

// ObserveAmount widens the learned amount range to include amount. The range
// only ever expands; a narrower observation leaves it unchanged.
func (t *RecurringTemplate) ObserveAmount(amount decimal.Decimal) {
	if t.AmountMin.IsZero() && t.AmountMax.IsZero() {
		t.AmountMin = amount
		t.AmountMax = amount
		return
	}
	if amount.LessThan(t.AmountMin) {
		t.AmountMin = amount
	}
	if amount.GreaterThan(t.AmountMax) {
		t.AmountMax = amount
	}
}

// AmountInRange reports whether amount falls inside the learned range,
// widened by the given fractional margin on both ends.
func (t *RecurringTemplate) AmountInRange(amount decimal.Decimal, margin float64) bool {
	if t.AmountMin.IsZero() && t.AmountMax.IsZero() {
		return true
	}
	m := decimal.NewFromFloat(margin)
	lo := t.AmountMin.Sub(t.AmountMin.Mul(m))
	hi := t.AmountMax.Add(t.AmountMax.Mul(m))
	return amount.GreaterThanOrEqual(lo) && amount.LessThanOrEqual(hi)
}

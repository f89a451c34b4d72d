package model

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// EstablishedThreshold is the invoice count after which a vendor's pattern is
// trusted for anomaly detection.
const EstablishedThreshold = 3

// InvoicePattern holds per-vendor running statistics over due days and
// amounts. Observe returns a new value; callers persist the result, the
// type itself never touches storage.
type InvoicePattern struct {
	UpdatedAt    time.Time
	Fingerprint  string
	DueDays      []int // every observed due day-of-month; small, recomputed exactly
	InvoiceCount int
	AmountMean   float64
	AmountM2     float64 // Welford sum of squared deviations
	AmountMin    decimal.Decimal
	AmountMax    decimal.Decimal
	HasVariance  bool // false for rows that predate variance tracking
}

// Established reports whether enough invoices were observed to trust the
// statistics.
func (p InvoicePattern) Established() bool {
	return p.InvoiceCount >= EstablishedThreshold
}

// Observe folds one invoice into the pattern and returns the updated
// aggregate. The amount mean and variance use Welford's incremental update.
func (p InvoicePattern) Observe(dueDay int, amount decimal.Decimal, now time.Time) InvoicePattern {
	next := p
	next.DueDays = append(append([]int(nil), p.DueDays...), dueDay)
	next.InvoiceCount = p.InvoiceCount + 1
	next.UpdatedAt = now

	a, _ := amount.Float64()
	if p.InvoiceCount == 0 {
		next.AmountMean = a
		next.AmountM2 = 0
		next.AmountMin = amount
		next.AmountMax = amount
		next.HasVariance = true
		return next
	}

	delta := a - p.AmountMean
	next.AmountMean = p.AmountMean + delta/float64(next.InvoiceCount)
	next.AmountM2 = p.AmountM2 + delta*(a-next.AmountMean)

	if amount.LessThan(p.AmountMin) {
		next.AmountMin = amount
	}
	if amount.GreaterThan(p.AmountMax) {
		next.AmountMax = amount
	}
	return next
}

// AmountStdDev returns the sample standard deviation of observed amounts.
// Rows that predate variance tracking fall back to the legacy range-based
// estimate (max−min)/4.
func (p InvoicePattern) AmountStdDev() float64 {
	if p.InvoiceCount < 2 {
		return 0
	}
	if p.HasVariance {
		return math.Sqrt(p.AmountM2 / float64(p.InvoiceCount-1))
	}
	spread, _ := p.AmountMax.Sub(p.AmountMin).Float64()
	return spread / 4
}

// DayMedian returns the median observed due day, or 0 with ok=false when no
// days were observed.
func (p InvoicePattern) DayMedian() (float64, bool) {
	if len(p.DueDays) == 0 {
		return 0, false
	}
	days := append([]int(nil), p.DueDays...)
	sort.Ints(days)
	n := len(days)
	if n%2 == 1 {
		return float64(days[n/2]), true
	}
	return float64(days[n/2-1]+days[n/2]) / 2, true
}

// DayStdDev returns the sample standard deviation of observed due days.
func (p InvoicePattern) DayStdDev() float64 {
	n := len(p.DueDays)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, d := range p.DueDays {
		sum += float64(d)
	}
	mean := sum / float64(n)
	var sq float64
	for _, d := range p.DueDays {
		diff := float64(d) - mean
		sq += diff * diff
	}
	return math.Sqrt(sq / float64(n-1))
}

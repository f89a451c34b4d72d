// Package recurrence detects recurring billing relationships, schedules
// expected payment instances from confirmed templates, and reconciles
// arriving documents against them.
package recurrence

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paperledger/paperledger/internal/banking"
	"github.com/paperledger/paperledger/internal/common"
	"github.com/paperledger/paperledger/internal/identity"
	"github.com/paperledger/paperledger/internal/model"
)

// dayBucketRadius is the window around the dominant due day inside which a
// document still counts as on-schedule. Weekend and holiday shifts move due
// dates a few days without breaking the pattern.
const dayBucketRadius = 3

// vendorStats summarizes one fingerprint's document history for scoring.
type vendorStats struct {
	displayName     string
	currency        string
	iban            string
	category        model.Category
	amountMin       decimal.Decimal
	amountMax       decimal.Decimal
	firstDue        time.Time
	lastDue         time.Time
	count           int
	dominantDay     int
	dominantShare   float64
	dayStdDev       float64
	bucketStability float64
	amountMean      float64
	amountStdDev    float64
	stableIBAN      bool
	keywordHit      bool
	fallback        bool
}

// computeStats aggregates a vendor's documents. Fewer than two documents is
// ErrInsufficientData; a single observation carries no pattern.
func computeStats(docs []model.Document) (vendorStats, error) {
	if len(docs) < 2 {
		return vendorStats{}, fmt.Errorf("%w: %d document(s) for pattern analysis", common.ErrInsufficientData, len(docs))
	}

	sorted := append([]model.Document(nil), docs...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].DueDate.Before(sorted[j].DueDate)
	})

	stats := vendorStats{
		displayName: sorted[len(sorted)-1].VendorName,
		currency:    sorted[len(sorted)-1].Currency,
		category:    sorted[len(sorted)-1].Category,
		count:       len(sorted),
		firstDue:    sorted[0].DueDate,
		lastDue:     sorted[len(sorted)-1].DueDate,
		amountMin:   sorted[0].Amount,
		amountMax:   sorted[0].Amount,
	}

	days := make([]int, 0, len(sorted))
	ibans := make(map[string]bool)
	var amountSum float64

	for _, doc := range sorted {
		days = append(days, doc.DueDay())
		if doc.BankAccount != "" {
			ibans[banking.NormalizeIBAN(doc.BankAccount)] = true
		}
		if doc.Amount.LessThan(stats.amountMin) {
			stats.amountMin = doc.Amount
		}
		if doc.Amount.GreaterThan(stats.amountMax) {
			stats.amountMax = doc.Amount
		}
		a, _ := doc.Amount.Float64()
		amountSum += a
		if doc.Fallback {
			stats.fallback = true
		}
		if identity.HasRecurringKeyword(doc.VendorName, doc.RawText) {
			stats.keywordHit = true
		}
	}

	stats.dominantDay, stats.dominantShare = dominantDueDay(days)
	stats.bucketStability = bucketStability(days, stats.dominantDay)
	stats.dayStdDev = stdDevInts(days)

	stats.amountMean = amountSum / float64(len(sorted))
	var sq float64
	for _, doc := range sorted {
		a, _ := doc.Amount.Float64()
		diff := a - stats.amountMean
		sq += diff * diff
	}
	if len(sorted) > 1 {
		stats.amountStdDev = math.Sqrt(sq / float64(len(sorted)-1))
	}

	if len(ibans) == 1 {
		stats.stableIBAN = true
		for iban := range ibans {
			stats.iban = iban
		}
	}
	return stats, nil
}

// dominantDueDay returns the most frequent due day and the share of
// documents falling exactly on it.
func dominantDueDay(days []int) (int, float64) {
	counts := make(map[int]int)
	for _, d := range days {
		counts[d]++
	}
	best, bestCount := 0, 0
	for d, c := range counts {
		if c > bestCount || (c == bestCount && d < best) {
			best, bestCount = d, c
		}
	}
	if len(days) == 0 {
		return 0, 0
	}
	return best, float64(bestCount) / float64(len(days))
}

// bucketStability returns the fraction of due days within dayBucketRadius of
// the dominant day, with month wraparound so day 31 and day 1 count as
// adjacent.
func bucketStability(days []int, dominant int) float64 {
	if len(days) == 0 || dominant == 0 {
		return 0
	}
	inBucket := 0
	for _, d := range days {
		if circularDayDistance(d, dominant) <= dayBucketRadius {
			inBucket++
		}
	}
	return float64(inBucket) / float64(len(days))
}

// circularDayDistance measures day-of-month distance on a 31-day cycle.
func circularDayDistance(a, b int) int {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	if wrapped := 31 - diff; wrapped < diff {
		return wrapped
	}
	return diff
}

// coefficientOfVariation returns stddev/mean, or -1 when the mean is zero.
func coefficientOfVariation(mean, stdDev float64) float64 {
	if mean == 0 {
		return -1
	}
	return math.Abs(stdDev / mean)
}

func stdDevInts(values []int) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	mean := sum / float64(n)
	var sq float64
	for _, v := range values {
		diff := float64(v) - mean
		sq += diff * diff
	}
	return math.Sqrt(sq / float64(n-1))
}

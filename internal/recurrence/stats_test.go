package recurrence

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperledger/paperledger/internal/common"
	"github.com/paperledger/paperledger/internal/model"
)

func monthlyDocs(vendor string, iban string, count int, day int, amount string) []model.Document {
	docs := make([]model.Document, count)
	start := time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC)
	for i := range docs {
		docs[i] = model.Document{
			ID:          vendor + "-" + start.AddDate(0, i, 0).Format("2006-01"),
			VendorName:  vendor,
			Currency:    "EUR",
			Category:    model.CategoryUtility,
			Amount:      decimal.RequireFromString(amount),
			DueDate:     start.AddDate(0, i, 0),
			BankAccount: iban,
			Status:      model.DocumentStatusScheduled,
		}
	}
	return docs
}

func TestComputeStats(t *testing.T) {
	t.Run("fewer than two documents is no pattern", func(t *testing.T) {
		_, err := computeStats(monthlyDocs("PowerCo", "DE89370400440532013000", 1, 15, "89.90"))
		assert.ErrorIs(t, err, common.ErrInsufficientData)
	})

	t.Run("steady monthly vendor", func(t *testing.T) {
		stats, err := computeStats(monthlyDocs("PowerCo Energy", "DE89370400440532013000", 6, 15, "89.90"))
		require.NoError(t, err)

		assert.Equal(t, 6, stats.count)
		assert.Equal(t, 15, stats.dominantDay)
		assert.Equal(t, 1.0, stats.dominantShare)
		assert.Equal(t, 1.0, stats.bucketStability)
		assert.True(t, stats.stableIBAN)
		assert.Equal(t, "DE89370400440532013000", stats.iban)
		assert.InDelta(t, 89.90, stats.amountMean, 0.001)
		assert.InDelta(t, 0, stats.amountStdDev, 1e-9)
	})

	t.Run("changing iban is not stable", func(t *testing.T) {
		docs := monthlyDocs("PowerCo", "DE89370400440532013000", 3, 15, "89.90")
		docs[2].BankAccount = "GB29NWBK60161331926819"

		stats, err := computeStats(docs)
		require.NoError(t, err)
		assert.False(t, stats.stableIBAN)
		assert.Empty(t, stats.iban)
	})

	t.Run("weekend shifts stay inside the bucket", func(t *testing.T) {
		docs := monthlyDocs("PowerCo", "", 4, 15, "89.90")
		docs[1].DueDate = docs[1].DueDate.AddDate(0, 0, 2)  // 17th
		docs[3].DueDate = docs[3].DueDate.AddDate(0, 0, -3) // 12th

		stats, err := computeStats(docs)
		require.NoError(t, err)
		assert.Equal(t, 15, stats.dominantDay)
		assert.InDelta(t, 0.5, stats.dominantShare, 0.001)
		assert.Equal(t, 1.0, stats.bucketStability)
	})
}

func TestCircularDayDistance(t *testing.T) {
	assert.Equal(t, 0, circularDayDistance(15, 15))
	assert.Equal(t, 3, circularDayDistance(12, 15))
	// Month-end wraps: the 31st and the 1st are adjacent.
	assert.Equal(t, 1, circularDayDistance(31, 1))
	assert.Equal(t, 1, circularDayDistance(1, 31))
	assert.Equal(t, 4, circularDayDistance(29, 2))
}

func TestCoefficientOfVariation(t *testing.T) {
	assert.Equal(t, -1.0, coefficientOfVariation(0, 5))
	assert.InDelta(t, 0.1, coefficientOfVariation(100, 10), 0.001)
	assert.InDelta(t, 0.1, coefficientOfVariation(-100, 10), 0.001)
}

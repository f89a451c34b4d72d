package banking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperledger/paperledger/internal/model"
)

// memoryHistoryStore is an in-memory HistoryStore for ledger tests.
type memoryHistoryStore struct {
	entries map[string][]model.BankAccountHistory
	nextID  int64
}

func newMemoryHistoryStore() *memoryHistoryStore {
	return &memoryHistoryStore{entries: make(map[string][]model.BankAccountHistory)}
}

func (m *memoryHistoryStore) GetBankAccountHistory(_ context.Context, fingerprint string) ([]model.BankAccountHistory, error) {
	out := make([]model.BankAccountHistory, len(m.entries[fingerprint]))
	copy(out, m.entries[fingerprint])
	return out, nil
}

func (m *memoryHistoryStore) SaveBankAccountHistory(_ context.Context, history *model.BankAccountHistory) error {
	if history.ID == 0 {
		m.nextID++
		history.ID = m.nextID
		m.entries[history.Fingerprint] = append(m.entries[history.Fingerprint], *history)
		return nil
	}
	for i, e := range m.entries[history.Fingerprint] {
		if e.ID == history.ID {
			m.entries[history.Fingerprint][i] = *history
			return nil
		}
	}
	return nil
}

func TestLedger_Observe(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	t.Run("first sighting seeds the history as primary", func(t *testing.T) {
		ledger := NewLedger(newMemoryHistoryStore())

		obs, err := ledger.Observe(ctx, "vendor-a", "DE89 3704 0044 0532 0130 00", now)
		require.NoError(t, err)
		assert.True(t, obs.FirstEver)
		assert.False(t, obs.Changed)
		assert.True(t, obs.ValidFormat)
		assert.True(t, obs.Entry.Primary)
		assert.Equal(t, "DE89370400440532013000", obs.Entry.IBAN)
		assert.Equal(t, 1, obs.Entry.UseCount)
	})

	t.Run("repeat sighting bumps usage", func(t *testing.T) {
		ledger := NewLedger(newMemoryHistoryStore())

		_, err := ledger.Observe(ctx, "vendor-a", "DE89370400440532013000", now)
		require.NoError(t, err)
		obs, err := ledger.Observe(ctx, "vendor-a", "de89 3704 0044 0532 0130 00", now.AddDate(0, 1, 0))
		require.NoError(t, err)

		assert.False(t, obs.FirstEver)
		assert.False(t, obs.Changed)
		assert.Equal(t, 2, obs.Entry.UseCount)
	})

	t.Run("new account for known vendor is a change", func(t *testing.T) {
		ledger := NewLedger(newMemoryHistoryStore())

		_, err := ledger.Observe(ctx, "vendor-a", "DE89370400440532013000", now)
		require.NoError(t, err)
		obs, err := ledger.Observe(ctx, "vendor-a", "GB29NWBK60161331926819", now.AddDate(0, 1, 0))
		require.NoError(t, err)

		assert.True(t, obs.Changed)
		assert.False(t, obs.FirstEver)
		require.NotNil(t, obs.Previous)
		assert.Equal(t, "DE89370400440532013000", obs.Previous.IBAN)
		assert.False(t, obs.Entry.Primary)
	})

	t.Run("reverting to a known account is not a change", func(t *testing.T) {
		ledger := NewLedger(newMemoryHistoryStore())

		_, err := ledger.Observe(ctx, "vendor-a", "DE89370400440532013000", now)
		require.NoError(t, err)
		_, err = ledger.Observe(ctx, "vendor-a", "GB29NWBK60161331926819", now.AddDate(0, 1, 0))
		require.NoError(t, err)
		obs, err := ledger.Observe(ctx, "vendor-a", "DE89370400440532013000", now.AddDate(0, 2, 0))
		require.NoError(t, err)

		assert.False(t, obs.Changed)
		assert.False(t, obs.FirstEver)
		assert.Equal(t, 2, obs.Entry.UseCount)
	})

	t.Run("vendors do not share history", func(t *testing.T) {
		ledger := NewLedger(newMemoryHistoryStore())

		_, err := ledger.Observe(ctx, "vendor-a", "DE89370400440532013000", now)
		require.NoError(t, err)
		obs, err := ledger.Observe(ctx, "vendor-b", "DE89370400440532013000", now)
		require.NoError(t, err)

		assert.True(t, obs.FirstEver)
		assert.False(t, obs.Changed)
	})

	t.Run("invalid format is still recorded", func(t *testing.T) {
		ledger := NewLedger(newMemoryHistoryStore())

		obs, err := ledger.Observe(ctx, "vendor-a", "NOT-AN-IBAN-123", now)
		require.NoError(t, err)
		assert.False(t, obs.ValidFormat)
		assert.NotNil(t, obs.Entry)
	})

	t.Run("empty account is rejected", func(t *testing.T) {
		ledger := NewLedger(newMemoryHistoryStore())

		_, err := ledger.Observe(ctx, "vendor-a", "  ", now)
		assert.Error(t, err)
	})
}

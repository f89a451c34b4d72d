// Package pattern maintains per-vendor invoice statistics: running due-day
// and amount aggregates updated incrementally as documents arrive.
package pattern

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paperledger/paperledger/internal/common"
	"github.com/paperledger/paperledger/internal/model"
)

// Store is the slice of storage the tracker needs.
type Store interface {
	GetInvoicePattern(ctx context.Context, fingerprint string) (*model.InvoicePattern, error)
	SaveInvoicePattern(ctx context.Context, pattern *model.InvoicePattern) error
}

// Tracker loads, updates, and persists invoice patterns.
type Tracker struct {
	store Store
}

// NewTracker creates a tracker over the given store.
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// Get returns the vendor's pattern. The second return is false when no
// pattern exists yet; sparse data is the normal case, not an error.
func (t *Tracker) Get(ctx context.Context, fingerprint string) (model.InvoicePattern, bool, error) {
	p, err := t.store.GetInvoicePattern(ctx, fingerprint)
	if errors.Is(err, common.ErrNotFound) {
		return model.InvoicePattern{Fingerprint: fingerprint}, false, nil
	}
	if err != nil {
		return model.InvoicePattern{}, false, fmt.Errorf("failed to load invoice pattern: %w", err)
	}
	return *p, true, nil
}

// Observe folds one document into the vendor's pattern and persists the
// updated aggregate.
func (t *Tracker) Observe(ctx context.Context, fingerprint string, dueDay int, amount decimal.Decimal, now time.Time) (model.InvoicePattern, error) {
	current, _, err := t.Get(ctx, fingerprint)
	if err != nil {
		return model.InvoicePattern{}, err
	}

	next := current.Observe(dueDay, amount, now)
	if err := t.store.SaveInvoicePattern(ctx, &next); err != nil {
		return model.InvoicePattern{}, fmt.Errorf("failed to save invoice pattern: %w", err)
	}

	slog.Debug("updated invoice pattern",
		"fingerprint", fingerprint,
		"count", next.InvoiceCount,
		"established", next.Established())
	return next, nil
}

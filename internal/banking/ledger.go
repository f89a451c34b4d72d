package banking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/paperledger/paperledger/internal/model"
)

// HistoryStore is the slice of storage the ledger needs.
type HistoryStore interface {
	GetBankAccountHistory(ctx context.Context, fingerprint string) ([]model.BankAccountHistory, error)
	SaveBankAccountHistory(ctx context.Context, history *model.BankAccountHistory) error
}

// Ledger tracks which bank accounts each vendor has billed from.
type Ledger struct {
	store HistoryStore
}

// NewLedger creates a ledger over the given store.
func NewLedger(store HistoryStore) *Ledger {
	return &Ledger{store: store}
}

// Observation is the outcome of recording one account sighting.
type Observation struct {
	Entry       *model.BankAccountHistory
	Previous    *model.BankAccountHistory // primary entry before this sighting, when the account changed
	FirstEver   bool                      // vendor had no account history at all
	Changed     bool                      // vendor has history and this account is new
	ValidFormat bool
}

// Observe records that a vendor billed from an account. A first-ever account
// seeds the history as primary; a known account just bumps its usage; a new
// account for a vendor with existing history is flagged as a change.
func (l *Ledger) Observe(ctx context.Context, fingerprint, iban string, now time.Time) (*Observation, error) {
	normalized := NormalizeIBAN(iban)
	if normalized == "" {
		return nil, fmt.Errorf("empty bank account")
	}

	entries, err := l.store.GetBankAccountHistory(ctx, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to load bank account history: %w", err)
	}

	obs := &Observation{ValidFormat: ValidateIBAN(normalized)}

	for idx := range entries {
		if entries[idx].IBAN == normalized {
			entries[idx].RecordUse(now)
			if err := l.store.SaveBankAccountHistory(ctx, &entries[idx]); err != nil {
				return nil, fmt.Errorf("failed to update bank account history: %w", err)
			}
			obs.Entry = &entries[idx]
			return obs, nil
		}
	}

	entry := &model.BankAccountHistory{
		Fingerprint:  fingerprint,
		IBAN:         normalized,
		FirstSeen:    now,
		LastSeen:     now,
		UseCount:     1,
		Primary:      len(entries) == 0,
		Verification: model.VerificationUnverified,
	}
	if len(entries) == 0 {
		obs.FirstEver = true
	} else {
		obs.Changed = true
		for idx := range entries {
			if entries[idx].Primary {
				obs.Previous = &entries[idx]
				break
			}
		}
		if obs.Previous == nil {
			obs.Previous = &entries[0]
		}
	}

	if err := l.store.SaveBankAccountHistory(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to save bank account history: %w", err)
	}
	obs.Entry = entry

	slog.Debug("recorded bank account sighting",
		"fingerprint", fingerprint,
		"account", model.MaskAccount(normalized),
		"first_ever", obs.FirstEver,
		"changed", obs.Changed)
	return obs, nil
}

// SetVerification applies a verification decision to one account entry.
func (l *Ledger) SetVerification(ctx context.Context, entry *model.BankAccountHistory, status model.VerificationStatus) error {
	if err := entry.SetVerification(status); err != nil {
		return err
	}
	if err := l.store.SaveBankAccountHistory(ctx, entry); err != nil {
		return fmt.Errorf("failed to save verification status: %w", err)
	}
	slog.Info("updated bank account verification",
		"fingerprint", entry.Fingerprint,
		"account", entry.MaskedIBAN(),
		"status", status)
	return nil
}

package model

import (
	"fmt"
	"time"
)

// VerificationStatus tracks trust in a vendor's bank account.
type VerificationStatus string

const (
	// VerificationUnverified is the initial state for a newly seen account.
	VerificationUnverified VerificationStatus = "unverified"
	// VerificationVerified marks an account the user confirmed as genuine.
	VerificationVerified VerificationStatus = "verified"
	// VerificationSuspicious marks an account flagged for review.
	VerificationSuspicious VerificationStatus = "suspicious"
	// VerificationFraudulent marks an account the user confirmed as fraud.
	VerificationFraudulent VerificationStatus = "fraudulent"
)

// BankAccountHistory is one (vendor fingerprint, normalized IBAN) pair with
// usage statistics and a verification state.
type BankAccountHistory struct {
	FirstSeen    time.Time
	LastSeen     time.Time
	Fingerprint  string
	IBAN         string // normalized
	Verification VerificationStatus
	ID           int64
	UseCount     int
	Primary      bool
}

// RecordUse bumps the usage counters for a repeat sighting.
func (h *BankAccountHistory) RecordUse(now time.Time) {
	h.UseCount++
	h.LastSeen = now
}

// SetVerification applies a verification decision.
func (h *BankAccountHistory) SetVerification(status VerificationStatus) error {
	switch status {
	case VerificationUnverified, VerificationVerified, VerificationSuspicious, VerificationFraudulent:
		h.Verification = status
		return nil
	}
	return fmt.Errorf("unknown verification status %q", status)
}

// MaskedIBAN returns the IBAN with all but the first four and last four
// characters replaced, for anomaly context payloads and logs.
func (h *BankAccountHistory) MaskedIBAN() string {
	return MaskAccount(h.IBAN)
}

// MaskAccount masks an account number for display, keeping the country code
// and the last four characters.
func MaskAccount(account string) string {
	if len(account) <= 8 {
		return account
	}
	masked := make([]byte, len(account))
	for i := range masked {
		if i < 4 || i >= len(account)-4 {
			masked[i] = account[i]
		} else {
			masked[i] = '*'
		}
	}
	return string(masked)
}

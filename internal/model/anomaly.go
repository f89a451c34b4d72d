package model

import (
	"fmt"
	"time"
)

// AnomalyType enumerates the irregularities the engine detects.
type AnomalyType string

const (
	// AnomalyBankAccountChanged fires when a vendor with account history
	// bills from a previously unseen IBAN.
	AnomalyBankAccountChanged AnomalyType = "bankAccountChanged"
	// AnomalyVendorImpersonation fires when a vendor name is suspiciously
	// close to a known vendor with different identifiers.
	AnomalyVendorImpersonation AnomalyType = "vendorImpersonation"
	// AnomalyUnusualTiming fires when a due day falls far outside the
	// vendor's established window.
	AnomalyUnusualTiming AnomalyType = "unusualTimingPattern"
	// AnomalyAmountDeviation fires when an amount deviates strongly from the
	// vendor's established mean.
	AnomalyAmountDeviation AnomalyType = "amountDeviation"
	// AnomalyNewVendor notes the first document ever seen from a vendor.
	AnomalyNewVendor AnomalyType = "newVendor"
)

// Severity ranks how urgently an anomaly needs attention.
type Severity string

const (
	// SeverityCritical marks likely fraud.
	SeverityCritical Severity = "critical"
	// SeverityWarning marks deviations worth reviewing.
	SeverityWarning Severity = "warning"
	// SeverityInfo marks notes surfaced for awareness only.
	SeverityInfo Severity = "info"
)

// Resolution tracks the user's decision on an anomaly.
type Resolution string

const (
	// ResolutionUnresolved is the initial state.
	ResolutionUnresolved Resolution = "unresolved"
	// ResolutionDismissed means the user waved the anomaly off.
	ResolutionDismissed Resolution = "dismissed"
	// ResolutionConfirmedSafe means the user verified the document is fine.
	ResolutionConfirmedSafe Resolution = "confirmedSafe"
	// ResolutionConfirmedFraud means the user confirmed the document is fraudulent.
	ResolutionConfirmedFraud Resolution = "confirmedFraud"
	// ResolutionAuto means a later observation resolved the anomaly.
	ResolutionAuto Resolution = "autoResolved"
)

// DetectorVersion is stamped on every anomaly so records can be re-evaluated
// when detection logic changes.
const DetectorVersion = 2

// Anomaly is one detected irregularity on a document. At most one anomaly
// exists per (document, type) pair.
type Anomaly struct {
	DetectedAt  time.Time
	ResolvedAt  *time.Time
	Context     map[string]any // type-specific payload, stored as JSON
	ID          string
	DocumentID  string
	Fingerprint string
	Type        AnomalyType
	Severity    Severity
	Resolution  Resolution
	Version     int
}

// Resolve applies a user or automatic resolution. Only unresolved anomalies
// may transition.
func (a *Anomaly) Resolve(resolution Resolution, now time.Time) error {
	if a.Resolution != ResolutionUnresolved {
		return fmt.Errorf("anomaly already resolved as %q", a.Resolution)
	}
	switch resolution {
	case ResolutionDismissed, ResolutionConfirmedSafe, ResolutionConfirmedFraud, ResolutionAuto:
		a.Resolution = resolution
		a.ResolvedAt = &now
		return nil
	}
	return fmt.Errorf("invalid resolution %q", resolution)
}

// InsightsSummary aggregates anomaly counts over a date range for dashboards.
type InsightsSummary struct {
	BySeverity   map[Severity]int
	ByType       map[AnomalyType]int
	ByResolution map[Resolution]int
	From         time.Time
	To           time.Time
	Total        int
}

package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// InstanceStatus tracks one expected billing occurrence through its lifecycle.
type InstanceStatus string

const (
	// InstanceStatusExpected marks a generated, not yet matched instance.
	InstanceStatusExpected InstanceStatus = "expected"
	// InstanceStatusMatched marks an instance linked to an arrived document.
	InstanceStatusMatched InstanceStatus = "matched"
	// InstanceStatusPaid marks an instance whose document was paid.
	InstanceStatusPaid InstanceStatus = "paid"
	// InstanceStatusMissed marks an instance whose deadline passed unmatched.
	InstanceStatusMissed InstanceStatus = "missed"
	// InstanceStatusCancelled marks an explicitly removed instance.
	InstanceStatusCancelled InstanceStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s InstanceStatus) Terminal() bool {
	return s == InstanceStatusPaid || s == InstanceStatusMissed || s == InstanceStatusCancelled
}

// RecurringInstance is one expected billing period under a template. Exactly
// one instance exists per (template, period key) pair.
type RecurringInstance struct {
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DueDate        time.Time
	PeriodKey      string // year-month, e.g. "2026-03"
	DocumentID     *string
	Status         InstanceStatus
	ID             int64
	TemplateID     int64
	ExpectedAmount decimal.Decimal
	Historical     bool // created retroactively when linking pre-existing documents
}

// PeriodKeyFor returns the canonical period key for a due date.
func PeriodKeyFor(t time.Time) string {
	return t.Format("2006-01")
}

// Match links the instance to a document and moves it to matched, or straight
// to paid when the document is already settled. Returns the side-effect
// intents the transition requires.
func (i *RecurringInstance) Match(documentID string, documentPaid bool) ([]Intent, error) {
	if i.Status.Terminal() && i.Status != InstanceStatusPaid {
		return nil, fmt.Errorf("cannot match instance in status %q", i.Status)
	}
	if i.DocumentID != nil && *i.DocumentID != documentID {
		return nil, fmt.Errorf("instance already linked to document %s", *i.DocumentID)
	}
	i.DocumentID = &documentID
	if documentPaid {
		i.Status = InstanceStatusPaid
	} else {
		i.Status = InstanceStatusMatched
	}
	return []Intent{{
		Kind:       IntentCancelReminder,
		TemplateID: i.TemplateID,
		InstanceID: i.ID,
		PeriodKey:  i.PeriodKey,
	}}, nil
}

// MarkPaid moves a matched instance to paid.
func (i *RecurringInstance) MarkPaid() ([]Intent, error) {
	if i.Status != InstanceStatusMatched && i.Status != InstanceStatusExpected {
		return nil, fmt.Errorf("cannot mark instance paid from status %q", i.Status)
	}
	i.Status = InstanceStatusPaid
	return []Intent{{
		Kind:       IntentCancelReminder,
		TemplateID: i.TemplateID,
		InstanceID: i.ID,
		PeriodKey:  i.PeriodKey,
	}}, nil
}

// MarkMissed moves an expected instance to missed once its deadline has
// passed unmatched.
func (i *RecurringInstance) MarkMissed() ([]Intent, error) {
	if i.Status != InstanceStatusExpected {
		return nil, fmt.Errorf("cannot mark instance missed from status %q", i.Status)
	}
	i.Status = InstanceStatusMissed
	return []Intent{{
		Kind:       IntentCancelReminder,
		TemplateID: i.TemplateID,
		InstanceID: i.ID,
		PeriodKey:  i.PeriodKey,
	}}, nil
}

// Cancel moves any non-terminal instance to cancelled.
func (i *RecurringInstance) Cancel() ([]Intent, error) {
	if i.Status.Terminal() {
		return nil, fmt.Errorf("cannot cancel instance in status %q", i.Status)
	}
	i.Status = InstanceStatusCancelled
	return []Intent{
		{Kind: IntentCancelReminder, TemplateID: i.TemplateID, InstanceID: i.ID, PeriodKey: i.PeriodKey},
		{Kind: IntentRemoveCalendarEvent, TemplateID: i.TemplateID, InstanceID: i.ID, PeriodKey: i.PeriodKey},
	}, nil
}

// Overdue reports whether an expected instance's due date plus tolerance has
// passed as of now.
func (i *RecurringInstance) Overdue(now time.Time, toleranceDays int) bool {
	if i.Status != InstanceStatusExpected {
		return false
	}
	return now.After(i.DueDate.AddDate(0, 0, toleranceDays))
}

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DocumentStatus tracks a document through its lifecycle.
type DocumentStatus string

const (
	// DocumentStatusDraft marks a document still being extracted or edited.
	DocumentStatusDraft DocumentStatus = "draft"
	// DocumentStatusScheduled marks a document queued for payment.
	DocumentStatusScheduled DocumentStatus = "scheduled"
	// DocumentStatusPaid marks a settled document.
	DocumentStatusPaid DocumentStatus = "paid"
	// DocumentStatusArchived marks a document removed from active views.
	DocumentStatusArchived DocumentStatus = "archived"
)

// Document is a finalized invoice or bill produced by the extraction layer.
// This package only reads and annotates it; the extraction and storage layers
// own its creation.
type Document struct {
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DueDate     time.Time
	ID          string
	VendorName  string
	TaxID       string
	Currency    string
	BankAccount string
	RawText     string // OCR text snippet, used for keyword classification
	Fingerprint string // vendor+amount fingerprint
	VendorKey   string // vendor-only fingerprint, groups all products
	Category    Category
	Status      DocumentStatus
	TemplateID  *int64
	InstanceID  *int64
	Amount      decimal.Decimal
	Fallback    bool // fingerprint derived without a tax id
}

// Finalized reports whether the document is past the draft stage and
// therefore eligible for pattern and anomaly analysis.
func (d *Document) Finalized() bool {
	return d.Status != DocumentStatusDraft
}

// DueDay returns the day-of-month of the due date.
func (d *Document) DueDay() int {
	return d.DueDate.Day()
}

// Package service defines the interfaces between the analysis engine and the
// persistence layer.
package service

import (
	"context"
	"time"

	"github.com/paperledger/paperledger/internal/model"
)

// AnomalyFilter defines filtering options for anomaly queries.
type AnomalyFilter struct {
	Since       *time.Time
	Until       *time.Time
	Severity    model.Severity
	Resolution  model.Resolution
	Fingerprint string
}

// Store defines the data operations shared by direct storage access and
// transactions.
type Store interface {
	// Document operations
	SaveDocument(ctx context.Context, doc *model.Document) error
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	GetDocumentsByFingerprint(ctx context.Context, fingerprint string) ([]model.Document, error)
	CountDocumentsByVendor(ctx context.Context, vendorFingerprint string) (int, error)
	ListFingerprints(ctx context.Context) ([]string, error)

	// Recurring template operations
	SaveTemplate(ctx context.Context, template *model.RecurringTemplate) error
	GetTemplate(ctx context.Context, id int64) (*model.RecurringTemplate, error)
	GetActiveTemplateByFingerprint(ctx context.Context, fingerprint string) (*model.RecurringTemplate, error)
	GetTemplates(ctx context.Context, activeOnly bool) ([]model.RecurringTemplate, error)

	// Recurring instance operations
	SaveInstance(ctx context.Context, instance *model.RecurringInstance) error
	GetInstance(ctx context.Context, id int64) (*model.RecurringInstance, error)
	GetInstancesByTemplate(ctx context.Context, templateID int64) ([]model.RecurringInstance, error)
	GetInstanceByPeriod(ctx context.Context, templateID int64, periodKey string) (*model.RecurringInstance, error)
	GetInstancesByStatus(ctx context.Context, status model.InstanceStatus) ([]model.RecurringInstance, error)
	DeleteInstancesByStatus(ctx context.Context, templateID int64, statuses ...model.InstanceStatus) error

	// Recurring candidate operations
	SaveCandidate(ctx context.Context, candidate *model.RecurringCandidate) error
	GetCandidate(ctx context.Context, id int64) (*model.RecurringCandidate, error)
	GetCandidateByFingerprint(ctx context.Context, fingerprint string) (*model.RecurringCandidate, error)
	GetCandidates(ctx context.Context) ([]model.RecurringCandidate, error)

	// Bank account history operations
	SaveBankAccountHistory(ctx context.Context, history *model.BankAccountHistory) error
	GetBankAccountHistory(ctx context.Context, fingerprint string) ([]model.BankAccountHistory, error)

	// Invoice pattern operations
	SaveInvoicePattern(ctx context.Context, pattern *model.InvoicePattern) error
	GetInvoicePattern(ctx context.Context, fingerprint string) (*model.InvoicePattern, error)

	// Anomaly operations
	SaveAnomaly(ctx context.Context, anomaly *model.Anomaly) error
	ResolveAnomaly(ctx context.Context, id string, resolution model.Resolution, resolvedAt time.Time) error
	GetAnomaly(ctx context.Context, id string) (*model.Anomaly, error)
	GetAnomaliesByDocument(ctx context.Context, documentID string) ([]model.Anomaly, error)
	GetAnomalies(ctx context.Context, filter AnomalyFilter) ([]model.Anomaly, error)
}

// Storage is the full persistence contract.
type Storage interface {
	Store

	BeginTx(ctx context.Context) (Transaction, error)
	Migrate(ctx context.Context) error
	Close() error
}

// Transaction wraps a set of store operations that commit atomically.
type Transaction interface {
	Store

	Commit() error
	Rollback() error
}

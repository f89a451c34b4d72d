package anomaly

import (
	"context"
	"fmt"
	"time"

	"github.com/paperledger/paperledger/internal/model"
	"github.com/paperledger/paperledger/internal/service"
)

// Insights aggregates anomalies over a date range for dashboards.
func (e *Engine) Insights(ctx context.Context, from, to time.Time) (*model.InsightsSummary, error) {
	anomalies, err := e.store.GetAnomalies(ctx, service.AnomalyFilter{Since: &from, Until: &to})
	if err != nil {
		return nil, fmt.Errorf("failed to load anomalies: %w", err)
	}
	return Summarize(anomalies, from, to), nil
}

// Summarize counts anomalies by severity, type, and resolution.
func Summarize(anomalies []model.Anomaly, from, to time.Time) *model.InsightsSummary {
	summary := &model.InsightsSummary{
		From:         from,
		To:           to,
		Total:        len(anomalies),
		BySeverity:   make(map[model.Severity]int),
		ByType:       make(map[model.AnomalyType]int),
		ByResolution: make(map[model.Resolution]int),
	}
	for _, a := range anomalies {
		summary.BySeverity[a.Severity]++
		summary.ByType[a.Type]++
		summary.ByResolution[a.Resolution]++
	}
	return summary
}

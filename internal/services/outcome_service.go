package services

import (
	"context"
	"log/slog"

	"schemapipe/internal/outcome"
	"schemapipe/pkg/contracts/domain"
)

const (
	defaultOutcomeLimit = 50
	maxOutcomeLimit     = 500
)

// OutcomeService reads the audit trail of processed files.
type OutcomeService struct {
	audit  *outcome.AuditLog
	logger *slog.Logger
}

// NewOutcomeService creates an outcome service over the audit log.
func NewOutcomeService(audit *outcome.AuditLog, logger *slog.Logger) *OutcomeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutcomeService{
		audit:  audit,
		logger: logger.With(slog.String("service", "outcomes")),
	}
}

// Recent returns the most recent outcome records, newest first. The limit
// defaults to 50 and is capped at 500.
func (s *OutcomeService) Recent(ctx context.Context, limit int) ([]domain.OutcomeRecord, error) {
	if limit <= 0 {
		limit = defaultOutcomeLimit
	}
	if limit > maxOutcomeLimit {
		limit = maxOutcomeLimit
	}
	return s.audit.Recent(limit)
}

// OutcomeSummary aggregates recent outcome records.
type OutcomeSummary struct {
	Total       int `json:"total"`
	Archived    int `json:"archived"`
	Quarantined int `json:"quarantined"`
	RowsOut     int `json:"rows_out"`
}

// Summary tallies the most recent records by terminal state.
func (s *OutcomeService) Summary(ctx context.Context) (OutcomeSummary, error) {
	records, err := s.audit.Recent(maxOutcomeLimit)
	if err != nil {
		return OutcomeSummary{}, err
	}
	summary := OutcomeSummary{Total: len(records)}
	for i := range records {
		if records[i].Archived() {
			summary.Archived++
			summary.RowsOut += records[i].Metrics.RowsOut
		} else {
			summary.Quarantined++
		}
	}
	return summary, nil
}

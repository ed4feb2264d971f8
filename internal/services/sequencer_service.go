package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"exambank/internal/config"
	"exambank/internal/observability"
	contextutils "exambank/internal/utils"
)

// SequencerServiceInterface defines the interface for exam identifier generation
type SequencerServiceInterface interface {
	Next(ctx context.Context) (string, error)
	FallbackID() string
}

// SequencerService names each assembled exam from a persisted, monotonically
// increasing counter. The increment happens in a single SQL statement so
// concurrent callers can never observe the same value.
type SequencerService struct {
	db     *sql.DB
	cfg    *config.Config
	logger *observability.Logger
}

// NewSequencerService creates a new SequencerService instance
func NewSequencerService(db *sql.DB, cfg *config.Config, logger *observability.Logger) *SequencerService {
	return &SequencerService{db: db, cfg: cfg, logger: logger}
}

// Next atomically increments the exam counter and returns the formatted
// identifier for the new value.
func (s *SequencerService) Next(ctx context.Context) (result0 string, err error) {
	ctx, span := observability.TraceSequencerFunction(ctx, "Next")
	defer observability.FinishSpan(span, &err)

	var value int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO exam_counters (name, value)
		VALUES ($1, 1)
		ON CONFLICT (name)
		DO UPDATE SET value = exam_counters.value + 1
		RETURNING value
	`, s.cfg.Exam.CounterName).Scan(&value)
	if err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrSequencerFailure, "failed to increment exam counter: %w", err)
	}

	return s.Format(value), nil
}

// Format renders a counter value as an exam identifier, e.g. 7 -> EXM007.
// Values wider than the pad width keep all their digits.
func (s *SequencerService) Format(value int64) string {
	return fmt.Sprintf("%s%0*d", s.cfg.Exam.IDPrefix, s.cfg.Exam.IDPadWidth, value)
}

// FallbackID returns a locally unique identifier for use when the counter
// store is unreachable. Timestamp-based, so uniqueness holds within this
// process; collisions across processes are accepted in this degraded mode.
func (s *SequencerService) FallbackID() string {
	return fmt.Sprintf("%s%d", s.cfg.Exam.IDPrefix, time.Now().UnixNano())
}

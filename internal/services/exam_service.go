package services

import (
	"context"

	"exambank/internal/config"
	"exambank/internal/models"
	"exambank/internal/observability"
	contextutils "exambank/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// ExamServiceInterface defines the interface for exam assembly
type ExamServiceInterface interface {
	AssembleExam(ctx context.Context, userID, subjectName string) (*models.AssembledExam, error)
}

// ExamService orchestrates bank fetch, history lookup, per-category selection,
// history merge, and identifier sequencing into one exam assembly.
//
// Failure policy: fetch-phase errors abort with nothing persisted; a single
// category yielding no questions is omitted and logged; post-selection
// persistence errors degrade (exam is still returned) because serving the
// exam outranks the anti-repetition bookkeeping.
type ExamService struct {
	cfg       *config.Config
	logger    *observability.Logger
	bank      BankServiceInterface
	history   HistoryServiceInterface
	quota     *QuotaPolicy
	selector  *Selector
	sequencer SequencerServiceInterface
	locks     *keyedMutex
}

// NewExamService creates a new ExamService instance
func NewExamService(
	cfg *config.Config,
	logger *observability.Logger,
	bank BankServiceInterface,
	history HistoryServiceInterface,
	quota *QuotaPolicy,
	selector *Selector,
	sequencer SequencerServiceInterface,
) *ExamService {
	return &ExamService{
		cfg:       cfg,
		logger:    logger,
		bank:      bank,
		history:   history,
		quota:     quota,
		selector:  selector,
		sequencer: sequencer,
		locks:     newKeyedMutex(),
	}
}

// AssembleExam builds a randomized exam for a user and subject, avoiding
// previously seen questions per category until each category's pool is
// exhausted, then records the newly seen identifiers and names the exam.
func (s *ExamService) AssembleExam(ctx context.Context, userID, subjectName string) (result0 *models.AssembledExam, err error) {
	ctx, span := observability.TraceExamFunction(ctx, "AssembleExam",
		observability.AttributeUserID(userID),
		observability.AttributeSubject(subjectName),
	)
	defer observability.FinishSpan(span, &err)

	if userID == "" || subjectName == "" {
		return nil, contextutils.ErrMissingRequired
	}
	if !s.quota.KnownSubject(subjectName) {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeSubjectNotFound, contextutils.SeverityWarn,
			"Unknown subject", subjectName)
	}

	// Serialize assemblies per (user, subject): concurrent read-modify-write
	// of the same history record would silently drop one request's updates.
	unlock := s.locks.Lock(userID + "\x00" + subjectName)
	defer unlock()

	pools, err := s.bank.GetSubjectPools(ctx, subjectName)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to fetch question bank")
	}

	history, err := s.history.Get(ctx, userID, subjectName)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to fetch attempt history")
	}

	categories := make([]models.ExamCategory, 0, len(pools))
	updates := make(map[int]CategoryUpdate, len(pools))
	degraded := 0

	// Pools arrive ordered by ascending category id; output keeps that order.
	for i := range pools {
		pool := &pools[i]
		quota := s.quota.RequiredCount(subjectName, pool.CategoryID)

		if len(pool.Questions) == 0 {
			degraded++
			degradedErr := &CategorySelectionDegradedError{
				SubjectName: subjectName,
				CategoryID:  pool.CategoryID,
				PoolSize:    0,
				Quota:       quota,
			}
			s.logger.Warn(ctx, "Omitting category from exam", map[string]interface{}{
				"user_id":  userID,
				"subject":  subjectName,
				"category": pool.CategoryID,
				"reason":   degradedErr.Error(),
			})
			continue
		}

		selection := s.selector.Select(pool, history.SeenIDs(pool.CategoryID), quota)
		if len(selection.Chosen) == 0 {
			degraded++
			s.logger.Warn(ctx, "Category selection yielded no questions", map[string]interface{}{
				"user_id":  userID,
				"subject":  subjectName,
				"category": pool.CategoryID,
				"quota":    quota,
			})
			continue
		}

		categories = append(categories, models.ExamCategory{
			CategoryID: pool.CategoryID,
			Questions:  selection.Chosen,
		})
		updates[pool.CategoryID] = CategoryUpdate{
			SeenIDs: selection.UpdatedSeen,
			Replace: selection.Reset,
		}
	}

	span.SetAttributes(
		attribute.Int("exam.categories", len(categories)),
		attribute.Int("exam.degraded_categories", degraded),
	)

	// Nothing durable has happened yet; an abandoned request commits nothing.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, contextutils.WrapError(ctxErr, "assembly cancelled before commit")
	}

	if mergeErr := s.history.Merge(ctx, userID, subjectName, updates); mergeErr != nil {
		// The user still gets the exam; the gap risks earlier repeats and is
		// logged for reconciliation.
		s.logger.Error(ctx, "Exam served without recorded history", mergeErr, map[string]interface{}{
			"user_id":    userID,
			"subject":    subjectName,
			"categories": len(updates),
			"code":       string(contextutils.ErrorCodeHistoryPersistence),
		})
	}

	examID, seqErr := s.sequencer.Next(ctx)
	if seqErr != nil {
		examID = s.sequencer.FallbackID()
		s.logger.Error(ctx, "Using fallback exam identifier", seqErr, map[string]interface{}{
			"user_id":     userID,
			"subject":     subjectName,
			"fallback_id": examID,
			"code":        string(contextutils.ErrorCodeSequencerFailure),
		})
	}
	span.SetAttributes(observability.AttributeExamID(examID))

	s.logger.Info(ctx, "Assembled exam", map[string]interface{}{
		"exam_id":    examID,
		"user_id":    userID,
		"subject":    subjectName,
		"categories": len(categories),
	})

	return &models.AssembledExam{
		ExamID:     examID,
		Categories: categories,
	}, nil
}

package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"exambank/internal/models"
	"exambank/internal/observability"
	contextutils "exambank/internal/utils"
)

// CategoryUpdate carries one category's history change out of a selection.
// Replace is set when the selector wrapped the category around (exhaustion);
// the stored seen-set is then overwritten instead of unioned.
type CategoryUpdate struct {
	SeenIDs []string
	Replace bool
}

// HistoryServiceInterface defines the interface for attempt-history operations
type HistoryServiceInterface interface {
	Get(ctx context.Context, userID, subjectName string) (*models.AttemptHistory, error)
	Merge(ctx context.Context, userID, subjectName string, updates map[int]CategoryUpdate) error
}

// HistoryService persists the per-(user, subject) record of already-seen
// question identifiers.
type HistoryService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewHistoryService creates a new HistoryService instance
func NewHistoryService(db *sql.DB, logger *observability.Logger) *HistoryService {
	return &HistoryService{db: db, logger: logger}
}

// Get returns the attempt history for a user and subject. A missing row is
// not an error: first-time users get an empty record, which selection treats
// identically to a stored record with an empty category map.
func (s *HistoryService) Get(ctx context.Context, userID, subjectName string) (result0 *models.AttemptHistory, err error) {
	ctx, span := observability.TraceHistoryFunction(ctx, "Get",
		observability.AttributeUserID(userID),
		observability.AttributeSubject(subjectName),
	)
	defer observability.FinishSpan(span, &err)

	var rawSeen []byte
	var updatedAt time.Time
	err = s.db.QueryRowContext(ctx,
		`SELECT seen_by_category, updated_at FROM exam_histories WHERE user_id = $1 AND subject_name = $2`,
		userID, subjectName).Scan(&rawSeen, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NewAttemptHistory(userID, subjectName), nil
	}
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to read attempt history: %w", err)
	}

	history := models.NewAttemptHistory(userID, subjectName)
	history.UpdatedAt = updatedAt
	if len(rawSeen) > 0 {
		if err := json.Unmarshal(rawSeen, &history.SeenByCategory); err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInvalidFormat, "stored attempt history is not decodable: %w", err)
		}
	}
	if history.SeenByCategory == nil {
		history.SeenByCategory = make(map[int][]string)
	}

	return history, nil
}

// Merge applies per-category updates to the stored history inside a single
// transaction. Each updated category unions with the existing entry unless
// the update carries a Replace (exhaustion wrap-around), which overwrites it.
// Categories absent from updates are left untouched; an empty update map is a
// no-op.
func (s *HistoryService) Merge(ctx context.Context, userID, subjectName string, updates map[int]CategoryUpdate) (err error) {
	ctx, span := observability.TraceHistoryFunction(ctx, "Merge",
		observability.AttributeUserID(userID),
		observability.AttributeSubject(subjectName),
	)
	defer observability.FinishSpan(span, &err)

	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrDatabaseTransaction, "failed to begin history transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.Error(ctx, "Failed to rollback history transaction", rollbackErr, map[string]interface{}{
					"user_id": userID,
					"subject": subjectName,
				})
			}
		}
	}()

	// Row lock guards against writers in other processes; the assembler's
	// keyed mutex already serializes writers in this one.
	existing := make(map[int][]string)
	var rawSeen []byte
	scanErr := tx.QueryRowContext(ctx,
		`SELECT seen_by_category FROM exam_histories WHERE user_id = $1 AND subject_name = $2 FOR UPDATE`,
		userID, subjectName).Scan(&rawSeen)
	if scanErr != nil && !errors.Is(scanErr, sql.ErrNoRows) {
		err = contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to lock attempt history: %w", scanErr)
		return err
	}
	if len(rawSeen) > 0 {
		if decodeErr := json.Unmarshal(rawSeen, &existing); decodeErr != nil {
			err = contextutils.WrapErrorf(contextutils.ErrInvalidFormat, "stored attempt history is not decodable: %w", decodeErr)
			return err
		}
	}

	merged := MergeSeenByCategory(existing, updates)

	encoded, marshalErr := json.Marshal(merged)
	if marshalErr != nil {
		err = contextutils.WrapError(marshalErr, "failed to encode attempt history")
		return err
	}

	if _, execErr := tx.ExecContext(ctx, `
		INSERT INTO exam_histories (user_id, subject_name, seen_by_category, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, subject_name)
		DO UPDATE SET seen_by_category = EXCLUDED.seen_by_category, updated_at = NOW()
	`, userID, subjectName, encoded); execErr != nil {
		err = contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to write attempt history: %w", execErr)
		return err
	}

	if commitErr := tx.Commit(); commitErr != nil {
		err = contextutils.WrapErrorf(contextutils.ErrDatabaseTransaction, "failed to commit attempt history: %w", commitErr)
		return err
	}

	return nil
}

// MergeSeenByCategory combines an existing seen map with per-category
// updates. Pure; exposed for direct testing. Union keeps the existing ids'
// order and appends unseen new ids, so FIFO backfill stays meaningful.
func MergeSeenByCategory(existing map[int][]string, updates map[int]CategoryUpdate) map[int][]string {
	merged := make(map[int][]string, len(existing)+len(updates))
	for categoryID, ids := range existing {
		merged[categoryID] = append([]string(nil), ids...)
	}

	for categoryID, update := range updates {
		if update.Replace {
			merged[categoryID] = append([]string(nil), update.SeenIDs...)
			continue
		}

		current := merged[categoryID]
		present := make(map[string]struct{}, len(current))
		for _, id := range current {
			present[id] = struct{}{}
		}
		for _, id := range update.SeenIDs {
			if _, ok := present[id]; !ok {
				current = append(current, id)
				present[id] = struct{}{}
			}
		}
		merged[categoryID] = current
	}

	return merged
}

package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"exambank/internal/config"
	"exambank/internal/models"
	"exambank/internal/observability"
	contextutils "exambank/internal/utils"

	"github.com/xeipuuv/gojsonschema"
)

// storageMetadataKeys are housekeeping fields written by the document store
// that must never leak into an exam payload.
var storageMetadataKeys = []string{"$createdAt", "$updatedAt", "$permissions", "$databaseId", "$collectionId"}

// subQuestionSlots are the named slots that can carry nested question parts.
var subQuestionSlots = []string{"either", "or"}

// questionSchema validates raw question payloads at seed time. Deliberately
// loose about content fields; it only pins down the shapes the normalizer
// relies on.
const questionSchema = `{
	"type": "object",
	"properties": {
		"id": {"type": ["string", "integer"]},
		"either": {
			"type": "object",
			"properties": {
				"id": {"type": ["string", "integer"]},
				"sub_questions": {"type": "array", "items": {"type": "object"}}
			}
		},
		"or": {
			"type": "object",
			"properties": {
				"id": {"type": ["string", "integer"]},
				"sub_questions": {"type": "array", "items": {"type": "object"}}
			}
		}
	}
}`

// BankServiceInterface defines the interface for question bank operations
type BankServiceInterface interface {
	GetSubjectPools(ctx context.Context, subjectName string) ([]models.CategoryPool, error)
	SeedSubject(ctx context.Context, subjectName string, categoryID int, rawQuestions []json.RawMessage) error
}

// BankService fetches a subject's raw question data and normalizes it into
// category pools with stable question identifiers.
type BankService struct {
	db     *sql.DB
	cfg    *config.Config
	logger *observability.Logger
	schema *gojsonschema.Schema
}

// NewBankService creates a new BankService instance
func NewBankService(db *sql.DB, cfg *config.Config, logger *observability.Logger) *BankService {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(questionSchema))
	if err != nil {
		// The schema is a compile-time constant; failing to parse it is a bug.
		panic(fmt.Sprintf("invalid question schema: %v", err))
	}
	return &BankService{
		db:     db,
		cfg:    cfg,
		logger: logger,
		schema: schema,
	}
}

// GetSubjectPools returns the normalized category pools for a subject,
// ordered by ascending category id. An empty bank for a configured subject
// yields an empty slice, not an error.
func (s *BankService) GetSubjectPools(ctx context.Context, subjectName string) (result0 []models.CategoryPool, err error) {
	ctx, span := observability.TraceBankFunction(ctx, "GetSubjectPools",
		observability.AttributeSubject(subjectName),
	)
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx,
		`SELECT category_id, questions FROM question_banks WHERE subject_name = $1 ORDER BY category_id ASC`,
		subjectName)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrBankUnavailable, "failed to fetch question bank for %s: %w", subjectName, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var pools []models.CategoryPool
	for rows.Next() {
		var categoryID int
		var rawQuestions []byte
		if err := rows.Scan(&categoryID, &rawQuestions); err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrBankUnavailable, "failed to scan question bank row: %w", err)
		}

		pool, err := NormalizeCategory(categoryID, rawQuestions)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrBankUnavailable, "failed to normalize category %d of %s: %w", categoryID, subjectName, err)
		}
		pools = append(pools, *pool)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrBankUnavailable, "failed to read question bank rows: %w", err)
	}

	return pools, nil
}

// SeedSubject validates and stores one category's raw question payloads,
// replacing any existing row for (subject, category).
func (s *BankService) SeedSubject(ctx context.Context, subjectName string, categoryID int, rawQuestions []json.RawMessage) (err error) {
	ctx, span := observability.TraceBankFunction(ctx, "SeedSubject",
		observability.AttributeSubject(subjectName),
		observability.AttributeCategoryID(categoryID),
	)
	defer observability.FinishSpan(span, &err)

	for i, raw := range rawQuestions {
		body, err := decodeQuestionPayload(raw)
		if err != nil {
			return contextutils.WrapErrorf(contextutils.ErrInvalidFormat, "question %d is not a decodable object: %w", i, err)
		}
		result, err := s.schema.Validate(gojsonschema.NewGoLoader(body))
		if err != nil {
			return contextutils.WrapErrorf(contextutils.ErrValidationFailed, "question %d failed schema validation: %w", i, err)
		}
		if !result.Valid() {
			return contextutils.NewAppError(contextutils.ErrorCodeValidationFailed, contextutils.SeverityWarn,
				"Question payload rejected", fmt.Sprintf("question %d: %v", i, result.Errors()))
		}
	}

	encoded, err := json.Marshal(rawQuestions)
	if err != nil {
		return contextutils.WrapError(err, "failed to encode question payloads")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO question_banks (subject_name, category_id, questions, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (subject_name, category_id)
		DO UPDATE SET questions = EXCLUDED.questions, updated_at = NOW()
	`, subjectName, categoryID, encoded)
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to store question bank row: %w", err)
	}

	s.logger.Info(ctx, "Seeded question bank category", map[string]interface{}{
		"subject":   subjectName,
		"category":  categoryID,
		"questions": len(rawQuestions),
	})
	return nil
}

// NormalizeCategory decodes one category's raw question array into a
// CategoryPool. Idempotent: the same raw input always produces the same pool,
// including synthesized identifiers, which the selector's exhaustion logic
// depends on.
func NormalizeCategory(categoryID int, rawQuestions []byte) (*models.CategoryPool, error) {
	var rawList []json.RawMessage
	if err := json.Unmarshal(rawQuestions, &rawList); err != nil {
		return nil, fmt.Errorf("questions payload is not an array: %w", err)
	}

	pool := &models.CategoryPool{CategoryID: categoryID}
	for i, raw := range rawList {
		body, err := decodeQuestionPayload(raw)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}

		for _, key := range storageMetadataKeys {
			delete(body, key)
		}

		id := extractID(body)
		if id == "" {
			id = fmt.Sprintf("%d_%d", categoryID, i)
		}
		delete(body, "id")

		normalizeSubQuestions(body, id)

		pool.Questions = append(pool.Questions, models.QuestionRecord{
			ID:         id,
			CategoryID: categoryID,
			Body:       body,
		})
	}

	return pool, nil
}

// decodeQuestionPayload accepts a question stored either as a JSON object or
// as a JSON string containing an encoded object (both shapes occur in the
// bank) and returns the object.
func decodeQuestionPayload(raw json.RawMessage) (map[string]interface{}, error) {
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err == nil {
		return body, nil
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, fmt.Errorf("payload is neither an object nor an encoded string")
	}
	if err := json.Unmarshal([]byte(encoded), &body); err != nil {
		return nil, fmt.Errorf("encoded payload does not contain an object: %w", err)
	}
	return body, nil
}

// extractID pulls a usable identifier out of a decoded payload. Numeric ids
// are rendered in full precision; anything else yields "".
func extractID(body map[string]interface{}) string {
	switch v := body["id"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// normalizeSubQuestions assigns deterministic identifiers to nested question
// parts under the named slots. A part keeps its own id when present;
// otherwise it gets <parentID>_sub_<ordinal>, where parentID is the slot's id
// falling back to the question's.
func normalizeSubQuestions(body map[string]interface{}, questionID string) {
	for _, slotName := range subQuestionSlots {
		slot, ok := body[slotName].(map[string]interface{})
		if !ok {
			continue
		}
		subs, ok := slot["sub_questions"].([]interface{})
		if !ok {
			continue
		}

		parentID := questionID
		if slotID := extractID(slot); slotID != "" {
			parentID = slotID
		}

		for i, entry := range subs {
			sub, ok := entry.(map[string]interface{})
			if !ok {
				continue
			}
			if extractID(sub) == "" {
				sub["id"] = fmt.Sprintf("%s_sub_%d", parentID, i)
			}
		}
	}
}

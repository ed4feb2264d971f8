// Package models defines data structures used throughout the exam bank service.
package models

import (
	"encoding/json"
	"time"
)

// QuestionRecord is a single normalized question. Body carries the decoded
// question payload (prompt, answers, either/or sub-question slots) without the
// identifier, which lives in ID and is re-inserted when marshaling.
type QuestionRecord struct {
	ID         string                 `json:"id" yaml:"id"`
	CategoryID int                    `json:"category_id" yaml:"category_id"`
	Body       map[string]interface{} `json:"body" yaml:"body"`
}

// MarshalJSON flattens the record into the wire shape the exam payload uses:
// the body object with the id field merged back in.
func (q QuestionRecord) MarshalJSON() (result0 []byte, err error) {
	flat := make(map[string]interface{}, len(q.Body)+1)
	for k, v := range q.Body {
		flat[k] = v
	}
	flat["id"] = q.ID
	return json.Marshal(flat)
}

// CategoryPool is the full set of questions available for one category of one
// subject. Question identifiers are unique within a pool.
type CategoryPool struct {
	CategoryID int              `json:"category" yaml:"category"`
	Questions  []QuestionRecord `json:"questions" yaml:"questions"`
}

// QuestionIDs returns the identifiers of all questions in the pool, in order.
func (p *CategoryPool) QuestionIDs() []string {
	ids := make([]string, 0, len(p.Questions))
	for _, q := range p.Questions {
		ids = append(ids, q.ID)
	}
	return ids
}

// FindQuestion returns the question with the given id, or nil if the id is
// not present in the pool (stale history ids are expected and harmless).
func (p *CategoryPool) FindQuestion(id string) *QuestionRecord {
	for i := range p.Questions {
		if p.Questions[i].ID == id {
			return &p.Questions[i]
		}
	}
	return nil
}

// AttemptHistory is the per-(user, subject) record of question identifiers
// already delivered. Slices keep insertion order so the oldest-seen ids can be
// recycled first, but merge semantics treat them as sets.
type AttemptHistory struct {
	UserID         string           `json:"user_id" yaml:"user_id"`
	SubjectName    string           `json:"subject_name" yaml:"subject_name"`
	SeenByCategory map[int][]string `json:"seen_by_category" yaml:"seen_by_category"`
	UpdatedAt      time.Time        `json:"updated_at" yaml:"updated_at"`
}

// NewAttemptHistory returns an empty history record for a user and subject.
// First-time users get this shape rather than an error.
func NewAttemptHistory(userID, subjectName string) *AttemptHistory {
	return &AttemptHistory{
		UserID:         userID,
		SubjectName:    subjectName,
		SeenByCategory: make(map[int][]string),
	}
}

// SeenIDs returns the seen identifiers for a category, never nil.
func (h *AttemptHistory) SeenIDs(categoryID int) []string {
	if h == nil || h.SeenByCategory == nil {
		return []string{}
	}
	if ids, ok := h.SeenByCategory[categoryID]; ok {
		return ids
	}
	return []string{}
}

// ExamCategory is one category's contribution to an assembled exam.
type ExamCategory struct {
	CategoryID int              `json:"category" yaml:"category"`
	Questions  []QuestionRecord `json:"questions" yaml:"questions"`
}

// AssembledExam is a ready-to-serve exam: an identifier plus question groups
// ordered by ascending category id.
type AssembledExam struct {
	ExamID     string         `json:"exam_id" yaml:"exam_id"`
	Categories []ExamCategory `json:"categories" yaml:"categories"`
}

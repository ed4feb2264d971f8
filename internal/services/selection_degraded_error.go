package services

import (
	"fmt"

	contextutils "exambank/internal/utils"
)

// CategorySelectionDegradedError is recorded when one category cannot
// contribute any questions to an exam. Non-fatal: the category is omitted and
// assembly continues.
type CategorySelectionDegradedError struct {
	SubjectName string
	CategoryID  int
	PoolSize    int
	Quota       int
}

func (e *CategorySelectionDegradedError) Error() string {
	return fmt.Sprintf("category selection degraded (subject=%s category=%d pool_size=%d quota=%d)", e.SubjectName, e.CategoryID, e.PoolSize, e.Quota)
}

// Unwrap allows errors.Is(..., contextutils.ErrSelectionDegraded) to work.
func (e *CategorySelectionDegradedError) Unwrap() error {
	return contextutils.ErrSelectionDegraded
}

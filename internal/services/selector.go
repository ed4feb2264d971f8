package services

import (
	"math/rand"
	"sync"

	"exambank/internal/models"
)

// SelectionResult is the outcome of selecting one category's questions.
type SelectionResult struct {
	// Chosen is the drawn question subset, at most quota long.
	Chosen []models.QuestionRecord
	// UpdatedSeen is the seen-set to persist for this category: the surviving
	// prior ids plus the chosen ids, deduplicated, insertion order preserved.
	UpdatedSeen []string
	// Reset is true when the category's history wrapped around (exhaustion or
	// unsatisfiable quota); the store must replace instead of merge.
	Reset bool
}

// Selector draws questions for one category honoring the quota and avoiding
// previously seen identifiers until the pool is exhausted. It is pure apart
// from its random source, which is injectable for deterministic tests.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a selector seeded from the given source.
func NewSelector(rng *rand.Rand) *Selector {
	return &Selector{rng: rng}
}

// Select picks up to quota questions from the pool. The working seen-set is
// cleared when it already covers the pool (full cycle restart) or when fewer
// fresh questions remain than the quota demands; in both cases the draw falls
// back to the entire pool and the caller must replace, not merge, history for
// this category. A pool smaller than the quota yields a short result, never
// an error.
func (s *Selector) Select(pool *models.CategoryPool, seenIDs []string, quota int) SelectionResult {
	if quota < 1 {
		quota = 1
	}

	seen := append([]string(nil), seenIDs...)
	reset := false

	// Exhaustion wrap-around: the whole pool has been delivered already.
	if len(seen) >= len(pool.Questions) {
		seen = nil
		reset = true
	}

	seenSet := make(map[string]struct{}, len(seen))
	for _, id := range seen {
		seenSet[id] = struct{}{}
	}

	available := make([]models.QuestionRecord, 0, len(pool.Questions))
	for _, q := range pool.Questions {
		if _, ok := seenSet[q.ID]; !ok {
			available = append(available, q)
		}
	}

	// Not enough fresh questions to satisfy the quota: the constraint is
	// unsatisfiable without reuse, so draw from everything and restart the
	// cycle for this category.
	if len(available) < quota {
		seen = nil
		seenSet = map[string]struct{}{}
		available = append([]models.QuestionRecord(nil), pool.Questions...)
		reset = true
	}

	chosen := s.draw(available, quota)

	// The draw can only fall short when the pool itself is smaller than the
	// quota. Backfill from the oldest seen ids whose bodies still exist, then
	// accept a short result.
	if len(chosen) < quota {
		chosenIDs := make(map[string]struct{}, len(chosen))
		for _, q := range chosen {
			chosenIDs[q.ID] = struct{}{}
		}
		for len(chosen) < quota && len(seen) > 0 {
			oldest := seen[0]
			seen = seen[1:]
			delete(seenSet, oldest)
			if _, dup := chosenIDs[oldest]; dup {
				continue
			}
			if q := pool.FindQuestion(oldest); q != nil {
				chosen = append(chosen, *q)
				chosenIDs[q.ID] = struct{}{}
			}
		}
	}

	updatedSeen := append([]string(nil), seen...)
	for _, q := range chosen {
		if _, ok := seenSet[q.ID]; !ok {
			updatedSeen = append(updatedSeen, q.ID)
			seenSet[q.ID] = struct{}{}
		}
	}

	return SelectionResult{
		Chosen:      chosen,
		UpdatedSeen: updatedSeen,
		Reset:       reset,
	}
}

// draw returns up to n questions chosen uniformly at random without
// replacement (Fisher-Yates shuffle of a copy, then a prefix).
func (s *Selector) draw(questions []models.QuestionRecord, n int) []models.QuestionRecord {
	shuffled := append([]models.QuestionRecord(nil), questions...)

	s.mu.Lock()
	s.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	s.mu.Unlock()

	if n > len(shuffled) {
		n = len(shuffled)
	}
	return shuffled[:n]
}

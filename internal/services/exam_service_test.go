package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"exambank/internal/config"
	"exambank/internal/models"
	"exambank/internal/observability"
	contextutils "exambank/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBankService serves pools from memory and can simulate an unavailable bank.
type fakeBankService struct {
	pools map[string][]models.CategoryPool
	err   error
}

func (f *fakeBankService) GetSubjectPools(_ context.Context, subjectName string) ([]models.CategoryPool, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pools[subjectName], nil
}

func (f *fakeBankService) SeedSubject(_ context.Context, _ string, _ int, _ []json.RawMessage) error {
	return nil
}

// fakeHistoryService keeps histories in memory with the real merge semantics.
type fakeHistoryService struct {
	mu       sync.Mutex
	records  map[string]map[int][]string
	getErr   error
	mergeErr error
	merges   int
}

func newFakeHistoryService() *fakeHistoryService {
	return &fakeHistoryService{records: make(map[string]map[int][]string)}
}

func historyKey(userID, subjectName string) string {
	return userID + "/" + subjectName
}

func (f *fakeHistoryService) Get(_ context.Context, userID, subjectName string) (*models.AttemptHistory, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	history := models.NewAttemptHistory(userID, subjectName)
	for categoryID, ids := range f.records[historyKey(userID, subjectName)] {
		history.SeenByCategory[categoryID] = append([]string(nil), ids...)
	}
	return history, nil
}

func (f *fakeHistoryService) Merge(_ context.Context, userID, subjectName string, updates map[int]CategoryUpdate) error {
	if f.mergeErr != nil {
		return f.mergeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.merges++
	f.records[historyKey(userID, subjectName)] = MergeSeenByCategory(f.records[historyKey(userID, subjectName)], updates)
	return nil
}

// fakeSequencer issues deterministic ids and can simulate counter failure.
type fakeSequencer struct {
	mu    sync.Mutex
	next  int64
	err   error
	calls int
}

func (f *fakeSequencer) Next(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	f.next++
	return fmt.Sprintf("EXM%03d", f.next), nil
}

func (f *fakeSequencer) FallbackID() string {
	return "EXM-fallback"
}

func testSubjects() map[string]config.SubjectConfig {
	return map[string]config.SubjectConfig{
		"science_ple": {
			DefaultQuota:   1,
			CategoryQuotas: map[int]int{12: 2},
		},
	}
}

func sciencePools() map[string][]models.CategoryPool {
	return map[string][]models.CategoryPool{
		"science_ple": {
			*makePool(3, 4),
			*makePool(12, 6),
		},
	}
}

func newTestExamService(bank *fakeBankService, history *fakeHistoryService, sequencer *fakeSequencer) *ExamService {
	cfg := &config.Config{
		Subjects: testSubjects(),
		Exam:     config.ExamConfig{IDPrefix: "EXM", IDPadWidth: 3, CounterName: "exams"},
	}
	return NewExamService(
		cfg,
		observability.NewLogger(nil),
		bank,
		history,
		NewQuotaPolicy(cfg.Subjects),
		NewSelector(rand.New(rand.NewSource(7))),
		sequencer,
	)
}

func TestExamService_AssembleExam_HappyPath(t *testing.T) {
	bank := &fakeBankService{pools: sciencePools()}
	history := newFakeHistoryService()
	sequencer := &fakeSequencer{}
	service := newTestExamService(bank, history, sequencer)

	exam, err := service.AssembleExam(context.Background(), "user-1", "science_ple")
	require.NoError(t, err)
	require.NotNil(t, exam)

	assert.Equal(t, "EXM001", exam.ExamID)
	require.Len(t, exam.Categories, 2)
	// Categories come back ordered by ascending id
	assert.Equal(t, 3, exam.Categories[0].CategoryID)
	assert.Equal(t, 12, exam.Categories[1].CategoryID)
	assert.Len(t, exam.Categories[0].Questions, 1)
	assert.Len(t, exam.Categories[1].Questions, 2)

	// History recorded what was delivered
	stored := history.records[historyKey("user-1", "science_ple")]
	assert.Len(t, stored[3], 1)
	assert.Len(t, stored[12], 2)
}

func TestExamService_AssembleExam_AvoidsRepeatsAcrossCalls(t *testing.T) {
	bank := &fakeBankService{pools: sciencePools()}
	history := newFakeHistoryService()
	sequencer := &fakeSequencer{}
	service := newTestExamService(bank, history, sequencer)
	ctx := context.Background()

	delivered := make(map[string]int)

	// Category 12 has six questions at quota two: three exams cover the pool
	for i := 0; i < 3; i++ {
		exam, err := service.AssembleExam(ctx, "user-1", "science_ple")
		require.NoError(t, err)
		for _, cat := range exam.Categories {
			if cat.CategoryID != 12 {
				continue
			}
			for _, q := range cat.Questions {
				delivered[q.ID]++
			}
		}
	}

	require.Len(t, delivered, 6)
	for id, count := range delivered {
		assert.Equal(t, 1, count, "question %s repeated before pool exhaustion", id)
	}
}

func TestExamService_AssembleExam_UnknownSubject(t *testing.T) {
	bank := &fakeBankService{pools: sciencePools()}
	history := newFakeHistoryService()
	sequencer := &fakeSequencer{}
	service := newTestExamService(bank, history, sequencer)

	exam, err := service.AssembleExam(context.Background(), "user-1", "alchemy_ple")
	require.Error(t, err)
	assert.Nil(t, exam)
	assert.Equal(t, contextutils.ErrorCodeSubjectNotFound, contextutils.GetErrorCode(err))
	assert.Equal(t, 0, sequencer.calls, "no identifier consumed for a rejected request")
}

func TestExamService_AssembleExam_MissingInputs(t *testing.T) {
	service := newTestExamService(&fakeBankService{}, newFakeHistoryService(), &fakeSequencer{})

	_, err := service.AssembleExam(context.Background(), "", "science_ple")
	require.Error(t, err)
	assert.Equal(t, contextutils.ErrorCodeMissingRequired, contextutils.GetErrorCode(err))

	_, err = service.AssembleExam(context.Background(), "user-1", "")
	require.Error(t, err)
	assert.Equal(t, contextutils.ErrorCodeMissingRequired, contextutils.GetErrorCode(err))
}

func TestExamService_AssembleExam_BankUnavailableIsFatal(t *testing.T) {
	bank := &fakeBankService{err: contextutils.ErrBankUnavailable}
	history := newFakeHistoryService()
	sequencer := &fakeSequencer{}
	service := newTestExamService(bank, history, sequencer)

	exam, err := service.AssembleExam(context.Background(), "user-1", "science_ple")
	require.Error(t, err)
	assert.Nil(t, exam)
	assert.Equal(t, contextutils.ErrorCodeBankUnavailable, contextutils.GetErrorCode(err))
	assert.True(t, contextutils.IsRetryable(err))
	assert.Equal(t, 0, history.merges, "nothing persisted on a failed fetch")
	assert.Equal(t, 0, sequencer.calls)
}

func TestExamService_AssembleExam_EmptyCategoryIsOmitted(t *testing.T) {
	pools := map[string][]models.CategoryPool{
		"science_ple": {
			{CategoryID: 3}, // no questions stored
			*makePool(12, 6),
		},
	}
	bank := &fakeBankService{pools: pools}
	history := newFakeHistoryService()
	service := newTestExamService(bank, history, &fakeSequencer{})

	exam, err := service.AssembleExam(context.Background(), "user-1", "science_ple")
	require.NoError(t, err)

	require.Len(t, exam.Categories, 1)
	assert.Equal(t, 12, exam.Categories[0].CategoryID)
	// The empty category leaves no history entry either
	stored := history.records[historyKey("user-1", "science_ple")]
	assert.NotContains(t, stored, 3)
}

func TestExamService_AssembleExam_HistoryFailureStillServesExam(t *testing.T) {
	bank := &fakeBankService{pools: sciencePools()}
	history := newFakeHistoryService()
	history.mergeErr = contextutils.ErrDatabaseQuery
	sequencer := &fakeSequencer{}
	service := newTestExamService(bank, history, sequencer)

	exam, err := service.AssembleExam(context.Background(), "user-1", "science_ple")
	require.NoError(t, err, "a lost history write must not cost the user the exam")
	require.NotNil(t, exam)
	assert.Len(t, exam.Categories, 2)
	assert.Equal(t, "EXM001", exam.ExamID)
}

func TestExamService_AssembleExam_SequencerFailureUsesFallbackID(t *testing.T) {
	bank := &fakeBankService{pools: sciencePools()}
	history := newFakeHistoryService()
	sequencer := &fakeSequencer{err: errors.New("counter store down")}
	service := newTestExamService(bank, history, sequencer)

	exam, err := service.AssembleExam(context.Background(), "user-1", "science_ple")
	require.NoError(t, err)
	require.NotNil(t, exam)
	assert.Equal(t, "EXM-fallback", exam.ExamID)
	// Selection results were still recorded
	assert.Equal(t, 1, history.merges)
}

func TestExamService_AssembleExam_CancelledBeforeCommit(t *testing.T) {
	bank := &fakeBankService{pools: sciencePools()}
	history := newFakeHistoryService()
	sequencer := &fakeSequencer{}
	service := newTestExamService(bank, history, sequencer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exam, err := service.AssembleExam(ctx, "user-1", "science_ple")
	require.Error(t, err)
	assert.Nil(t, exam)
	assert.Equal(t, 0, history.merges, "abandoned requests commit nothing")
	assert.Equal(t, 0, sequencer.calls)
}

func TestExamService_AssembleExam_ConcurrentSameUserNoRepeats(t *testing.T) {
	bank := &fakeBankService{pools: sciencePools()}
	history := newFakeHistoryService()
	sequencer := &fakeSequencer{}
	service := newTestExamService(bank, history, sequencer)

	var wg sync.WaitGroup
	var mu sync.Mutex
	delivered := make(map[string]int)

	// Three concurrent assemblies together cover category 12 exactly once
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			exam, err := service.AssembleExam(context.Background(), "user-1", "science_ple")
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			for _, cat := range exam.Categories {
				if cat.CategoryID != 12 {
					continue
				}
				for _, q := range cat.Questions {
					delivered[q.ID]++
				}
			}
		}()
	}
	wg.Wait()

	require.Len(t, delivered, 6)
	for id, count := range delivered {
		assert.Equal(t, 1, count, "question %s delivered twice despite serialization", id)
	}
}

func TestExamService_AssembleExam_UniqueExamIDs(t *testing.T) {
	bank := &fakeBankService{pools: sciencePools()}
	history := newFakeHistoryService()
	sequencer := &fakeSequencer{}
	service := newTestExamService(bank, history, sequencer)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ids := make(map[string]struct{})

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			exam, err := service.AssembleExam(context.Background(), fmt.Sprintf("user-%d", n), "science_ple")
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			ids[exam.ExamID] = struct{}{}
		}(i)
	}
	wg.Wait()

	assert.Len(t, ids, 8, "every assembly gets its own identifier")
}

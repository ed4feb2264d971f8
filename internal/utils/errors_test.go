package contextutils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrorCodeSubjectNotFound, SeverityWarn, "Unknown subject", "alchemy_ple")
	assert.Equal(t, "SUBJECT_NOT_FOUND: Unknown subject - alchemy_ple", err.Error())

	noDetails := NewAppError(ErrorCodeInternalError, SeverityError, "boom", "")
	assert.Equal(t, "INTERNAL_SERVER_ERROR: boom", noDetails.Error())
}

func TestAppError_IsMatchesOnCode(t *testing.T) {
	err := WrapErrorf(ErrBankUnavailable, "failed to fetch question bank for %s: %w", "science_ple", errors.New("connection refused"))

	assert.True(t, errors.Is(err, ErrBankUnavailable))
	assert.False(t, errors.Is(err, ErrSubjectNotFound))
}

func TestWrapError_PreservesAppErrorCode(t *testing.T) {
	wrapped := WrapError(ErrSequencerFailure, "naming the exam failed")

	var appErr *AppError
	require.True(t, AsError(wrapped, &appErr))
	assert.Equal(t, ErrorCodeSequencerFailure, appErr.Code)
	assert.Equal(t, "naming the exam failed", appErr.Message)
}

func TestWrapError_GenericErrorBecomesInternal(t *testing.T) {
	wrapped := WrapError(errors.New("disk full"), "seed failed")

	assert.Equal(t, ErrorCodeInternalError, GetErrorCode(wrapped))
	assert.Contains(t, wrapped.Error(), "seed failed")
}

func TestWrapError_NilPassthrough(t *testing.T) {
	assert.NoError(t, WrapError(nil, "context"))
	assert.NoError(t, WrapErrorf(nil, "context %d", 1))
}

func TestWrapErrorf_WithWVerb(t *testing.T) {
	cause := errors.New("row locked")
	wrapped := WrapErrorf(ErrDatabaseQuery, "failed to lock attempt history: %w", cause)

	assert.Equal(t, ErrorCodeDatabaseQuery, GetErrorCode(wrapped))
	assert.Contains(t, wrapped.Error(), "row locked")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrBankUnavailable))
	assert.True(t, IsRetryable(ErrServiceUnavailable))
	assert.True(t, IsRetryable(ErrDatabaseConnection))
	assert.True(t, IsRetryable(ErrTimeout))

	assert.False(t, IsRetryable(ErrSubjectNotFound))
	assert.False(t, IsRetryable(ErrHistoryPersistence))
	assert.False(t, IsRetryable(ErrSequencerFailure))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestGetErrorCodeAndSeverity(t *testing.T) {
	assert.Equal(t, ErrorCodeSelectionDegraded, GetErrorCode(ErrSelectionDegraded))
	assert.Equal(t, SeverityWarn, GetErrorSeverity(ErrSelectionDegraded))

	assert.Equal(t, ErrorCodeInternalError, GetErrorCode(errors.New("plain")))
	assert.Equal(t, SeverityError, GetErrorSeverity(errors.New("plain")))
}

func TestAppError_ToJSON(t *testing.T) {
	err := NewAppErrorWithCause(ErrorCodeBankUnavailable, SeverityError,
		"Question bank unavailable", "subject science_ple", fmt.Errorf("connection refused"))

	payload := err.ToJSON()

	assert.Equal(t, "QUESTION_BANK_UNAVAILABLE", payload["code"])
	assert.Equal(t, "Question bank unavailable", payload["message"])
	assert.Equal(t, "subject science_ple", payload["details"])
	assert.Equal(t, true, payload["retryable"])
	assert.Equal(t, "connection refused", payload["cause"])
}

func TestAppError_ToJSON_HidesCauseForClientErrors(t *testing.T) {
	err := NewAppErrorWithCause(ErrorCodeInvalidInput, SeverityWarn,
		"Invalid input", "", fmt.Errorf("internal detail"))

	payload := err.ToJSON()
	assert.NotContains(t, payload, "cause")
	assert.Equal(t, false, payload["retryable"])
}

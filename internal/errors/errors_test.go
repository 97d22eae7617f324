package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesClassificationFromCode(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{"config invalid is fatal", ErrCodeConfigInvalid, CategoryConfig, SeverityFatal, false},
		{"dimension mismatch is fatal config", ErrCodeDimensionMismatch, CategoryConfig, SeverityFatal, false},
		{"store unavailable is retryable", ErrCodeStoreUnavailable, CategoryStorage, SeverityError, true},
		{"session not found", ErrCodeSessionNotFound, CategoryStorage, SeverityError, false},
		{"adapter unavailable is warning", ErrCodeAdapterUnavailable, CategoryRetrieval, SeverityWarning, true},
		{"citation integrity is warning", ErrCodeCitationIntegrity, CategoryRetrieval, SeverityWarning, false},
		{"synthesis timeout is retryable collaborator", ErrCodeSynthesisTimeout, CategoryCollaborator, SeverityError, true},
		{"empty query is validation", ErrCodeQueryEmpty, CategoryValidation, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestStudyError_ErrorFormat(t *testing.T) {
	err := New(ErrCodeNoEvidence, "no passages matched", nil)
	assert.Equal(t, "[ERR_503_NO_EVIDENCE] no passages matched", err.Error())
}

func TestStudyError_UnwrapChain(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(ErrCodeStoreUnavailable, cause)

	require.NotNil(t, err)
	assert.True(t, stderrors.Is(err, cause), "wrapped cause should be found via errors.Is")

	var se *StudyError
	wrapped := fmt.Errorf("search failed: %w", err)
	require.True(t, stderrors.As(wrapped, &se))
	assert.Equal(t, ErrCodeStoreUnavailable, se.Code)
}

func TestStudyError_IsMatchesByCode(t *testing.T) {
	a := New(ErrCodeSessionExpired, "session s1 expired", nil)
	b := New(ErrCodeSessionExpired, "different message", nil)
	c := New(ErrCodeSessionNotFound, "session s1 not found", nil)

	assert.True(t, stderrors.Is(a, b), "same code should match")
	assert.False(t, stderrors.Is(a, c), "different code should not match")
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestAdapterUnavailable_RecordsOrigin(t *testing.T) {
	err := AdapterUnavailable("graph", stderrors.New("neo down"))
	assert.Equal(t, ErrCodeAdapterUnavailable, err.Code)
	assert.Equal(t, "graph", err.Details["origin"])
	assert.True(t, IsRetryable(err))
	assert.False(t, IsFatal(err))
}

func TestDimensionMismatch_IsFatalNotRetryable(t *testing.T) {
	err := DimensionMismatch(1536, 768)
	assert.True(t, IsFatal(err))
	assert.False(t, IsRetryable(err))
	assert.Contains(t, err.Message, "1536")
	assert.Contains(t, err.Message, "768")
	assert.NotEmpty(t, err.Suggestion)
}

func TestSynthesisTimeout_DistinctFromRetrievalFailure(t *testing.T) {
	err := SynthesisTimeout(stderrors.New("deadline exceeded"))
	assert.Equal(t, ErrCodeSynthesisTimeout, err.Code)
	assert.NotEqual(t, ErrCodeAllAdaptersFailed, err.Code)
	assert.NotEmpty(t, err.Suggestion)
}

func TestGetCode_NonStudyError(t *testing.T) {
	assert.Equal(t, "", GetCode(stderrors.New("plain")))
	assert.Equal(t, ErrCodeInternal, GetCode(InternalError("boom", nil)))
}

func TestFormatForCLI(t *testing.T) {
	err := SessionNotFound("abc123")
	out := FormatForCLI(err)
	assert.Contains(t, out, "abc123")
	assert.Contains(t, out, ErrCodeSessionNotFound)

	plain := FormatForCLI(stderrors.New("boom"))
	assert.Equal(t, "error: boom", plain)
}

func TestFormatForUser_IncludesSuggestion(t *testing.T) {
	err := New(ErrCodeModelUnavailable, "ollama not reachable", nil).
		WithSuggestion("start ollama with `ollama serve`")
	out := FormatForUser(err, false)
	assert.Contains(t, out, "ollama not reachable")
	assert.Contains(t, out, "Suggestion:")
	assert.Contains(t, out, ErrCodeModelUnavailable)
}

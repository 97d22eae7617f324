package errors

import (
	"fmt"
)

// StudyError is the structured error type for BibleStudyAI.
// It provides rich context for error handling, logging, and user presentation.
type StudyError struct {
	// Code is the unique error code (e.g., "ERR_203_SESSION_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Collaborator, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *StudyError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *StudyError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with StudyError.
func (e *StudyError) Is(target error) bool {
	if t, ok := target.(*StudyError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *StudyError) WithDetail(key, value string) *StudyError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *StudyError) WithSuggestion(suggestion string) *StudyError {
	e.Suggestion = suggestion
	return e
}

// New creates a new StudyError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *StudyError {
	return &StudyError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a StudyError from an existing error.
// The error's message becomes the StudyError message.
func Wrap(code string, err error) *StudyError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// AdapterUnavailable creates the degraded-mode fault for a retrieval adapter.
// The origin (lexical, vector, graph) is recorded as a detail.
func AdapterUnavailable(origin string, cause error) *StudyError {
	e := New(ErrCodeAdapterUnavailable, fmt.Sprintf("%s adapter unavailable", origin), cause)
	return e.WithDetail("origin", origin)
}

// DimensionMismatch creates the fatal config error for embedding dimension drift.
func DimensionMismatch(expected, got int) *StudyError {
	e := New(ErrCodeDimensionMismatch,
		fmt.Sprintf("embedding dimension mismatch: index has %d, embedder produces %d", expected, got), nil)
	return e.WithSuggestion("re-run the ingestion pipeline with the current embedding model")
}

// SessionNotFound creates the not-found error for an unknown session id.
func SessionNotFound(sessionID string) *StudyError {
	e := New(ErrCodeSessionNotFound, fmt.Sprintf("session %q not found", sessionID), nil)
	return e.WithDetail("session_id", sessionID)
}

// SessionExpired creates the error for an expired session id.
func SessionExpired(sessionID string) *StudyError {
	e := New(ErrCodeSessionExpired, fmt.Sprintf("session %q has expired", sessionID), nil)
	return e.WithDetail("session_id", sessionID)
}

// SynthesisTimeout creates the error for an answer-synthesis timeout.
// Distinct from retrieval failure so callers can fall back to raw passages.
func SynthesisTimeout(cause error) *StudyError {
	e := New(ErrCodeSynthesisTimeout, "answer synthesis timed out after retrieval succeeded", cause)
	return e.WithSuggestion("retry, or display the retrieved passages without a synthesized answer")
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *StudyError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *StudyError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a StudyError with the Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(*StudyError); ok {
		return se.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(*StudyError); ok {
		return se.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a StudyError.
// Returns empty string if not a StudyError.
func GetCode(err error) string {
	if se, ok := err.(*StudyError); ok {
		return se.Code
	}
	return ""
}

// GetCategory extracts the category from a StudyError.
// Returns empty string if not a StudyError.
func GetCategory(err error) Category {
	if se, ok := err.(*StudyError); ok {
		return se.Category
	}
	return ""
}

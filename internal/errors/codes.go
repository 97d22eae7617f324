// Package errors provides structured error handling for BibleStudyAI.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (corpus, graph, session store)
//   - 3XX: Collaborator errors (embedder, language model, network)
//   - 4XX: Validation errors
//   - 5XX: Retrieval and synthesis errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates backing-store errors.
	CategoryStorage Category = "STORAGE"
	// CategoryCollaborator indicates external collaborator (embedder/LLM) errors.
	CategoryCollaborator Category = "COLLABORATOR"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryRetrieval indicates retrieval/synthesis pipeline errors.
	CategoryRetrieval Category = "RETRIEVAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound    = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid     = "ERR_102_CONFIG_INVALID"
	ErrCodeDimensionMismatch = "ERR_103_DIMENSION_MISMATCH"

	// Storage errors (200-299)
	ErrCodeStoreUnavailable = "ERR_201_STORE_UNAVAILABLE"
	ErrCodeCorpusCorrupt    = "ERR_202_CORPUS_CORRUPT"
	ErrCodeSessionNotFound  = "ERR_203_SESSION_NOT_FOUND"
	ErrCodeSessionExpired   = "ERR_204_SESSION_EXPIRED"

	// Collaborator errors (300-399)
	ErrCodeEmbeddingFailed  = "ERR_301_EMBEDDING_FAILED"
	ErrCodeModelUnavailable = "ERR_302_MODEL_UNAVAILABLE"
	ErrCodeSynthesisTimeout = "ERR_303_SYNTHESIS_TIMEOUT"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty   = "ERR_402_QUERY_EMPTY"
	ErrCodeInvalidDepth = "ERR_403_INVALID_DEPTH"

	// Retrieval errors (500-599)
	ErrCodeAdapterUnavailable = "ERR_501_ADAPTER_UNAVAILABLE"
	ErrCodeAllAdaptersFailed  = "ERR_502_ALL_ADAPTERS_FAILED"
	ErrCodeNoEvidence         = "ERR_503_NO_EVIDENCE"
	ErrCodeCitationIntegrity  = "ERR_504_CITATION_INTEGRITY"
	ErrCodeInternal           = "ERR_505_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryRetrieval
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryCollaborator
	case '4':
		return CategoryValidation
	default:
		return CategoryRetrieval
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeDimensionMismatch, ErrCodeCorpusCorrupt, ErrCodeConfigInvalid:
		return SeverityFatal
	case ErrCodeAdapterUnavailable, ErrCodeCitationIntegrity:
		// Recovered locally: degraded mode / citation drop.
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Configuration defects and integrity violations are never retryable.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeStoreUnavailable,
		ErrCodeEmbeddingFailed,
		ErrCodeModelUnavailable,
		ErrCodeAdapterUnavailable,
		ErrCodeSynthesisTimeout:
		return true
	}
	return false
}

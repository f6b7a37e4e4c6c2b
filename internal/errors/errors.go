package errors

import (
	stderrors "errors"
	"fmt"
)

// VaultError is the structured error type for the indexing engine.
// It provides context for error handling, logging, and run summaries.
type VaultError struct {
	// Code is the unique error code (e.g., "ERR_201_FILE_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Provider, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *VaultError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *VaultError) Unwrap() error {
	return e.Cause
}

// Is matches errors by code so errors.Is() works with VaultError.
func (e *VaultError) Is(target error) bool {
	if t, ok := target.(*VaultError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *VaultError) WithDetail(key, value string) *VaultError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new VaultError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *VaultError {
	return &VaultError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a VaultError from an existing error.
// The error's message becomes the VaultError message.
func Wrap(code string, err error) *VaultError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ChunkingError wraps a structural parsing failure. Chunking errors
// are recovered locally by fragment-mode slicing and never abort a run.
func ChunkingError(message string, cause error) *VaultError {
	return New(ErrCodeChunkingFailed, message, cause)
}

// ProviderError wraps an embedding-provider failure. The affected
// document or sub-query degrades; the run continues.
func ProviderError(message string, cause error) *VaultError {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// StoreError wraps a vector/keyword store outage. Fatal for the
// current run or query.
func StoreError(message string, cause error) *VaultError {
	return New(ErrCodeStoreUnavailable, message, cause)
}

// ManifestInconsistency reports drift between the manifest and the
// stores for one document. Repaired by reindexing that document.
func ManifestInconsistency(path string, cause error) *VaultError {
	return New(ErrCodeManifestInconsistent, fmt.Sprintf("manifest inconsistent for %s", path), cause).
		WithDetail("path", path)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *VaultError {
	return New(ErrCodeInvalidInput, message, cause)
}

// IsRetryable checks if an error is retryable. Unwraps to find a
// VaultError anywhere in the chain.
func IsRetryable(err error) bool {
	var ve *VaultError
	if stderrors.As(err, &ve) {
		return ve.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors abort the current run or query.
func IsFatal(err error) bool {
	var ve *VaultError
	if stderrors.As(err, &ve) {
		return ve.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a VaultError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var ve *VaultError
	if stderrors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

// GetCategory extracts the category from a VaultError in the chain.
func GetCategory(err error) Category {
	var ve *VaultError
	if stderrors.As(err, &ve) {
		return ve.Category
	}
	return ""
}

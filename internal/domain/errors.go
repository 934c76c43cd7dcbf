package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
	ErrCodeUnavailable      = "UNAVAILABLE"
	ErrCodeConfiguration    = "CONFIGURATION_ERROR"
)

// CodeOf returns the code of the first DomainError in err's chain, or "".
func CodeOf(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// Validation errors
var (
	ErrEmptyQuery         = NewDomainError(ErrCodeValidation, "query cannot be empty")
	ErrEmptyText          = NewDomainError(ErrCodeValidation, "text cannot be empty")
	ErrNoDocuments        = NewDomainError(ErrCodeValidation, "at least one document is required")
	ErrLengthMismatch     = NewDomainError(ErrCodeValidation, "parallel inputs must have equal length")
	ErrInvalidRole        = NewDomainError(ErrCodeValidation, "invalid chat role")
	ErrInvalidIntent      = NewDomainError(ErrCodeValidation, "invalid intent")
	ErrEmptyImage         = NewDomainError(ErrCodeValidation, "image payload is empty")
	ErrInvalidIngestState = NewDomainError(ErrCodeValidation, "invalid ingest job status")
	ErrUnsupportedFormat  = NewDomainError(ErrCodeValidation, "unsupported document format")
	ErrInvalidDocumentKey = NewDomainError(ErrCodeValidation, "document key is required")
)

// Not found errors
var (
	ErrIngestJobNotFound = NewDomainError(ErrCodeNotFound, "ingest job not found")
)

// Remote collaborator errors. These are soft failures: callers pick a fallback.
var (
	ErrEmbeddingUnavailable = NewDomainError(ErrCodeUnavailable, "embedding model unavailable")
	ErrVisionUnavailable    = NewDomainError(ErrCodeUnavailable, "vision model unavailable")
	ErrIndexUnavailable     = NewDomainError(ErrCodeUnavailable, "vector index unavailable")
)

// Operation errors
var (
	ErrNothingIndexed = NewDomainError(ErrCodeInvalidOperation, "no chunk could be embedded, index left untouched")
)

// Configuration errors are fatal for the operation that hits them.
var (
	ErrDimensionMismatch = NewDomainError(ErrCodeConfiguration, "embedding dimension mismatch")
)

// ErrMalformedChunk marks a streamed line that could not be decoded. Streams skip it.
var ErrMalformedChunk = NewDomainError(ErrCodeInternalError, "malformed stream chunk")

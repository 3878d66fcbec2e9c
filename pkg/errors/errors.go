// Package errors defines the sentinel errors of the retrieval engine and an
// AppError wrapper that carries an HTTP status code across the API boundary.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Index build/load failures. These are fatal to the operation that requested
// them; there is no silent empty-index fallback.
var (
	ErrEmptyCorpus   = errors.New("empty corpus")
	ErrIndexNotFound = errors.New("lexical index not found")
	ErrIndexCorrupt  = errors.New("lexical index corrupt")
)

// Semantic retrieval failures, surfaced by the vector backend adapter.
var (
	ErrVectorBackendUnavailable = errors.New("vector backend unavailable")
	ErrCollectionNotFound       = errors.New("vector collection not found")
)

// Fusion-level wrappers: Retrieve reports which side of the hybrid pipeline
// failed so the caller can decide whether a partial result is acceptable.
var (
	ErrLexicalSearch  = errors.New("lexical search failed")
	ErrSemanticSearch = errors.New("semantic search failed")
)

// API-layer failures.
var (
	ErrBookNotFound = errors.New("book not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
)

// AppError wraps a sentinel with a human-readable message and an HTTP status.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError wrapping the given sentinel.
func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Newf creates an AppError with a formatted message.
func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode maps an error to the HTTP status the API should return.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrBookNotFound), errors.Is(err, ErrIndexNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrEmptyCorpus):
		return http.StatusBadRequest
	case errors.Is(err, ErrVectorBackendUnavailable), errors.Is(err, ErrCollectionNotFound):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrLexicalSearch), errors.Is(err, ErrSemanticSearch):
		return http.StatusBadGateway
	case errors.Is(err, ErrIndexCorrupt):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

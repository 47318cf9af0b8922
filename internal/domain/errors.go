package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuery signals malformed or empty search input. Never retried.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrEmbeddingUnavailable signals that the embedding provider is unreachable,
	// timed out, or returned a malformed response.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrRetrievalUnavailable signals that no relevance signal could be retrieved.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	// ErrInvariantViolation signals a bug in the ranking pipeline.
	ErrInvariantViolation = errors.New("internal invariant violation")

	// ErrNotFound signals a missing movie.
	ErrNotFound = errors.New("not found")
	// ErrInvalidMovie signals a movie that fails validation.
	ErrInvalidMovie = errors.New("invalid movie")
)

// InvariantError wraps ErrInvariantViolation with the pipeline stage that detected it.
type InvariantError struct {
	Stage  string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s at %s: %s", ErrInvariantViolation.Error(), e.Stage, e.Detail)
}

func (e *InvariantError) Unwrap() error { return ErrInvariantViolation }

// NewInvariantViolation creates an invariant error for the given stage.
func NewInvariantViolation(stage, format string, args ...any) error {
	return &InvariantError{Stage: stage, Detail: fmt.Sprintf(format, args...)}
}

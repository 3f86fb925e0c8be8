package contract

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("caller not found in directory")
	ErrTransient         = errors.New("transient directory failure")
	ErrMalformedResponse = errors.New("malformed directory response")
	ErrGeneration        = errors.New("generation capability failed")
	ErrValidation        = errors.New("validation failed")
)

// FailureKind classifies a generation capability failure. All kinds are
// handled identically by callers: the single call falls back and the session
// continues.
type FailureKind string

const (
	FailureRateLimited FailureKind = "rate_limited"
	FailureUnavailable FailureKind = "unavailable"
	FailureInvalidKey  FailureKind = "invalid_key"
	FailureTimeout     FailureKind = "timeout"
)

// GenerationError wraps a generation capability failure with its kind.
// It unwraps to both ErrGeneration and the underlying cause.
type GenerationError struct {
	Kind FailureKind
	Err  error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("generation failed: kind=%s", e.Kind)
	}
	return fmt.Sprintf("generation failed: kind=%s: %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrGeneration}
	}
	return []error{ErrGeneration, e.Err}
}

func NewGenerationError(kind FailureKind, err error) *GenerationError {
	return &GenerationError{Kind: kind, Err: err}
}

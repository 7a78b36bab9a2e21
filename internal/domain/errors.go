package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals a malformed request rejected before pipeline entry.
	ErrValidation = errors.New("validation failed")
	// ErrUpstreamUnavailable signals an unreachable embedding, chat or search collaborator.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrTimeout signals that scoring or generation exceeded its deadline.
	ErrTimeout = errors.New("deadline exceeded")
	// ErrParse signals an unparseable model response.
	ErrParse = errors.New("unparseable response")
	// ErrCapacityExceeded signals a saturated worker pool.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrTraceNotFound signals a missing or evicted reasoning trace.
	ErrTraceNotFound = errors.New("trace not found")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = fmt.Errorf("embedding provider error: %w", ErrUpstreamUnavailable)
	// ErrChatProviderError signals a chat provider failure.
	ErrChatProviderError = fmt.Errorf("chat provider error: %w", ErrUpstreamUnavailable)
	// ErrKeywordSearchNotSupported signals that the backend lacks keyword search.
	ErrKeywordSearchNotSupported = errors.New("keyword search not supported by backend")
)

// CapacityError wraps ErrCapacityExceeded with the number of rejected submissions.
type CapacityError struct {
	Rejected int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: %d task(s) rejected", ErrCapacityExceeded.Error(), e.Rejected)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityExceeded }

// NewCapacityError creates a capacity error carrying the rejection count.
func NewCapacityError(rejected int) error {
	return &CapacityError{Rejected: rejected}
}

// Validationf formats a validation error that wraps ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

package vecrag

import "github.com/kailas-cloud/vecrag/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrValidation          = domain.ErrValidation
	ErrTimeout             = domain.ErrTimeout
	ErrCapacityExceeded    = domain.ErrCapacityExceeded
	ErrTraceNotFound       = domain.ErrTraceNotFound
	ErrUpstreamUnavailable = domain.ErrUpstreamUnavailable
)

// CapacityError reports how many scoring tasks the worker pool rejected.
// Retrieve it with errors.As.
type CapacityError = domain.CapacityError

package resilience

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when a breaker rejects a call without
	// invoking the operation.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrBulkheadFull is returned when both the concurrency limit and the
	// queue are saturated; the operation is never invoked.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrBulkheadTimeout is returned when an admitted operation exceeds the
	// bulkhead's execution deadline. The slot is reclaimed before the error
	// surfaces.
	ErrBulkheadTimeout = errors.New("resilience: bulkhead execution timed out")

	// ErrBulkheadShutdown is returned by Execute after Shutdown has been
	// called.
	ErrBulkheadShutdown = errors.New("resilience: bulkhead is shut down")

	// ErrRetriesExhausted matches, via errors.Is, the terminal error of a
	// retry sequence that ran out of attempts.
	ErrRetriesExhausted = errors.New("resilience: retries exhausted")
)

// ExhaustedError is the terminal error of a retry sequence whose final
// attempt still failed with a retryable error. It wraps the last underlying
// error and records the attempt count and elapsed time.
type ExhaustedError struct {
	Attempts int
	Elapsed  time.Duration
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("resilience: retries exhausted after %d attempts in %s: %v",
		e.Attempts, e.Elapsed.Round(time.Millisecond), e.Err)
}

// Unwrap returns the last underlying error.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Is reports ErrRetriesExhausted so callers can match the terminal case
// without depending on the concrete type.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrRetriesExhausted
}

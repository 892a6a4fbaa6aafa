package resilience

import (
	"context"
	"errors"
)

// Classifier decides whether an error belongs to a class of interest: for a
// breaker, whether it counts as a failure; for a retry policy, whether it is
// worth retrying. A Classifier must treat nil as "not in the class".
type Classifier func(err error) bool

// FailOnAny classifies every non-nil error as a failure. It is the default
// breaker classifier.
func FailOnAny(err error) bool {
	return err != nil
}

// MatchErrors builds an allow-list Classifier: an error is in the class when
// errors.Is matches any of the targets.
func MatchErrors(targets ...error) Classifier {
	return func(err error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}
}

// ExceptErrors narrows a Classifier with a deny-list: errors matching any of
// the targets are excluded even when the base classifier accepts them.
func ExceptErrors(base Classifier, targets ...error) Classifier {
	deny := MatchErrors(targets...)
	return func(err error) bool {
		if deny(err) {
			return false
		}
		return base(err)
	}
}

type markedError struct {
	err       error
	retryable bool
}

func (m *markedError) Error() string { return m.err.Error() }
func (m *markedError) Unwrap() error { return m.err }

// MarkRetryable wraps err so that DefaultRetryIf treats it as retryable.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &markedError{err: err, retryable: true}
}

// MarkNonRetryable wraps err so that DefaultRetryIf refuses to retry it.
// Use for programming-error-style failures (invalid argument, not found)
// where a second attempt cannot succeed.
func MarkNonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &markedError{err: err, retryable: false}
}

// IsMarkedRetryable reports whether err carries a MarkRetryable marker.
func IsMarkedRetryable(err error) bool {
	var m *markedError
	return errors.As(err, &m) && m.retryable
}

// IsMarkedNonRetryable reports whether err carries a MarkNonRetryable marker.
func IsMarkedNonRetryable(err error) bool {
	var m *markedError
	return errors.As(err, &m) && !m.retryable
}

// DefaultRetryIf is the default retry classifier. Errors marked non-retryable
// and context cancellation are terminal; everything else, including plain
// connectivity-style errors and deadline expiry, is retried.
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	if IsMarkedNonRetryable(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

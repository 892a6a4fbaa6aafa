package resilience

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Executor composes the resilience primitives around a downstream call in
// the canonical ordering
//
//	breaker( retry( bulkhead(op) ) )
//
// with the bulkhead innermost so every retry attempt re-enters admission
// control, retry in the middle so backpressure from an exhausted bulkhead is
// experienced per attempt, and the breaker outermost so an open circuit
// short-circuits before a queue slot is wasted on a known-failing
// dependency.
//
// Each primitive is optional; an Executor with none configured invokes the
// operation directly.
type Executor struct {
	breaker  *Breaker
	retry    *Policy
	bulkhead *Bulkhead
	tracer   trace.Tracer
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates an executor from the given options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithBreaker sets the outermost circuit breaker.
func WithBreaker(b *Breaker) ExecutorOption {
	return func(e *Executor) {
		e.breaker = b
	}
}

// WithRetryPolicy sets the retry policy applied inside the breaker.
func WithRetryPolicy(p *Policy) ExecutorOption {
	return func(e *Executor) {
		e.retry = p
	}
}

// WithBulkhead sets the innermost bulkhead.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) {
		e.bulkhead = b
	}
}

// WithTracer wraps each protected call in a span recording the outcome and,
// when a retry policy is configured, the attempts consumed.
func WithTracer(t trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		e.tracer = t
	}
}

// Execute runs the operation through the configured primitives. The retry
// layer's Result is flattened back to an error: nil on success, otherwise
// the terminal error.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	execute := op

	if e.bulkhead != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.bulkhead.Execute(ctx, inner)
		}
	}

	attempts := 0
	if e.retry != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			res := e.retry.Execute(ctx, inner)
			attempts = res.Attempts
			return res.Err
		}
	}

	if e.breaker != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.breaker.Execute(ctx, inner)
		}
	}

	if e.tracer == nil {
		return execute(ctx)
	}

	ctx, span := e.tracer.Start(ctx, "resilience.protected_call")
	defer span.End()

	err := execute(ctx)
	if attempts > 0 {
		span.SetAttributes(attribute.Int("resilience.attempts", attempts))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// Protect is the value-returning form of (*Executor).Execute.
func Protect[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := e.Execute(ctx, func(ctx context.Context) error {
		var opErr error
		out, opErr = op(ctx)
		return opErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

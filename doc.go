// Package resilience provides composable fault-tolerance primitives for
// calls to unreliable downstream dependencies.
//
// The package implements three independent primitives. Each wraps a
// caller-supplied operation with admission control, failure classification,
// and timing; none performs I/O of its own.
//
// # Primitives
//
//   - Circuit Breaker: tracks failures per dependency and fast-fails calls
//     to a dependency that is known to be down, probing for recovery after
//     a cool-down period.
//
//   - Bulkhead: bounds the number of concurrent calls (and queued waiters)
//     a dependency may consume, with a per-call execution deadline.
//
//   - Retry Policy: re-invokes a failed operation with exponential backoff
//     and jitter, classifying errors as retryable or terminal.
//
// # Usage
//
// Each primitive is created once per logical dependency and shared by all
// callers of that dependency:
//
//	cb, _ := resilience.NewBreaker("payments-db", resilience.BreakerConfig{
//	    FailureThreshold: 3,
//	    RecoveryTimeout:  time.Minute,
//	})
//
//	bh, _ := resilience.NewBulkhead("payments-db", resilience.DatabaseBulkhead())
//
//	rp, _ := resilience.NewPolicy(resilience.DatabaseRetry())
//
// The primitives carry no references to each other; composition is the
// caller's job, either by nesting closures or through an Executor, which
// applies the canonical ordering breaker(retry(bulkhead(op))):
//
//	exec := resilience.NewExecutor(
//	    resilience.WithBreaker(cb),
//	    resilience.WithRetryPolicy(rp),
//	    resilience.WithBulkhead(bh),
//	)
//
//	err := exec.Execute(ctx, func(ctx context.Context) error {
//	    return queryDatabase(ctx)
//	})
//
// Named instances are collected in a BreakerRegistry or BulkheadRegistry for
// aggregate queries; the observe subpackage exposes registry snapshots as
// OpenTelemetry instruments, and the health subpackage derives health checks
// from them.
package resilience

package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// BulkheadConfig configures a bulkhead.
type BulkheadConfig struct {
	// MaxConcurrent is the maximum number of operations executing at once.
	// Default: 10
	MaxConcurrent int

	// MaxQueue is the maximum number of callers waiting for a slot. When
	// both the executing and queue limits are saturated, Execute rejects
	// immediately with ErrBulkheadFull.
	// Default: 0 (no queueing)
	MaxQueue int

	// Timeout bounds execution time, measured from slot acquisition.
	// Queueing delay is deliberately excluded; bound it with QueueTimeout.
	// Default: 30 seconds
	Timeout time.Duration

	// QueueTimeout bounds how long a caller may wait for a slot. Expiry is
	// reported as ErrBulkheadFull.
	// Default: 0 (wait indefinitely, subject to context cancellation)
	QueueTimeout time.Duration

	// Logger receives shutdown warnings.
	// Default: zap.NewNop()
	Logger *zap.Logger
}

// Bulkhead is a per-resource-class concurrency and queue limiter. It
// isolates one dependency's resource usage so a slow dependency cannot
// starve the others.
//
// All methods are safe for concurrent use.
type Bulkhead struct {
	name   string
	config BulkheadConfig
	sem    *semaphore.Weighted

	mu        sync.Mutex
	drained   *sync.Cond
	executing int
	queued    int
	closed    bool

	submitted int64
	completed int64
	failed    int64
	timedOut  int64
	rejected  int64

	durMin   time.Duration
	durMax   time.Duration
	durTotal time.Duration
	samples  int64
}

// NewBulkhead creates a bulkhead for the named resource class.
// Zero config fields take defaults; explicitly invalid values are errors.
func NewBulkhead(name string, config BulkheadConfig) (*Bulkhead, error) {
	if config.MaxConcurrent < 0 {
		return nil, fmt.Errorf("resilience: bulkhead %q: MaxConcurrent must be >= 1, got %d", name, config.MaxConcurrent)
	}
	if config.MaxQueue < 0 {
		return nil, fmt.Errorf("resilience: bulkhead %q: MaxQueue must be >= 0, got %d", name, config.MaxQueue)
	}
	if config.Timeout < 0 || config.QueueTimeout < 0 {
		return nil, fmt.Errorf("resilience: bulkhead %q: timeouts must be positive", name)
	}

	if config.MaxConcurrent == 0 {
		config.MaxConcurrent = 10
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	b := &Bulkhead{
		name:   name,
		config: config,
		sem:    semaphore.NewWeighted(int64(config.MaxConcurrent)),
	}
	b.drained = sync.NewCond(&b.mu)
	return b, nil
}

// Name returns the bulkhead's identity.
func (b *Bulkhead) Name() string {
	return b.name
}

// Execute runs the operation under the bulkhead's admission control.
//
// It returns ErrBulkheadFull when admission is rejected, ErrBulkheadTimeout
// when the operation exceeds the execution deadline, ErrBulkheadShutdown
// after Shutdown, ctx.Err() on cancellation, and otherwise op's own error.
// The concurrency slot is released on every exit path.
func (b *Bulkhead) Execute(ctx context.Context, op func(context.Context) error) error {
	queued, err := b.admit()
	if err != nil {
		return err
	}
	if queued {
		if err := b.await(ctx); err != nil {
			return err
		}
	}
	defer b.release()

	start := time.Now()
	err = b.invoke(ctx, op)
	b.recordOutcome(time.Since(start), err)
	return err
}

// Run is the value-returning form of (*Bulkhead).Execute.
func Run[T any](ctx context.Context, b *Bulkhead, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := b.Execute(ctx, func(ctx context.Context) error {
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

// admit takes a free slot immediately when one exists; otherwise it reserves
// a queue position, or rejects without ever invoking the operation.
func (b *Bulkhead) admit() (queued bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false, ErrBulkheadShutdown
	}

	// Fast path: free slot, no queueing.
	if b.sem.TryAcquire(1) {
		b.executing++
		b.submitted++
		return false, nil
	}

	if b.queued >= b.config.MaxQueue {
		b.rejected++
		return false, ErrBulkheadFull
	}

	b.queued++
	b.submitted++
	return true, nil
}

// await blocks until a concurrency slot is free, then moves the caller from
// queued to executing. On failure the queued reservation is released without
// ever entering executing.
func (b *Bulkhead) await(ctx context.Context) error {
	waitCtx := ctx
	if b.config.QueueTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, b.config.QueueTimeout)
		defer cancel()
	}

	if err := b.sem.Acquire(waitCtx, 1); err != nil {
		b.mu.Lock()
		b.queued--
		queueExpired := ctx.Err() == nil
		if queueExpired {
			b.rejected++
		}
		b.drained.Broadcast()
		b.mu.Unlock()

		if queueExpired {
			return ErrBulkheadFull
		}
		return ctx.Err()
	}

	b.mu.Lock()
	b.queued--
	b.executing++
	b.mu.Unlock()
	return nil
}

func (b *Bulkhead) release() {
	b.mu.Lock()
	b.executing--
	b.drained.Broadcast()
	b.mu.Unlock()
	b.sem.Release(1)
}

// invoke runs op under the execution deadline. The operation runs in its own
// goroutine so a blocking op that ignores its context still times out; a
// timed-out op may briefly outlive its slot.
func (b *Bulkhead) invoke(ctx context.Context, op func(context.Context) error) error {
	runCtx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(runCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrBulkheadTimeout
	}
}

func (b *Bulkhead) recordOutcome(elapsed time.Duration, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch err {
	case nil:
		b.completed++
	case ErrBulkheadTimeout:
		b.timedOut++
	default:
		b.failed++
	}

	b.samples++
	b.durTotal += elapsed
	if elapsed > b.durMax {
		b.durMax = elapsed
	}
	if b.samples == 1 || elapsed < b.durMin {
		b.durMin = elapsed
	}
}

// Shutdown stops admitting new work and waits for queued and executing
// operations to drain. If ctx expires first, a warning is logged and the
// context error returned; in-flight work is not cancelled.
func (b *Bulkhead) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	idle := make(chan struct{})
	go func() {
		b.mu.Lock()
		for b.executing > 0 || b.queued > 0 {
			b.drained.Wait()
		}
		b.mu.Unlock()
		close(idle)
	}()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		b.mu.Lock()
		executing, queued := b.executing, b.queued
		b.mu.Unlock()
		b.config.Logger.Warn("bulkhead shutdown timed out with work in flight",
			zap.String("bulkhead", b.name),
			zap.Int("executing", executing),
			zap.Int("queued", queued))
		return ctx.Err()
	}
}

// DurationStats summarizes observed execution times.
type DurationStats struct {
	Min     time.Duration
	Max     time.Duration
	Average time.Duration
	Samples int64
}

// BulkheadStats is a read-only snapshot of a bulkhead, suitable for periodic
// export. Executing and Queued are live gauges; the remaining counters are
// monotonic.
type BulkheadStats struct {
	Name          string
	MaxConcurrent int
	MaxQueue      int
	Executing     int
	Queued        int
	Submitted     int64
	Completed     int64
	Failed        int64
	TimedOut      int64
	Rejected      int64
	Durations     DurationStats
}

// Stats returns a snapshot of the bulkhead's gauges and counters.
func (b *Bulkhead) Stats() BulkheadStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	durations := DurationStats{
		Min:     b.durMin,
		Max:     b.durMax,
		Samples: b.samples,
	}
	if b.samples > 0 {
		durations.Average = b.durTotal / time.Duration(b.samples)
	}

	return BulkheadStats{
		Name:          b.name,
		MaxConcurrent: b.config.MaxConcurrent,
		MaxQueue:      b.config.MaxQueue,
		Executing:     b.executing,
		Queued:        b.queued,
		Submitted:     b.submitted,
		Completed:     b.completed,
		Failed:        b.failed,
		TimedOut:      b.timedOut,
		Rejected:      b.rejected,
		Durations:     durations,
	}
}

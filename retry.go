package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RetryConfig configures a retry policy.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	// Default: 3
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	// Default: 100ms
	BaseDelay time.Duration

	// MaxDelay caps the computed delay between attempts.
	// Default: 30s
	MaxDelay time.Duration

	// Multiplier is the exponential backoff multiplier.
	// Default: 2.0
	Multiplier float64

	// Jitter randomizes each delay by up to ±JitterFraction of its capped
	// value, preventing synchronized retry storms across callers.
	Jitter bool

	// JitterFraction is the jitter magnitude as a fraction of the delay.
	// Default: 0.2
	JitterFraction float64

	// RetryIf classifies errors worth retrying. Errors it rejects are
	// terminal on first occurrence, consuming exactly one attempt.
	// Default: DefaultRetryIf
	RetryIf Classifier

	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, err error, delay time.Duration)

	// Logger receives per-attempt failure logs.
	// Default: zap.NewNop()
	Logger *zap.Logger
}

// Policy re-invokes failed operations with exponential backoff and jitter.
//
// A Policy holds no per-call state beyond its lifetime statistics and may be
// shared by any number of concurrent callers.
type Policy struct {
	config RetryConfig

	mu            sync.Mutex
	executions    int64
	successes     int64
	failures      int64
	totalAttempts int64
	exhausted     int64
}

// NewPolicy creates a retry policy.
// Zero config fields take defaults; explicitly invalid values are errors.
func NewPolicy(config RetryConfig) (*Policy, error) {
	if config.MaxAttempts < 0 {
		return nil, fmt.Errorf("resilience: retry policy: MaxAttempts must be >= 1, got %d", config.MaxAttempts)
	}
	if config.BaseDelay < 0 || config.MaxDelay < 0 {
		return nil, fmt.Errorf("resilience: retry policy: delays must be positive")
	}
	if config.Multiplier < 0 || config.JitterFraction < 0 {
		return nil, fmt.Errorf("resilience: retry policy: Multiplier and JitterFraction must be positive")
	}

	if config.MaxAttempts == 0 {
		config.MaxAttempts = 3
	}
	if config.BaseDelay == 0 {
		config.BaseDelay = 100 * time.Millisecond
	}
	if config.MaxDelay == 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Multiplier == 0 {
		config.Multiplier = 2.0
	}
	if config.JitterFraction == 0 {
		config.JitterFraction = 0.2
	}
	if config.RetryIf == nil {
		config.RetryIf = DefaultRetryIf
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Policy{config: config}, nil
}

// Result is the outcome of a retry sequence. Running out of attempts is an
// expected terminal state, reported as a value rather than surfaced through
// a thrown error.
type Result struct {
	// OK reports whether any attempt succeeded.
	OK bool

	// Err is nil on success. On terminal failure it is the non-retryable
	// error unchanged, an *ExhaustedError when attempts ran out, or the
	// context/timeout error when the sequence was cut short.
	Err error

	// Attempts is the number of attempts consumed (1-indexed).
	Attempts int

	// Elapsed is the total wall time including backoff delays.
	Elapsed time.Duration
}

type callOptions struct {
	timeout  time.Duration
	progress func(attempt int, err error)
}

// CallOption adjusts a single Execute call.
type CallOption func(*callOptions)

// WithTimeout bounds the whole retry sequence, attempts and delays included.
// Expiry terminates the sequence early with a timeout-flavored Result.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// WithProgress registers a callback invoked after each failed attempt that
// will be retried.
func WithProgress(fn func(attempt int, err error)) CallOption {
	return func(o *callOptions) { o.progress = fn }
}

// Execute runs the operation under the retry policy and always returns a
// Result; see Result for the terminal cases.
func (p *Policy) Execute(ctx context.Context, op func(context.Context) error, opts ...CallOption) Result {
	var options callOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.timeout)
		defer cancel()
	}

	start := time.Now()
	var lastErr error

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return p.finish(Result{OK: true, Attempts: attempt, Elapsed: time.Since(start)})
		}
		lastErr = err

		if !p.config.RetryIf(err) {
			// Terminal on first occurrence; the error propagates unchanged.
			return p.finish(Result{Err: err, Attempts: attempt, Elapsed: time.Since(start)})
		}
		if attempt >= p.config.MaxAttempts {
			return p.finish(Result{
				Err:      &ExhaustedError{Attempts: attempt, Elapsed: time.Since(start), Err: lastErr},
				Attempts: attempt,
				Elapsed:  time.Since(start),
			})
		}

		delay := p.delay(attempt)
		p.config.Logger.Warn("retry attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.config.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err))
		if p.config.OnRetry != nil {
			p.config.OnRetry(attempt, err, delay)
		}
		if options.progress != nil {
			options.progress(attempt, err)
		}

		select {
		case <-ctx.Done():
			return p.finish(Result{Err: ctx.Err(), Attempts: attempt, Elapsed: time.Since(start)})
		case <-time.After(delay):
		}
	}
}

// Do is the value-returning form of (*Policy).Execute.
func Do[T any](ctx context.Context, p *Policy, op func(context.Context) (T, error), opts ...CallOption) (T, Result) {
	var out T
	res := p.Execute(ctx, func(ctx context.Context) error {
		var opErr error
		out, opErr = op(ctx)
		return opErr
	}, opts...)
	if !res.OK {
		var zero T
		return zero, res
	}
	return out, res
}

// delay computes the backoff before attempt n+1, per the formula
// min(BaseDelay * Multiplier^(n-1), MaxDelay) ± jitter.
func (p *Policy) delay(attempt int) time.Duration {
	raw := float64(p.config.BaseDelay) * math.Pow(p.config.Multiplier, float64(attempt-1))
	capped := math.Min(raw, float64(p.config.MaxDelay))

	if p.config.Jitter {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		capped += (rand.Float64()*2 - 1) * p.config.JitterFraction * capped
		if capped < 0 {
			capped = 0
		}
	}

	return time.Duration(capped)
}

func (p *Policy) finish(res Result) Result {
	p.mu.Lock()
	p.executions++
	p.totalAttempts += int64(res.Attempts)
	if res.OK {
		p.successes++
	} else {
		p.failures++
		if errors.Is(res.Err, ErrRetriesExhausted) {
			p.exhausted++
		}
	}
	p.mu.Unlock()
	return res
}

// Statistics aggregates outcomes across all calls on one Policy.
type Statistics struct {
	Executions      int64
	Successes       int64
	Failures        int64
	AverageAttempts float64
	Exhausted       int64
}

// Statistics returns a snapshot of the policy's lifetime statistics.
func (p *Policy) Statistics() Statistics {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := Statistics{
		Executions: p.executions,
		Successes:  p.successes,
		Failures:   p.failures,
		Exhausted:  p.exhausted,
	}
	if p.executions > 0 {
		stats.AverageAttempts = float64(p.totalAttempts) / float64(p.executions)
	}
	return stats
}

// ResetStatistics zeroes the lifetime statistics.
func (p *Policy) ResetStatistics() {
	p.mu.Lock()
	p.executions = 0
	p.successes = 0
	p.failures = 0
	p.totalAttempts = 0
	p.exhausted = 0
	p.mu.Unlock()
}

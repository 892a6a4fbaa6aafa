package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is operating normally.
	StateClosed State = iota
	// StateOpen means the circuit is rejecting all requests.
	StateOpen
	// StateHalfOpen means the circuit is probing whether the dependency
	// recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive classified failures in
	// the closed state that opens the circuit.
	// Default: 5
	FailureThreshold int

	// RecoveryTimeout is how long an open circuit rejects calls before the
	// next call is allowed through as a half-open probe.
	// Default: 60 seconds
	RecoveryTimeout time.Duration

	// HalfOpenSuccesses is the number of consecutive successes in the
	// half-open state required to close the circuit.
	// Default: 2
	HalfOpenSuccesses int

	// IsFailure classifies errors that count against the breaker. Errors it
	// rejects propagate to the caller unchanged and leave breaker state
	// untouched.
	// Default: FailOnAny
	IsFailure Classifier

	// OnStateChange is called on every state transition. It runs under the
	// breaker's lock and must not call back into the breaker.
	OnStateChange func(from, to State)

	// Logger receives state-transition and rejection logs.
	// Default: zap.NewNop()
	Logger *zap.Logger
}

// Breaker is a per-dependency failure tracker and fast-fail gate.
//
// A Breaker is created once per logical dependency and shared by all callers
// of that dependency; all methods are safe for concurrent use.
type Breaker struct {
	name   string
	config BreakerConfig

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	lastFailure time.Time
	rejections  int64
}

// NewBreaker creates a circuit breaker for the named dependency.
// Zero config fields take defaults; explicitly invalid values are errors.
func NewBreaker(name string, config BreakerConfig) (*Breaker, error) {
	if config.FailureThreshold < 0 {
		return nil, fmt.Errorf("resilience: breaker %q: FailureThreshold must be >= 1, got %d", name, config.FailureThreshold)
	}
	if config.RecoveryTimeout < 0 {
		return nil, fmt.Errorf("resilience: breaker %q: RecoveryTimeout must be positive, got %s", name, config.RecoveryTimeout)
	}
	if config.HalfOpenSuccesses < 0 {
		return nil, fmt.Errorf("resilience: breaker %q: HalfOpenSuccesses must be >= 1, got %d", name, config.HalfOpenSuccesses)
	}

	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout == 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	if config.HalfOpenSuccesses == 0 {
		config.HalfOpenSuccesses = 2
	}
	if config.IsFailure == nil {
		config.IsFailure = FailOnAny
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Breaker{
		name:   name,
		config: config,
		state:  StateClosed,
	}, nil
}

// Name returns the breaker's identity.
func (b *Breaker) Name() string {
	return b.name
}

// Execute runs the operation through the circuit breaker. It returns
// ErrCircuitOpen, without invoking op, while the circuit is open and the
// recovery timeout has not elapsed; otherwise it returns op's result
// unchanged.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := op(ctx)
	b.record(err)
	return err
}

// Call is the value-returning form of (*Breaker).Execute.
func Call[T any](ctx context.Context, b *Breaker, op func(context.Context) (T, error)) (T, error) {
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

// admit decides, without blocking, whether the next call may proceed.
// The open-to-half-open transition is lazy: the clock is checked only here,
// when a caller actually attempts a call.
func (b *Breaker) admit() error {
	b.mu.Lock()

	if b.state == StateOpen {
		if time.Since(b.lastFailure) < b.config.RecoveryTimeout {
			b.rejections++
			b.mu.Unlock()
			b.config.Logger.Debug("circuit breaker rejected call",
				zap.String("breaker", b.name))
			return ErrCircuitOpen
		}
		b.transition(StateHalfOpen)
	}

	b.mu.Unlock()
	return nil
}

// record feeds op's outcome into the state machine. Errors the classifier
// rejects affect neither the failure nor the success counters.
func (b *Breaker) record(err error) {
	b.mu.Lock()

	switch {
	case err == nil:
		b.onSuccess()
	case b.config.IsFailure(err):
		b.onFailure()
	}

	b.mu.Unlock()
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.HalfOpenSuccesses {
			b.transition(StateClosed)
		}
	}
}

func (b *Breaker) onFailure() {
	b.lastFailure = time.Now()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		// A failed probe reopens immediately, regardless of prior successes.
		b.failures = 1
		b.transition(StateOpen)
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to

	switch to {
	case StateClosed:
		b.failures = 0
		b.successes = 0
	case StateHalfOpen:
		b.successes = 0
	}

	b.config.Logger.Warn("circuit breaker state change",
		zap.String("breaker", b.name),
		zap.Stringer("from", from),
		zap.Stringer("to", to))

	if b.config.OnStateChange != nil {
		b.config.OnStateChange(from, to)
	}
}

// RecordFailure records a classified failure that was observed outside
// Execute, for integration with callers that invoke the dependency directly.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	b.onFailure()
	b.mu.Unlock()
}

// State returns the current circuit state. An open circuit whose recovery
// timeout has elapsed still reports open: the half-open transition happens
// only on an actual call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker back to closed with all counters cleared.
func (b *Breaker) Reset() {
	b.mu.Lock()
	b.transition(StateClosed)
	b.failures = 0
	b.successes = 0
	b.mu.Unlock()
}

// BreakerMetrics is a read-only snapshot of a breaker, suitable for periodic
// export.
type BreakerMetrics struct {
	Name             string
	State            State
	Failures         int
	Successes        int
	LastFailure      time.Time
	Rejections       int64
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// Metrics returns a snapshot of the breaker's current state and counters.
func (b *Breaker) Metrics() BreakerMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BreakerMetrics{
		Name:             b.name,
		State:            b.state,
		Failures:         b.failures,
		Successes:        b.successes,
		LastFailure:      b.lastFailure,
		Rejections:       b.rejections,
		FailureThreshold: b.config.FailureThreshold,
		RecoveryTimeout:  b.config.RecoveryTimeout,
	}
}

package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jonwraymond/resilience"
)

// Collector publishes breaker and bulkhead snapshots through asynchronous
// OpenTelemetry instruments. Either registry may be nil.
type Collector struct {
	breakers  *resilience.BreakerRegistry
	bulkheads *resilience.BulkheadRegistry

	breakerState      metric.Int64ObservableGauge
	breakerFailures   metric.Int64ObservableGauge
	breakerRejections metric.Int64ObservableCounter

	bulkheadExecuting metric.Int64ObservableGauge
	bulkheadQueued    metric.Int64ObservableGauge
	bulkheadSubmitted metric.Int64ObservableCounter
	bulkheadCompleted metric.Int64ObservableCounter
	bulkheadFailed    metric.Int64ObservableCounter
	bulkheadTimedOut  metric.Int64ObservableCounter
	bulkheadRejected  metric.Int64ObservableCounter

	registration metric.Registration
}

// NewCollector registers the instruments on the meter and starts observing
// the given registries on every collection cycle.
func NewCollector(meter metric.Meter, breakers *resilience.BreakerRegistry, bulkheads *resilience.BulkheadRegistry) (*Collector, error) {
	c := &Collector{breakers: breakers, bulkheads: bulkheads}

	var err error
	c.breakerState, err = meter.Int64ObservableGauge(
		"resilience.breaker.state",
		metric.WithDescription("Circuit breaker state (0 closed, 1 open, 2 half-open)"),
	)
	if err != nil {
		return nil, err
	}

	c.breakerFailures, err = meter.Int64ObservableGauge(
		"resilience.breaker.failures",
		metric.WithDescription("Consecutive classified failures tracked by the breaker"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	c.breakerRejections, err = meter.Int64ObservableCounter(
		"resilience.breaker.rejections",
		metric.WithDescription("Calls rejected while the circuit was open"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	c.bulkheadExecuting, err = meter.Int64ObservableGauge(
		"resilience.bulkhead.executing",
		metric.WithDescription("Operations currently executing in the bulkhead"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	c.bulkheadQueued, err = meter.Int64ObservableGauge(
		"resilience.bulkhead.queued",
		metric.WithDescription("Callers currently waiting for a bulkhead slot"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	c.bulkheadSubmitted, err = meter.Int64ObservableCounter(
		"resilience.bulkhead.submitted",
		metric.WithDescription("Operations admitted into the bulkhead"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	c.bulkheadCompleted, err = meter.Int64ObservableCounter(
		"resilience.bulkhead.completed",
		metric.WithDescription("Operations that completed successfully"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	c.bulkheadFailed, err = meter.Int64ObservableCounter(
		"resilience.bulkhead.failed",
		metric.WithDescription("Operations that completed with an error"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	c.bulkheadTimedOut, err = meter.Int64ObservableCounter(
		"resilience.bulkhead.timed_out",
		metric.WithDescription("Operations that exceeded the execution deadline"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	c.bulkheadRejected, err = meter.Int64ObservableCounter(
		"resilience.bulkhead.rejected",
		metric.WithDescription("Submissions rejected at admission"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	c.registration, err = meter.RegisterCallback(c.observe,
		c.breakerState, c.breakerFailures, c.breakerRejections,
		c.bulkheadExecuting, c.bulkheadQueued,
		c.bulkheadSubmitted, c.bulkheadCompleted, c.bulkheadFailed,
		c.bulkheadTimedOut, c.bulkheadRejected,
	)
	if err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Collector) observe(ctx context.Context, o metric.Observer) error {
	if c.breakers != nil {
		for _, m := range c.breakers.Metrics() {
			attrs := metric.WithAttributes(attribute.String("breaker", m.Name))
			o.ObserveInt64(c.breakerState, int64(m.State), attrs)
			o.ObserveInt64(c.breakerFailures, int64(m.Failures), attrs)
			o.ObserveInt64(c.breakerRejections, m.Rejections, attrs)
		}
	}

	if c.bulkheads != nil {
		for _, s := range c.bulkheads.Stats() {
			attrs := metric.WithAttributes(attribute.String("bulkhead", s.Name))
			o.ObserveInt64(c.bulkheadExecuting, int64(s.Executing), attrs)
			o.ObserveInt64(c.bulkheadQueued, int64(s.Queued), attrs)
			o.ObserveInt64(c.bulkheadSubmitted, s.Submitted, attrs)
			o.ObserveInt64(c.bulkheadCompleted, s.Completed, attrs)
			o.ObserveInt64(c.bulkheadFailed, s.Failed, attrs)
			o.ObserveInt64(c.bulkheadTimedOut, s.TimedOut, attrs)
			o.ObserveInt64(c.bulkheadRejected, s.Rejected, attrs)
		}
	}

	return nil
}

// Unregister stops the collector's callback. The instruments remain
// registered on the meter but go silent.
func (c *Collector) Unregister() error {
	return c.registration.Unregister()
}

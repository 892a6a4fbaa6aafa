package health

import (
	"context"
	"fmt"

	"github.com/jonwraymond/resilience"
)

// Bulkhead saturation thresholds: a bulkhead running at 95% of its
// concurrency limit, or shedding 5% of its submissions, is unhealthy.
const (
	utilizationLimit   = 0.95
	rejectionRateLimit = 0.05
)

// BreakerChecker reports the health of every breaker in a registry: open is
// unhealthy, half-open degraded.
type BreakerChecker struct {
	name     string
	registry *resilience.BreakerRegistry
}

// NewBreakerChecker creates a checker over the registry.
func NewBreakerChecker(name string, registry *resilience.BreakerRegistry) *BreakerChecker {
	return &BreakerChecker{name: name, registry: registry}
}

// Name returns the name of this checker.
func (c *BreakerChecker) Name() string {
	return c.name
}

// Check rolls up the registry's breaker states into one result.
func (c *BreakerChecker) Check(ctx context.Context) Result {
	status := StatusHealthy
	details := make(map[string]any)

	for _, m := range c.registry.Metrics() {
		details[m.Name] = m.State.String()

		switch m.State {
		case resilience.StateOpen:
			status = StatusUnhealthy
		case resilience.StateHalfOpen:
			if worse(StatusDegraded, status) {
				status = StatusDegraded
			}
		}
	}

	result := Result{Status: status, Details: details}
	switch status {
	case StatusHealthy:
		result.Message = "all circuits closed"
	case StatusDegraded:
		result.Message = "circuits probing recovery"
	case StatusUnhealthy:
		result.Message = fmt.Sprintf("open circuits: %v", c.registry.OpenCircuits())
	}
	return result
}

// BulkheadChecker reports the health of every bulkhead in a registry based
// on utilization and rejection rate.
type BulkheadChecker struct {
	name     string
	registry *resilience.BulkheadRegistry
}

// NewBulkheadChecker creates a checker over the registry.
func NewBulkheadChecker(name string, registry *resilience.BulkheadRegistry) *BulkheadChecker {
	return &BulkheadChecker{name: name, registry: registry}
}

// Name returns the name of this checker.
func (c *BulkheadChecker) Name() string {
	return c.name
}

// Check rolls up the registry's bulkhead stats into one result.
func (c *BulkheadChecker) Check(ctx context.Context) Result {
	status := StatusHealthy
	details := make(map[string]any)

	for _, s := range c.registry.Stats() {
		utilization := float64(s.Executing) / float64(s.MaxConcurrent)
		rejectionRate := 0.0
		if total := s.Submitted + s.Rejected; total > 0 {
			rejectionRate = float64(s.Rejected) / float64(total)
		}

		details[s.Name] = map[string]any{
			"utilization":    utilization,
			"rejection_rate": rejectionRate,
		}

		if utilization >= utilizationLimit || rejectionRate >= rejectionRateLimit {
			status = StatusUnhealthy
		} else if utilization >= utilizationLimit/2 && worse(StatusDegraded, status) {
			status = StatusDegraded
		}
	}

	result := Result{Status: status, Details: details}
	switch status {
	case StatusHealthy:
		result.Message = "bulkheads within limits"
	case StatusDegraded:
		result.Message = "bulkhead utilization elevated"
	case StatusUnhealthy:
		result.Message = "bulkhead saturated or shedding load"
	}
	return result
}

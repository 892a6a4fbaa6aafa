package health

import "context"

// Status represents the health of a component.
type Status int

const (
	// StatusHealthy indicates the component is functioning normally.
	StatusHealthy Status = iota
	// StatusDegraded indicates the component is functioning but under
	// stress.
	StatusDegraded
	// StatusUnhealthy indicates the component is not functioning properly.
	StatusUnhealthy
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// worse reports whether a outranks b in severity.
func worse(a, b Status) bool {
	return a > b
}

// Result is the outcome of a health check.
type Result struct {
	// Status is the health status.
	Status Status

	// Message provides context about the status.
	Message string

	// Details contains arbitrary metadata about the check.
	Details map[string]any
}

// Checker is the interface for health checks.
type Checker interface {
	// Name returns the name of this checker.
	Name() string

	// Check performs the health check and returns the result.
	Check(ctx context.Context) Result
}

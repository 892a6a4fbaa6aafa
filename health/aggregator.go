package health

import (
	"context"
	"sync"
)

// Aggregator combines multiple health checkers into a single composite
// check. The overall status is the worst individual status.
type Aggregator struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	order    []string // registration order
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{checkers: make(map[string]Checker)}
}

// Register adds a checker under its own name, replacing any previous checker
// with that name.
func (a *Aggregator) Register(c Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.checkers[c.Name()]; !exists {
		a.order = append(a.order, c.Name())
	}
	a.checkers[c.Name()] = c
}

// CheckerNames returns the registered checker names in registration order.
func (a *Aggregator) CheckerNames() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, len(a.order))
	copy(names, a.order)
	return names
}

// Check runs every registered checker and returns the per-checker results
// plus the overall (worst) status.
func (a *Aggregator) Check(ctx context.Context) (Status, map[string]Result) {
	a.mu.RLock()
	checkers := make([]Checker, 0, len(a.checkers))
	for _, name := range a.order {
		checkers = append(checkers, a.checkers[name])
	}
	a.mu.RUnlock()

	overall := StatusHealthy
	results := make(map[string]Result, len(checkers))
	for _, c := range checkers {
		res := c.Check(ctx)
		results[c.Name()] = res
		if worse(res.Status, overall) {
			overall = res.Status
		}
	}
	return overall, results
}

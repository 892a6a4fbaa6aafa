package resilience

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"
)

// BreakerRegistry is a named collection of circuit breakers. Registries are
// plain values constructed at application startup and passed to whatever
// needs aggregate queries; there is no package-level instance.
type BreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewBreakerRegistry creates an empty breaker registry.
func NewBreakerRegistry() *BreakerRegistry {
	return &BreakerRegistry{breakers: make(map[string]*Breaker)}
}

// Register adds a breaker under its own name. Registering a second breaker
// with the same name is an error.
func (r *BreakerRegistry) Register(b *Breaker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.breakers[b.Name()]; exists {
		return fmt.Errorf("resilience: breaker %q already registered", b.Name())
	}
	r.breakers[b.Name()] = b
	return nil
}

// Get returns the named breaker.
func (r *BreakerRegistry) Get(name string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[name]
	return b, ok
}

// Names returns the registered breaker names, sorted.
func (r *BreakerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Metrics returns snapshots for every registered breaker, sorted by name.
func (r *BreakerRegistry) Metrics() []BreakerMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]BreakerMetrics, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Metrics())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// OpenCircuits returns the names of breakers currently in the open state,
// sorted.
func (r *BreakerRegistry) OpenCircuits() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var open []string
	for name, b := range r.breakers {
		if b.State() == StateOpen {
			open = append(open, name)
		}
	}
	sort.Strings(open)
	return open
}

// ResetAll forces every registered breaker back to closed.
func (r *BreakerRegistry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, b := range r.breakers {
		b.Reset()
	}
}

// BulkheadRegistry is a named collection of bulkheads.
type BulkheadRegistry struct {
	mu        sync.RWMutex
	bulkheads map[string]*Bulkhead
}

// NewBulkheadRegistry creates an empty bulkhead registry.
func NewBulkheadRegistry() *BulkheadRegistry {
	return &BulkheadRegistry{bulkheads: make(map[string]*Bulkhead)}
}

// Register adds a bulkhead under its own name. Registering a second bulkhead
// with the same name is an error.
func (r *BulkheadRegistry) Register(b *Bulkhead) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bulkheads[b.Name()]; exists {
		return fmt.Errorf("resilience: bulkhead %q already registered", b.Name())
	}
	r.bulkheads[b.Name()] = b
	return nil
}

// Get returns the named bulkhead.
func (r *BulkheadRegistry) Get(name string) (*Bulkhead, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bulkheads[name]
	return b, ok
}

// Names returns the registered bulkhead names, sorted.
func (r *BulkheadRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.bulkheads))
	for name := range r.bulkheads {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats returns snapshots for every registered bulkhead, sorted by name.
func (r *BulkheadRegistry) Stats() []BulkheadStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]BulkheadStats, 0, len(r.bulkheads))
	for _, b := range r.bulkheads {
		out = append(out, b.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ShutdownAll shuts down every registered bulkhead, collecting any errors.
func (r *BulkheadRegistry) ShutdownAll(ctx context.Context) error {
	r.mu.RLock()
	bulkheads := make([]*Bulkhead, 0, len(r.bulkheads))
	for _, b := range r.bulkheads {
		bulkheads = append(bulkheads, b)
	}
	r.mu.RUnlock()

	var err error
	for _, b := range bulkheads {
		if shutdownErr := b.Shutdown(ctx); shutdownErr != nil {
			err = multierr.Append(err, fmt.Errorf("bulkhead %q: %w", b.Name(), shutdownErr))
		}
	}
	return err
}

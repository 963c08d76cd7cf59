// Package loadbalance picks which receiver endpoint a transport client dials
// when discovery returns more than one.
//
// Two strategies are implemented:
//   - RoundRobin:      equal-capacity endpoints
//   - WeightedRandom:  heterogeneous endpoints (different CPU/memory)
package loadbalance

import "typed-msg/registry"

// Balancer selects one instance per outgoing round trip.
type Balancer interface {
	// Pick selects one instance from the available list.
	// Called on every round trip; must be goroutine-safe.
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

package registry

import (
	"fmt"
	"sync"
)

// StaticRegistry is an in-memory Registry for tests and single-process or
// fixed-topology deployments. TTLs are ignored; entries live until
// deregistered.
type StaticRegistry struct {
	mu        sync.RWMutex
	instances map[string][]ServiceInstance
	watchers  map[string][]chan []ServiceInstance
}

func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		instances: make(map[string][]ServiceInstance),
		watchers:  make(map[string][]chan []ServiceInstance),
	}
}

func (r *StaticRegistry) Register(serviceName string, instance ServiceInstance, ttl int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.instances[serviceName] {
		if existing.Addr == instance.Addr {
			return fmt.Errorf("instance %s already registered for %s", instance.Addr, serviceName)
		}
	}
	r.instances[serviceName] = append(r.instances[serviceName], instance)
	r.notify(serviceName)
	return nil
}

func (r *StaticRegistry) Deregister(serviceName string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.instances[serviceName][:0]
	for _, existing := range r.instances[serviceName] {
		if existing.Addr != addr {
			kept = append(kept, existing)
		}
	}
	r.instances[serviceName] = kept
	r.notify(serviceName)
	return nil
}

func (r *StaticRegistry) Discover(serviceName string) ([]ServiceInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ServiceInstance, len(r.instances[serviceName]))
	copy(out, r.instances[serviceName])
	return out, nil
}

func (r *StaticRegistry) Watch(serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	r.mu.Lock()
	r.watchers[serviceName] = append(r.watchers[serviceName], ch)
	r.mu.Unlock()
	return ch
}

// notify is called with the write lock held.
func (r *StaticRegistry) notify(serviceName string) {
	snapshot := make([]ServiceInstance, len(r.instances[serviceName]))
	copy(snapshot, r.instances[serviceName])
	for _, ch := range r.watchers[serviceName] {
		select {
		case ch <- snapshot:
		default: // slow watcher; drop rather than block registration
		}
	}
}

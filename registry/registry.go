// Package registry provides endpoint discovery for the optional TCP
// transport: which addresses currently serve a given protocol endpoint.
//
// The protocol core never touches this; it only matters to transport clients
// that need to find a receiver to dial.
package registry

// ServiceInstance is one reachable receiver endpoint.
type ServiceInstance struct {
	Addr    string
	Weight  int // Weight for load balancing
	Version string
}

type Registry interface {
	Register(serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(serviceName string, addr string) error
	Discover(serviceName string) ([]ServiceInstance, error)
	Watch(serviceName string) <-chan []ServiceInstance
}

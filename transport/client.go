package transport

import (
	"context"
	"fmt"
	"sync"

	"typed-msg/loadbalance"
	"typed-msg/registry"
)

// Client resolves a service name through a registry, balances across the
// discovered endpoints, and keeps a small pool of multiplexed connections per
// endpoint. Its RoundTrip method is a sender.RawSendFunc.
type Client struct {
	registry registry.Registry
	balancer loadbalance.Balancer
	service  string
	pools    map[string]chan *Conn // one pool per endpoint address
	mu       sync.Mutex
	poolSize int
}

func NewClient(reg registry.Registry, bal loadbalance.Balancer, service string, poolSize int) *Client {
	if poolSize <= 0 {
		poolSize = 1
	}
	return &Client{
		registry: reg,
		balancer: bal,
		service:  service,
		pools:    make(map[string]chan *Conn),
		poolSize: poolSize,
	}
}

// RoundTrip picks an endpoint and performs one request/response exchange.
func (c *Client) RoundTrip(ctx context.Context, data []byte) ([]byte, error) {
	instances, err := c.registry.Discover(c.service)
	if err != nil {
		return nil, fmt.Errorf("discovering %s: %w", c.service, err)
	}
	instance, err := c.balancer.Pick(instances)
	if err != nil {
		return nil, err
	}

	conn, err := c.getConn(instance.Addr)
	if err != nil {
		return nil, err
	}
	defer c.putConn(instance.Addr, conn)

	return conn.RoundTrip(ctx, data)
}

func (c *Client) getConn(addr string) (*Conn, error) {
	c.mu.Lock()
	pool, ok := c.pools[addr]
	if !ok {
		pool = make(chan *Conn, c.poolSize)
		c.pools[addr] = pool
	}
	c.mu.Unlock()

	// Pools fill lazily, one connection per acquisition. A dial failure
	// surfaces to this caller only; the next call simply dials again, so a
	// transient failure never wedges the pool.
	select {
	case conn := <-pool:
		return conn, nil
	default:
		return Dial(addr)
	}
}

func (c *Client) putConn(addr string, conn *Conn) {
	c.mu.Lock()
	pool := c.pools[addr]
	c.mu.Unlock()

	select {
	case pool <- conn:
	default:
		// Pool already holds poolSize idle connections.
		conn.Close()
	}
}

// Close tears down every pooled connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for addr, pool := range c.pools {
		close(pool)
		for conn := range pool {
			conn.Close()
		}
		delete(c.pools, addr)
	}
}

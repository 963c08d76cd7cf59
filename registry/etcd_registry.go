package registry

import (
	"context"
	"encoding/json"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Key layout: /typed-msg/{ServiceName}/{Addr} → JSON-encoded ServiceInstance.
//
// Registration uses TTL-based leases: if the serving process dies, the lease
// expires and the entry disappears on its own, so clients never keep routing
// to a ghost endpoint.
const etcdPrefix = "/typed-msg/"

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 3 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c}, nil
}

// Register stores the instance under a TTL lease and starts KeepAlive to
// renew it. The lease ID stays local so several servers can safely share one
// EtcdRegistry.
func (r *EtcdRegistry) Register(serviceName string, instance ServiceInstance, ttl int64) error {
	ctx := context.TODO()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, etcdPrefix+serviceName+"/"+instance.Addr, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}

	// Drain KeepAlive responses so the channel never fills up.
	go func() {
		for range ch {
		}
	}()
	return nil
}

func (r *EtcdRegistry) Deregister(serviceName string, addr string) error {
	_, err := r.client.Delete(context.TODO(), etcdPrefix+serviceName+"/"+addr)
	return err
}

func (r *EtcdRegistry) Discover(serviceName string) ([]ServiceInstance, error) {
	resp, err := r.client.Get(context.TODO(), etcdPrefix+serviceName+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var inst ServiceInstance
		if err := json.Unmarshal(kv.Value, &inst); err != nil {
			continue // skip entries written by an incompatible revision
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

// Watch emits the full instance list after every change under the service
// prefix. The channel closes when the watch ends.
func (r *EtcdRegistry) Watch(serviceName string) <-chan []ServiceInstance {
	out := make(chan []ServiceInstance)
	watchCh := r.client.Watch(context.Background(), etcdPrefix+serviceName+"/", clientv3.WithPrefix())
	go func() {
		defer close(out)
		for range watchCh {
			instances, err := r.Discover(serviceName)
			if err != nil {
				continue
			}
			out <- instances
		}
	}()
	return out
}

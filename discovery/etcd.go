// Grounded in the teacher's registry.EtcdRegistry: identical
// Grant/Put/KeepAlive lease pattern for registration, Get-with-prefix for
// discovery, and Watch-with-prefix for change notification, renamed from
// the /mini-rpc/ key prefix to /ccrpc/ and from ServiceInstance to
// Instance.
package discovery

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const keyPrefix = "/ccrpc/"

// EtcdDiscovery implements Discovery using etcd v3's lease and watch APIs.
type EtcdDiscovery struct {
	client *clientv3.Client
}

// NewEtcdDiscovery connects to the given etcd endpoints.
func NewEtcdDiscovery(endpoints []string) (*EtcdDiscovery, error) {
	c, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, err
	}
	return &EtcdDiscovery{client: c}, nil
}

// Register stores instance under a TTL lease and starts a background
// KeepAlive so an unclean process exit lets the entry expire on its own,
// instead of leaving a ghost instance in the registry.
func (d *EtcdDiscovery) Register(service string, instance Instance, ttlSeconds int64) error {
	ctx := context.TODO()
	lease, err := d.client.Grant(ctx, ttlSeconds)
	if err != nil {
		return err
	}
	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}
	if _, err := d.client.Put(ctx, keyPrefix+service+"/"+instance.Addr, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}
	ch, err := d.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister removes one instance's entry immediately, ahead of its
// lease's natural expiry. crmserver.Server.Shutdown does not call it.
func (d *EtcdDiscovery) Deregister(service string, addr string) error {
	_, err := d.client.Delete(context.TODO(), keyPrefix+service+"/"+addr)
	return err
}

// Discover lists every instance currently registered for service.
func (d *EtcdDiscovery) Discover(service string) ([]Instance, error) {
	resp, err := d.client.Get(context.TODO(), keyPrefix+service+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	instances := make([]Instance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var inst Instance
		if err := json.Unmarshal(kv.Value, &inst); err != nil {
			continue
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

// Watch re-fetches the full instance list on every change under the
// service's prefix, rather than trying to apply etcd's individual watch
// events incrementally.
func (d *EtcdDiscovery) Watch(service string) <-chan []Instance {
	ch := make(chan []Instance, 1)
	go func() {
		watchChan := d.client.Watch(context.TODO(), keyPrefix+service+"/", clientv3.WithPrefix())
		for range watchChan {
			instances, err := d.Discover(service)
			if err == nil {
				ch <- instances
			}
		}
	}()
	return ch
}

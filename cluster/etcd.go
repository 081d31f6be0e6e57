package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/blockmeshdb/coordinator/logger"
	"github.com/blockmeshdb/coordinator/meta"
)

const (
	nodesPrefix   = "/coordinator/nodes/"
	tablesPrefix  = "/coordinator/tables/"
	versionKey    = "/coordinator/version"
	leaseTTLSecs  = 10
	renewInterval = 3 * time.Second
)

// nodeRecord is what a worker publishes about itself under
// nodesPrefix. A worker always publishes Size as zero; the coordinator
// fills it in afterwards via UpdateNodeSize.
type nodeRecord struct {
	Address  meta.Address `json:"address"`
	IsActive bool         `json:"is_active"`
	Size     int64        `json:"size"`
}

// EtcdInfo is the etcd-backed implementation of Info: node liveness
// comes from leased keys under nodesPrefix (a dead worker's lease
// simply expires), and table configuration is read from a
// coordinator-managed prefix.
type EtcdInfo struct {
	client *clientv3.Client
	logger logger.Logger
}

// NewEtcdInfo wraps an existing etcd client. The caller owns the
// client's lifecycle.
func NewEtcdInfo(client *clientv3.Client, log logger.Logger) *EtcdInfo {
	if log == nil {
		log = logger.NopLogger
	}
	return &EtcdInfo{client: client, logger: log}
}

func (e *EtcdInfo) Nodes(ctx context.Context) ([]meta.Node, error) {
	resp, err := e.client.Get(ctx, nodesPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	nodes := make([]meta.Node, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var rec nodeRecord
		if err := json.Unmarshal(kv.Value, &rec); err != nil {
			e.logger.Warnf("cluster: skipping malformed node record at %s: %v", kv.Key, err)
			continue
		}
		nodes = append(nodes, meta.Node{Address: rec.Address, IsActive: rec.IsActive, Size: rec.Size})
	}
	return nodes, nil
}

func (e *EtcdInfo) Tables(ctx context.Context) ([]meta.TableSpec, error) {
	resp, err := e.client.Get(ctx, tablesPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	tables := make([]meta.TableSpec, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var t meta.TableSpec
		if err := json.Unmarshal(kv.Value, &t); err != nil {
			e.logger.Warnf("cluster: skipping malformed table record at %s: %v", kv.Key, err)
			continue
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func (e *EtcdInfo) UpdateNodeSize(ctx context.Context, addr meta.Address, size int64) error {
	key := nodesPrefix + string(addr)
	resp, err := e.client.Get(ctx, key)
	if err != nil {
		return err
	}
	if len(resp.Kvs) == 0 {
		return nil
	}

	var rec nodeRecord
	if err := json.Unmarshal(resp.Kvs[0].Value, &rec); err != nil {
		return err
	}
	rec.Size = size

	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	lease := clientv3.LeaseID(resp.Kvs[0].Lease)
	if lease != 0 {
		_, err = e.client.Put(ctx, key, string(body), clientv3.WithIgnoreLease())
		return err
	}
	_, err = e.client.Put(ctx, key, string(body))
	return err
}

func (e *EtcdInfo) Version(ctx context.Context) (string, error) {
	resp, err := e.client.Get(ctx, versionKey)
	if err != nil {
		return "", err
	}
	if len(resp.Kvs) == 0 {
		return "0", nil
	}
	return string(resp.Kvs[0].Value), nil
}

var _ Info = (*EtcdInfo)(nil)

// Registration keeps a worker's presence in etcd alive via a leased
// key, so the coordinator sees the node as active only while the
// worker process is actually up and renewing.
type Registration struct {
	client  *clientv3.Client
	addr    meta.Address
	leaseID clientv3.LeaseID
	logger  logger.Logger
	cancel  context.CancelFunc
}

// NewRegistration prepares a Registration for addr. Call Start to
// begin the lease/keepalive loop.
func NewRegistration(client *clientv3.Client, addr meta.Address, log logger.Logger) *Registration {
	if log == nil {
		log = logger.NopLogger
	}
	return &Registration{client: client, addr: addr, logger: log}
}

// Start grants a lease, publishes this worker's node record under it,
// and begins renewing the lease in the background until ctx is
// canceled or Stop is called.
func (r *Registration) Start(ctx context.Context) error {
	lease, err := r.client.Grant(ctx, leaseTTLSecs)
	if err != nil {
		return fmt.Errorf("granting lease: %w", err)
	}
	r.leaseID = lease.ID

	rec := nodeRecord{Address: r.addr, IsActive: true}
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	key := nodesPrefix + string(r.addr)
	if _, err := r.client.Put(ctx, key, string(body), clientv3.WithLease(r.leaseID)); err != nil {
		return fmt.Errorf("registering node: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	go r.keepAlive(loopCtx)
	return nil
}

func (r *Registration) keepAlive(ctx context.Context) {
	ch, err := r.client.KeepAlive(ctx, r.leaseID)
	if err != nil {
		r.logger.Errorf("cluster: keepalive setup failed for %s: %v", r.addr, err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case resp, ok := <-ch:
			if !ok {
				r.logger.Warnf("cluster: keepalive channel closed for %s, re-registering", r.addr)
				time.Sleep(renewInterval)
				if err := r.Start(ctx); err != nil {
					r.logger.Errorf("cluster: re-registration failed for %s: %v", r.addr, err)
				}
				return
			}
			_ = resp
		}
	}
}

// Stop revokes the lease, immediately removing this worker's node
// record.
func (r *Registration) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	_, err := r.client.Revoke(ctx, r.leaseID)
	return err
}

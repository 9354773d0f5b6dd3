// Package registry announces the collector in etcd and discovers storage
// nodes registered there, supplementing the statically configured node list.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/clustereye/collector/internal/logging"
	"github.com/clustereye/collector/internal/models"
)

const (
	collectorPrefix = "/clustereye/collectors/"
	nodePrefix      = "/clustereye/nodes/"

	leaseTTLSeconds = 10
)

// CollectorRegistration handles collector registration with etcd
type CollectorRegistration struct {
	etcdClient *clientv3.Client
	leaseID    clientv3.LeaseID
	info       models.CollectorInfo
	logger     *logging.Logger
}

// NewCollectorRegistration creates a new registration instance
func NewCollectorRegistration(etcdClient *clientv3.Client, info models.CollectorInfo,
	logger *logging.Logger) *CollectorRegistration {
	return &CollectorRegistration{
		etcdClient: etcdClient,
		info:       info,
		logger:     logger,
	}
}

// Register announces the collector under a TTL lease and starts the
// keep-alive loop
func (r *CollectorRegistration) Register(ctx context.Context) error {
	r.logger.Info("Starting collector registration", "collector_id", r.info.ID)

	lease, err := r.etcdClient.Grant(ctx, leaseTTLSeconds)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}
	r.leaseID = lease.ID

	r.info.UpdatedAt = time.Now()
	data, err := json.Marshal(r.info)
	if err != nil {
		return fmt.Errorf("failed to marshal collector info: %w", err)
	}

	key := collectorPrefix + r.info.ID
	if _, err := r.etcdClient.Put(ctx, key, string(data), clientv3.WithLease(r.leaseID)); err != nil {
		return fmt.Errorf("failed to register collector: %w", err)
	}

	r.logger.Info("Collector registered",
		"collector_id", r.info.ID,
		"address", r.info.Address,
		"lease_id", int64(r.leaseID))

	go r.keepAlive(ctx)

	return nil
}

// keepAlive maintains the lease by consuming heartbeat responses
func (r *CollectorRegistration) keepAlive(ctx context.Context) {
	ch, err := r.etcdClient.KeepAlive(ctx, r.leaseID)
	if err != nil {
		r.logger.Error("Failed to start keep-alive", "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Keep-alive stopped (context done)")
			return

		case ka, ok := <-ch:
			if !ok {
				r.logger.Warn("Keep-alive channel closed, attempting re-registration")
				time.Sleep(2 * time.Second)
				if ctx.Err() != nil {
					return
				}
				if err := r.Register(ctx); err != nil {
					r.logger.Error("Failed to re-register", "error", err)
				}
				return
			}
			if ka == nil {
				continue
			}
			r.logger.Debug("Heartbeat sent", "lease_id", int64(r.leaseID), "ttl", ka.TTL)
		}
	}
}

// Deregister removes the collector from etcd
func (r *CollectorRegistration) Deregister(ctx context.Context) error {
	r.logger.Info("Deregistering collector", "collector_id", r.info.ID)

	_, err := r.etcdClient.Delete(ctx, collectorPrefix+r.info.ID)
	if err != nil {
		r.logger.Error("Failed to delete collector key", "error", err)
	}

	if r.leaseID != 0 {
		if _, err := r.etcdClient.Revoke(ctx, r.leaseID); err != nil {
			r.logger.Error("Failed to revoke lease", "error", err)
		}
	}

	return err
}

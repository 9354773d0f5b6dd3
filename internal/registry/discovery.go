package registry

import (
	"context"
	"encoding/json"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/clustereye/collector/internal/logging"
	"github.com/clustereye/collector/internal/models"
)

// NodeDiscovery lists storage nodes announced in etcd. Discovered nodes are
// merged with the configured node list once, at collector startup.
type NodeDiscovery struct {
	etcdClient *clientv3.Client
	logger     *logging.Logger
}

// NewNodeDiscovery creates a discovery instance
func NewNodeDiscovery(etcdClient *clientv3.Client, logger *logging.Logger) *NodeDiscovery {
	return &NodeDiscovery{
		etcdClient: etcdClient,
		logger:     logger,
	}
}

// ListNodes returns every storage node registered under the node prefix.
// Entries that fail to decode are skipped; one bad announcement never hides
// the rest.
func (d *NodeDiscovery) ListNodes(ctx context.Context) ([]models.StorageNodeInfo, error) {
	resp, err := d.etcdClient.Get(ctx, nodePrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list storage nodes: %w", err)
	}

	nodes := make([]models.StorageNodeInfo, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var info models.StorageNodeInfo
		if err := json.Unmarshal(kv.Value, &info); err != nil {
			d.logger.Warn("Failed to unmarshal storage node announcement",
				"key", string(kv.Key), "error", err)
			continue
		}
		if info.Host == "" {
			continue
		}
		nodes = append(nodes, info)
	}

	return nodes, nil
}

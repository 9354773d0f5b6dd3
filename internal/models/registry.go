package models

import "time"

// CollectorInfo represents a collector instance registered in etcd
type CollectorInfo struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"` // host:port of the HTTP API
	Status    string    `json:"status"`  // active, draining, down
	Version   string    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StorageNodeInfo represents a storage node announced for discovery.
// Discovered nodes are merged with the statically configured node list.
type StorageNodeInfo struct {
	Host      string    `json:"host"`
	Port      int       `json:"port"`   // node port, part of the node key
	Family    int       `json:"family"` // storage protocol address family
	UpdatedAt time.Time `json:"updated_at"`
}

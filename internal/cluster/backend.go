package cluster

import (
	"fmt"
	"time"

	"github.com/clustereye/collector/internal/parsing"
)

// Backend is one storage shard on a node. Exactly one Backend exists per
// (node, backend_id) within a snapshot.
type Backend struct {
	node *Node
	fs   *FS

	// Stat is the newest parsed record for this backend
	Stat parsing.BackendStat
	// StatTsSec/StatTsUsec hold the node stat timestamp the record arrived with
	StatTsSec  uint64
	StatTsUsec uint64

	// RofsErrors is the read-only-filesystem error count from stat_commit
	RofsErrors uint64

	Status BackendStatus
}

func newBackend(node *Node, stat parsing.BackendStat) *Backend {
	return &Backend{
		node:   node,
		Stat:   stat,
		Status: BackendInit,
	}
}

// Key returns the canonical "<node-key>/<backend-id>" backend key
func (b *Backend) Key() string {
	return fmt.Sprintf("%s/%d", b.node.Key(), b.Stat.BackendID)
}

// Node returns the owning node
func (b *Backend) Node() *Node {
	return b.node
}

// FS returns the filesystem hosting this backend, nil before the first stat
func (b *Backend) FS() *FS {
	return b.fs
}

// GroupID returns the group this backend claims to serve
func (b *Backend) GroupID() int {
	return int(b.Stat.Group)
}

// TotalSpace returns the backend's filesystem capacity in bytes
func (b *Backend) TotalSpace() uint64 {
	return b.Stat.VfsBlocks * b.Stat.VfsBsize
}

// FreeSpace returns the backend's available filesystem space in bytes
func (b *Backend) FreeSpace() uint64 {
	return b.Stat.VfsBavail * b.Stat.VfsBsize
}

// EffectiveFreeSpace returns free space with the configured reservation
// subtracted
func (b *Backend) EffectiveFreeSpace(reserved uint64) uint64 {
	free := b.FreeSpace()
	if free <= reserved {
		return 0
	}
	return free - reserved
}

// Full reports whether the backend cannot accept more records
func (b *Backend) Full() bool {
	if b.Stat.BlobSizeLimit > 0 {
		return b.Stat.BaseSize >= b.Stat.BlobSizeLimit
	}
	return false
}

// applyStat merges a freshly parsed record, keeping the newer one by the node
// stat timestamp
func (b *Backend) applyStat(stat parsing.BackendStat, tsSec, tsUsec uint64) {
	if tsSec < b.StatTsSec || (tsSec == b.StatTsSec && tsUsec <= b.StatTsUsec) {
		return
	}
	b.Stat = stat
	b.StatTsSec = tsSec
	b.StatTsUsec = tsUsec
}

// deriveStatus recomputes the backend status from the merged record
func (b *Backend) deriveStatus(now time.Time, staleTimeout time.Duration) {
	if b.StatTsSec == 0 {
		b.Status = BackendInit
		return
	}

	statAge := now.Sub(time.Unix(int64(b.StatTsSec), int64(b.StatTsUsec)*1000))
	if statAge > staleTimeout {
		b.Status = BackendStalled
		return
	}

	if b.Stat.State != 1 {
		b.Status = BackendStalled
		return
	}

	if b.Stat.VfsError != 0 || b.Stat.DstatError != 0 || b.Stat.ParseErrors != 0 {
		b.Status = BackendBad
		return
	}

	if b.Stat.ReadOnly != 0 || b.RofsErrors > 0 {
		b.Status = BackendRO
		return
	}

	b.Status = BackendOK
}

func (b *Backend) clone(node *Node) *Backend {
	copied := *b
	copied.node = node
	copied.fs = nil // rebound by the node clone
	return &copied
}

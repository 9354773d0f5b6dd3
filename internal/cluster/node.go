package cluster

import (
	"fmt"

	"github.com/clustereye/collector/internal/logging"
	"github.com/clustereye/collector/internal/parsing"
)

// Node is a polled storage node endpoint. Nodes are created from
// configuration or discovery and never destroyed; a node whose download
// failed keeps the records of its previous round.
type Node struct {
	host   string
	port   int
	family int

	// downloadData buffers the monitor response until the parse step
	downloadData []byte

	parser *parsing.StatsParser

	// Stat is the last successfully parsed node record
	Stat parsing.NodeStat

	backends map[uint64]*Backend // backend_id -> backend
	fs       map[uint64]*FS      // fsid -> fs
}

func newNode(host string, port, family int) *Node {
	return &Node{
		host:     host,
		port:     port,
		family:   family,
		parser:   parsing.NewStatsParser(),
		backends: make(map[uint64]*Backend),
		fs:       make(map[uint64]*FS),
	}
}

// Key returns the canonical "host:port:family" node key
func (n *Node) Key() string {
	return fmt.Sprintf("%s:%d:%d", n.host, n.port, n.family)
}

// Host returns the node host
func (n *Node) Host() string {
	return n.host
}

// Port returns the node port that forms part of the node key; stat downloads
// use the configured monitor port instead
func (n *Node) Port() int {
	return n.port
}

// Family returns the storage protocol address family
func (n *Node) Family() int {
	return n.family
}

// Backends returns the node's backends keyed by backend id
func (n *Node) Backends() map[uint64]*Backend {
	return n.backends
}

// Filesystems returns the node's filesystems keyed by fsid
func (n *Node) Filesystems() map[uint64]*FS {
	return n.fs
}

// SetDownloadData stores a completed monitor response for the parse step
func (n *Node) SetDownloadData(data []byte) {
	n.downloadData = data
}

// DropDownloadData discards a partial download; previous records survive
func (n *Node) DropDownloadData() {
	n.downloadData = nil
}

// ParseStats parses the buffered monitor response and folds the records into
// the node's backends and filesystems. A failed parse leaves the previous
// records in place.
func (n *Node) ParseStats(logger *logging.Logger) {
	if len(n.downloadData) == 0 {
		return
	}
	defer n.DropDownloadData()

	if err := n.parser.Parse(n.downloadData); err != nil {
		logger.Error("Failed to parse node stat", "node", n.Key(), "error", err)
		return
	}

	n.Stat = n.parser.NodeStat

	for _, stat := range n.parser.BackendStats {
		backend, ok := n.backends[stat.BackendID]
		if !ok {
			backend = newBackend(n, stat)
			n.backends[stat.BackendID] = backend
		}
		backend.applyStat(stat, n.parser.NodeStat.TsSec, n.parser.NodeStat.TsUsec)
		backend.RofsErrors = n.parser.RofsErrors[stat.BackendID]
		n.placeBackend(backend)
	}

	if n.parser.TypeMismatches > 0 {
		logger.Warn("Node stat contained values of unexpected type",
			"node", n.Key(), "count", n.parser.TypeMismatches)
	}
}

// placeBackend binds the backend to the filesystem its stat names, moving it
// if the fsid changed
func (n *Node) placeBackend(b *Backend) {
	fsid := b.Stat.Fsid
	if b.fs != nil && b.fs.fsid == fsid {
		return
	}
	if b.fs != nil {
		b.fs.removeBackend(b)
	}
	fs, ok := n.fs[fsid]
	if !ok {
		fs = newFS(n, fsid)
		n.fs[fsid] = fs
	}
	fs.addBackend(b)
}

// recalculateFS re-derives every filesystem aggregate
func (n *Node) recalculateFS() {
	for _, fs := range n.fs {
		fs.recalculate()
	}
}

func (n *Node) clone() *Node {
	copied := newNode(n.host, n.port, n.family)
	copied.Stat = n.Stat

	for id, b := range n.backends {
		nb := b.clone(copied)
		copied.backends[id] = nb
	}
	for fsid, fs := range n.fs {
		nf := newFS(copied, fsid)
		nf.TotalSpace = fs.TotalSpace
		nf.FreeSpace = fs.FreeSpace
		copied.fs[fsid] = nf
		for id := range fs.backends {
			if nb, ok := copied.backends[id]; ok {
				nf.addBackend(nb)
			}
		}
	}
	return copied
}

package cluster

import (
	"sort"

	"github.com/clustereye/collector/internal/models"
)

// ServiceView is the service block of a group projection
type ServiceView struct {
	Migrating bool   `json:"migrating"`
	JobID     string `json:"job_id"`
}

// GroupView is the JSON projection of a group
type GroupView struct {
	ID         int          `json:"id"`
	Couple     string       `json:"couple,omitempty"`
	Backends   []string     `json:"backends"`
	StatusText string       `json:"status_text"`
	Status     string       `json:"status"`
	Frozen     bool         `json:"frozen"`
	Version    int          `json:"version"`
	Namespace  string       `json:"namespace"`
	Service    *ServiceView `json:"service,omitempty"`
}

// BackendView is the JSON projection of a backend
type BackendView struct {
	Key        string `json:"key"`
	Node       string `json:"node"`
	BackendID  uint64 `json:"backend_id"`
	Group      int    `json:"group"`
	FS         string `json:"fs,omitempty"`
	Status     string `json:"status"`
	TotalSpace uint64 `json:"total_space"`
	FreeSpace  uint64 `json:"free_space"`

	RecordsTotal   uint64 `json:"records_total"`
	RecordsRemoved uint64 `json:"records_removed"`
	WantDefrag     uint64 `json:"want_defrag"`
	BaseSize       uint64 `json:"base_size"`

	DataPath string `json:"data_path,omitempty"`
	ReadOnly bool   `json:"read_only"`
}

// NodeView is the JSON projection of a node
type NodeView struct {
	Key     string `json:"key"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Family  int    `json:"family"`
	TsSec   uint64 `json:"ts_sec"`
	TsUsec  uint64 `json:"ts_usec"`
	La      uint64 `json:"la"`
	RxBytes uint64 `json:"rx_bytes"`
	TxBytes uint64 `json:"tx_bytes"`
}

// FSView is the JSON projection of a filesystem
type FSView struct {
	Key        string   `json:"key"`
	Node       string   `json:"node"`
	Fsid       uint64   `json:"fsid"`
	TotalSpace uint64   `json:"total_space"`
	FreeSpace  uint64   `json:"free_space"`
	Backends   []string `json:"backends"`
}

// CoupleView is the JSON projection of a couple
type CoupleView struct {
	Key        string `json:"key"`
	Groups     []int  `json:"groups"`
	Status     string `json:"status"`
	StatusText string `json:"status_text"`
}

// NamespaceView is the JSON projection of a namespace
type NamespaceView struct {
	Name    string   `json:"name"`
	Couples []string `json:"couples"`
}

// SnapshotView is the filtered JSON projection of a storage snapshot
type SnapshotView struct {
	Groups      []GroupView     `json:"groups"`
	Couples     []CoupleView    `json:"couples"`
	Namespaces  []NamespaceView `json:"namespaces"`
	Nodes       []NodeView      `json:"nodes"`
	Backends    []BackendView   `json:"backends"`
	Filesystems []FSView        `json:"filesystems"`
}

// Snapshot projects the storage through the filter. A nil or empty filter
// selects everything; otherwise the selection is group-centric: matched
// groups pull in their couples, namespaces, backends, filesystems and nodes,
// narrowed further by the per-kind id lists.
func (s *Storage) Snapshot(filter *models.Filter) *SnapshotView {
	view := &SnapshotView{
		Groups:      []GroupView{},
		Couples:     []CoupleView{},
		Namespaces:  []NamespaceView{},
		Nodes:       []NodeView{},
		Backends:    []BackendView{},
		Filesystems: []FSView{},
	}

	unrestricted := filter == nil || filter.Empty()

	matchedGroups := make([]*Group, 0, len(s.groups))
	for _, g := range s.groups {
		if unrestricted || g.Match(filter, filter.ItemTypes) {
			matchedGroups = append(matchedGroups, g)
		}
	}
	sort.Slice(matchedGroups, func(i, j int) bool {
		return matchedGroups[i].id < matchedGroups[j].id
	})

	couples := make(map[string]*Couple)
	namespaces := make(map[string]*Namespace)
	backends := make(map[string]*Backend)
	filesystems := make(map[string]*FS)
	nodes := make(map[string]*Node)

	for _, g := range matchedGroups {
		view.Groups = append(view.Groups, g.view())

		if g.couple != nil {
			couples[g.couple.Key()] = g.couple
		}
		if g.namespace != nil {
			namespaces[g.namespace.Name()] = g.namespace
		}
		for _, b := range g.backends {
			if !unrestricted && filter.ItemTypes&models.ItemBackend != 0 &&
				len(filter.Backends) > 0 && !filter.HasBackend(b.Key()) {
				continue
			}
			backends[b.Key()] = b
			nodes[b.Node().Key()] = b.Node()
			if b.FS() != nil {
				filesystems[b.FS().Key()] = b.FS()
			}
		}
	}

	if unrestricted {
		for key, node := range s.nodes {
			nodes[key] = node
			for _, b := range node.backends {
				backends[b.Key()] = b
			}
			for _, fs := range node.fs {
				filesystems[fs.Key()] = fs
			}
		}
		for key, couple := range s.couples {
			couples[key] = couple
		}
		for name, ns := range s.namespaces {
			namespaces[name] = ns
		}
	} else {
		if filter.ItemTypes&models.ItemNode != 0 && len(filter.Nodes) > 0 {
			for key := range nodes {
				if !filter.HasNode(key) {
					delete(nodes, key)
				}
			}
		}
		if filter.ItemTypes&models.ItemFS != 0 && len(filter.Filesystems) > 0 {
			for key := range filesystems {
				if !filter.HasFS(key) {
					delete(filesystems, key)
				}
			}
		}
	}

	for _, key := range sortedKeys(couples) {
		c := couples[key]
		view.Couples = append(view.Couples, CoupleView{
			Key:        c.Key(),
			Groups:     c.GroupIDs(),
			Status:     c.Status.String(),
			StatusText: c.StatusText,
		})
	}

	for _, name := range sortedKeys(namespaces) {
		ns := namespaces[name]
		nsView := NamespaceView{Name: name, Couples: []string{}}
		for _, c := range ns.Couples() {
			nsView.Couples = append(nsView.Couples, c.Key())
		}
		sort.Strings(nsView.Couples)
		view.Namespaces = append(view.Namespaces, nsView)
	}

	for _, key := range sortedKeys(nodes) {
		node := nodes[key]
		view.Nodes = append(view.Nodes, NodeView{
			Key:     node.Key(),
			Host:    node.host,
			Port:    node.port,
			Family:  node.family,
			TsSec:   node.Stat.TsSec,
			TsUsec:  node.Stat.TsUsec,
			La:      node.Stat.La1,
			RxBytes: node.Stat.RxBytes,
			TxBytes: node.Stat.TxBytes,
		})
	}

	for _, key := range sortedKeys(backends) {
		b := backends[key]
		fsKey := ""
		if b.FS() != nil {
			fsKey = b.FS().Key()
		}
		view.Backends = append(view.Backends, BackendView{
			Key:            b.Key(),
			Node:           b.Node().Key(),
			BackendID:      b.Stat.BackendID,
			Group:          b.GroupID(),
			FS:             fsKey,
			Status:         b.Status.String(),
			TotalSpace:     b.TotalSpace(),
			FreeSpace:      b.FreeSpace(),
			RecordsTotal:   b.Stat.RecordsTotal,
			RecordsRemoved: b.Stat.RecordsRemoved,
			WantDefrag:     b.Stat.WantDefrag,
			BaseSize:       b.Stat.BaseSize,
			DataPath:       b.Stat.DataPath,
			ReadOnly:       b.Stat.ReadOnly != 0,
		})
	}

	for _, key := range sortedKeys(filesystems) {
		fs := filesystems[key]
		fsView := FSView{
			Key:        fs.Key(),
			Node:       fs.Node().Key(),
			Fsid:       fs.Fsid(),
			TotalSpace: fs.TotalSpace,
			FreeSpace:  fs.FreeSpace,
			Backends:   []string{},
		}
		for _, b := range fs.Backends() {
			fsView.Backends = append(fsView.Backends, b.Key())
		}
		sort.Strings(fsView.Backends)
		view.Filesystems = append(view.Filesystems, fsView)
	}

	return view
}

func (g *Group) view() GroupView {
	v := GroupView{
		ID:         g.id,
		Backends:   g.BackendKeys(),
		StatusText: g.StatusText,
		Status:     g.Status.String(),
		Frozen:     g.Frozen,
		Version:    g.Version,
	}
	if g.couple != nil {
		v.Couple = g.couple.Key()
	}
	if g.namespace != nil {
		v.Namespace = g.namespace.Name()
	}
	if g.ServiceMigrating || g.ServiceJobID != "" {
		v.Service = &ServiceView{
			Migrating: g.ServiceMigrating,
			JobID:     g.ServiceJobID,
		}
	}
	return v
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

package cluster

import (
	"time"

	"github.com/clustereye/collector/internal/config"
	"github.com/clustereye/collector/internal/logging"
)

// RebindPolicy decides what happens when a group's metadata names a couple or
// namespace different from its current binding. Only the conservative policy
// is implemented: the anomaly is logged, the group goes BAD and the old
// binding is kept. The hook exists so a migration policy can be added without
// touching the merge.
type RebindPolicy int

const (
	// RebindKeep keeps the existing binding and marks the group BAD
	RebindKeep RebindPolicy = iota
)

// Storage is the top-level aggregate of the cluster model. It is built by a
// collection round and immutable once published as a snapshot; the round
// works on a clone of the previously published storage.
type Storage struct {
	cfg    config.CollectorConfig
	logger *logging.Logger
	policy RebindPolicy

	nodes      map[string]*Node
	groups     map[int]*Group
	couples    map[string]*Couple
	namespaces map[string]*Namespace
}

// NewStorage creates a storage populated with the configured nodes
func NewStorage(cfg config.CollectorConfig, logger *logging.Logger) *Storage {
	s := &Storage{
		cfg:        cfg,
		logger:     logger,
		policy:     RebindKeep,
		nodes:      make(map[string]*Node),
		groups:     make(map[int]*Group),
		couples:    make(map[string]*Couple),
		namespaces: make(map[string]*Namespace),
	}

	for _, addr := range cfg.Nodes {
		s.AddNode(addr.Host, addr.Port, addr.Family)
	}

	return s
}

// AddNode ensures a node with the given endpoint exists and returns it
func (s *Storage) AddNode(host string, port, family int) *Node {
	node := newNode(host, port, family)
	if existing, ok := s.nodes[node.Key()]; ok {
		return existing
	}
	s.nodes[node.Key()] = node
	return node
}

// Nodes returns the node index
func (s *Storage) Nodes() map[string]*Node {
	return s.nodes
}

// Groups returns the group index
func (s *Storage) Groups() map[int]*Group {
	return s.groups
}

// Couples returns the couple index
func (s *Storage) Couples() map[string]*Couple {
	return s.couples
}

// Namespaces returns the namespace index
func (s *Storage) Namespaces() map[string]*Namespace {
	return s.namespaces
}

// GetGroup returns the group with the given id, creating it in INIT state
func (s *Storage) GetGroup(id int) *Group {
	if g, ok := s.groups[id]; ok {
		return g
	}
	g := newGroup(s, id)
	s.groups[id] = g
	return g
}

func (s *Storage) getNamespace(name string) *Namespace {
	if ns, ok := s.namespaces[name]; ok {
		return ns
	}
	ns := newNamespace(name)
	s.namespaces[name] = ns
	return ns
}

// createCouple ensures a couple for the given id set exists and binds the
// group to it. Every member group is created if missing so the couple is
// fully bound.
func (s *Storage) createCouple(ids []int, g *Group) *Couple {
	key := CoupleKey(ids)
	couple, ok := s.couples[key]
	if !ok {
		couple = newCouple(ids)
		s.couples[key] = couple
	}

	for _, id := range couple.GroupIDs() {
		couple.bindGroup(s.GetGroup(id))
	}
	if g != nil {
		couple.bindGroup(g)
	}

	return couple
}

// UpdateGroupStructure materialises groups from the group ids the parsed
// backends advertise. It runs between the stat parse and the metadata
// download so the metadata fan-out sees every group of this round. Groups
// that lost all their backends are retained; they derive INIT on update.
func (s *Storage) UpdateGroupStructure() {
	for _, g := range s.groups {
		g.clearBackends()
	}

	for _, node := range s.nodes {
		for _, backend := range node.backends {
			groupID := backend.GroupID()
			if groupID == 0 {
				continue
			}
			s.GetGroup(groupID).addBackend(backend)
		}
	}
}

// Update is the final merge of a round: backend statuses are re-derived from
// the merged records, pending group metadata is processed, couples join
// their namespaces and couple statuses are folded from their members.
func (s *Storage) Update() {
	s.UpdateAt(time.Now())
}

// UpdateAt is Update against an explicit wall clock
func (s *Storage) UpdateAt(now time.Time) {
	for _, node := range s.nodes {
		node.recalculateFS()
		for _, backend := range node.backends {
			backend.deriveStatus(now, s.cfg.NodeBackendStatStaleTimeout)
		}
	}

	for _, g := range s.groups {
		if !g.clean {
			g.processMetadata()
			if g.metadataAnomaly {
				s.logger.Error("Group metadata anomaly", "group", g.id, "status_text", g.StatusText)
			}
		} else if g.metadataProcessStart > 0 && !g.metadataAnomaly {
			// metadata unchanged; backend statuses may still have moved
			g.deriveStatus()
		}
	}

	for _, g := range s.groups {
		if g.couple != nil && g.namespace != nil {
			g.namespace.AddCouple(g.couple)
		}
	}

	for _, couple := range s.couples {
		couple.deriveStatus()
	}
}

// Clone builds an independent copy of the storage graph with every
// back-reference rebound by key. The clone carries no download buffers.
func (s *Storage) Clone() *Storage {
	copied := &Storage{
		cfg:        s.cfg,
		logger:     s.logger,
		policy:     s.policy,
		nodes:      make(map[string]*Node, len(s.nodes)),
		groups:     make(map[int]*Group, len(s.groups)),
		couples:    make(map[string]*Couple, len(s.couples)),
		namespaces: make(map[string]*Namespace, len(s.namespaces)),
	}

	for key, node := range s.nodes {
		copied.nodes[key] = node.clone()
	}

	for id, g := range s.groups {
		ng := g.clone(copied)
		copied.groups[id] = ng
		for _, b := range g.backends {
			nodeKey := b.Node().Key()
			if node, ok := copied.nodes[nodeKey]; ok {
				if nb, ok := node.backends[b.Stat.BackendID]; ok {
					ng.addBackend(nb)
				}
			}
		}
	}

	for key, couple := range s.couples {
		nc := newCouple(couple.GroupIDs())
		nc.Status = couple.Status
		nc.StatusText = couple.StatusText
		copied.couples[key] = nc
		for _, g := range couple.groups {
			if ng, ok := copied.groups[g.id]; ok {
				nc.bindGroup(ng)
			}
		}
	}

	for name, ns := range s.namespaces {
		nns := newNamespace(name)
		copied.namespaces[name] = nns
		for _, couple := range ns.Couples() {
			if nc, ok := copied.couples[couple.Key()]; ok {
				nns.AddCouple(nc)
			}
		}
	}

	// rebind group namespaces by name
	for id, g := range s.groups {
		if g.namespace != nil {
			copied.groups[id].namespace = copied.namespaces[g.namespace.Name()]
		}
	}

	return copied
}

// Summary reports entity counts
type Summary struct {
	Nodes      int
	Backends   int
	FS         int
	Groups     int
	Couples    int
	Namespaces int
}

// Summarize counts the storage's entities
func (s *Storage) Summarize() Summary {
	sum := Summary{
		Nodes:      len(s.nodes),
		Groups:     len(s.groups),
		Couples:    len(s.couples),
		Namespaces: len(s.namespaces),
	}
	for _, node := range s.nodes {
		sum.Backends += len(node.backends)
		sum.FS += len(node.fs)
	}
	return sum
}

package cluster

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/clustereye/collector/internal/meta"
	"github.com/clustereye/collector/internal/models"
)

// Group is a replication unit identified by an integer id. Its backends are
// discovered from node stats; couple, namespace and service state come from
// the metadata value read from the cluster.
type Group struct {
	storage *Storage

	id        int
	couple    *Couple
	namespace *Namespace

	backends map[string]*Backend // backend key -> backend

	// metadata is the raw value; clean means it has been processed
	metadata []byte
	clean    bool

	metadataProcessStart int64 // unix nanoseconds
	metadataProcessTime  time.Duration

	// metadataAnomaly is set when the last processing ended in a metadata
	// error (unparseable value, couple mismatch, namespace change); the
	// status then stays until new metadata arrives
	metadataAnomaly bool

	Frozen  bool
	Version int

	ServiceMigrating bool
	ServiceJobID     string

	Status     GroupStatus
	StatusText string
}

func newGroup(storage *Storage, id int) *Group {
	return &Group{
		storage:  storage,
		id:       id,
		clean:    true,
		Status:   GroupInit,
		backends: make(map[string]*Backend),
	}
}

// ID returns the group id
func (g *Group) ID() int {
	return g.id
}

// Couple returns the couple this group is bound to, nil before metadata
func (g *Group) Couple() *Couple {
	return g.couple
}

// Namespace returns the namespace this group belongs to, nil before metadata
func (g *Group) Namespace() *Namespace {
	return g.namespace
}

// Backends returns the backends serving this group, keyed by backend key
func (g *Group) Backends() map[string]*Backend {
	return g.backends
}

func (g *Group) addBackend(b *Backend) {
	g.backends[b.Key()] = b
}

func (g *Group) clearBackends() {
	g.backends = make(map[string]*Backend)
}

// TotalSpace returns the sum of the group's backend capacities
func (g *Group) TotalSpace() uint64 {
	var res uint64
	for _, b := range g.backends {
		res += b.TotalSpace()
	}
	return res
}

// Full reports whether every backend of the group is full
func (g *Group) Full() bool {
	for _, b := range g.backends {
		if !b.Full() {
			return false
		}
	}
	return true
}

// SaveMetadata stores a downloaded metadata value. Identical bytes leave the
// processed state untouched so an unchanged group is not reprocessed.
func (g *Group) SaveMetadata(data []byte) {
	if g.clean && len(g.metadata) > 0 && bytes.Equal(g.metadata, data) {
		return
	}
	g.metadata = append([]byte(nil), data...)
	g.clean = false
}

// SetStatusText overrides the status text, used for download failures
func (g *Group) SetStatusText(text string) {
	g.StatusText = text
}

// processMetadata decodes pending metadata and re-derives the group status.
// It is a no-op when the metadata has not changed since the last call.
func (g *Group) processMetadata() {
	if g.clean {
		return
	}

	started := time.Now()
	g.metadataProcessStart = started.UnixNano()
	defer func() {
		g.metadataProcessTime = time.Since(started)
	}()

	g.clean = true
	g.StatusText = ""
	g.metadataAnomaly = false

	gm, err := meta.DecodeGroupMeta(g.metadata)
	if err != nil {
		g.Status = GroupBad
		g.StatusText = err.Error()
		g.metadataAnomaly = true
		return
	}

	g.Version = gm.Version
	g.Frozen = gm.Frozen
	g.ServiceMigrating = gm.ServiceMigrating
	g.ServiceJobID = gm.ServiceJobID

	if g.namespace == nil {
		g.namespace = g.storage.getNamespace(gm.Namespace)
	} else if g.namespace.Name() != gm.Namespace {
		g.Status = GroupBad
		g.StatusText = fmt.Sprintf("Group moved to another namespace: '%s' -> '%s'",
			g.namespace.Name(), gm.Namespace)
		g.metadataAnomaly = true
		return
	}

	if g.couple != nil {
		if !g.couple.check(gm.Couple) {
			g.Status = GroupBad
			g.StatusText = fmt.Sprintf(
				"Couple in group metadata [ %s] doesn't match to existing one [ %s]",
				joinIDs(gm.Couple), joinIDs(g.couple.GroupIDs()))
			g.metadataAnomaly = true
			return
		}
	} else {
		g.storage.createCouple(gm.Couple, g)
	}

	g.deriveStatus()
}

// deriveStatus folds backend statuses into the group status
func (g *Group) deriveStatus() {
	if len(g.backends) == 0 {
		g.Status = GroupInit
		g.StatusText = "No node backends"
		return
	}

	if len(g.backends) > 1 && g.storage.cfg.ForbiddenDHTGroups {
		g.Status = GroupBroken
		g.StatusText = fmt.Sprintf(
			"DHT groups are forbidden but the group has %d backends", len(g.backends))
		return
	}

	var haveBad, haveRO, haveOther bool
	for _, b := range g.backends {
		switch b.Status {
		case BackendBad:
			haveBad = true
		case BackendRO:
			haveRO = true
		case BackendOK:
		default:
			haveOther = true
		}
		if haveBad {
			break
		}
	}

	switch {
	case haveBad:
		g.Status = GroupBroken
		g.StatusText = "Some of backends are in state BROKEN"
	case haveRO:
		if g.ServiceMigrating {
			g.Status = GroupMigrating
			g.StatusText = fmt.Sprintf("Group is migrating, job id is '%s'", g.ServiceJobID)
		} else {
			g.Status = GroupRO
			g.StatusText = "Group is read-only because it has read-only backends"
		}
	case haveOther:
		g.Status = GroupBad
		g.StatusText = "Group is in state BAD because some of backends are not in state OK"
	default:
		g.Status = GroupCoupled
		g.StatusText = "Group is OK"
	}
}

// MetadataEquals reports whether two groups agree on their metadata. Groups
// still in INIT compare equal to anything.
func (g *Group) MetadataEquals(other *Group) bool {
	if g.Status == GroupInit || other.Status == GroupInit {
		return true
	}

	coupleKey := func(c *Couple) string {
		if c == nil {
			return ""
		}
		return c.Key()
	}
	nsName := func(ns *Namespace) string {
		if ns == nil {
			return ""
		}
		return ns.Name()
	}

	return g.Frozen == other.Frozen &&
		coupleKey(g.couple) == coupleKey(other.couple) &&
		nsName(g.namespace) == nsName(other.namespace)
}

// Match reports whether the group passes the filter for the given item types
func (g *Group) Match(filter *models.Filter, itemTypes uint32) bool {
	if itemTypes&models.ItemGroup != 0 && len(filter.Groups) > 0 {
		if !filter.HasGroup(g.id) {
			return false
		}
	}

	if itemTypes&models.ItemNamespace != 0 && len(filter.Namespaces) > 0 {
		if g.namespace == nil || !filter.HasNamespace(g.namespace.Name()) {
			return false
		}
	}

	if itemTypes&models.ItemCouple != 0 && len(filter.Couples) > 0 {
		if g.couple == nil || !filter.HasCouple(g.couple.Key()) {
			return false
		}
	}

	checkNodes := itemTypes&models.ItemNode != 0 && len(filter.Nodes) > 0
	checkBackends := itemTypes&models.ItemBackend != 0 && len(filter.Backends) > 0
	checkFS := itemTypes&models.ItemFS != 0 && len(filter.Filesystems) > 0

	if !checkNodes && !checkBackends && !checkFS {
		return true
	}

	for _, b := range g.backends {
		foundNode := !checkNodes || filter.HasNode(b.Node().Key())
		foundBackend := !checkBackends || filter.HasBackend(b.Key())
		foundFS := !checkFS || (b.FS() != nil && filter.HasFS(b.FS().Key()))

		if foundNode && foundBackend && foundFS {
			return true
		}
	}

	return false
}

func (g *Group) clone(storage *Storage) *Group {
	copied := newGroup(storage, g.id)
	copied.metadata = append([]byte(nil), g.metadata...)
	copied.clean = g.clean
	copied.metadataProcessStart = g.metadataProcessStart
	copied.metadataProcessTime = g.metadataProcessTime
	copied.Frozen = g.Frozen
	copied.Version = g.Version
	copied.ServiceMigrating = g.ServiceMigrating
	copied.ServiceJobID = g.ServiceJobID
	copied.Status = g.Status
	copied.StatusText = g.StatusText
	copied.metadataAnomaly = g.metadataAnomaly
	// couple, namespace and backends are rebound by the storage clone
	return copied
}

// BackendKeys returns the sorted keys of the group's backends
func (g *Group) BackendKeys() []string {
	keys := make([]string, 0, len(g.backends))
	for key := range g.backends {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func joinIDs(ids []int) string {
	var sb strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&sb, "%d ", id)
	}
	return sb.String()
}

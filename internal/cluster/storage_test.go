package cluster

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/clustereye/collector/internal/config"
	"github.com/clustereye/collector/internal/logging"
	"github.com/clustereye/collector/internal/models"
	"github.com/clustereye/collector/internal/parsing"
)

var testNow = time.Unix(1700000100, 0)

func testConfig() config.CollectorConfig {
	return config.CollectorConfig{
		MonitorPort:                 10025,
		WaitTimeout:                 10 * time.Second,
		NodeBackendStatStaleTimeout: 120 * time.Second,
		ReservedSpace:               0,
	}
}

func newTestStorage(t *testing.T, cfg config.CollectorConfig) *Storage {
	t.Helper()
	return NewStorage(cfg, logging.NewDevelopment())
}

type backendSpec struct {
	id       uint64
	group    int
	fsid     uint64
	state    uint64
	readOnly bool
	blocks   uint64
	bavail   uint64
	bsize    uint64
}

func monitorJSON(tsSec uint64, backends ...backendSpec) string {
	var sb strings.Builder
	sb.WriteString(`{"timestamp": {"tv_sec": `)
	fmt.Fprintf(&sb, "%d", tsSec)
	sb.WriteString(`, "tv_usec": 0}, "backends": {`)
	for i, b := range backends {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `"%d": {"backend_id": %d, `+
			`"backend": {"vfs": {"blocks": %d, "bavail": %d, "bsize": %d, "fsid": %d}, `+
			`"config": {"group": %d}}, `+
			`"status": {"state": %d, "read_only": %t}}`,
			b.id, b.id, b.blocks, b.bavail, b.bsize, b.fsid, b.group, b.state, b.readOnly)
	}
	sb.WriteString(`}}`)
	return sb.String()
}

func mustMsgpack(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := msgpack.Marshal(v)
	if err != nil {
		t.Fatalf("msgpack marshal: %v", err)
	}
	return data
}

// runRound drives one collection round's storage steps on s
func runRound(t *testing.T, s *Storage, stats map[string]string, metadata map[int][]byte) {
	t.Helper()
	logger := logging.NewDevelopment()

	for key, doc := range stats {
		node, ok := s.nodes[key]
		if !ok {
			t.Fatalf("unknown node %s", key)
		}
		node.SetDownloadData([]byte(doc))
		node.ParseStats(logger)
	}

	s.UpdateGroupStructure()

	for id, data := range metadata {
		s.GetGroup(id).SaveMetadata(data)
	}

	s.UpdateAt(testNow)
}

func simpleMeta(t *testing.T, couple []int, namespace string) []byte {
	t.Helper()
	return mustMsgpack(t, map[string]interface{}{
		"version":   2,
		"couple":    couple,
		"namespace": namespace,
		"frozen":    false,
	})
}

func TestMinimalSingleNodeRound(t *testing.T) {
	s := newTestStorage(t, testConfig())
	s.AddNode("h1", 1025, 2)

	runRound(t, s,
		map[string]string{
			"h1:1025:2": monitorJSON(1700000000,
				backendSpec{id: 1, group: 7, fsid: 42, state: 1, blocks: 1000, bavail: 500, bsize: 4096}),
		},
		map[int][]byte{7: simpleMeta(t, []int{7}, "ns")},
	)

	sum := s.Summarize()
	if sum.Nodes != 1 || sum.Backends != 1 || sum.FS != 1 || sum.Groups != 1 ||
		sum.Couples != 1 || sum.Namespaces != 1 {
		t.Fatalf("summary = %+v", sum)
	}

	fs, ok := s.nodes["h1:1025:2"].fs[42]
	if !ok {
		t.Fatal("fs 42 not found")
	}
	if fs.Key() != "h1:1025:2/42" {
		t.Errorf("fs key = %q", fs.Key())
	}
	if fs.TotalSpace != 4096000 {
		t.Errorf("fs total = %d, want 4096000", fs.TotalSpace)
	}

	g := s.groups[7]
	if g.Status != GroupCoupled {
		t.Errorf("group status = %v (%s)", g.Status, g.StatusText)
	}
	if g.couple == nil || g.couple.Key() != "7" {
		t.Error("group couple should be \"7\"")
	}
	if g.namespace == nil || g.namespace.Name() != "ns" {
		t.Error("group namespace should be \"ns\"")
	}
}

func TestForbiddenDHTGroups(t *testing.T) {
	cfg := testConfig()
	cfg.ForbiddenDHTGroups = true
	s := newTestStorage(t, cfg)
	s.AddNode("h1", 1025, 2)

	runRound(t, s,
		map[string]string{
			"h1:1025:2": monitorJSON(1700000000,
				backendSpec{id: 1, group: 7, fsid: 42, state: 1, blocks: 10, bavail: 5, bsize: 4096},
				backendSpec{id: 2, group: 7, fsid: 42, state: 1, blocks: 10, bavail: 5, bsize: 4096}),
		},
		map[int][]byte{7: simpleMeta(t, []int{7}, "ns")},
	)

	g := s.groups[7]
	if g.Status != GroupBroken {
		t.Errorf("group status = %v, want BROKEN", g.Status)
	}
	if !strings.HasPrefix(g.StatusText, "DHT groups are forbidden") {
		t.Errorf("status text = %q", g.StatusText)
	}
}

func TestMigratingGroup(t *testing.T) {
	s := newTestStorage(t, testConfig())
	s.AddNode("h1", 1025, 2)

	metadata := mustMsgpack(t, map[string]interface{}{
		"version":   2,
		"couple":    []int{7},
		"namespace": "ns",
		"service": map[string]interface{}{
			"status": "MIGRATING",
			"job_id": "job-42",
		},
	})

	runRound(t, s,
		map[string]string{
			"h1:1025:2": monitorJSON(1700000000,
				backendSpec{id: 1, group: 7, fsid: 42, state: 1, readOnly: true, blocks: 10, bavail: 5, bsize: 4096}),
		},
		map[int][]byte{7: metadata},
	)

	g := s.groups[7]
	if g.Status != GroupMigrating {
		t.Errorf("group status = %v (%s), want MIGRATING", g.Status, g.StatusText)
	}
	if !strings.Contains(g.StatusText, "job-42") {
		t.Errorf("status text = %q, should contain job id", g.StatusText)
	}
}

func TestCoupleMismatch(t *testing.T) {
	s := newTestStorage(t, testConfig())
	s.AddNode("h1", 1025, 2)

	stats := map[string]string{
		"h1:1025:2": monitorJSON(1700000000,
			backendSpec{id: 1, group: 3, fsid: 42, state: 1, blocks: 10, bavail: 5, bsize: 4096}),
	}

	runRound(t, s, stats, map[int][]byte{3: simpleMeta(t, []int{3, 4}, "ns")})

	if s.groups[3].couple == nil || s.groups[3].couple.Key() != "3:4" {
		t.Fatal("group 3 should be bound to couple 3:4")
	}

	// next round: the metadata names a different couple
	runRound(t, s, stats, map[int][]byte{3: simpleMeta(t, []int{3, 5}, "ns")})

	g := s.groups[3]
	if g.Status != GroupBad {
		t.Errorf("group status = %v, want BAD", g.Status)
	}
	want := "Couple in group metadata [ 3 5 ] doesn't match to existing one [ 3 4 ]"
	if g.StatusText != want {
		t.Errorf("status text = %q, want %q", g.StatusText, want)
	}
	if g.couple.Key() != "3:4" {
		t.Errorf("existing couple binding changed to %q", g.couple.Key())
	}
	if _, ok := s.couples["3:4"]; !ok {
		t.Error("couple 3:4 should still exist")
	}
}

func TestFilterSelectivity(t *testing.T) {
	s := newTestStorage(t, testConfig())
	s.AddNode("h1", 1025, 2)

	runRound(t, s,
		map[string]string{
			"h1:1025:2": monitorJSON(1700000000,
				backendSpec{id: 1, group: 1, fsid: 42, state: 1, blocks: 10, bavail: 5, bsize: 4096},
				backendSpec{id: 2, group: 2, fsid: 42, state: 1, blocks: 10, bavail: 5, bsize: 4096},
				backendSpec{id: 3, group: 3, fsid: 42, state: 1, blocks: 10, bavail: 5, bsize: 4096}),
		},
		map[int][]byte{
			1: simpleMeta(t, []int{1}, "A"),
			2: simpleMeta(t, []int{2}, "A"),
			3: simpleMeta(t, []int{3}, "B"),
		},
	)

	tests := []struct {
		name   string
		filter models.Filter
		want   int
	}{
		{"namespace A", models.Filter{ItemTypes: models.ItemNamespace, Namespaces: []string{"A"}}, 2},
		{"group 2", models.Filter{ItemTypes: models.ItemGroup, Groups: []int{2}}, 1},
		{"namespace A and group 3", models.Filter{
			ItemTypes:  models.ItemNamespace | models.ItemGroup,
			Namespaces: []string{"A"},
			Groups:     []int{3},
		}, 0},
		{"no filter", models.Filter{}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := s.Snapshot(&tt.filter)
			if len(view.Groups) != tt.want {
				t.Errorf("got %d groups, want %d", len(view.Groups), tt.want)
			}
		})
	}
}

func TestBackendsCarryGroupID(t *testing.T) {
	s := newTestStorage(t, testConfig())
	s.AddNode("h1", 1025, 2)
	s.AddNode("h2", 1025, 2)

	runRound(t, s,
		map[string]string{
			"h1:1025:2": monitorJSON(1700000000,
				backendSpec{id: 1, group: 1, fsid: 1, state: 1, blocks: 10, bavail: 5, bsize: 4096}),
			"h2:1025:2": monitorJSON(1700000000,
				backendSpec{id: 1, group: 1, fsid: 1, state: 1, blocks: 10, bavail: 5, bsize: 4096},
				backendSpec{id: 2, group: 2, fsid: 1, state: 1, blocks: 10, bavail: 5, bsize: 4096}),
		},
		map[int][]byte{
			1: simpleMeta(t, []int{1}, "ns"),
			2: simpleMeta(t, []int{2}, "ns"),
		},
	)

	for id, g := range s.groups {
		for key, b := range g.backends {
			if b.GroupID() != id {
				t.Errorf("backend %s claims group %d but is indexed under %d", key, b.GroupID(), id)
			}
		}
	}
}

func TestFSTotalSpaceInvariant(t *testing.T) {
	s := newTestStorage(t, testConfig())
	s.AddNode("h1", 1025, 2)

	runRound(t, s,
		map[string]string{
			"h1:1025:2": monitorJSON(1700000000,
				backendSpec{id: 1, group: 1, fsid: 42, state: 1, blocks: 100, bavail: 50, bsize: 4096},
				backendSpec{id: 2, group: 2, fsid: 42, state: 1, blocks: 200, bavail: 80, bsize: 4096},
				backendSpec{id: 3, group: 3, fsid: 43, state: 1, blocks: 300, bavail: 10, bsize: 512}),
		},
		nil,
	)

	for _, node := range s.nodes {
		for _, fs := range node.fs {
			var want uint64
			for _, b := range fs.backends {
				want += b.Stat.VfsBlocks * b.Stat.VfsBsize
			}
			if fs.TotalSpace != want {
				t.Errorf("fs %s total = %d, want %d", fs.Key(), fs.TotalSpace, want)
			}
		}
	}
}

func TestNamespaceCoupleMembership(t *testing.T) {
	s := newTestStorage(t, testConfig())
	s.AddNode("h1", 1025, 2)

	runRound(t, s,
		map[string]string{
			"h1:1025:2": monitorJSON(1700000000,
				backendSpec{id: 1, group: 1, fsid: 1, state: 1, blocks: 10, bavail: 5, bsize: 4096},
				backendSpec{id: 2, group: 2, fsid: 1, state: 1, blocks: 10, bavail: 5, bsize: 4096}),
		},
		map[int][]byte{
			1: simpleMeta(t, []int{1}, "A"),
			2: simpleMeta(t, []int{2}, "B"),
		},
	)

	for name, ns := range s.namespaces {
		for _, c := range ns.Couples() {
			found := false
			for _, g := range c.Groups() {
				if g.namespace != nil && g.namespace.Name() == name {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("couple %s is in namespace %s but no member group agrees", c.Key(), name)
			}
		}
	}
}

func TestGroupLosesAllBackends(t *testing.T) {
	s := newTestStorage(t, testConfig())
	s.AddNode("h1", 1025, 2)

	runRound(t, s,
		map[string]string{
			"h1:1025:2": monitorJSON(1700000000,
				backendSpec{id: 1, group: 7, fsid: 1, state: 1, blocks: 10, bavail: 5, bsize: 4096}),
		},
		map[int][]byte{7: simpleMeta(t, []int{7}, "ns")},
	)

	if s.groups[7].Status != GroupCoupled {
		t.Fatalf("group status = %v", s.groups[7].Status)
	}

	// the backend moves to another group; group 7 is retained but empty
	runRound(t, s,
		map[string]string{
			"h1:1025:2": monitorJSON(1700000050,
				backendSpec{id: 1, group: 8, fsid: 1, state: 1, blocks: 10, bavail: 5, bsize: 4096}),
		},
		nil,
	)

	g := s.groups[7]
	if g == nil {
		t.Fatal("group 7 should be retained")
	}
	if g.Status != GroupInit {
		t.Errorf("group status = %v, want INIT", g.Status)
	}
	if g.StatusText != "No node backends" {
		t.Errorf("status text = %q", g.StatusText)
	}
}

func TestGroupStatusDerivationTable(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []BackendStatus
		forbidden bool
		migrating bool
		want      GroupStatus
	}{
		{"all ok", []BackendStatus{BackendOK}, false, false, GroupCoupled},
		{"no backends", nil, false, false, GroupInit},
		{"dht forbidden", []BackendStatus{BackendOK, BackendOK}, true, false, GroupBroken},
		{"dht allowed", []BackendStatus{BackendOK, BackendOK}, false, false, GroupCoupled},
		{"bad backend", []BackendStatus{BackendOK, BackendBad}, false, false, GroupBroken},
		{"ro backend", []BackendStatus{BackendRO}, false, false, GroupRO},
		{"ro migrating", []BackendStatus{BackendRO}, false, true, GroupMigrating},
		{"stalled backend", []BackendStatus{BackendStalled}, false, false, GroupBad},
		{"init backend", []BackendStatus{BackendInit}, false, false, GroupBad},
		{"bad beats ro", []BackendStatus{BackendRO, BackendBad}, false, false, GroupBroken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.ForbiddenDHTGroups = tt.forbidden
			s := newTestStorage(t, cfg)
			node := s.AddNode("h1", 1025, 2)

			g := s.GetGroup(1)
			g.ServiceMigrating = tt.migrating
			for i, status := range tt.statuses {
				b := newBackend(node, backendStatWithID(uint64(i+1)))
				b.Status = status
				g.addBackend(b)
			}

			g.deriveStatus()
			if g.Status != tt.want {
				t.Errorf("status = %v, want %v (%s)", g.Status, tt.want, g.StatusText)
			}
		})
	}
}

func TestSnapshotCloneIsolation(t *testing.T) {
	s := newTestStorage(t, testConfig())
	s.AddNode("h1", 1025, 2)

	runRound(t, s,
		map[string]string{
			"h1:1025:2": monitorJSON(1700000000,
				backendSpec{id: 1, group: 7, fsid: 42, state: 1, blocks: 10, bavail: 5, bsize: 4096}),
		},
		map[int][]byte{7: simpleMeta(t, []int{7}, "ns")},
	)

	staging := s.Clone()

	// the staging round observes a broken state
	runRound(t, staging,
		map[string]string{
			"h1:1025:2": monitorJSON(1700000050,
				backendSpec{id: 1, group: 7, fsid: 42, state: 0, blocks: 10, bavail: 5, bsize: 4096}),
		},
		nil,
	)

	if staging.groups[7].Status == GroupCoupled {
		t.Error("staging group should have degraded")
	}
	if s.groups[7].Status != GroupCoupled {
		t.Errorf("published snapshot changed under a staging round: %v", s.groups[7].Status)
	}

	// keys survive the clone; pointers do not cross it
	if staging.nodes["h1:1025:2"] == s.nodes["h1:1025:2"] {
		t.Error("clone shares node pointers with the original")
	}
	if staging.groups[7].couple.Key() != "7" {
		t.Errorf("clone lost couple binding")
	}
}

func TestBackendStatusDerivation(t *testing.T) {
	tests := []struct {
		name string
		prep func(*Backend)
		want BackendStatus
	}{
		{"no stat", func(b *Backend) { b.StatTsSec = 0 }, BackendInit},
		{"fresh enabled", func(b *Backend) {}, BackendOK},
		{"stale stat", func(b *Backend) {
			b.StatTsSec = uint64(testNow.Add(-10 * time.Minute).Unix())
		}, BackendStalled},
		{"disabled", func(b *Backend) { b.Stat.State = 0 }, BackendStalled},
		{"vfs error", func(b *Backend) { b.Stat.VfsError = 5 }, BackendBad},
		{"parse error", func(b *Backend) { b.Stat.ParseErrors = 1 }, BackendBad},
		{"read only flag", func(b *Backend) { b.Stat.ReadOnly = 1 }, BackendRO},
		{"rofs errors", func(b *Backend) { b.RofsErrors = 3 }, BackendRO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStorage(t, testConfig())
			node := s.AddNode("h1", 1025, 2)
			b := newBackend(node, backendStatWithID(1))
			b.Stat.State = 1
			b.StatTsSec = uint64(testNow.Add(-30 * time.Second).Unix())
			tt.prep(b)

			b.deriveStatus(testNow, 120*time.Second)
			if b.Status != tt.want {
				t.Errorf("status = %v, want %v", b.Status, tt.want)
			}
		})
	}
}

func TestBackendStatMergeKeepsNewest(t *testing.T) {
	s := newTestStorage(t, testConfig())
	s.AddNode("h1", 1025, 2)
	logger := logging.NewDevelopment()

	node := s.nodes["h1:1025:2"]
	node.SetDownloadData([]byte(monitorJSON(1700000050,
		backendSpec{id: 1, group: 7, fsid: 42, state: 1, blocks: 100, bavail: 50, bsize: 4096})))
	node.ParseStats(logger)

	// an older response must not clobber the newer record
	node.SetDownloadData([]byte(monitorJSON(1700000000,
		backendSpec{id: 1, group: 7, fsid: 42, state: 1, blocks: 999, bavail: 1, bsize: 4096})))
	node.ParseStats(logger)

	b := node.backends[1]
	if b.Stat.VfsBlocks != 100 {
		t.Errorf("older stat overwrote newer one: blocks = %d", b.Stat.VfsBlocks)
	}
}

func TestMetadataEquals(t *testing.T) {
	s := newTestStorage(t, testConfig())

	a := s.GetGroup(1)
	b := s.GetGroup(2)

	// INIT groups compare equal to anything
	if !a.MetadataEquals(b) {
		t.Error("INIT groups should compare equal")
	}

	a.Status = GroupCoupled
	b.Status = GroupCoupled
	a.Frozen = true
	if a.MetadataEquals(b) {
		t.Error("differing frozen flags should not compare equal")
	}
	b.Frozen = true
	if !a.MetadataEquals(b) {
		t.Error("matching metadata should compare equal")
	}
}

func backendStatWithID(id uint64) parsing.BackendStat {
	return parsing.BackendStat{BackendID: id, Group: 1, State: 1}
}

func TestCoupleKeyInvariant(t *testing.T) {
	if key := CoupleKey([]int{5, 3, 4}); key != "3:4:5" {
		t.Errorf("couple key = %q, want 3:4:5", key)
	}

	s := newTestStorage(t, testConfig())
	s.AddNode("h1", 1025, 2)

	runRound(t, s,
		map[string]string{
			"h1:1025:2": monitorJSON(1700000000,
				backendSpec{id: 1, group: 3, fsid: 1, state: 1, blocks: 10, bavail: 5, bsize: 4096}),
		},
		map[int][]byte{3: simpleMeta(t, []int{4, 3}, "ns")},
	)

	couple, ok := s.couples["3:4"]
	if !ok {
		t.Fatalf("couple 3:4 missing, have %v", s.couples)
	}
	for _, g := range couple.Groups() {
		if g.couple != couple {
			t.Errorf("group %d back-reference does not point to its couple", g.ID())
		}
	}
}

func TestCoupleStatusWorstMemberWins(t *testing.T) {
	cfg := testConfig()
	cfg.ForbiddenDHTGroups = true
	s := newTestStorage(t, cfg)
	s.AddNode("h1", 1025, 2)

	// group 2 is a forbidden DHT group, so couple 1:2 degrades with it
	runRound(t, s,
		map[string]string{
			"h1:1025:2": monitorJSON(1700000000,
				backendSpec{id: 1, group: 1, fsid: 1, state: 1, blocks: 10, bavail: 5, bsize: 4096},
				backendSpec{id: 2, group: 2, fsid: 1, state: 1, blocks: 10, bavail: 5, bsize: 4096},
				backendSpec{id: 3, group: 2, fsid: 1, state: 1, blocks: 10, bavail: 5, bsize: 4096}),
		},
		map[int][]byte{
			1: simpleMeta(t, []int{1, 2}, "ns"),
			2: simpleMeta(t, []int{1, 2}, "ns"),
		},
	)

	couple := s.couples["1:2"]
	if couple == nil {
		t.Fatal("couple 1:2 missing")
	}
	if couple.Status != GroupBroken {
		t.Errorf("couple status = %v, want BROKEN", couple.Status)
	}
}

func TestEffectiveFreeSpace(t *testing.T) {
	s := newTestStorage(t, testConfig())
	node := s.AddNode("h1", 1025, 2)

	b := newBackend(node, parsing.BackendStat{
		BackendID: 1,
		VfsBlocks: 1000,
		VfsBavail: 500,
		VfsBsize:  4096,
	})

	free := b.FreeSpace()
	if free != 500*4096 {
		t.Fatalf("free = %d", free)
	}
	if got := b.EffectiveFreeSpace(1024); got != free-1024 {
		t.Errorf("effective free = %d", got)
	}
	if got := b.EffectiveFreeSpace(free + 1); got != 0 {
		t.Errorf("effective free below reservation = %d, want 0", got)
	}
}

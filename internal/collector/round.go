package collector

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clustereye/collector/internal/cluster"
	"github.com/clustereye/collector/internal/logging"
	"github.com/clustereye/collector/internal/meta"
)

// RoundType identifies why a round was started
type RoundType int

const (
	RoundRegular RoundType = iota
	RoundForcedFull
	RoundForcedPartial
)

// String returns the log name of the round type
func (t RoundType) String() string {
	switch t {
	case RoundRegular:
		return "regular"
	case RoundForcedFull:
		return "forced full"
	case RoundForcedPartial:
		return "forced partial"
	}
	return "unknown"
}

// StatSource downloads one node's monitor stat document
type StatSource interface {
	Fetch(host string) ([]byte, error)
}

// ClockStat records the stage timings of one round
type ClockStat struct {
	Total              time.Duration
	PerformDownload    time.Duration
	FinishMonitorStats time.Duration
	MetadataDownload   time.Duration
	StorageUpdate      time.Duration
}

// Round is a single-use collection pipeline. It works on a staging clone of
// the published snapshot: parallel stat download and parse, group structure
// reconciliation, parallel metadata download, final merge. A failed node or
// group degrades to its previous data; the round always runs to completion
// unless the context is cancelled.
type Round struct {
	id      string
	typ     RoundType
	storage *cluster.Storage

	stats   StatSource
	session meta.Session
	logger  *logging.Logger

	// nodeFilter restricts stat downloads for partial rounds; nil means all
	nodeFilter map[string]bool

	clock ClockStat
}

func newRound(typ RoundType, staging *cluster.Storage, stats StatSource,
	session meta.Session, logger *logging.Logger) *Round {
	id := uuid.New().String()
	return &Round{
		id:      id,
		typ:     typ,
		storage: staging,
		stats:   stats,
		session: session,
		logger:  logger.With("round_id", id),
	}
}

// ID returns the round identifier
func (r *Round) ID() string {
	return r.id
}

// Type returns the round type
func (r *Round) Type() RoundType {
	return r.typ
}

// Clock returns the recorded stage timings
func (r *Round) Clock() ClockStat {
	return r.clock
}

// Perform runs the round and returns the updated storage, ready to publish.
// Cancellation is observed at the stage barriers: in-flight downloads finish,
// the final merge is skipped.
func (r *Round) Perform(ctx context.Context) (*cluster.Storage, error) {
	started := time.Now()
	defer func() {
		r.clock.Total = time.Since(started)
	}()

	r.logger.Info("Starting discovery",
		"type", r.typ.String(),
		"nodes", len(r.storage.Nodes()))

	r.performDownload(ctx)

	finishStarted := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.storage.UpdateGroupStructure()
	r.clock.FinishMonitorStats = time.Since(finishStarted)

	r.performMetadataDownload(ctx)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	updateStarted := time.Now()
	r.storage.Update()
	r.clock.StorageUpdate = time.Since(updateStarted)

	return r.storage, nil
}

// performDownload fans one stat download out per node and parses completed
// responses. A failed download drops the node's buffer; its previous records
// survive.
func (r *Round) performDownload(ctx context.Context) {
	started := time.Now()
	defer func() {
		r.clock.PerformDownload = time.Since(started)
	}()

	var wg sync.WaitGroup
	for _, node := range r.storage.Nodes() {
		if r.nodeFilter != nil && !r.nodeFilter[node.Key()] {
			continue
		}

		wg.Add(1)
		go func(node *cluster.Node) {
			defer wg.Done()

			r.logger.Debug("Scheduling stat download", "node", node.Key())

			data, err := r.stats.Fetch(node.Host())
			if err != nil {
				r.logger.Error("Node stat download failed",
					"node", node.Key(), "error", err)
				node.DropDownloadData()
				return
			}

			r.logger.Info("Node stat download completed", "node", node.Key())
			node.SetDownloadData(data)
			node.ParseStats(r.logger)
		}(node)
	}
	wg.Wait()
}

// performMetadataDownload schedules one metadata read per group and waits
// for the last one. A failed read records the failure on the group and keeps
// its previous metadata.
func (r *Round) performMetadataDownload(ctx context.Context) {
	started := time.Now()
	defer func() {
		r.clock.MetadataDownload = time.Since(started)
	}()

	groups := r.storage.Groups()
	r.logger.Info("Scheduling metadata download", "groups", len(groups))

	var wg sync.WaitGroup
	for _, group := range groups {
		wg.Add(1)
		go func(group *cluster.Group) {
			defer wg.Done()

			session := r.session.Clone()
			r.logger.Debug("Scheduling metadata download for group", "group", group.ID())

			data, err := session.ReadKey(ctx, meta.MetadataNamespace, meta.MetadataKey,
				[]int{group.ID()})
			if err != nil {
				group.SetStatusText("Metadata download failed: " + err.Error())
				return
			}
			group.SaveMetadata(data)
		}(group)
	}
	wg.Wait()

	r.logger.Info("Group metadata download completed")
}

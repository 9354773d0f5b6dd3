// Package collector owns the published cluster snapshot and schedules the
// collection rounds that replace it.
package collector

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/clustereye/collector/internal/cluster"
	"github.com/clustereye/collector/internal/config"
	"github.com/clustereye/collector/internal/logging"
	"github.com/clustereye/collector/internal/meta"
	"github.com/clustereye/collector/internal/models"
	"github.com/clustereye/collector/internal/queue"
)

// snapshotSubject is the queue subject round-completion events publish to
const snapshotSubject = "clustereye.snapshot"

// SnapshotEvent is the payload published after every committed round
type SnapshotEvent struct {
	RoundID    string `json:"round_id"`
	Type       string `json:"type"`
	Nodes      int    `json:"nodes"`
	Backends   int    `json:"backends"`
	Groups     int    `json:"groups"`
	Couples    int    `json:"couples"`
	Namespaces int    `json:"namespaces"`
	TotalMs    int64  `json:"total_ms"`
}

type roundRequest struct {
	typ        RoundType
	nodeFilter map[string]bool

	// done is closed after the round finishes with err holding the outcome;
	// every attached waiter observes the same result
	done chan struct{}
	err  error
}

// Collector owns the live snapshot and runs at most one round at a time.
// Readers take the snapshot lock shared; the commit takes it exclusively for
// the pointer swap only, so a reader sees either the pre-round or the
// post-round snapshot, never a partial merge.
type Collector struct {
	cfg     config.CollectorConfig
	logger  *logging.Logger
	stats   StatSource
	session meta.Session
	events  queue.Publisher // optional round-completion events

	// snapshot lock
	mu        sync.RWMutex
	snapshot  *cluster.Storage
	lastClock *models.RoundClockResponse

	// round serialisation
	stateMu sync.Mutex
	current *roundRequest // round in flight, nil when idle
	reqCh   chan *roundRequest

	stopOnce sync.Once
	stopped  chan struct{}
}

// New creates a collector with an empty snapshot built from configuration
func New(cfg config.CollectorConfig, stats StatSource, session meta.Session,
	events queue.Publisher, logger *logging.Logger) *Collector {
	return &Collector{
		cfg:      cfg,
		logger:   logger,
		stats:    stats,
		session:  session,
		events:   events,
		snapshot: cluster.NewStorage(cfg, logger),
		reqCh:    make(chan *roundRequest, 16),
		stopped:  make(chan struct{}),
	}
}

// Run executes rounds until the context is cancelled: periodic regular
// rounds plus any requested through Refresh/ForceUpdate. Requests are
// processed strictly one at a time so every merge observes the previous
// snapshot.
func (c *Collector) Run(ctx context.Context) {
	defer c.stopOnce.Do(func() { close(c.stopped) })

	period := c.cfg.RefreshPeriod
	if period <= 0 {
		period = time.Minute
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	// initial discovery so readers have data before the first tick
	c.executeRound(ctx, &roundRequest{typ: RoundRegular, done: make(chan struct{})})

	for {
		select {
		case <-ctx.Done():
			c.drainRequests(ctx.Err())
			return
		case req := <-c.reqCh:
			c.executeRound(ctx, req)
		case <-ticker.C:
			c.executeRound(ctx, &roundRequest{typ: RoundRegular, done: make(chan struct{})})
		}
	}
}

// Summary reports entity counts of the current snapshot
func (c *Collector) Summary() models.SummaryResponse {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sum := c.snapshot.Summarize()
	return models.SummaryResponse{
		Nodes:      sum.Nodes,
		Backends:   sum.Backends,
		FS:         sum.FS,
		Groups:     sum.Groups,
		Couples:    sum.Couples,
		Namespaces: sum.Namespaces,
		LastRound:  c.lastClock,
	}
}

// GetSnapshot projects the current snapshot through the filter
func (c *Collector) GetSnapshot(filter *models.Filter) *cluster.SnapshotView {
	c.mu.RLock()
	snapshot := c.snapshot
	c.mu.RUnlock()

	return snapshot.Snapshot(filter)
}

// Refresh waits for fresh data: if a round is in flight the caller attaches
// to it, otherwise a regular round starts. A filter narrows the refresh to
// the nodes serving the matched part of the snapshot (a forced partial
// round).
func (c *Collector) Refresh(ctx context.Context, filter *models.Filter) error {
	c.stateMu.Lock()
	if cur := c.current; cur != nil && cur.done != nil {
		c.stateMu.Unlock()
		return c.wait(ctx, cur)
	}
	c.stateMu.Unlock()

	req := &roundRequest{typ: RoundRegular, done: make(chan struct{})}
	if filter != nil && !filter.Empty() {
		req.typ = RoundForcedPartial
		req.nodeFilter = c.nodesForFilter(filter)
	}

	return c.enqueue(ctx, req)
}

// ForceUpdate starts a forced full round; one in flight is followed, not
// joined
func (c *Collector) ForceUpdate(ctx context.Context) error {
	c.logger.Info("Request to force update")
	req := &roundRequest{typ: RoundForcedFull, done: make(chan struct{})}
	return c.enqueue(ctx, req)
}

func (c *Collector) enqueue(ctx context.Context, req *roundRequest) error {
	select {
	case c.reqCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return context.Canceled
	}
	return c.wait(ctx, req)
}

func (c *Collector) wait(ctx context.Context, req *roundRequest) error {
	select {
	case <-req.done:
		return req.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// nodesForFilter resolves the node set a partial refresh must poll
func (c *Collector) nodesForFilter(filter *models.Filter) map[string]bool {
	c.mu.RLock()
	snapshot := c.snapshot
	c.mu.RUnlock()

	nodes := make(map[string]bool)
	for _, key := range filter.Nodes {
		nodes[key] = true
	}
	for _, g := range snapshot.Groups() {
		if !g.Match(filter, filter.ItemTypes) {
			continue
		}
		for _, b := range g.Backends() {
			nodes[b.Node().Key()] = true
		}
	}
	return nodes
}

func (c *Collector) executeRound(ctx context.Context, req *roundRequest) {
	if ctx.Err() != nil {
		c.finish(req, ctx.Err())
		return
	}

	c.stateMu.Lock()
	c.current = req
	c.stateMu.Unlock()

	c.mu.RLock()
	staging := c.snapshot.Clone()
	c.mu.RUnlock()

	round := newRound(req.typ, staging, c.stats, c.session, c.logger)
	round.nodeFilter = req.nodeFilter

	updated, err := round.Perform(ctx)

	if err == nil {
		clock := round.Clock()
		lastClock := &models.RoundClockResponse{
			RoundID:           round.ID(),
			Type:              round.Type().String(),
			TotalMs:           clock.Total.Milliseconds(),
			PerformDownloadMs: clock.PerformDownload.Milliseconds(),
			FinishMonitorMs:   clock.FinishMonitorStats.Milliseconds(),
			MetadataMs:        clock.MetadataDownload.Milliseconds(),
			StorageUpdateMs:   clock.StorageUpdate.Milliseconds(),
		}

		c.mu.Lock()
		c.snapshot = updated
		c.lastClock = lastClock
		c.mu.Unlock()

		c.logger.Info("Round completed",
			"round_id", round.ID(),
			"type", round.Type().String(),
			"total_ms", clock.Total.Milliseconds())

		c.publishEvent(round, updated)
	} else {
		c.logger.Error("Round aborted", "round_id", round.ID(), "error", err)
	}

	c.stateMu.Lock()
	c.current = nil
	c.stateMu.Unlock()

	c.finish(req, err)
}

func (c *Collector) finish(req *roundRequest, err error) {
	if req.done != nil {
		req.err = err
		close(req.done)
	}
}

func (c *Collector) drainRequests(err error) {
	for {
		select {
		case req := <-c.reqCh:
			c.finish(req, err)
		default:
			return
		}
	}
}

func (c *Collector) publishEvent(round *Round, snapshot *cluster.Storage) {
	if c.events == nil {
		return
	}

	sum := snapshot.Summarize()
	payload, err := json.Marshal(SnapshotEvent{
		RoundID:    round.ID(),
		Type:       round.Type().String(),
		Nodes:      sum.Nodes,
		Backends:   sum.Backends,
		Groups:     sum.Groups,
		Couples:    sum.Couples,
		Namespaces: sum.Namespaces,
		TotalMs:    round.Clock().Total.Milliseconds(),
	})
	if err != nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.events.Publish(pubCtx, snapshotSubject, payload); err != nil {
		c.logger.Warn("Failed to publish snapshot event", "error", err)
	}
}

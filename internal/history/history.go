// Package history reads the audit of backend sets that served each group
// from the history database. Entries are consumed read-only when backend
// history needs to be established, e.g. for restore decisions.
package history

import (
	"context"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/clustereye/collector/internal/config"
	"github.com/clustereye/collector/internal/logging"
)

// historyCollection is the collection holding group history documents
const historyCollection = "history"

// BackendRef identifies one backend in a history record
type BackendRef struct {
	Hostname  string `bson:"hostname" json:"hostname"`
	Port      int    `bson:"port" json:"port"`
	Family    int    `bson:"family" json:"family"`
	BackendID uint64 `bson:"backend_id" json:"backend_id"`
	Path      string `bson:"path,omitempty" json:"path,omitempty"`
}

// Key returns the canonical "<host>:<port>:<family>/<backend-id>" form
func (r BackendRef) Key() string {
	return fmt.Sprintf("%s:%d:%d/%d", r.Hostname, r.Port, r.Family, r.BackendID)
}

type historyNode struct {
	Timestamp float64      `bson:"timestamp"`
	Type      string       `bson:"type"`
	Set       []BackendRef `bson:"set"`
}

type groupHistoryDoc struct {
	GroupID int           `bson:"group_id"`
	Nodes   []historyNode `bson:"nodes"`
}

// GroupHistoryEntry is the loaded history of one group. Only records of type
// "job" or "manual" carry meaning; a document without them loads as an empty
// entry: valid, but nothing we were looking for.
type GroupHistoryEntry struct {
	GroupID   int
	Backends  []BackendRef
	Timestamp float64

	empty bool
}

// Empty reports whether the document held no "job" or "manual" records
func (e *GroupHistoryEntry) Empty() bool {
	return e.empty
}

// ParseGroupHistoryEntry decodes one history document
func ParseGroupHistoryEntry(raw bson.Raw) (*GroupHistoryEntry, error) {
	var doc groupHistoryDoc
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("history entry decode: %w", err)
	}
	return entryFromDoc(doc), nil
}

func entryFromDoc(doc groupHistoryDoc) *GroupHistoryEntry {
	entry := &GroupHistoryEntry{
		GroupID: doc.GroupID,
		empty:   true,
	}

	for _, node := range doc.Nodes {
		if node.Type != "job" && node.Type != "manual" {
			continue
		}
		if entry.empty || node.Timestamp > entry.Timestamp {
			entry.Timestamp = node.Timestamp
			entry.Backends = append([]BackendRef(nil), node.Set...)
			entry.empty = false
		}
	}

	sort.Slice(entry.Backends, func(i, j int) bool {
		return entry.Backends[i].Key() < entry.Backends[j].Key()
	})

	return entry
}

// Reader reads group history entries from the history database
type Reader struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *logging.Logger
}

// NewReader connects to the metadata database and opens the history
// collection
func NewReader(ctx context.Context, cfg config.MetadataConfig, logger *logging.Logger) (*Reader, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("metadata.url is not configured")
	}
	if cfg.HistoryDB == "" {
		return nil, fmt.Errorf("metadata.history_db is not configured")
	}

	opts := options.Client().
		ApplyURI(cfg.URL).
		SetConnectTimeout(cfg.ConnectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to metadata database: %w", err)
	}

	return &Reader{
		client: client,
		coll:   client.Database(cfg.HistoryDB).Collection(historyCollection),
		logger: logger,
	}, nil
}

// GroupHistory loads the history entry for one group; a missing document
// returns nil without error
func (r *Reader) GroupHistory(ctx context.Context, groupID int) (*GroupHistoryEntry, error) {
	var doc groupHistoryDoc
	err := r.coll.FindOne(ctx, bson.M{"group_id": groupID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history lookup for group %d: %w", groupID, err)
	}

	return entryFromDoc(doc), nil
}

// AllGroupHistories loads every history entry. Documents that fail to decode
// are skipped with a log record; a single bad document never fails the scan.
func (r *Reader) AllGroupHistories(ctx context.Context) ([]*GroupHistoryEntry, error) {
	cursor, err := r.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("history scan: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*GroupHistoryEntry
	for cursor.Next(ctx) {
		var doc groupHistoryDoc
		if err := cursor.Decode(&doc); err != nil {
			r.logger.Error("Failed to decode history entry", "error", err)
			continue
		}
		entries = append(entries, entryFromDoc(doc))
	}
	if err := cursor.Err(); err != nil {
		return entries, fmt.Errorf("history scan: %w", err)
	}

	return entries, nil
}

// Close disconnects from the metadata database
func (r *Reader) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// Package ledger keeps a durable history of reconstruction runs in a Lode
// dataset, partitioned by archive name and day.
package ledger

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// DefaultDataset is the Lode dataset ID for run records.
const DefaultDataset = "ndarchive-runs"

// ErrNoRuns is returned by Last when no run is recorded for the archive.
var ErrNoRuns = errors.New("no runs recorded")

// Recorder persists run records. *Client implements it.
type Recorder interface {
	Record(ctx context.Context, rec RunRecord) error
}

// Client reads and writes run records.
type Client struct {
	dataset lode.Dataset
}

// NewFSClient creates a Client storing Hive-partitioned JSONL under root,
// creating root if needed.
func NewFSClient(root string) (*Client, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, wrap("init", err)
	}
	return NewClientWithFactory(lode.NewFSFactory(root))
}

// NewClientWithFactory creates a Client over a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewClientWithFactory(factory lode.StoreFactory) (*Client, error) {
	ds, err := lode.NewDataset(
		lode.DatasetID(DefaultDataset),
		factory,
		lode.WithHiveLayout("archive_name", "day"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, wrap("init", err)
	}
	return &Client{dataset: ds}, nil
}

// Record writes one run record as its own snapshot.
func (c *Client) Record(ctx context.Context, rec RunRecord) error {
	_, err := c.dataset.Write(ctx, []any{toRecordMap(rec)}, lode.Metadata{})
	return wrap("write", err)
}

// History returns run records for archive, newest first. An empty archive
// returns runs of every archive. limit <= 0 means no limit.
func (c *Client) History(ctx context.Context, archive string, limit int) ([]RunRecord, error) {
	snapshots, err := c.dataset.Snapshots(ctx)
	if err != nil {
		return nil, wrap("list", err)
	}

	var want string
	if archive != "" {
		want = partitionName(archive)
	}

	var out []RunRecord
	// Snapshots are ordered by creation time.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if want != "" && !snapshotMatches(snap, "archive_name", want) {
			continue
		}

		data, err := c.dataset.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrap("read", err)
		}
		// Path filtering is coarse; record fields are authoritative.
		for j := len(data) - 1; j >= 0; j-- {
			m, ok := data[j].(map[string]any)
			if !ok {
				continue
			}
			rec, ok := fromRecordMap(m)
			if !ok {
				continue
			}
			if want != "" && partitionName(rec.Archive) != want {
				continue
			}
			out = append(out, rec)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// Last returns the newest run record for archive.
func (c *Client) Last(ctx context.Context, archive string) (RunRecord, error) {
	recs, err := c.History(ctx, archive, 1)
	if err != nil {
		return RunRecord{}, err
	}
	if len(recs) == 0 {
		return RunRecord{}, ErrNoRuns
	}
	return recs[0], nil
}

// Close releases client resources.
func (c *Client) Close() error {
	return nil
}

// snapshotMatches checks whether any file of snap sits in the key=value
// partition. Segments are compared whole so archive_name=a does not match
// archive_name=ab.
func snapshotMatches(snap *lode.DatasetSnapshot, key, value string) bool {
	segment := key + "=" + value
	for _, f := range snap.Manifest.Files {
		for _, part := range strings.Split(f.Path, "/") {
			if part == segment {
				return true
			}
		}
	}
	return false
}

var _ Recorder = (*Client)(nil)

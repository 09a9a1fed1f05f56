// Package state persists compiled model snapshots so that a restart with
// unchanged sources can skip recompilation.
package state

import (
	"context"
	"time"

	"github.com/leapstack-labs/leaporm/pkg/model"
)

// SnapshotInfo summarizes a stored snapshot.
type SnapshotInfo struct {
	ID        string
	Hash      string
	CreatedAt time.Time
	Models    int
	Sources   []model.SourceInfo
}

// Store holds compiled snapshots.
type Store interface {
	Open(path string) error
	Close() error
	Migrate() error

	// SaveSnapshot stores snap and returns its id.
	SaveSnapshot(ctx context.Context, snap *model.Snapshot) (string, error)
	// LatestSnapshot returns the newest snapshot, or nil when none exists.
	LatestSnapshot(ctx context.Context) (*model.Snapshot, error)
	// Snapshots lists stored snapshots, newest first.
	Snapshots(ctx context.Context) ([]SnapshotInfo, error)
	// PruneSnapshots keeps the newest keep snapshots and deletes the rest.
	PruneSnapshots(ctx context.Context, keep int) (int64, error)
}

var _ Store = (*SQLiteStore)(nil)

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/leaporm/pkg/model"
)

// SaveSnapshot stores an encoded snapshot with one row per source.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *model.Snapshot) (string, error) {
	if s.db == nil {
		return "", fmt.Errorf("database not opened")
	}

	payload, err := snap.Encode()
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id := generateID()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (id, hash, version, model_count, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, snap.Hash, model.SnapshotVersion, len(snap.Models), snap.CreatedAt.UTC().Format(time.RFC3339Nano), payload)
	if err != nil {
		return "", fmt.Errorf("insert snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshot_sources (snapshot_id, source_id, name, hash, mod_time)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, src := range snap.Sources {
		if _, err := stmt.ExecContext(ctx, id, src.ID, src.Name, src.Hash, src.ModTime.UTC().Format(time.RFC3339Nano)); err != nil {
			return "", fmt.Errorf("insert source %s: %w", src.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit transaction: %w", err)
	}
	return id, nil
}

// LatestSnapshot decodes the newest snapshot. It returns nil, nil when the
// store is empty.
func (s *SQLiteStore) LatestSnapshot(ctx context.Context) (*model.Snapshot, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM snapshots
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}

	snap, err := model.DecodeSnapshot(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}

// Snapshots lists stored snapshots with their sources, newest first.
func (s *SQLiteStore) Snapshots(ctx context.Context) ([]SnapshotInfo, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hash, model_count, created_at FROM snapshots
		ORDER BY created_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}

	var out []SnapshotInfo
	index := make(map[string]int)
	for rows.Next() {
		var info SnapshotInfo
		var created string
		if err := rows.Scan(&info.ID, &info.Hash, &info.Models, &created); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if info.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("parse snapshot time: %w", err)
		}
		index[info.ID] = len(out)
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows error: %w", err)
	}
	_ = rows.Close()

	srcRows, err := s.db.QueryContext(ctx, `
		SELECT snapshot_id, source_id, name, hash, mod_time FROM snapshot_sources
		ORDER BY snapshot_id, source_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query snapshot sources: %w", err)
	}
	defer func() { _ = srcRows.Close() }()

	for srcRows.Next() {
		var snapID, modTime string
		var src model.SourceInfo
		if err := srcRows.Scan(&snapID, &src.ID, &src.Name, &src.Hash, &modTime); err != nil {
			return nil, fmt.Errorf("scan snapshot source: %w", err)
		}
		if src.ModTime, err = time.Parse(time.RFC3339Nano, modTime); err != nil {
			return nil, fmt.Errorf("parse source time: %w", err)
		}
		if i, ok := index[snapID]; ok {
			out[i].Sources = append(out[i].Sources, src)
		}
	}
	if err := srcRows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// PruneSnapshots keeps the newest keep snapshots and deletes older ones
// together with their source rows.
func (s *SQLiteStore) PruneSnapshots(ctx context.Context, keep int) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}
	if keep < 0 {
		keep = 0
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE id NOT IN (
			SELECT id FROM snapshots
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("delete old snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted snapshots: %w", err)
	}
	return n, nil
}

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/leaporm/internal/registry"
	"github.com/leapstack-labs/leaporm/pkg/model"
	"github.com/leapstack-labs/leaporm/pkg/progress"
	"github.com/leapstack-labs/leaporm/pkg/schema"
)

// SyncResult describes one sync.
type SyncResult struct {
	// Hash is the combined content hash of the sources.
	Hash string
	// Unchanged is set when the sources matched the stored snapshot and
	// the registry was restored from it.
	Unchanged bool
	// Models is the number of registered definitions after the sync.
	Models int
	// Changes lists sources that differ from the previous sync in this
	// process.
	Changes registry.Changes
	// SnapshotID is the id of the snapshot written, empty when unchanged.
	SnapshotID string
	// Migration is set when auto-migration ran.
	Migration *schema.MigrationResult
	Duration  time.Duration
}

// Sync brings the registry in line with the model sources. When the
// combined source hash equals the latest snapshot's, the registry is
// restored from the snapshot without compiling. Otherwise every source is
// compiled and, with auto-migration on, the database migrated before a
// new snapshot is stored and the registry swapped.
//
// With auto-migration on, the database is migrated on both paths, so a
// database left behind by an earlier failure catches up. A failed sync
// leaves the registry, the source index and the stored snapshot untouched.
func (e *Engine) Sync(ctx context.Context) (*SyncResult, error) {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	start := time.Now()
	sources, err := e.loader.Sources(ctx)
	if err != nil {
		e.report(progress.Error, "", err.Error())
		return nil, fmt.Errorf("failed to load model sources: %w", err)
	}
	infos := model.Infos(sources)
	res := &SyncResult{Hash: model.HashSources(infos)}

	latest, err := e.store.LatestSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	if latest != nil && latest.Hash == res.Hash {
		if e.autoMigrate {
			mig, err := e.migrate(ctx, latest.Models, schema.MigrateOptions{})
			if err != nil {
				e.report(progress.Error, "", err.Error())
				return nil, err
			}
			res.Migration = mig
		}
		e.models.Replace(latest.Models)
		res.Unchanged = true
		res.Changes = e.sources.Replace(sources)
		res.Models = e.models.Len()
		res.Duration = time.Since(start)
		e.logger.Info("no changes detected", slog.String("hash", res.Hash), slog.Int("models", res.Models))
		e.report(progress.Info, "", "no changes detected")
		return res, nil
	}

	defs, err := e.compile(sources)
	if err != nil {
		e.report(progress.Error, "", err.Error())
		return nil, err
	}

	if e.autoMigrate {
		mig, err := e.migrate(ctx, defs, schema.MigrateOptions{})
		if err != nil {
			e.report(progress.Error, "", err.Error())
			return nil, err
		}
		res.Migration = mig
	}

	id, err := e.store.SaveSnapshot(ctx, model.NewSnapshot(infos, defs))
	if err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	res.SnapshotID = id

	e.models.Replace(defs)
	res.Changes = e.sources.Replace(sources)
	res.Models = len(defs)
	for _, name := range res.Changes.Models {
		e.report(progress.Info, name, "model source changed")
	}
	e.logger.Info("models compiled",
		slog.Int("models", res.Models),
		slog.Int("sources", len(sources)),
		slog.String("snapshot", id))
	e.report(progress.Info, "", fmt.Sprintf("compiled %d models from %d sources", res.Models, len(sources)))

	res.Duration = time.Since(start)
	return res, nil
}

// compile merges the sources, compiles them and checks that the result
// can be planned before anything is swapped in.
func (e *Engine) compile(sources []model.Source) ([]*model.Definition, error) {
	raw, err := model.MergeSources(sources)
	if err != nil {
		return nil, fmt.Errorf("failed to merge model sources: %w", err)
	}
	defs, err := model.NewCompiler(e.types, nil, e.logger).Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to compile models: %w", err)
	}
	if _, err := schema.NewPlanner(e.types, e.logger).Plan(defs); err != nil {
		return nil, fmt.Errorf("failed to plan schema: %w", err)
	}
	return defs, nil
}

func (e *Engine) report(level progress.Level, modelName, msg string) {
	e.sink.Report(progress.Event{Level: level, Stage: StageSync, Model: modelName, Message: msg})
}

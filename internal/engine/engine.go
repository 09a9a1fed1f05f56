// Package engine ties model sources, the compiled-form store and a
// relational backend together. It keeps the model registry in step with
// the sources on disk and plans, migrates and serves the resulting schema.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/leapstack-labs/leaporm/internal/loader"
	"github.com/leapstack-labs/leaporm/internal/registry"
	"github.com/leapstack-labs/leaporm/internal/state"
	"github.com/leapstack-labs/leaporm/pkg/adapter"
	"github.com/leapstack-labs/leaporm/pkg/datatype"
	"github.com/leapstack-labs/leaporm/pkg/model"
	"github.com/leapstack-labs/leaporm/pkg/persistence"
	"github.com/leapstack-labs/leaporm/pkg/progress"
	"github.com/leapstack-labs/leaporm/pkg/schema"
)

// StageSync is the progress stage of sync events.
const StageSync = "sync"

// DefaultDebounce is the quiet period Watch waits for before re-syncing.
const DefaultDebounce = 100 * time.Millisecond

// Engine orchestrates loading, compiling and migrating models.
type Engine struct {
	// Database adapter (lazy initialized)
	db          adapter.Adapter
	dbConfig    adapter.Config
	dbConnected bool
	dbMu        sync.Mutex

	// syncMu makes Sync the single writer of models and sources.
	syncMu sync.Mutex

	loader      *loader.Loader
	store       state.Store
	types       *datatype.Registry
	models      *model.Registry
	sources     *registry.SourceIndex
	autoMigrate bool
	debounce    time.Duration
	sink        progress.Sink
	logger      *slog.Logger
}

// Config holds engine configuration.
type Config struct {
	// ModelsDir is the directory holding YAML model sources.
	ModelsDir string
	// StatePath is the path to the SQLite state database.
	StatePath string
	// AdapterConfig selects the target backend. Type defaults to sqlite.
	AdapterConfig adapter.Config
	// AutoMigrate applies schema changes during every sync, before the
	// registry is swapped.
	AutoMigrate bool
	// Types is the datatype registry; nil uses the builtin types.
	Types *datatype.Registry
	// Debounce overrides DefaultDebounce for Watch.
	Debounce time.Duration
	// Sink receives progress events (optional).
	Sink progress.Sink
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// New creates an engine with a lazy database connection. The state store
// is opened and migrated immediately.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger.Debug("initializing engine", slog.String("models_dir", cfg.ModelsDir), slog.String("state_path", cfg.StatePath))

	statePath := cfg.StatePath
	if statePath == "" {
		statePath = state.MemoryPath
	}
	if statePath != state.MemoryPath {
		if dir := filepath.Dir(statePath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
		}
	}

	store := state.NewSQLiteStore()
	if err := store.Open(statePath); err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize state schema: %w", err)
	}

	types := cfg.Types
	if types == nil {
		types = datatype.NewRegistry()
	}
	dbConfig := cfg.AdapterConfig
	if dbConfig.Type == "" {
		dbConfig.Type = "sqlite"
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &Engine{
		dbConfig:    dbConfig,
		loader:      loader.New(cfg.ModelsDir, logger),
		store:       store,
		types:       types,
		models:      model.NewRegistry(),
		sources:     registry.NewSourceIndex(),
		autoMigrate: cfg.AutoMigrate,
		debounce:    debounce,
		sink:        progress.OrDiscard(cfg.Sink),
		logger:      logger,
	}, nil
}

// ensureDBConnected lazily connects to the database.
func (e *Engine) ensureDBConnected(ctx context.Context) error {
	e.dbMu.Lock()
	defer e.dbMu.Unlock()

	if e.dbConnected {
		return nil
	}

	e.logger.Debug("connecting to database", slog.String("adapter_type", e.dbConfig.Type))
	db, err := adapter.Open(ctx, e.dbConfig, e.logger)
	if err != nil {
		return fmt.Errorf("failed to create database adapter: %w", err)
	}

	e.db = db
	e.dbConnected = true
	e.logger.Debug("database connected", slog.String("dialect", db.Dialect().Name))
	return nil
}

// Adapter returns the connected backend, connecting on first use.
func (e *Engine) Adapter(ctx context.Context) (adapter.Adapter, error) {
	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}
	return e.db, nil
}

// Close releases all resources.
func (e *Engine) Close() error {
	e.logger.Debug("closing engine")

	var errs []error
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing engine: %w", errors.Join(errs...))
	}
	return nil
}

// --- Getters (public accessors) ---

// Registry returns the live model registry.
func (e *Engine) Registry() *model.Registry { return e.models }

// Sources returns the index of the last synced sources.
func (e *Engine) Sources() *registry.SourceIndex { return e.sources }

// Store returns the state store.
func (e *Engine) Store() state.Store { return e.store }

// Types returns the datatype registry.
func (e *Engine) Types() *datatype.Registry { return e.types }

// Schema plans the storage schema of the registered models.
func (e *Engine) Schema() (*schema.Schema, error) {
	s, err := schema.NewPlanner(e.types, e.logger).Plan(e.models.AllModelDefinitions())
	if err != nil {
		return nil, fmt.Errorf("failed to plan schema: %w", err)
	}
	return s, nil
}

// Plan reports the changes a migration would make without touching the
// database.
func (e *Engine) Plan(ctx context.Context) (*schema.MigrationResult, error) {
	return e.Migrate(ctx, schema.MigrateOptions{DryRun: true})
}

// Migrate brings the target database in line with the registered models.
func (e *Engine) Migrate(ctx context.Context, opts schema.MigrateOptions) (*schema.MigrationResult, error) {
	return e.migrate(ctx, e.models.AllModelDefinitions(), opts)
}

func (e *Engine) migrate(ctx context.Context, defs []*model.Definition, opts schema.MigrateOptions) (*schema.MigrationResult, error) {
	s, err := schema.NewPlanner(e.types, e.logger).Plan(defs)
	if err != nil {
		return nil, fmt.Errorf("failed to plan schema: %w", err)
	}
	db, err := e.Adapter(ctx)
	if err != nil {
		return nil, err
	}
	res, err := schema.NewMigrator(db, e.sink, e.logger).Migrate(ctx, s, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return res, nil
}

// Service returns a persistence service over the target database for the
// registered models.
func (e *Engine) Service(ctx context.Context) (*persistence.Service, error) {
	s, err := e.Schema()
	if err != nil {
		return nil, err
	}
	db, err := e.Adapter(ctx)
	if err != nil {
		return nil, err
	}
	return persistence.NewService(db, s, e.types, e.logger), nil
}

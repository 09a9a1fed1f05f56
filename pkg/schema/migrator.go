package schema

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leaporm/pkg/adapter"
	"github.com/leapstack-labs/leaporm/pkg/progress"
)

// StageMigrate is the progress stage of migration events.
const StageMigrate = "migrate"

// MigrateOptions controls a migration run.
type MigrateOptions struct {
	// DryRun renders the statements without executing them.
	DryRun bool
}

// MigrationResult describes what a migration did or would do.
type MigrationResult struct {
	Statements []string
	Applied    []Change // additive changes covered by Statements
	Skipped    []Change // additive changes the backend cannot apply
	Discarded  []Change // destructive changes, never applied
}

// Migrator brings a live database in line with a planned schema without
// dropping anything.
type Migrator struct {
	adapter adapter.Adapter
	sink    progress.Sink
	logger  *slog.Logger
}

// NewMigrator creates a migrator for a connected adapter.
// If logger is nil, a discard logger is used; a nil sink drops events.
func NewMigrator(a adapter.Adapter, sink progress.Sink, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Migrator{adapter: a, sink: progress.OrDiscard(sink), logger: logger}
}

// Introspect reads the live form of every planned table that exists.
func (m *Migrator) Introspect(ctx context.Context, s *Schema) (map[string]*adapter.TableInfo, error) {
	names, err := m.adapter.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	existing := make(map[string]string, len(names))
	for _, n := range names {
		existing[strings.ToLower(n)] = n
	}

	live := make(map[string]*adapter.TableInfo)
	for _, t := range s.Tables() {
		name, ok := existing[strings.ToLower(t.Name)]
		if !ok {
			continue
		}
		info, err := m.adapter.GetTableInfo(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to introspect table %s: %w", name, err)
		}
		live[t.Name] = info
	}
	return live, nil
}

// Plan computes the migration without touching the database beyond
// introspection.
func (m *Migrator) Plan(ctx context.Context, s *Schema) (*MigrationResult, error) {
	live, err := m.Introspect(ctx, s)
	if err != nil {
		return nil, err
	}

	res := &MigrationResult{}
	var additive []Change
	for _, c := range Diff(s, live) {
		if c.Kind.Destructive() {
			res.Discarded = append(res.Discarded, c)
			continue
		}
		additive = append(additive, c)
	}

	stmts, skipped, err := NewDDL(m.adapter.Dialect()).Statements(additive)
	if err != nil {
		return nil, fmt.Errorf("failed to render migration: %w", err)
	}
	res.Statements = stmts
	res.Skipped = skipped
	for _, c := range additive {
		if !containsChange(skipped, c) {
			res.Applied = append(res.Applied, c)
		}
	}
	return res, nil
}

func changeAttrs(c Change) []slog.Attr {
	attrs := []slog.Attr{slog.String("change", c.Kind.String()), slog.String("table", c.Table)}
	if obj := c.Object(); obj != "" {
		attrs = append(attrs, slog.String("object", obj))
	}
	return attrs
}

func containsChange(list []Change, c Change) bool {
	for _, o := range list {
		if o.Kind == c.Kind && o.Table == c.Table && o.ForeignKey != nil && c.ForeignKey != nil &&
			o.ForeignKey.Name == c.ForeignKey.Name {
			return true
		}
	}
	return false
}

// Migrate applies the additive part of the difference in one transaction.
// Destructive differences are reported and discarded. Introspection
// happens before the transaction starts.
func (m *Migrator) Migrate(ctx context.Context, s *Schema, opts MigrateOptions) (*MigrationResult, error) {
	res, err := m.Plan(ctx, s)
	if err != nil {
		return nil, err
	}

	for _, c := range res.Discarded {
		m.logger.Warn("discarding destructive change", slog.String("change", c.String()))
		m.sink.Report(progress.Event{Level: progress.Warning, Stage: StageMigrate, Message: "destructive change discarded", Attrs: changeAttrs(c)})
	}
	for _, c := range res.Skipped {
		m.logger.Warn("backend cannot apply change", slog.String("change", c.String()), slog.String("dialect", m.adapter.Dialect().Name))
		m.sink.Report(progress.Event{
			Level:   progress.Warning,
			Stage:   StageMigrate,
			Message: "unsupported change skipped",
			Attrs:   append(changeAttrs(c), slog.String("dialect", m.adapter.Dialect().Name)),
		})
	}

	if len(res.Statements) == 0 {
		m.sink.Report(progress.Event{Level: progress.Info, Stage: StageMigrate, Message: "no changes detected"})
		return res, nil
	}
	if opts.DryRun {
		m.sink.Report(progress.Event{
			Level:   progress.Info,
			Stage:   StageMigrate,
			Message: "dry run",
			Total:   len(res.Statements),
		})
		return res, nil
	}

	tx, err := m.adapter.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	total := len(res.Statements)
	for i, stmt := range res.Statements {
		m.logger.Debug("executing migration statement", slog.String("sql", stmt))
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			m.sink.Report(progress.Event{
				Level:   progress.Error,
				Stage:   StageMigrate,
				Message: "statement failed",
				Current: i + 1,
				Total:   total,
				Attrs:   []slog.Attr{slog.String("sql", stmt), slog.String("error", err.Error())},
			})
			return nil, fmt.Errorf("failed to execute migration statement %d: %w", i+1, err)
		}
		m.sink.Report(progress.Event{
			Level:   progress.Info,
			Stage:   StageMigrate,
			Message: "statement executed",
			Current: i + 1,
			Total:   total,
			Attrs:   []slog.Attr{slog.String("sql", stmt)},
		})
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit migration: %w", err)
	}

	m.logger.Info("migration applied", slog.Int("statements", total), slog.Int("discarded", len(res.Discarded)))
	return res, nil
}

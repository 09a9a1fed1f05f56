// Package duckdb provides a DuckDB database adapter.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/leapstack-labs/leaporm/pkg/adapter"
	"github.com/leapstack-labs/leaporm/pkg/dialect"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// Adapter implements the adapter.Adapter interface for DuckDB.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new DuckDB adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// Dialect returns the DuckDB dialect.
func (a *Adapter) Dialect() *dialect.Dialect {
	return dialect.DuckDB
}

// Connect establishes a connection to DuckDB.
// Use ":memory:" (or an empty path) for an in-memory database.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	params, err := parseParams(cfg.Params)
	if err != nil {
		return err
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	a.Logger.Debug("connecting to duckdb", slog.String("path", path))

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	if err := applyParams(ctx, db, params); err != nil {
		_ = db.Close()
		return err
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// applyParams installs and loads extensions, then applies global settings
// in name order.
func applyParams(ctx context.Context, db *sql.DB, p *Params) error {
	for _, ext := range p.Extensions {
		ident := dialect.DuckDB.QuoteIdentifierIfNeeded(ext)
		if _, err := db.ExecContext(ctx, "INSTALL "+ident); err != nil {
			return fmt.Errorf("failed to install extension %s: %w", ext, err)
		}
		if _, err := db.ExecContext(ctx, "LOAD "+ident); err != nil {
			return fmt.Errorf("failed to load extension %s: %w", ext, err)
		}
	}

	names := make([]string, 0, len(p.Settings))
	for name := range p.Settings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		stmt := fmt.Sprintf("SET GLOBAL %s = '%s'", name, strings.ReplaceAll(p.Settings[name], "'", "''"))
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply setting %s: %w", name, err)
		}
	}
	return nil
}

// ListTables returns the base tables of the configured schema.
func (a *Adapter) ListTables(ctx context.Context) ([]string, error) {
	return a.ListTablesCommon(ctx, a.Dialect())
}

const indexQuery = `
	SELECT index_name, is_unique, expressions
	FROM duckdb_indexes()
	WHERE schema_name = ? AND table_name = ?
	ORDER BY index_name
`

const foreignKeyQuery = `
	SELECT kcu.constraint_name, kcu.column_name, pk.table_name, pk.column_name
	FROM information_schema.referential_constraints rc
	JOIN information_schema.key_column_usage kcu
		ON kcu.constraint_schema = rc.constraint_schema AND kcu.constraint_name = rc.constraint_name
	JOIN information_schema.key_column_usage pk
		ON pk.constraint_schema = rc.unique_constraint_schema AND pk.constraint_name = rc.unique_constraint_name
		AND pk.ordinal_position = kcu.position_in_unique_constraint
	WHERE kcu.table_schema = ? AND kcu.table_name = ?
	ORDER BY kcu.constraint_name, kcu.ordinal_position
`

// GetTableInfo introspects columns through information_schema, explicit
// indexes through duckdb_indexes() and foreign keys through the
// referential constraint views.
func (a *Adapter) GetTableInfo(ctx context.Context, table string) (*adapter.TableInfo, error) {
	info, err := a.GetColumnsCommon(ctx, table, a.Dialect())
	if err != nil {
		return nil, err
	}

	if info.Indexes, err = a.indexes(ctx, info.Schema, info.Name); err != nil {
		return nil, err
	}

	rows, err := a.DB.QueryContext(ctx, foreignKeyQuery, info.Schema, info.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var grouped []adapter.GroupedRow
	for rows.Next() {
		var r adapter.GroupedRow
		if err := rows.Scan(&r.Group, &r.Column, &r.RefTable, &r.RefColumn); err != nil {
			return nil, fmt.Errorf("failed to scan foreign keys: %w", err)
		}
		grouped = append(grouped, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating foreign keys: %w", err)
	}
	info.ForeignKeys = adapter.GroupForeignKeys(grouped)
	return info, nil
}

func (a *Adapter) indexes(ctx context.Context, schema, table string) ([]adapter.IndexInfo, error) {
	rows, err := a.DB.QueryContext(ctx, indexQuery, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query index metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []adapter.IndexInfo
	for rows.Next() {
		var (
			idx         adapter.IndexInfo
			expressions string
		)
		if err := rows.Scan(&idx.Name, &idx.Unique, &expressions); err != nil {
			return nil, fmt.Errorf("failed to scan index metadata: %w", err)
		}
		idx.Columns = parseIndexExpressions(expressions)
		out = append(out, idx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating index metadata: %w", err)
	}
	return out, nil
}

// parseIndexExpressions turns the textual list reported by duckdb_indexes(),
// e.g. `[author_id, "position"]`, into bare column names.
func parseIndexExpressions(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	cols := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `'"`)
		cols = append(cols, p)
	}
	return cols
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)

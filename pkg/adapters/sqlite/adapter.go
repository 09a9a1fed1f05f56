// Package sqlite provides a SQLite database adapter backed by the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/leapstack-labs/leaporm/pkg/adapter"
	"github.com/leapstack-labs/leaporm/pkg/dialect"

	_ "modernc.org/sqlite" // sqlite driver
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Adapter implements the adapter.Adapter interface for SQLite.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new SQLite adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// Dialect returns the SQLite dialect.
func (a *Adapter) Dialect() *dialect.Dialect {
	return dialect.SQLite
}

// Connect opens the database file at cfg.Path, or an in-memory database
// when the path is empty.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	path := cfg.Path
	if path == "" {
		path = MemoryPath
	}

	a.Logger.Debug("connecting to sqlite", slog.String("path", path))

	db, err := sql.Open("sqlite", buildSQLiteDSN(path, cfg.Options))
	if err != nil {
		return fmt.Errorf("failed to open sqlite connection: %w", err)
	}
	if path == MemoryPath {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// buildSQLiteDSN appends connection pragmas. Foreign keys are always
// enforced; options are added as further pragmas in name order.
func buildSQLiteDSN(path string, options map[string]string) string {
	pragmas := []string{"foreign_keys(1)", "busy_timeout(5000)"}
	names := make([]string, 0, len(options))
	for name := range options {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pragmas = append(pragmas, fmt.Sprintf("%s(%s)", name, options[name]))
	}

	q := make([]string, len(pragmas))
	for i, p := range pragmas {
		q[i] = "_pragma=" + url.QueryEscape(p)
	}
	return path + "?" + strings.Join(q, "&")
}

// ListTables returns user tables, sorted.
func (a *Adapter) ListTables(ctx context.Context) ([]string, error) {
	if a.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	return a.QueryStrings(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
}

// GetTableInfo introspects a table through PRAGMA table_info, index_list
// and foreign_key_list.
func (a *Adapter) GetTableInfo(ctx context.Context, table string) (*adapter.TableInfo, error) {
	if a.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	info := &adapter.TableInfo{Schema: "main", Name: table}
	quoted := a.Dialect().QuoteIdentifier(table)

	rows, err := a.DB.QueryContext(ctx, "PRAGMA table_info("+quoted+")")
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, typ        string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		info.Columns = append(info.Columns, adapter.ColumnInfo{
			Name:     name,
			Type:     typ,
			Nullable: notNull == 0 && pk == 0,
			Position: cid + 1,
		})
	}
	err = rows.Err()
	_ = rows.Close()
	if err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}
	if len(info.Columns) == 0 {
		return nil, fmt.Errorf("table %s not found", table)
	}

	if info.Indexes, err = a.indexes(ctx, quoted); err != nil {
		return nil, err
	}
	if info.ForeignKeys, err = a.foreignKeys(ctx, table, quoted); err != nil {
		return nil, err
	}
	return info, nil
}

// indexes returns explicitly created indexes. Indexes backing PRIMARY KEY
// and UNIQUE constraints are skipped.
func (a *Adapter) indexes(ctx context.Context, quotedTable string) ([]adapter.IndexInfo, error) {
	rows, err := a.DB.QueryContext(ctx, "PRAGMA index_list("+quotedTable+")")
	if err != nil {
		return nil, fmt.Errorf("failed to query index metadata: %w", err)
	}
	type entry struct {
		name   string
		unique bool
	}
	var entries []entry
	for rows.Next() {
		var (
			seq, unique, partial int
			name, origin         string
		)
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan index metadata: %w", err)
		}
		if origin == "c" {
			entries = append(entries, entry{name: name, unique: unique == 1})
		}
	}
	err = rows.Err()
	_ = rows.Close()
	if err != nil {
		return nil, fmt.Errorf("error iterating index metadata: %w", err)
	}

	var grouped []adapter.GroupedRow
	for _, e := range entries {
		cols, err := a.indexColumns(ctx, e.name)
		if err != nil {
			return nil, err
		}
		for _, c := range cols {
			grouped = append(grouped, adapter.GroupedRow{Group: e.name, Column: c, Unique: e.unique})
		}
	}
	return adapter.GroupIndexes(grouped), nil
}

func (a *Adapter) indexColumns(ctx context.Context, index string) ([]string, error) {
	rows, err := a.DB.QueryContext(ctx, "PRAGMA index_info("+a.Dialect().QuoteIdentifier(index)+")")
	if err != nil {
		return nil, fmt.Errorf("failed to query index columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cols []string
	for rows.Next() {
		var (
			seqno, cid int
			name       sql.NullString
		)
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, fmt.Errorf("failed to scan index columns: %w", err)
		}
		cols = append(cols, name.String)
	}
	return cols, rows.Err()
}

func (a *Adapter) foreignKeys(ctx context.Context, table, quotedTable string) ([]adapter.ForeignKeyInfo, error) {
	rows, err := a.DB.QueryContext(ctx, "PRAGMA foreign_key_list("+quotedTable+")")
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var grouped []adapter.GroupedRow
	for rows.Next() {
		var (
			id, seq                   int
			refTable, from            string
			to                        sql.NullString
			onUpdate, onDelete, match string
		)
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, fmt.Errorf("failed to scan foreign keys: %w", err)
		}
		grouped = append(grouped, adapter.GroupedRow{
			Group:     fmt.Sprintf("fk_%s_%d", table, id),
			Column:    from,
			RefTable:  refTable,
			RefColumn: to.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating foreign keys: %w", err)
	}
	return adapter.GroupForeignKeys(grouped), nil
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)

// Package postgres provides a PostgreSQL database adapter.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"

	"github.com/leapstack-labs/leaporm/pkg/adapter"
	"github.com/leapstack-labs/leaporm/pkg/dialect"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
)

// Adapter implements the adapter.Adapter interface for PostgreSQL.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new PostgreSQL adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// Dialect returns the PostgreSQL dialect.
func (a *Adapter) Dialect() *dialect.Dialect {
	return dialect.Postgres
}

// Connect establishes a connection to PostgreSQL.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	dsn := buildPostgresDSN(cfg)

	a.Logger.Debug("connecting to postgres", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// buildPostgresDSN constructs a key=value PostgreSQL connection string.
// Options other than sslmode are appended in name order.
func buildPostgresDSN(cfg adapter.Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	sslmode := "disable"
	if mode, ok := cfg.Options["sslmode"]; ok {
		sslmode = mode
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s",
		host, port, cfg.Database, sslmode)

	if cfg.Username != "" {
		dsn += fmt.Sprintf(" user=%s", cfg.Username)
	}
	if cfg.Password != "" {
		dsn += fmt.Sprintf(" password=%s", cfg.Password)
	}
	if cfg.Schema != "" {
		dsn += fmt.Sprintf(" search_path=%s", cfg.Schema)
	}

	extra := make([]string, 0, len(cfg.Options))
	for name := range cfg.Options {
		if name != "sslmode" {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		dsn += fmt.Sprintf(" %s=%s", name, cfg.Options[name])
	}

	return dsn
}

// ListTables returns the base tables of the configured schema.
func (a *Adapter) ListTables(ctx context.Context) ([]string, error) {
	return a.ListTablesCommon(ctx, a.Dialect())
}

const indexQuery = `
	SELECT i.relname, att.attname, ix.indisunique
	FROM pg_class t
	JOIN pg_namespace n ON n.oid = t.relnamespace
	JOIN pg_index ix ON ix.indrelid = t.oid
	JOIN pg_class i ON i.oid = ix.indexrelid
	JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord) ON true
	JOIN pg_attribute att ON att.attrelid = t.oid AND att.attnum = k.attnum
	LEFT JOIN pg_constraint con ON con.conindid = ix.indexrelid
	WHERE n.nspname = $1 AND t.relname = $2 AND con.oid IS NULL
	ORDER BY i.relname, k.ord
`

const foreignKeyQuery = `
	SELECT c.conname, att.attname, rt.relname, ratt.attname
	FROM pg_constraint c
	JOIN pg_class t ON t.oid = c.conrelid
	JOIN pg_namespace n ON n.oid = t.relnamespace
	JOIN pg_class rt ON rt.oid = c.confrelid
	JOIN LATERAL unnest(c.conkey, c.confkey) WITH ORDINALITY AS k(attnum, refnum, ord) ON true
	JOIN pg_attribute att ON att.attrelid = c.conrelid AND att.attnum = k.attnum
	JOIN pg_attribute ratt ON ratt.attrelid = c.confrelid AND ratt.attnum = k.refnum
	WHERE c.contype = 'f' AND n.nspname = $1 AND t.relname = $2
	ORDER BY c.conname, k.ord
`

// GetTableInfo introspects columns through information_schema and indexes
// and foreign keys through the pg_catalog.
func (a *Adapter) GetTableInfo(ctx context.Context, table string) (*adapter.TableInfo, error) {
	info, err := a.GetColumnsCommon(ctx, table, a.Dialect())
	if err != nil {
		return nil, err
	}

	idx, err := a.groupedRows(ctx, indexQuery, info.Schema, info.Name, true)
	if err != nil {
		return nil, fmt.Errorf("failed to query index metadata: %w", err)
	}
	info.Indexes = adapter.GroupIndexes(idx)

	fks, err := a.groupedRows(ctx, foreignKeyQuery, info.Schema, info.Name, false)
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign keys: %w", err)
	}
	info.ForeignKeys = adapter.GroupForeignKeys(fks)
	return info, nil
}

func (a *Adapter) groupedRows(ctx context.Context, query, schema, table string, index bool) ([]adapter.GroupedRow, error) {
	rows, err := a.DB.QueryContext(ctx, query, schema, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []adapter.GroupedRow
	for rows.Next() {
		var r adapter.GroupedRow
		if index {
			err = rows.Scan(&r.Group, &r.Column, &r.Unique)
		} else {
			err = rows.Scan(&r.Group, &r.Column, &r.RefTable, &r.RefColumn)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)

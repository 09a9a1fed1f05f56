// Package persistence writes entities to the tables planned for their
// models and reads them back by key.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leaporm/pkg/datatype"
	"github.com/leapstack-labs/leaporm/pkg/dialect"
	"github.com/leapstack-labs/leaporm/pkg/entity"
	"github.com/leapstack-labs/leaporm/pkg/query"
	"github.com/leapstack-labs/leaporm/pkg/schema"
)

// DB is the connection a Service writes through. adapter.Adapter
// satisfies it.
type DB interface {
	query.Querier
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Service creates, saves, deletes and fetches entities.
type Service struct {
	db     DB
	schema *schema.Schema
	types  *datatype.Registry
	engine *query.Engine
	d      *dialect.Dialect
	logger *slog.Logger
	newID  func() string
}

// NewService creates a persistence service for a planned schema.
// If logger is nil, a discard logger is used.
func NewService(db DB, s *schema.Schema, types *datatype.Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		db:     db,
		schema: s,
		types:  types,
		engine: query.NewEngine(db, s, types, logger),
		d:      db.Dialect(),
		logger: logger,
		newID:  uuid.NewString,
	}
}

// Engine returns the query engine reading through the same connection.
func (s *Service) Engine() *query.Engine { return s.engine }

func (s *Service) mapping(model string) (*schema.ModelMapping, error) {
	mm, ok := s.schema.Model(model)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	return mm, nil
}

// New creates an unsaved entity of model with property defaults applied.
func (s *Service) New(model string) (*entity.Entity, error) {
	mm, err := s.mapping(model)
	if err != nil {
		return nil, err
	}
	e := entity.New(mm.Definition)
	for _, p := range mm.Definition.Properties() {
		if p.Default == nil || p.IsReference() || p.Multiple {
			continue
		}
		if err := e.Set(p.Name, p.Default); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Get loads the entity of model with the given primary-key values.
func (s *Service) Get(ctx context.Context, model string, key ...any) (*entity.Entity, error) {
	mm, err := s.mapping(model)
	if err != nil {
		return nil, err
	}
	pk := mm.Definition.PrimaryKey
	if len(key) != len(pk) {
		return nil, fmt.Errorf("key of %s has %d values, want %d", model, len(key), len(pk))
	}
	b := query.From(model)
	for i, name := range pk {
		b.Where(query.Eq(name, key[i]))
	}
	e, err := s.engine.First(ctx, b.Build())
	if errors.Is(err, query.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, model, entity.Key(key))
	}
	return e, err
}

// Delete removes an entity together with its side-table and association
// rows, in one transaction.
func (s *Service) Delete(ctx context.Context, e *entity.Entity) error {
	mm, err := s.mapping(e.Model())
	if err != nil {
		return err
	}
	if e.IsNew() {
		return fmt.Errorf("%w: %s", ErrUnsaved, e.Model())
	}
	key, err := s.engine.Compiler().EncodeKey(e.Model(), e.Key())
	if err != nil {
		return err
	}

	var stmts []statement
	seen := make(map[string]bool)
	purge := func(table string, cols []string) {
		id := table + "|" + strings.Join(cols, ",")
		if seen[id] {
			return
		}
		seen[id] = true
		stmts = append(stmts, s.deleteWhere(table, cols, key))
	}
	for _, pm := range mm.Properties() {
		if pm.Kind == schema.StorageSideTable || pm.Kind == schema.StorageAssociation {
			purge(pm.Table, pm.OwnerColumns)
		}
	}
	for _, other := range s.schema.Models() {
		for _, pm := range other.Properties() {
			if pm.Kind == schema.StorageAssociation && pm.Target == e.Model() {
				purge(pm.Table, pm.TargetColumns)
			}
		}
	}
	row := s.deleteWhere(mm.Table, mm.KeyColumns, key)

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		for _, st := range stmts {
			if _, err := s.exec(ctx, tx, st); err != nil {
				return err
			}
		}
		n, err := s.exec(ctx, tx, row)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s %s", ErrNotFound, e.Model(), e.Key())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", e.Model(), err)
	}
	s.logger.Debug("deleted entity",
		slog.String("model", e.Model()),
		slog.String("key", e.Key().String()))
	return nil
}

type statement struct {
	sql  string
	args []any
}

// params collects positional arguments in dialect placeholder form.
type params struct {
	d    *dialect.Dialect
	args []any
}

func (p *params) add(v any) string {
	p.args = append(p.args, v)
	return p.d.FormatPlaceholder(len(p.args))
}

func (s *Service) quote(name string) string {
	return s.d.QuoteIdentifierIfNeeded(name)
}

func (s *Service) quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = s.quote(n)
	}
	return out
}

func (s *Service) where(p *params, cols []string, vals []any) string {
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = s.quote(col) + " = " + p.add(vals[i])
	}
	return strings.Join(parts, " AND ")
}

func (s *Service) deleteWhere(table string, cols []string, vals []any) statement {
	p := &params{d: s.d}
	return statement{
		sql:  "DELETE FROM " + s.quote(table) + " WHERE " + s.where(p, cols, vals),
		args: p.args,
	}
}

func (s *Service) insertRow(table string, cols []string, vals []any) statement {
	p := &params{d: s.d}
	ph := make([]string, len(vals))
	for i, v := range vals {
		ph[i] = p.add(v)
	}
	return statement{
		sql:  "INSERT INTO " + s.quote(table) + " (" + strings.Join(s.quoteAll(cols), ", ") + ") VALUES (" + strings.Join(ph, ", ") + ")",
		args: p.args,
	}
}

func (s *Service) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Service) exec(ctx context.Context, tx *sql.Tx, st statement) (int64, error) {
	s.logger.Debug("executing statement",
		slog.String("sql", st.sql),
		slog.Int("args", len(st.args)))
	res, err := tx.ExecContext(ctx, st.sql, st.args...)
	if err != nil {
		return 0, fmt.Errorf("failed to execute statement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

package query

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leaporm/pkg/datatype"
	"github.com/leapstack-labs/leaporm/pkg/dialect"
	"github.com/leapstack-labs/leaporm/pkg/entity"
	"github.com/leapstack-labs/leaporm/pkg/schema"
)

// Querier runs read statements. adapter.Adapter satisfies it.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Dialect() *dialect.Dialect
}

// Engine executes queries against a planned schema.
type Engine struct {
	db       Querier
	schema   *schema.Schema
	compiler *Compiler
	logger   *slog.Logger
}

// NewEngine creates a query engine.
// If logger is nil, a discard logger is used.
func NewEngine(db Querier, s *schema.Schema, types *datatype.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		db:       db,
		schema:   s,
		compiler: NewCompiler(s, db.Dialect(), types),
		logger:   logger,
	}
}

// Compiler returns the SQL compiler used by the engine.
func (e *Engine) Compiler() *Compiler { return e.compiler }

// Schema returns the planned schema the engine reads.
func (e *Engine) Schema() *schema.Schema { return e.schema }

func (e *Engine) query(ctx context.Context, model, query string, args []any) (*sql.Rows, error) {
	e.logger.Debug("executing query",
		slog.String("model", model),
		slog.String("sql", query),
		slog.Int("args", len(args)))
	rows, err := e.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", model, err)
	}
	return rows, nil
}

func (e *Engine) each(ctx context.Context, model, query string, args []any, width int, fn func(vals []any) error) error {
	rows, err := e.query(ctx, model, query, args)
	if err != nil {
		return err
	}
	return scanRows(rows, width, fn)
}

// Find runs q and returns one entity per root row, in result order.
// Scalars are populated; references stay unloaded unless joined.
func (e *Engine) Find(ctx context.Context, q Query) ([]*entity.Entity, error) {
	st, err := e.compiler.Compile(q)
	if err != nil {
		return nil, err
	}

	ids := identityMap{}
	var out []*entity.Entity
	err = e.each(ctx, q.Model, st.SQL, st.Args, len(st.Columns()), func(vals []any) error {
		pos := len(st.root.exprs)
		root, err := e.compiler.hydrate(st.root, vals[:pos])
		if err != nil {
			return err
		}
		for _, j := range st.joins {
			n := len(j.src.exprs)
			target, err := e.compiler.hydrate(j.src, vals[pos:pos+n])
			if err != nil {
				return err
			}
			pos += n
			target = ids.intern(target)
			root.Init(j.property, entity.Reference{Ref: target})
			e.linkBack(root, j.pm, target)
		}
		out = append(out, root)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// First returns the first entity matching q, or ErrNoRows.
func (e *Engine) First(ctx context.Context, q Query) (*entity.Entity, error) {
	one := 1
	q.Limit = &one
	found, err := e.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRows, q.Model)
	}
	return found[0], nil
}

// Count returns the number of rows matching q.
func (e *Engine) Count(ctx context.Context, q Query) (int64, error) {
	st, err := e.compiler.CompileCount(q)
	if err != nil {
		return 0, err
	}
	var n int64
	err = e.each(ctx, q.Model, st.SQL, st.Args, 1, func(vals []any) error {
		n, err = datatype.ToInt64(vals[0])
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// linkBack points the single-valued reverse property of target at owner.
func (e *Engine) linkBack(owner *entity.Entity, pm *schema.PropertyMapping, target *entity.Entity) {
	rev := pm.Property.Reference.Reverse
	if rev == "" {
		return
	}
	rp, ok := target.Definition().Property(rev)
	if !ok || rp.Multiple || !rp.IsReference() || rp.Reference.Target != owner.Model() {
		return
	}
	target.Attach(rev, entity.Reference{Ref: owner})
}

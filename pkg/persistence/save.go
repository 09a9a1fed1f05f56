package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leaporm/pkg/entity"
	"github.com/leapstack-labs/leaporm/pkg/model"
	"github.com/leapstack-labs/leaporm/pkg/schema"
)

// Save inserts a new entity or updates the dirty stored properties of an
// existing one. Generated keys are read back into the entity. Dirty
// multi-valued properties are rejected; write them with SaveCollection.
func (s *Service) Save(ctx context.Context, e *entity.Entity) error {
	mm, err := s.mapping(e.Model())
	if err != nil {
		return err
	}
	for _, name := range e.DirtyProperties() {
		if err := writable(mm, name); err != nil {
			return err
		}
	}

	inserted := e.IsNew()
	if inserted {
		err = s.insert(ctx, mm, e)
	} else {
		err = s.update(ctx, mm, e)
	}
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", e.Model(), err)
	}
	s.logger.Debug("saved entity",
		slog.String("model", e.Model()),
		slog.String("key", e.Key().String()),
		slog.Bool("inserted", inserted))
	return nil
}

// writable reports whether a dirty property can be written by Save.
func writable(mm *schema.ModelMapping, name string) error {
	pm, ok := mm.Property(name)
	if !ok {
		return entity.NewPropertyError(mm.Definition.Name, name, entity.ErrUnknownProperty)
	}
	switch {
	case pm.Kind == schema.StorageColumns || pm.Kind == schema.StorageForeignKey:
		return nil
	case pm.Property.Multiple:
		return entity.NewPropertyError(mm.Definition.Name, name, ErrMultiValuedSave)
	default:
		return entity.NewPropertyError(mm.Definition.Name, name, ErrNotWritable)
	}
}

func (s *Service) isSet(e *entity.Entity, pm *schema.PropertyMapping) bool {
	if pm.Kind == schema.StorageForeignKey {
		ref, _ := e.Ref(pm.Property.Name)
		return ref != nil
	}
	v, _ := e.Value(pm.Property.Name)
	sc, ok := v.(entity.Scalar)
	return ok && sc.V != nil
}

// columnValues encodes the storage values of one column-stored property.
func (s *Service) columnValues(e *entity.Entity, pm *schema.PropertyMapping) ([]any, error) {
	name := pm.Property.Name
	if pm.Kind == schema.StorageColumns {
		var raw any
		if v, ok := e.Value(name); ok {
			if sc, ok := v.(entity.Scalar); ok {
				raw = sc.V
			}
		}
		vals, err := s.types.Encode(pm.Property.Type, raw)
		if err != nil {
			return nil, entity.NewPropertyError(e.Model(), name, err)
		}
		return vals, nil
	}

	ref, err := e.Ref(name)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return make([]any, len(pm.Columns)), nil
	}
	key := ref.RefKey()
	if !key.Complete() {
		return nil, entity.NewPropertyError(e.Model(), name, ErrUnsavedReference)
	}
	vals, err := s.engine.Compiler().EncodeKey(pm.Target, key)
	if err != nil {
		return nil, entity.NewPropertyError(e.Model(), name, err)
	}
	return vals, nil
}

func (s *Service) insert(ctx context.Context, mm *schema.ModelMapping, e *entity.Entity) error {
	def := mm.Definition
	for _, p := range def.Properties() {
		pm, ok := mm.Property(p.Name)
		if !ok || pm.Kind != schema.StorageColumns || s.isSet(e, pm) {
			continue
		}
		var v any
		switch {
		case p.Generation == model.GenerationUUID:
			v = s.newID()
		case p.Default != nil:
			v = p.Default
		default:
			continue
		}
		if err := e.Set(p.Name, v); err != nil {
			return err
		}
	}

	p := &params{d: s.d}
	var cols, ph []string
	for _, pm := range mm.ColumnProperties() {
		prop := pm.Property
		if !s.isSet(e, pm) {
			if prop.Generation == model.GenerationAuto {
				continue
			}
			if prop.Required || prop.PrimaryKey {
				return entity.NewPropertyError(def.Name, prop.Name, ErrRequired)
			}
		}
		vals, err := s.columnValues(e, pm)
		if err != nil {
			return err
		}
		for i, col := range pm.Columns {
			cols = append(cols, s.quote(col))
			ph = append(ph, p.add(vals[i]))
		}
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO " + s.quote(mm.Table))
	if len(cols) == 0 {
		sb.WriteString(" DEFAULT VALUES")
	} else {
		sb.WriteString(" (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(ph, ", ") + ")")
	}
	sb.WriteString(" RETURNING " + strings.Join(s.quoteAll(mm.KeyColumns), ", "))
	st := statement{sql: sb.String(), args: p.args}

	var key entity.Key
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		vals, err := s.queryRow(ctx, tx, st, len(mm.KeyColumns))
		if err != nil {
			return err
		}
		key, err = s.engine.Compiler().DecodeKey(def.Name, vals)
		return err
	})
	if err != nil {
		return err
	}
	if len(key) != len(def.PrimaryKey) {
		return fmt.Errorf("insert into %s returned no key", mm.Table)
	}
	for i, name := range def.PrimaryKey {
		e.Init(name, entity.Scalar{V: key[i]})
	}
	e.MarkSaved()
	return nil
}

func (s *Service) update(ctx context.Context, mm *schema.ModelMapping, e *entity.Entity) error {
	def := mm.Definition
	p := &params{d: s.d}
	var sets, written []string
	for _, name := range e.DirtyProperties() {
		pm, _ := mm.Property(name)
		prop := pm.Property
		if prop.PrimaryKey {
			return entity.NewPropertyError(def.Name, name, entity.ErrReadOnly)
		}
		if prop.Required && !s.isSet(e, pm) {
			return entity.NewPropertyError(def.Name, name, ErrRequired)
		}
		vals, err := s.columnValues(e, pm)
		if err != nil {
			return err
		}
		for i, col := range pm.Columns {
			sets = append(sets, s.quote(col)+" = "+p.add(vals[i]))
		}
		written = append(written, name)
	}
	if len(sets) == 0 {
		return nil
	}

	key, err := s.engine.Compiler().EncodeKey(def.Name, e.Key())
	if err != nil {
		return err
	}
	st := statement{
		sql:  "UPDATE " + s.quote(mm.Table) + " SET " + strings.Join(sets, ", ") + " WHERE " + s.where(p, mm.KeyColumns, key),
		args: p.args,
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		n, err := s.exec(ctx, tx, st)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s %s", ErrNotFound, def.Name, e.Key())
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.MarkClean(written...)
	return nil
}

func (s *Service) queryRow(ctx context.Context, tx *sql.Tx, st statement, n int) ([]any, error) {
	s.logger.Debug("executing statement",
		slog.String("sql", st.sql),
		slog.Int("args", len(st.args)))
	rows, err := tx.QueryContext(ctx, st.sql, st.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute statement: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating rows: %w", err)
		}
		return nil, errors.New("statement returned no row")
	}
	vals := make([]any, n)
	ptrs := make([]any, n)
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}
	return vals, nil
}

// SaveCollection rewrites the rows of a multi-valued property stored in a
// side or association table: existing rows are deleted and the current
// values inserted, in one transaction. The owner must already be saved.
func (s *Service) SaveCollection(ctx context.Context, e *entity.Entity, property string) error {
	mm, err := s.mapping(e.Model())
	if err != nil {
		return err
	}
	pm, ok := mm.Property(property)
	if !ok {
		return entity.NewPropertyError(e.Model(), property, entity.ErrUnknownProperty)
	}
	if e.IsNew() {
		return fmt.Errorf("%w: %s", ErrUnsaved, e.Model())
	}
	switch {
	case pm.Kind == schema.StorageReverseForeignKey && pm.Property.Multiple:
		return entity.NewPropertyError(e.Model(), property, ErrReverseCollection)
	case pm.Kind != schema.StorageSideTable && pm.Kind != schema.StorageAssociation:
		return entity.NewPropertyError(e.Model(), property, entity.ErrNotMultiValued)
	case !e.IsLoaded(property) && !e.IsPropertyDirty(property):
		return entity.NewPropertyError(e.Model(), property, entity.ErrNotLoaded)
	}

	owner, err := s.engine.Compiler().EncodeKey(e.Model(), e.Key())
	if err != nil {
		return err
	}
	var rows []statement
	if pm.Kind == schema.StorageSideTable {
		rows, err = s.sideRows(e, pm, owner)
	} else {
		rows, err = s.associationRows(e, pm, owner)
	}
	if err != nil {
		return err
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx, s.deleteWhere(pm.Table, pm.OwnerColumns, owner)); err != nil {
			return err
		}
		for _, st := range rows {
			if _, err := s.exec(ctx, tx, st); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save %s.%s: %w", e.Model(), property, err)
	}
	e.MarkClean(property)
	s.logger.Debug("saved collection",
		slog.String("model", e.Model()),
		slog.String("property", property),
		slog.Int("rows", len(rows)))
	return nil
}

func (s *Service) sideRows(e *entity.Entity, pm *schema.PropertyMapping, owner []any) ([]statement, error) {
	values, err := e.Values(pm.Property.Name)
	if err != nil {
		return nil, err
	}
	cols := append(append(append([]string(nil), pm.OwnerColumns...), schema.PositionColumn), pm.ValueColumns...)
	out := make([]statement, 0, len(values))
	for i, v := range values {
		enc, err := s.types.Encode(pm.Property.Type, v)
		if err != nil {
			return nil, entity.NewPropertyError(e.Model(), pm.Property.Name, err)
		}
		row := append(append(append([]any(nil), owner...), int64(i)), enc...)
		out = append(out, s.insertRow(pm.Table, cols, row))
	}
	return out, nil
}

func (s *Service) associationRows(e *entity.Entity, pm *schema.PropertyMapping, owner []any) ([]statement, error) {
	refs, err := e.Refs(pm.Property.Name)
	if err != nil {
		return nil, err
	}
	cols := append(append([]string(nil), pm.OwnerColumns...), pm.TargetColumns...)
	seen := make(map[string]bool)
	var out []statement
	for _, ref := range refs {
		key := ref.RefKey()
		if !key.Complete() {
			return nil, entity.NewPropertyError(e.Model(), pm.Property.Name, ErrUnsavedReference)
		}
		if seen[key.String()] {
			continue
		}
		seen[key.String()] = true
		target, err := s.engine.Compiler().EncodeKey(pm.Target, key)
		if err != nil {
			return nil, entity.NewPropertyError(e.Model(), pm.Property.Name, err)
		}
		out = append(out, s.insertRow(pm.Table, cols, append(append([]any(nil), owner...), target...)))
	}
	return out, nil
}

package query

import (
	"database/sql"
	"fmt"

	"github.com/leapstack-labs/leaporm/pkg/entity"
	"github.com/leapstack-labs/leaporm/pkg/schema"
)

// hydrate builds an entity from the values of src's columns. Scalars are
// decoded eagerly; foreign keys become unloaded key-only references.
func (c *Compiler) hydrate(src *source, vals []any) (*entity.Entity, error) {
	e := entity.Existing(src.mm.Definition)
	pos := 0
	for _, pm := range src.props {
		n := len(pm.Columns)
		fieldVals := append([]any(nil), vals[pos:pos+n]...)
		pos += n

		name := pm.Property.Name
		switch pm.Kind {
		case schema.StorageColumns:
			v, err := c.types.Decode(pm.Property.Type, fieldVals)
			if err != nil {
				return nil, entity.NewPropertyError(e.Model(), name, err)
			}
			e.Init(name, entity.Scalar{V: v})
		case schema.StorageForeignKey:
			key, err := c.DecodeKey(pm.Target, fieldVals)
			if err != nil {
				return nil, entity.NewPropertyError(e.Model(), name, err)
			}
			if key == nil {
				e.Init(name, entity.Reference{})
				continue
			}
			e.Init(name, entity.Reference{Ref: entity.EntityReference{Model: pm.Target, Key: key}})
		}
	}
	return e, nil
}

// identityMap keeps one entity per model and key within an operation.
type identityMap map[string]*entity.Entity

func (m identityMap) intern(e *entity.Entity) *entity.Entity {
	id := e.Model() + "\x1e" + e.Key().String()
	if existing, ok := m[id]; ok {
		return existing
	}
	m[id] = e
	return e
}

// scanRows reads every row as a slice of n values.
func scanRows(rows *sql.Rows, n int, fn func(vals []any) error) error {
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		vals := make([]any, n)
		ptrs := make([]any, n)
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		if err := fn(vals); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rows: %w", err)
	}
	return nil
}

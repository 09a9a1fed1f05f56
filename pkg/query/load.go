package query

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leaporm/pkg/entity"
	"github.com/leapstack-labs/leaporm/pkg/schema"
)

// Load fills property on every entity of the batch that has not loaded it
// yet. The batch is served by a single query; entities that are new, are
// already loaded, or have an incomplete key are skipped, and no query runs
// when nothing is pending.
func (e *Engine) Load(ctx context.Context, entities []*entity.Entity, property string) error {
	if len(entities) == 0 {
		return nil
	}
	model := entities[0].Model()
	for _, ent := range entities[1:] {
		if ent.Model() != model {
			return fmt.Errorf("%w: %s and %s", ErrMixedModels, model, ent.Model())
		}
	}
	mm, ok := e.schema.Model(model)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	pm, ok := mm.Property(property)
	if !ok {
		return entity.NewPropertyError(model, property, entity.ErrUnknownProperty)
	}

	var pending []*entity.Entity
	seen := make(map[*entity.Entity]bool)
	for _, ent := range entities {
		if seen[ent] || ent.IsNew() || ent.IsLoaded(property) || !ent.Key().Complete() {
			continue
		}
		seen[ent] = true
		pending = append(pending, ent)
	}
	if len(pending) == 0 {
		return nil
	}

	var err error
	switch pm.Kind {
	case schema.StorageColumns:
		return nil
	case schema.StorageSideTable:
		err = e.loadSideTable(ctx, mm, pm, pending)
	case schema.StorageForeignKey:
		err = e.loadForeignKey(ctx, pm, pending)
	case schema.StorageReverseForeignKey:
		err = e.loadReverseForeignKey(ctx, mm, pm, pending)
	case schema.StorageAssociation:
		err = e.loadAssociation(ctx, mm, pm, pending)
	case schema.StoragePath:
		err = e.loadPath(ctx, mm, pm, pending)
	default:
		err = fmt.Errorf("unsupported storage kind %s", pm.Kind)
	}
	if err != nil {
		return fmt.Errorf("failed to load %s.%s: %w", model, property, err)
	}
	e.logger.Debug("loaded property",
		slog.String("model", model),
		slog.String("property", property),
		slog.Int("entities", len(pending)))
	return nil
}

// owners indexes the entities of a batch by key.
type owners struct {
	tuples [][]any
	byKey  map[string][]*entity.Entity
}

func (e *Engine) indexOwners(model string, batch []*entity.Entity) (*owners, error) {
	o := &owners{byKey: make(map[string][]*entity.Entity)}
	for _, ent := range batch {
		key := ent.Key()
		id := key.String()
		if _, ok := o.byKey[id]; !ok {
			vals, err := e.compiler.EncodeKey(model, key)
			if err != nil {
				return nil, err
			}
			o.tuples = append(o.tuples, vals)
		}
		o.byKey[id] = append(o.byKey[id], ent)
	}
	return o, nil
}

// targets collects the loaded targets per owner key, without duplicates.
type targets struct {
	ids    identityMap
	lists  map[string][]*entity.Entity
	listed map[string]map[*entity.Entity]bool
}

func newTargets() *targets {
	return &targets{
		ids:    identityMap{},
		lists:  make(map[string][]*entity.Entity),
		listed: make(map[string]map[*entity.Entity]bool),
	}
}

func (t *targets) add(owner string, target *entity.Entity) {
	target = t.ids.intern(target)
	if t.listed[owner] == nil {
		t.listed[owner] = make(map[*entity.Entity]bool)
	}
	if t.listed[owner][target] {
		return
	}
	t.listed[owner][target] = true
	t.lists[owner] = append(t.lists[owner], target)
}

func ownerAlias(i int) string { return "owner__" + strconv.Itoa(i) }

// relatedQuery selects the columns of target followed by owner key
// expressions.
func (c *Compiler) relatedQuery(target *source, ownerExprs []string, from, where string, order []string) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(c.selectList(target))
	for i, expr := range ownerExprs {
		sb.WriteString(", " + expr + " AS " + c.quote(ownerAlias(i)))
	}
	sb.WriteString(" FROM " + from)
	sb.WriteString(" WHERE " + where)
	if len(order) > 0 {
		sb.WriteString(" ORDER BY " + strings.Join(order, ", "))
	}
	return sb.String()
}

// collect runs a related query and groups the hydrated targets by the
// owner key found after the target columns.
func (e *Engine) collect(ctx context.Context, owner string, src *source, query string, args []any, nOwner int) (*targets, error) {
	found := newTargets()
	width := len(src.exprs)
	err := e.each(ctx, src.mm.Definition.Name, query, args, width+nOwner, func(vals []any) error {
		t, err := e.compiler.hydrate(src, vals[:width])
		if err != nil {
			return err
		}
		key, err := e.compiler.DecodeKey(owner, vals[width:])
		if err != nil {
			return err
		}
		found.add(key.String(), t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (e *Engine) attach(owner *entity.Entity, pm *schema.PropertyMapping, list []*entity.Entity) {
	name := pm.Property.Name
	switch {
	case pm.Property.Multiple:
		refs := make([]entity.Ref, len(list))
		for i, t := range list {
			refs[i] = t
		}
		owner.Attach(name, entity.References{Refs: refs})
	case len(list) > 0:
		owner.Attach(name, entity.Reference{Ref: list[0]})
	default:
		owner.Attach(name, entity.Reference{})
	}
	for _, t := range list {
		e.linkBack(owner, pm, t)
	}
}

func (e *Engine) loadForeignKey(ctx context.Context, pm *schema.PropertyMapping, batch []*entity.Entity) error {
	name := pm.Property.Name
	target, ok := e.schema.Model(pm.Target)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, pm.Target)
	}

	var tuples [][]any
	requested := make(map[string]bool)
	for _, ent := range batch {
		ref, err := ent.Ref(name)
		if err != nil {
			return err
		}
		if ref == nil {
			continue
		}
		id := ref.RefKey().String()
		if requested[id] {
			continue
		}
		requested[id] = true
		vals, err := e.compiler.EncodeKey(pm.Target, ref.RefKey())
		if err != nil {
			return err
		}
		tuples = append(tuples, vals)
	}

	byKey := make(map[string]*entity.Entity)
	if len(tuples) > 0 {
		src := e.compiler.newSource(target, target.Table)
		w := &writer{d: e.compiler.d}
		where := w.in(e.compiler.columns(src.alias, target.KeyColumns), tuples, false)
		query := e.compiler.relatedQuery(src, nil, e.compiler.table(target.Table, src.alias), where, nil)
		err := e.each(ctx, pm.Target, query, w.args, len(src.exprs), func(vals []any) error {
			t, err := e.compiler.hydrate(src, vals)
			if err != nil {
				return err
			}
			byKey[t.Key().String()] = t
			return nil
		})
		if err != nil {
			return err
		}
	}

	for _, ent := range batch {
		ref, _ := ent.Ref(name)
		var list []*entity.Entity
		if ref != nil {
			if t := byKey[ref.RefKey().String()]; t != nil {
				list = append(list, t)
			}
		}
		e.attach(ent, pm, list)
	}
	return nil
}

func (e *Engine) loadReverseForeignKey(ctx context.Context, mm *schema.ModelMapping, pm *schema.PropertyMapping, batch []*entity.Entity) error {
	target, ok := e.schema.Model(pm.Target)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, pm.Target)
	}
	o, err := e.indexOwners(mm.Definition.Name, batch)
	if err != nil {
		return err
	}

	src := e.compiler.newSource(target, target.Table)
	w := &writer{d: e.compiler.d}
	fk := e.compiler.columns(src.alias, pm.Columns)
	order := append(append([]string(nil), fk...), e.compiler.columns(src.alias, target.KeyColumns)...)
	query := e.compiler.relatedQuery(src, fk, e.compiler.table(target.Table, src.alias), w.in(fk, o.tuples, false), order)

	found, err := e.collect(ctx, mm.Definition.Name, src, query, w.args, len(fk))
	if err != nil {
		return err
	}
	for id, ents := range o.byKey {
		for _, ent := range ents {
			e.attach(ent, pm, found.lists[id])
		}
	}
	return nil
}

func (e *Engine) loadAssociation(ctx context.Context, mm *schema.ModelMapping, pm *schema.PropertyMapping, batch []*entity.Entity) error {
	target, ok := e.schema.Model(pm.Target)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, pm.Target)
	}
	o, err := e.indexOwners(mm.Definition.Name, batch)
	if err != nil {
		return err
	}

	src := e.compiler.newSource(target, target.Table)
	w := &writer{d: e.compiler.d}
	link := pm.Table
	ownerCols := e.compiler.columns(link, pm.OwnerColumns)
	targetCols := e.compiler.columns(link, pm.TargetColumns)
	from := e.compiler.table(target.Table, src.alias) +
		" INNER JOIN " + e.compiler.table(pm.Table, link) +
		" ON " + equalities(targetCols, e.compiler.columns(src.alias, target.KeyColumns))
	order := append(append([]string(nil), ownerCols...), targetCols...)
	query := e.compiler.relatedQuery(src, ownerCols, from, w.in(ownerCols, o.tuples, false), order)

	found, err := e.collect(ctx, mm.Definition.Name, src, query, w.args, len(ownerCols))
	if err != nil {
		return err
	}
	for id, ents := range o.byKey {
		for _, ent := range ents {
			e.attach(ent, pm, found.lists[id])
		}
	}
	return nil
}

func (e *Engine) loadSideTable(ctx context.Context, mm *schema.ModelMapping, pm *schema.PropertyMapping, batch []*entity.Entity) error {
	o, err := e.indexOwners(mm.Definition.Name, batch)
	if err != nil {
		return err
	}

	c := e.compiler
	w := &writer{d: c.d}
	ownerCols := c.columns(pm.Table, pm.OwnerColumns)
	valueCols := c.columns(pm.Table, pm.ValueColumns)
	selected := append(append([]string(nil), ownerCols...), valueCols...)
	order := append(append([]string(nil), ownerCols...), c.column(pm.Table, schema.PositionColumn))
	query := "SELECT " + strings.Join(selected, ", ") +
		" FROM " + c.quote(pm.Table) +
		" WHERE " + w.in(ownerCols, o.tuples, false) +
		" ORDER BY " + strings.Join(order, ", ")

	values := make(map[string][]any)
	n := len(ownerCols)
	err = e.each(ctx, mm.Definition.Name, query, w.args, len(selected), func(vals []any) error {
		key, err := c.DecodeKey(mm.Definition.Name, vals[:n])
		if err != nil {
			return err
		}
		v, err := c.types.Decode(pm.Property.Type, append([]any(nil), vals[n:]...))
		if err != nil {
			return entity.NewPropertyError(mm.Definition.Name, pm.Property.Name, err)
		}
		id := key.String()
		values[id] = append(values[id], v)
		return nil
	})
	if err != nil {
		return err
	}
	for id, ents := range o.byKey {
		for _, ent := range ents {
			ent.Attach(pm.Property.Name, entity.MultiValue{Values: append([]any(nil), values[id]...)})
		}
	}
	return nil
}

// loadPath walks the hops of a path reference with one join per hop. The
// owner table is aliased p0 and the table reached by hop i is p(i+1).
func (e *Engine) loadPath(ctx context.Context, mm *schema.ModelMapping, pm *schema.PropertyMapping, batch []*entity.Entity) error {
	target, ok := e.schema.Model(pm.Target)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, pm.Target)
	}
	if len(pm.Hops) == 0 {
		return fmt.Errorf("path %s has no hops", pm.Property.Name)
	}
	o, err := e.indexOwners(mm.Definition.Name, batch)
	if err != nil {
		return err
	}

	c := e.compiler
	alias := func(i int) string { return "p" + strconv.Itoa(i) }
	from := c.table(mm.Table, alias(0))
	for i, hop := range pm.Hops {
		from += " INNER JOIN " + c.table(hop.ToTable, alias(i+1)) +
			" ON " + equalities(c.columns(alias(i+1), hop.ToColumns), c.columns(alias(i), hop.FromColumns))
	}

	src := c.newSource(target, alias(len(pm.Hops)))
	w := &writer{d: c.d}
	ownerCols := c.columns(alias(0), mm.KeyColumns)
	order := append(append([]string(nil), ownerCols...), c.columns(src.alias, target.KeyColumns)...)
	query := c.relatedQuery(src, ownerCols, from, w.in(ownerCols, o.tuples, false), order)

	found, err := e.collect(ctx, mm.Definition.Name, src, query, w.args, len(ownerCols))
	if err != nil {
		return err
	}
	for id, ents := range o.byKey {
		for _, ent := range ents {
			e.attach(ent, pm, found.lists[id])
		}
	}
	return nil
}

func equalities(left, right []string) string {
	parts := make([]string, len(left))
	for i := range left {
		parts[i] = left[i] + " = " + right[i]
	}
	return strings.Join(parts, " AND ")
}

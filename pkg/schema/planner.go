package schema

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/leapstack-labs/leaporm/pkg/cardinality"
	"github.com/leapstack-labs/leaporm/pkg/datatype"
	"github.com/leapstack-labs/leaporm/pkg/model"
	"github.com/leapstack-labs/leaporm/pkg/naming"
)

// PositionColumn orders the rows of a side table per owner.
const PositionColumn = "position"

// Planner derives a Schema from model definitions.
type Planner struct {
	types  *datatype.Registry
	logger *slog.Logger
}

// NewPlanner creates a planner resolving property types through types.
// If logger is nil, a discard logger is used.
func NewPlanner(types *datatype.Registry, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Planner{types: types, logger: logger}
}

type definitions map[string]*model.Definition

func (d definitions) GetModelDefinition(name string) (*model.Definition, bool) {
	def, ok := d[name]
	return def, ok
}

// planState carries one Plan call.
type planState struct {
	*Planner
	defs   definitions
	schema *Schema
	errs   []error

	// deferred work, resolved once every owned storage is known
	reverse []*model.Property
	mirrors []*model.Property
	paths   []*model.Property
}

// Plan builds the physical schema of defs. Every problem is reported; any
// problem fails the whole plan.
func (p *Planner) Plan(defs []*model.Definition) (*Schema, error) {
	st := &planState{
		Planner: p,
		defs:    make(definitions, len(defs)),
		schema:  newSchema(),
	}
	sorted := append([]*model.Definition(nil), defs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for _, def := range sorted {
		st.defs[def.Name] = def
	}

	for _, def := range sorted {
		st.planModelTable(def)
	}
	if len(st.errs) > 0 {
		return nil, errors.Join(st.errs...)
	}

	for _, def := range sorted {
		mm := st.schema.models[def.Name]
		for _, prop := range def.Properties() {
			st.planProperty(mm, prop)
		}
	}
	for _, prop := range st.reverse {
		st.planReverse(prop)
	}
	for _, prop := range st.mirrors {
		st.planMirror(prop)
	}
	for _, prop := range st.paths {
		st.planPath(prop)
	}
	if len(st.errs) > 0 {
		return nil, errors.Join(st.errs...)
	}

	p.logger.Debug("schema planned",
		slog.Int("models", len(sorted)),
		slog.Int("tables", len(st.schema.tables)))
	return st.schema, nil
}

func (st *planState) fail(err error) {
	st.errs = append(st.errs, err)
}

// TableName returns the model table name: the snake-cased plural.
func TableName(def *model.Definition) string {
	plural := def.Plural
	if plural == "" {
		plural = naming.Pluralize(def.Name)
	}
	return naming.Snake(plural)
}

func (st *planState) planModelTable(def *model.Definition) {
	mm := &ModelMapping{Definition: def, Table: TableName(def)}
	table := &Table{Name: mm.Table, Kind: TableModel, Model: def.Name}

	if len(def.PrimaryKey) == 0 {
		st.fail(planErr(def.Name, "", ErrNoPrimaryKey))
		return
	}
	for _, name := range def.PrimaryKey {
		prop, ok := def.Property(name)
		if !ok {
			st.fail(planErrf(def.Name, name, ErrNoPrimaryKey, "primary-key property is not defined"))
			continue
		}
		if prop.IsReference() || prop.Multiple || prop.IsVirtual() {
			st.fail(planErrf(def.Name, name, ErrNoPrimaryKey, "primary key must be a single-valued scalar"))
			continue
		}
		fields, err := st.fields(prop)
		if err != nil {
			st.fail(err)
			continue
		}
		if len(fields) != 1 {
			st.fail(planErrf(def.Name, name, ErrNoPrimaryKey, "primary key cannot use compound type %s", prop.Type))
			continue
		}
		col := &Column{
			Name:          naming.Snake(prop.Name),
			Field:         fields[0],
			AutoIncrement: prop.Generation == model.GenerationAuto,
		}
		table.Columns = append(table.Columns, col)
		table.PrimaryKey = append(table.PrimaryKey, col.Name)
		mm.KeyColumns = append(mm.KeyColumns, col.Name)
		mm.add(&PropertyMapping{
			Property: prop,
			Kind:     StorageColumns,
			Columns:  []string{col.Name},
			Fields:   fields,
		})
	}

	st.schema.models[def.Name] = mm
	st.schema.addTable(table)
}

func (st *planState) fields(prop *model.Property) ([]datatype.Field, error) {
	def, ok := st.types.Lookup(prop.Type)
	if !ok {
		return nil, planErrf(prop.Model, prop.Name, model.ErrUnknownType, "%q", prop.Type)
	}
	fields, err := def.Resolve(prop.Size, prop.Size2)
	if err != nil {
		return nil, planErr(prop.Model, prop.Name, err)
	}
	return fields, nil
}

// fieldColumns names one column per field: the base name for simple
// storage, base_key for compound storage.
func fieldColumns(base string, fields []datatype.Field) []string {
	cols := make([]string, len(fields))
	for i, f := range fields {
		if f.Key == "" {
			cols[i] = base
		} else {
			cols[i] = base + "_" + naming.Snake(f.Key)
		}
	}
	return cols
}

// keyColumns returns the columns and fields referencing the key of mm,
// prefixed with prefix: author_id for prefix "author".
func (st *planState) keyColumns(prefix string, mm *ModelMapping) ([]*Column, []string, []datatype.Field) {
	table := st.schema.byName[mm.Table]
	cols := make([]*Column, len(mm.KeyColumns))
	names := make([]string, len(mm.KeyColumns))
	fields := make([]datatype.Field, len(mm.KeyColumns))
	for i, key := range mm.KeyColumns {
		kc, _ := table.Column(key)
		names[i] = prefix + "_" + key
		fields[i] = kc.Field
		cols[i] = &Column{Name: names[i], Field: kc.Field}
	}
	return cols, names, fields
}

func (st *planState) addColumns(table *Table, prop *model.Property, cols ...*Column) bool {
	for _, c := range cols {
		if _, exists := table.Column(c.Name); exists {
			st.fail(planErrf(prop.Model, prop.Name, ErrColumnConflict, "column %s.%s is already planned", table.Name, c.Name))
			return false
		}
	}
	table.Columns = append(table.Columns, cols...)
	return true
}

func (st *planState) planProperty(mm *ModelMapping, prop *model.Property) {
	if _, done := mm.Property(prop.Name); done {
		return // primary key
	}

	switch {
	case prop.IsReference():
		st.planReference(mm, prop)
	case prop.IsVirtual():
		// nothing to store
	case prop.Multiple:
		st.planSideTable(mm, prop)
	default:
		fields, err := st.fields(prop)
		if err != nil {
			st.fail(err)
			return
		}
		names := fieldColumns(naming.Snake(prop.Name), fields)
		cols := make([]*Column, len(fields))
		for i, f := range fields {
			cols[i] = &Column{Name: names[i], Field: f, Nullable: !prop.Required}
		}
		if !st.addColumns(st.schema.byName[mm.Table], prop, cols...) {
			return
		}
		mm.add(&PropertyMapping{Property: prop, Kind: StorageColumns, Columns: names, Fields: fields})
	}
}

func (st *planState) planSideTable(mm *ModelMapping, prop *model.Property) {
	fields, err := st.fields(prop)
	if err != nil {
		st.fail(err)
		return
	}

	owner := st.schema.byName[mm.Table]
	table := &Table{
		Name:     mm.Table + "_" + naming.Snake(prop.Name),
		Kind:     TableSide,
		Model:    mm.Definition.Name,
		Property: prop.Name,
	}
	ownerCols, ownerNames, _ := st.keyColumns(naming.Snake(mm.Definition.Name), mm)
	table.Columns = append(table.Columns, ownerCols...)
	table.Columns = append(table.Columns, &Column{Name: PositionColumn, Field: datatype.Field{Kind: datatype.KindInteger}})

	valueNames := fieldColumns(naming.Snake(prop.Name), fields)
	for i, f := range fields {
		if valueNames[i] == PositionColumn {
			valueNames[i] = "value"
		}
		table.Columns = append(table.Columns, &Column{Name: valueNames[i], Field: f, Nullable: true})
	}
	table.PrimaryKey = append(append([]string(nil), ownerNames...), PositionColumn)
	table.ForeignKeys = []ForeignKey{newForeignKey(table.Name, ownerNames, owner.Name, mm.KeyColumns)}

	st.schema.addTable(table)
	mm.add(&PropertyMapping{
		Property:     prop,
		Kind:         StorageSideTable,
		Fields:       fields,
		Table:        table.Name,
		OwnerColumns: ownerNames,
		ValueColumns: valueNames,
	})
}

func (st *planState) planReference(mm *ModelMapping, prop *model.Property) {
	ref := prop.Reference
	target, ok := st.schema.models[ref.Target]
	if !ok {
		st.fail(planErrf(prop.Model, prop.Name, ErrUndefinedModel, "%s", ref.Target))
		return
	}
	card, ok := cardinality.Resolve(prop, st.defs)
	if !ok {
		st.fail(planErrf(prop.Model, prop.Name, ErrUnresolvedCardinality, "reverse property %s.%s does not pair", ref.Target, ref.Reverse))
		return
	}

	pm := &PropertyMapping{Property: prop, Cardinality: card, Target: ref.Target}
	switch {
	case ref.IsDerived():
		pm.Kind = StoragePath
		mm.add(pm)
		st.paths = append(st.paths, prop)

	case card.ManyToMany():
		pm.Kind = StorageAssociation
		mm.add(pm)
		if rev := st.pairedReverse(prop); rev != nil && rev.QualifiedName() < prop.QualifiedName() {
			st.mirrors = append(st.mirrors, prop)
			return
		}
		st.planAssociation(mm, target, pm)

	case card.ManyToOne():
		if ref.Reverse == "" {
			st.fail(planErr(prop.Model, prop.Name, ErrMissingReverse))
			return
		}
		pm.Kind = StorageReverseForeignKey
		mm.add(pm)
		st.reverse = append(st.reverse, prop)

	default: // one-to-one, one-to-many
		if rev := st.pairedReverse(prop); rev != nil && card.OneToOne() && rev.QualifiedName() < prop.QualifiedName() {
			pm.Kind = StorageReverseForeignKey
			mm.add(pm)
			st.reverse = append(st.reverse, prop)
			return
		}
		st.planForeignKey(mm, target, pm)
	}
}

// pairedReverse returns the stored reverse property of prop, if any.
func (st *planState) pairedReverse(prop *model.Property) *model.Property {
	ref := prop.Reference
	if ref.Reverse == "" {
		return nil
	}
	def, ok := st.defs[ref.Target]
	if !ok {
		return nil
	}
	rev, ok := def.Property(ref.Reverse)
	if !ok || !cardinality.Pairs(prop, rev) || rev.Reference.IsDerived() {
		return nil
	}
	return rev
}

func (st *planState) planForeignKey(mm *ModelMapping, target *ModelMapping, pm *PropertyMapping) {
	prop := pm.Property
	table := st.schema.byName[mm.Table]
	cols, names, fields := st.keyColumns(naming.Snake(prop.Name), target)
	for _, c := range cols {
		c.Nullable = !prop.Required
	}
	if !st.addColumns(table, prop, cols...) {
		return
	}
	table.Indexes = append(table.Indexes, newIndex(table.Name, names, false))
	table.ForeignKeys = append(table.ForeignKeys, newForeignKey(table.Name, names, target.Table, target.KeyColumns))

	pm.Kind = StorageForeignKey
	pm.Columns = names
	pm.Fields = fields
	mm.add(pm)
}

func (st *planState) planAssociation(mm *ModelMapping, target *ModelMapping, pm *PropertyMapping) {
	prop := pm.Property
	table := &Table{
		Name:     mm.Table + "_" + naming.Snake(prop.Name),
		Kind:     TableAssociation,
		Model:    mm.Definition.Name,
		Property: prop.Name,
	}

	ownerCols, ownerNames, _ := st.keyColumns(naming.Snake(mm.Definition.Name), mm)
	targetPrefix := naming.Snake(target.Definition.Name)
	if target == mm {
		targetPrefix = naming.Snake(prop.Name)
	}
	targetCols, targetNames, targetFields := st.keyColumns(targetPrefix, target)

	table.Columns = append(append(table.Columns, ownerCols...), targetCols...)
	table.PrimaryKey = append(append([]string(nil), ownerNames...), targetNames...)
	table.Indexes = []Index{
		newIndex(table.Name, ownerNames, false),
		newIndex(table.Name, targetNames, false),
	}
	table.ForeignKeys = []ForeignKey{
		newForeignKey(table.Name, ownerNames, mm.Table, mm.KeyColumns),
		newForeignKey(table.Name, targetNames, target.Table, target.KeyColumns),
	}
	st.schema.addTable(table)

	pm.Table = table.Name
	pm.OwnerColumns = ownerNames
	pm.TargetColumns = targetNames
	pm.Fields = targetFields
}

// planReverse maps a property whose rows are found through the foreign key
// held by its reverse property.
func (st *planState) planReverse(prop *model.Property) {
	pm := st.schema.models[prop.Model].properties[prop.Name]
	target := st.schema.models[prop.Reference.Target]
	revPM, ok := target.Property(prop.Reference.Reverse)
	if !ok || revPM.Kind != StorageForeignKey {
		st.fail(planErrf(prop.Model, prop.Name, ErrMissingReverse, "%s.%s holds no foreign key", prop.Reference.Target, prop.Reference.Reverse))
		return
	}
	pm.Columns = revPM.Columns
	pm.Fields = revPM.Fields
}

// planMirror shares the association table planned by the reverse side.
func (st *planState) planMirror(prop *model.Property) {
	pm := st.schema.models[prop.Model].properties[prop.Name]
	target := st.schema.models[prop.Reference.Target]
	revPM, ok := target.Property(prop.Reference.Reverse)
	if !ok || revPM.Kind != StorageAssociation || revPM.Table == "" {
		st.fail(planErrf(prop.Model, prop.Name, ErrUnresolvedCardinality, "reverse side %s.%s has no association table", prop.Reference.Target, prop.Reference.Reverse))
		return
	}
	pm.Table = revPM.Table
	pm.OwnerColumns = revPM.TargetColumns
	pm.TargetColumns = revPM.OwnerColumns
	pm.Fields = target.keyFields(st.schema)
}

func (m *ModelMapping) keyFields(s *Schema) []datatype.Field {
	table := s.byName[m.Table]
	out := make([]datatype.Field, len(m.KeyColumns))
	for i, key := range m.KeyColumns {
		c, _ := table.Column(key)
		out[i] = c.Field
	}
	return out
}

// planPath resolves the join chain of a path-derived reference. The chain
// visits the owner, every segment type, then the target. A hop between two
// models uses, in order: the previous segment's forward property, the
// segment's own property (a reference on the segment type pointing back),
// or the only stored reference between the two models.
func (st *planState) planPath(prop *model.Property) {
	pm := st.schema.models[prop.Model].properties[prop.Name]
	path := prop.Reference.Path

	chain := []string{prop.Model}
	for _, seg := range path {
		if _, ok := st.schema.models[seg.Type]; !ok {
			st.fail(planErrf(prop.Model, prop.Name, ErrUndefinedModel, "path segment %s", seg.Type))
			return
		}
		chain = append(chain, seg.Type)
	}
	chain = append(chain, prop.Reference.Target)

	var hops []Hop
	for k := 0; k+1 < len(chain); k++ {
		from, to := st.schema.models[chain[k]], st.schema.models[chain[k+1]]
		var (
			via      *PropertyMapping
			reversed bool
		)
		switch {
		case k > 0 && path[k-1].Forward != "":
			via, _ = from.Property(path[k-1].Forward)
		case k < len(path) && path[k].Property != "":
			via, _ = to.Property(path[k].Property)
			reversed = true
		default:
			via, reversed = uniqueLink(from, to)
		}
		owner, other := from, to
		if reversed {
			owner, other = to, from
		}
		if via == nil || via.Target != other.Definition.Name {
			st.fail(planErrf(prop.Model, prop.Name, ErrUnsupportedPath, "no stored reference between %s and %s", chain[k], chain[k+1]))
			return
		}
		h, err := hopsVia(owner, other, via, reversed)
		if err != nil {
			st.fail(planErrf(prop.Model, prop.Name, ErrUnsupportedPath, "%v", err))
			return
		}
		hops = append(hops, h...)
	}
	pm.Hops = hops
}

// uniqueLink finds the only stored reference from one model to the other,
// looking at from first.
func uniqueLink(from, to *ModelMapping) (*PropertyMapping, bool) {
	find := func(m *ModelMapping, target string) *PropertyMapping {
		var found *PropertyMapping
		for _, pm := range m.Properties() {
			if pm.Target != target || pm.Kind == StoragePath {
				continue
			}
			if found != nil {
				return nil
			}
			found = pm
		}
		return found
	}
	if pm := find(from, to.Definition.Name); pm != nil {
		return pm, false
	}
	if pm := find(to, from.Definition.Name); pm != nil {
		return pm, true
	}
	return nil, false
}

// hopsVia renders the joins crossing via, a reference on owner pointing at
// other. reversed walks it from other to owner.
func hopsVia(owner, other *ModelMapping, via *PropertyMapping, reversed bool) ([]Hop, error) {
	var forward []Hop
	switch via.Kind {
	case StorageForeignKey:
		forward = []Hop{{
			FromModel: owner.Definition.Name, FromTable: owner.Table, FromColumns: via.Columns,
			ToModel: other.Definition.Name, ToTable: other.Table, ToColumns: other.KeyColumns,
		}}
	case StorageReverseForeignKey:
		forward = []Hop{{
			FromModel: owner.Definition.Name, FromTable: owner.Table, FromColumns: owner.KeyColumns,
			ToModel: other.Definition.Name, ToTable: other.Table, ToColumns: via.Columns,
		}}
	case StorageAssociation:
		forward = []Hop{
			{
				FromModel: owner.Definition.Name, FromTable: owner.Table, FromColumns: owner.KeyColumns,
				ToTable: via.Table, ToColumns: via.OwnerColumns,
			},
			{
				FromTable: via.Table, FromColumns: via.TargetColumns,
				ToModel: other.Definition.Name, ToTable: other.Table, ToColumns: other.KeyColumns,
			},
		}
	default:
		return nil, fmt.Errorf("%s.%s is stored as %s", owner.Definition.Name, via.Property.Name, via.Kind)
	}
	if !reversed {
		return forward, nil
	}
	out := make([]Hop, len(forward))
	for i, h := range forward {
		out[len(forward)-1-i] = Hop{
			FromModel: h.ToModel, FromTable: h.ToTable, FromColumns: h.ToColumns,
			ToModel: h.FromModel, ToTable: h.FromTable, ToColumns: h.FromColumns,
		}
	}
	return out, nil
}

func newIndex(table string, columns []string, unique bool) Index {
	return Index{Name: "idx_" + table + "_" + strings.Join(columns, "_"), Columns: columns, Unique: unique}
}

func newForeignKey(table string, columns []string, refTable string, refColumns []string) ForeignKey {
	return ForeignKey{
		Name:       "fk_" + table + "_" + strings.Join(columns, "_"),
		Columns:    columns,
		RefTable:   refTable,
		RefColumns: append([]string(nil), refColumns...),
	}
}

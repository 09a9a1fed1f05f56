// Package schema turns compiled model definitions into a physical relational
// schema and applies additive changes to a live database.
//
// The Planner produces a Schema: the tables to create plus a per-model
// mapping that tells the query engine and the persistence layer where each
// property is stored. The Migrator diffs a Schema against the tables an
// adapter reports and executes only additive statements.
package schema

import (
	"sort"

	"github.com/leapstack-labs/leaporm/pkg/cardinality"
	"github.com/leapstack-labs/leaporm/pkg/datatype"
	"github.com/leapstack-labs/leaporm/pkg/model"
)

// TableKind tells why a table exists.
type TableKind int

// Table kinds.
const (
	TableModel       TableKind = iota // one row per entity
	TableSide                         // values of a multi-valued inline property
	TableAssociation                  // pairs of a many-to-many reference
)

func (k TableKind) String() string {
	switch k {
	case TableSide:
		return "side"
	case TableAssociation:
		return "association"
	default:
		return "model"
	}
}

// Column is a planned column.
type Column struct {
	Name          string
	Field         datatype.Field
	Nullable      bool
	AutoIncrement bool
}

// Index is a planned secondary index.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// ForeignKey is a planned foreign-key constraint.
type ForeignKey struct {
	Name       string
	Columns    []string
	RefTable   string
	RefColumns []string
}

// Table is a planned table.
type Table struct {
	Name        string
	Kind        TableKind
	Model       string
	Property    string // owning property of side and association tables
	Columns     []*Column
	PrimaryKey  []string
	Indexes     []Index
	ForeignKeys []ForeignKey
}

// Column returns a column by name.
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// HasAutoIncrement reports whether any column is backend-generated.
func (t *Table) HasAutoIncrement() bool {
	for _, c := range t.Columns {
		if c.AutoIncrement {
			return true
		}
	}
	return false
}

// StorageKind tells how a property is stored.
type StorageKind int

// Storage kinds.
const (
	// StorageColumns stores a scalar in one column per type field on the
	// model table.
	StorageColumns StorageKind = iota
	// StorageSideTable stores the values of a multi-valued scalar in a
	// side table keyed by owner key and position.
	StorageSideTable
	// StorageForeignKey stores the target key on the model table.
	StorageForeignKey
	// StorageReverseForeignKey reads the target rows whose foreign key,
	// held by the reverse property, points back at the owner.
	StorageReverseForeignKey
	// StorageAssociation stores owner/target key pairs in an association
	// table.
	StorageAssociation
	// StoragePath has no storage; targets are reached through a chain of
	// joins.
	StoragePath
)

func (k StorageKind) String() string {
	switch k {
	case StorageSideTable:
		return "side-table"
	case StorageForeignKey:
		return "foreign-key"
	case StorageReverseForeignKey:
		return "reverse-foreign-key"
	case StorageAssociation:
		return "association"
	case StoragePath:
		return "path"
	default:
		return "columns"
	}
}

// Hop is one join of a path: rows of FromTable whose FromColumns equal
// ToColumns of ToTable.
type Hop struct {
	FromModel   string
	FromTable   string
	FromColumns []string
	ToModel     string
	ToTable     string
	ToColumns   []string
}

// PropertyMapping locates the storage of one property.
//
// Column sets are aligned: FK Columns line up with the target model's key
// columns, side and association OwnerColumns with the owner's key columns,
// association TargetColumns with the target's key columns.
type PropertyMapping struct {
	Property    *model.Property
	Kind        StorageKind
	Cardinality cardinality.Cardinality // zero for non-references
	Target      string                  // target model of references

	// Columns on the model table: type fields for StorageColumns, target
	// key for StorageForeignKey, or the reverse property's foreign-key
	// columns on the target table for StorageReverseForeignKey.
	Columns []string
	Fields  []datatype.Field

	Table         string // side or association table
	OwnerColumns  []string
	TargetColumns []string
	ValueColumns  []string // side table value columns, aligned with Fields

	Hops []Hop // StoragePath, from the owner table to the target table
}

// IsReference reports whether the mapping points at another model.
func (m *PropertyMapping) IsReference() bool {
	return m.Target != ""
}

// ModelMapping is the physical layout of one model.
type ModelMapping struct {
	Definition *model.Definition
	Table      string
	KeyColumns []string // model table columns of the primary key, in key order

	properties map[string]*PropertyMapping
	order      []string
}

// Property returns the mapping of a property.
func (m *ModelMapping) Property(name string) (*PropertyMapping, bool) {
	pm, ok := m.properties[name]
	return pm, ok
}

// Properties returns the mappings in declaration order.
func (m *ModelMapping) Properties() []*PropertyMapping {
	out := make([]*PropertyMapping, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.properties[name])
	}
	return out
}

// ColumnProperties returns the mappings stored on the model table itself:
// scalar columns and owned foreign keys.
func (m *ModelMapping) ColumnProperties() []*PropertyMapping {
	var out []*PropertyMapping
	for _, pm := range m.Properties() {
		if pm.Kind == StorageColumns || pm.Kind == StorageForeignKey {
			out = append(out, pm)
		}
	}
	return out
}

func (m *ModelMapping) add(pm *PropertyMapping) {
	if m.properties == nil {
		m.properties = make(map[string]*PropertyMapping)
	}
	if _, exists := m.properties[pm.Property.Name]; !exists {
		m.order = append(m.order, pm.Property.Name)
	}
	m.properties[pm.Property.Name] = pm
}

// Schema is the planned physical form of a set of models.
type Schema struct {
	tables []*Table
	byName map[string]*Table
	models map[string]*ModelMapping
}

func newSchema() *Schema {
	return &Schema{
		byName: make(map[string]*Table),
		models: make(map[string]*ModelMapping),
	}
}

func (s *Schema) addTable(t *Table) {
	if _, exists := s.byName[t.Name]; exists {
		return
	}
	s.tables = append(s.tables, t)
	s.byName[t.Name] = t
}

// Tables returns the planned tables sorted by name.
func (s *Schema) Tables() []*Table {
	out := append([]*Table(nil), s.tables...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Table returns a planned table by name.
func (s *Schema) Table(name string) (*Table, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// Model returns the mapping of a model.
func (s *Schema) Model(name string) (*ModelMapping, bool) {
	m, ok := s.models[name]
	return m, ok
}

// Models returns the model mappings sorted by model name.
func (s *Schema) Models() []*ModelMapping {
	out := make([]*ModelMapping, 0, len(s.models))
	for _, m := range s.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Definition.Name < out[j].Definition.Name })
	return out
}

// GetModelDefinition implements model.Lookup over the planned models.
func (s *Schema) GetModelDefinition(name string) (*model.Definition, bool) {
	m, ok := s.models[name]
	if !ok {
		return nil, false
	}
	return m.Definition, true
}

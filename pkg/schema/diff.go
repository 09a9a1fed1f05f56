package schema

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leaporm/pkg/adapter"
)

// ChangeKind classifies a structural difference.
type ChangeKind int

// Change kinds. Drop kinds are destructive and never executed.
const (
	CreateTable ChangeKind = iota
	AddColumn
	CreateIndex
	AddForeignKey
	DropColumn
	DropIndex
	DropForeignKey
)

func (k ChangeKind) String() string {
	switch k {
	case CreateTable:
		return "create table"
	case AddColumn:
		return "add column"
	case CreateIndex:
		return "create index"
	case AddForeignKey:
		return "add foreign key"
	case DropColumn:
		return "drop column"
	case DropIndex:
		return "drop index"
	case DropForeignKey:
		return "drop foreign key"
	default:
		return fmt.Sprintf("change(%d)", int(k))
	}
}

// Destructive reports whether applying the change could lose data.
func (k ChangeKind) Destructive() bool {
	return k >= DropColumn
}

// Change is one difference between the planned and the live schema.
type Change struct {
	Kind       ChangeKind
	Table      string
	TableDef   *Table      // CreateTable
	Column     *Column     // AddColumn
	Index      *Index      // CreateIndex
	ForeignKey *ForeignKey // AddForeignKey
	Name       string      // dropped column, index or constraint
}

// Object names the column, index or constraint the change touches. It is
// empty for CreateTable.
func (c Change) Object() string {
	switch c.Kind {
	case CreateTable:
		return ""
	case AddColumn:
		return c.Column.Name
	case CreateIndex:
		return c.Index.Name
	case AddForeignKey:
		return c.ForeignKey.Name
	default:
		return c.Name
	}
}

func (c Change) String() string {
	switch c.Kind {
	case CreateTable:
		return fmt.Sprintf("%s %s", c.Kind, c.Table)
	case AddColumn:
		return fmt.Sprintf("%s %s.%s", c.Kind, c.Table, c.Column.Name)
	case CreateIndex:
		return fmt.Sprintf("%s %s on %s", c.Kind, c.Index.Name, c.Table)
	case AddForeignKey:
		return fmt.Sprintf("%s %s on %s", c.Kind, c.ForeignKey.Name, c.Table)
	default:
		return fmt.Sprintf("%s %s on %s", c.Kind, c.Name, c.Table)
	}
}

// Diff compares the planned schema with live tables keyed by name.
// Planned tables missing from live are created with all their indexes;
// existing tables get their missing columns, indexes and foreign keys.
// Live objects absent from the plan are reported as drops. Live tables
// that are not planned at all are left alone.
func Diff(s *Schema, live map[string]*adapter.TableInfo) []Change {
	lookup := make(map[string]*adapter.TableInfo, len(live))
	for name, info := range live {
		lookup[strings.ToLower(name)] = info
	}

	var changes []Change
	for _, t := range s.Tables() {
		info, exists := lookup[strings.ToLower(t.Name)]
		if !exists {
			changes = append(changes, Change{Kind: CreateTable, Table: t.Name, TableDef: t})
			for i := range t.Indexes {
				changes = append(changes, Change{Kind: CreateIndex, Table: t.Name, Index: &t.Indexes[i]})
			}
			continue
		}
		changes = append(changes, diffTable(t, info)...)
	}
	return changes
}

func diffTable(t *Table, info *adapter.TableInfo) []Change {
	var changes []Change

	for _, c := range t.Columns {
		if _, ok := liveColumn(info, c.Name); !ok {
			changes = append(changes, Change{Kind: AddColumn, Table: t.Name, Column: c})
		}
	}
	for _, lc := range info.Columns {
		if _, ok := t.Column(strings.ToLower(lc.Name)); !ok {
			changes = append(changes, Change{Kind: DropColumn, Table: t.Name, Name: lc.Name})
		}
	}

	for i, idx := range t.Indexes {
		if !hasIndex(info.Indexes, idx.Name) {
			changes = append(changes, Change{Kind: CreateIndex, Table: t.Name, Index: &t.Indexes[i]})
		}
	}
	for _, li := range info.Indexes {
		if !plannedIndex(t.Indexes, li.Name) {
			changes = append(changes, Change{Kind: DropIndex, Table: t.Name, Name: li.Name})
		}
	}

	for i, fk := range t.ForeignKeys {
		if !hasForeignKey(info.ForeignKeys, fk) {
			changes = append(changes, Change{Kind: AddForeignKey, Table: t.Name, ForeignKey: &t.ForeignKeys[i]})
		}
	}
	for _, lf := range info.ForeignKeys {
		if !plannedForeignKey(t.ForeignKeys, lf) {
			changes = append(changes, Change{Kind: DropForeignKey, Table: t.Name, Name: lf.Name})
		}
	}
	return changes
}

func liveColumn(info *adapter.TableInfo, name string) (adapter.ColumnInfo, bool) {
	for _, c := range info.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return adapter.ColumnInfo{}, false
}

func hasIndex(live []adapter.IndexInfo, name string) bool {
	for _, li := range live {
		if strings.EqualFold(li.Name, name) {
			return true
		}
	}
	return false
}

func plannedIndex(planned []Index, name string) bool {
	for _, idx := range planned {
		if strings.EqualFold(idx.Name, name) {
			return true
		}
	}
	return false
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Foreign keys are matched by shape rather than name: backends name
// constraints differently.
func hasForeignKey(live []adapter.ForeignKeyInfo, fk ForeignKey) bool {
	for _, lf := range live {
		if strings.EqualFold(lf.RefTable, fk.RefTable) && sameColumns(lf.Columns, fk.Columns) {
			return true
		}
	}
	return false
}

func plannedForeignKey(planned []ForeignKey, lf adapter.ForeignKeyInfo) bool {
	for _, fk := range planned {
		if strings.EqualFold(lf.RefTable, fk.RefTable) && sameColumns(lf.Columns, fk.Columns) {
			return true
		}
	}
	return false
}

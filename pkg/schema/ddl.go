package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/leaporm/pkg/dialect"
)

// DDL renders schema statements for one dialect.
type DDL struct {
	d *dialect.Dialect
}

// NewDDL creates a renderer for d.
func NewDDL(d *dialect.Dialect) *DDL {
	return &DDL{d: d}
}

func (g *DDL) quote(name string) string {
	return g.d.QuoteIdentifierIfNeeded(name)
}

func (g *DDL) quoteList(names []string) string {
	q := make([]string, len(names))
	for i, n := range names {
		q[i] = g.quote(n)
	}
	return strings.Join(q, ", ")
}

// SequenceName names the sequence backing an auto-increment column.
func SequenceName(table, column string) string {
	return "seq_" + table + "_" + column
}

// CreateTable renders the statements creating t with the given foreign
// keys inlined. Sequences for auto-increment columns come first.
func (g *DDL) CreateTable(t *Table, fks []ForeignKey) ([]string, error) {
	var (
		stmts    []string
		defs     []string
		inlinePK bool
	)
	for _, c := range t.Columns {
		def := g.quote(c.Name) + " " + g.d.ColumnType(c.Field)
		switch {
		case !c.AutoIncrement:
			if !c.Nullable {
				def += " NOT NULL"
			}
		case g.d.AutoIncrement == dialect.AutoIncrementRowID:
			if len(t.PrimaryKey) != 1 || t.PrimaryKey[0] != c.Name {
				return nil, fmt.Errorf("table %s: %s cannot auto-increment %s outside a single-column primary key", t.Name, g.d.Name, c.Name)
			}
			def += " PRIMARY KEY AUTOINCREMENT"
			inlinePK = true
		case g.d.AutoIncrement == dialect.AutoIncrementIdentity:
			def += " GENERATED BY DEFAULT AS IDENTITY"
		case g.d.AutoIncrement == dialect.AutoIncrementSequence:
			seq := SequenceName(t.Name, c.Name)
			stmts = append(stmts, "CREATE SEQUENCE IF NOT EXISTS "+g.quote(seq)+" START 1")
			def += fmt.Sprintf(" DEFAULT nextval('%s') NOT NULL", seq)
		}
		defs = append(defs, def)
	}
	if !inlinePK && len(t.PrimaryKey) > 0 {
		defs = append(defs, "PRIMARY KEY ("+g.quoteList(t.PrimaryKey)+")")
	}
	for _, fk := range fks {
		defs = append(defs, g.foreignKeyClause(fk))
	}

	stmts = append(stmts, "CREATE TABLE "+g.quote(t.Name)+" ("+strings.Join(defs, ", ")+")")
	return stmts, nil
}

func (g *DDL) foreignKeyClause(fk ForeignKey) string {
	return fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		g.quote(fk.Name), g.quoteList(fk.Columns), g.quote(fk.RefTable), g.quoteList(fk.RefColumns))
}

// CreateIndex renders a CREATE INDEX statement.
func (g *DDL) CreateIndex(table string, idx Index) string {
	kind := "INDEX"
	if idx.Unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s %s ON %s (%s)", kind, g.quote(idx.Name), g.quote(table), g.quoteList(idx.Columns))
}

// AddColumn renders an ALTER TABLE adding c. Added columns are always
// nullable so that existing rows stay valid.
func (g *DDL) AddColumn(table string, c *Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", g.quote(table), g.quote(c.Name), g.d.ColumnType(c.Field))
}

// AddForeignKey renders an ALTER TABLE adding a constraint.
func (g *DDL) AddForeignKey(table string, fk ForeignKey) string {
	return fmt.Sprintf("ALTER TABLE %s ADD %s", g.quote(table), g.foreignKeyClause(fk))
}

// Statements renders the additive changes in execution order: new tables
// (referenced tables first), added columns, indexes, then foreign keys
// added to existing or cyclic tables. Foreign keys the dialect cannot add
// are returned as skipped changes. Destructive changes are ignored.
func (g *DDL) Statements(changes []Change) (stmts []string, skipped []Change, err error) {
	var (
		created  []*Table
		columns  []Change
		indexes  []Change
		addFKs   []Change
		deferred []Change
	)
	for _, c := range changes {
		switch c.Kind {
		case CreateTable:
			created = append(created, c.TableDef)
		case AddColumn:
			columns = append(columns, c)
		case CreateIndex:
			indexes = append(indexes, c)
		case AddForeignKey:
			addFKs = append(addFKs, c)
		}
	}

	order := creationOrder(created)
	pending := make(map[string]bool, len(order))
	for _, t := range order {
		pending[t.Name] = true
	}
	for _, t := range order {
		var inline []ForeignKey
		for _, fk := range t.ForeignKeys {
			if fk.RefTable == t.Name || !pending[fk.RefTable] || g.d.ForwardForeignKeys {
				inline = append(inline, fk)
				continue
			}
			deferred = append(deferred, Change{Kind: AddForeignKey, Table: t.Name, ForeignKey: &fk})
		}
		s, err := g.CreateTable(t, inline)
		if err != nil {
			return nil, nil, err
		}
		stmts = append(stmts, s...)
		delete(pending, t.Name)
	}

	for _, c := range columns {
		stmts = append(stmts, g.AddColumn(c.Table, c.Column))
	}
	for _, c := range indexes {
		stmts = append(stmts, g.CreateIndex(c.Table, *c.Index))
	}
	for _, c := range append(addFKs, deferred...) {
		if !g.d.AlterAddForeignKey {
			skipped = append(skipped, c)
			continue
		}
		stmts = append(stmts, g.AddForeignKey(c.Table, *c.ForeignKey))
	}
	return stmts, skipped, nil
}

// creationOrder sorts new tables so that referenced tables come first.
// Ties and cycles fall back to name order.
func creationOrder(tables []*Table) []*Table {
	byName := make(map[string]*Table, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}
	deps := make(map[string]map[string]bool, len(tables))
	for _, t := range tables {
		deps[t.Name] = make(map[string]bool)
		for _, fk := range t.ForeignKeys {
			if _, isNew := byName[fk.RefTable]; isNew && fk.RefTable != t.Name {
				deps[t.Name][fk.RefTable] = true
			}
		}
	}

	remaining := make([]string, 0, len(tables))
	for name := range byName {
		remaining = append(remaining, name)
	}
	sort.Strings(remaining)

	out := make([]*Table, 0, len(tables))
	for len(remaining) > 0 {
		pick := 0
		for i, name := range remaining {
			if len(deps[name]) == 0 {
				pick = i
				break
			}
		}
		name := remaining[pick]
		remaining = append(remaining[:pick], remaining[pick+1:]...)
		out = append(out, byName[name])
		for _, d := range deps {
			delete(d, name)
		}
	}
	return out
}

package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leaporm/pkg/datatype"
	"github.com/leapstack-labs/leaporm/pkg/dialect"
	"github.com/leapstack-labs/leaporm/pkg/entity"
	"github.com/leapstack-labs/leaporm/pkg/naming"
	"github.com/leapstack-labs/leaporm/pkg/schema"
)

// Compiler renders queries as SQL for one dialect.
//
// Every selected column gets the alias tableAlias__column, or
// tableAlias__property__field for the fields of compound types. The root
// table is aliased by its own name; a joined reference is aliased
// rootTable_property.
type Compiler struct {
	schema *schema.Schema
	d      *dialect.Dialect
	types  *datatype.Registry
}

// NewCompiler creates a compiler for a planned schema.
func NewCompiler(s *schema.Schema, d *dialect.Dialect, types *datatype.Registry) *Compiler {
	return &Compiler{schema: s, d: d, types: types}
}

// Statement is a compiled query.
type Statement struct {
	SQL  string
	Args []any

	root  *source
	joins []*join
}

// Columns returns the result aliases in select order.
func (st *Statement) Columns() []string {
	out := append([]string(nil), st.root.aliases...)
	for _, j := range st.joins {
		out = append(out, j.src.aliases...)
	}
	return out
}

func (st *Statement) join(property string) *join {
	for _, j := range st.joins {
		if j.property == property {
			return j
		}
	}
	return nil
}

// source is a model table in a statement with the columns selected from
// it, in ColumnProperties order.
type source struct {
	mm      *schema.ModelMapping
	alias   string
	props   []*schema.PropertyMapping
	exprs   []string
	aliases []string
}

type join struct {
	property string
	pm       *schema.PropertyMapping
	src      *source
}

// ColumnAlias returns the result alias of the i-th column of pm selected
// from tableAlias.
func ColumnAlias(tableAlias string, pm *schema.PropertyMapping, i int) string {
	if key := pm.Fields[i].Key; key != "" {
		return tableAlias + "__" + naming.Snake(pm.Property.Name) + "__" + naming.Snake(key)
	}
	return tableAlias + "__" + pm.Columns[i]
}

func (c *Compiler) newSource(mm *schema.ModelMapping, alias string) *source {
	src := &source{mm: mm, alias: alias}
	for _, pm := range mm.ColumnProperties() {
		src.props = append(src.props, pm)
		for i, col := range pm.Columns {
			src.exprs = append(src.exprs, c.column(alias, col))
			src.aliases = append(src.aliases, ColumnAlias(alias, pm, i))
		}
	}
	return src
}

func (c *Compiler) quote(name string) string {
	return c.d.QuoteIdentifierIfNeeded(name)
}

func (c *Compiler) column(alias, col string) string {
	return c.quote(alias) + "." + c.quote(col)
}

func (c *Compiler) columns(alias string, cols []string) []string {
	out := make([]string, len(cols))
	for i, col := range cols {
		out[i] = c.column(alias, col)
	}
	return out
}

func (c *Compiler) table(name, alias string) string {
	if name == alias {
		return c.quote(name)
	}
	return c.quote(name) + " " + c.quote(alias)
}

func (c *Compiler) selectList(src *source) string {
	items := make([]string, len(src.exprs))
	for i, expr := range src.exprs {
		items[i] = expr + " AS " + c.quote(src.aliases[i])
	}
	return strings.Join(items, ", ")
}

// writer collects positional arguments while SQL is rendered.
type writer struct {
	d    *dialect.Dialect
	args []any
}

func (w *writer) param(v any) string {
	w.args = append(w.args, v)
	return w.d.FormatPlaceholder(len(w.args))
}

func (w *writer) tupleEq(exprs []string, vals []any) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e + " = " + w.param(vals[i])
	}
	return strings.Join(parts, " AND ")
}

// in matches exprs against tuples. Multi-column tuples expand to an OR of
// AND groups. No tuples never match.
func (w *writer) in(exprs []string, tuples [][]any, negate bool) string {
	if len(tuples) == 0 {
		if negate {
			return "1 = 1"
		}
		return "1 = 0"
	}
	if len(exprs) == 1 {
		ps := make([]string, len(tuples))
		for i, t := range tuples {
			ps[i] = w.param(t[0])
		}
		op := " IN ("
		if negate {
			op = " NOT IN ("
		}
		return exprs[0] + op + strings.Join(ps, ", ") + ")"
	}
	groups := make([]string, len(tuples))
	for i, t := range tuples {
		groups[i] = "(" + w.tupleEq(exprs, t) + ")"
	}
	out := "(" + strings.Join(groups, " OR ") + ")"
	if negate {
		return "NOT " + out
	}
	return out
}

// Compile renders the SELECT of q.
func (c *Compiler) Compile(q Query) (*Statement, error) {
	return c.compile(q, false)
}

// CompileCount renders a COUNT(*) of the rows matching q. Sorting and
// pagination are ignored.
func (c *Compiler) CompileCount(q Query) (*Statement, error) {
	return c.compile(q, true)
}

func (c *Compiler) compile(q Query, count bool) (*Statement, error) {
	mm, ok := c.schema.Model(q.Model)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, q.Model)
	}
	st := &Statement{root: c.newSource(mm, mm.Table)}
	for _, name := range q.Joins {
		if st.join(name) != nil {
			continue
		}
		j, err := c.newJoin(st.root, name)
		if err != nil {
			return nil, err
		}
		st.joins = append(st.joins, j)
	}

	w := &writer{d: c.d}
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if count {
		sb.WriteString("COUNT(*)")
	} else {
		sb.WriteString(c.selectList(st.root))
		for _, j := range st.joins {
			sb.WriteString(", ")
			sb.WriteString(c.selectList(j.src))
		}
	}
	sb.WriteString(" FROM ")
	sb.WriteString(c.table(mm.Table, st.root.alias))
	for _, j := range st.joins {
		sb.WriteString(" INNER JOIN ")
		sb.WriteString(c.table(j.src.mm.Table, j.src.alias))
		sb.WriteString(" ON ")
		sb.WriteString(c.joinCondition(st.root, j))
	}

	if q.Where != nil {
		cond, always, err := c.filter(st, w, q.Where)
		if err != nil {
			return nil, err
		}
		if !always {
			sb.WriteString(" WHERE ")
			sb.WriteString(cond)
		}
	}

	if !count {
		if len(q.Sorts) > 0 {
			order, err := c.orderBy(st, q.Sorts)
			if err != nil {
				return nil, err
			}
			sb.WriteString(" ORDER BY ")
			sb.WriteString(order)
		}
		page, err := c.pagination(q.Limit, q.Offset)
		if err != nil {
			return nil, err
		}
		sb.WriteString(page)
	}

	st.SQL = sb.String()
	st.Args = w.args
	return st, nil
}

func (c *Compiler) newJoin(root *source, name string) (*join, error) {
	model := root.mm.Definition.Name
	pm, ok := root.mm.Property(name)
	switch {
	case !ok:
		return nil, entity.NewPropertyError(model, name, entity.ErrUnknownProperty)
	case !pm.IsReference():
		return nil, entity.NewPropertyError(model, name, entity.ErrNotReference)
	case pm.Property.Multiple:
		return nil, entity.NewPropertyError(model, name, entity.ErrNotSingleValued)
	case pm.Kind != schema.StorageForeignKey && pm.Kind != schema.StorageReverseForeignKey:
		return nil, entity.NewPropertyError(model, name, ErrUnsupportedJoin)
	}
	target, _ := c.schema.Model(pm.Target)
	return &join{
		property: name,
		pm:       pm,
		src:      c.newSource(target, root.alias+"_"+naming.Snake(name)),
	}, nil
}

func (c *Compiler) joinCondition(root *source, j *join) string {
	var left, right []string
	if j.pm.Kind == schema.StorageForeignKey {
		left = c.columns(j.src.alias, j.src.mm.KeyColumns)
		right = c.columns(root.alias, j.pm.Columns)
	} else {
		left = c.columns(j.src.alias, j.pm.Columns)
		right = c.columns(root.alias, root.mm.KeyColumns)
	}
	parts := make([]string, len(left))
	for i := range left {
		parts[i] = left[i] + " = " + right[i]
	}
	return strings.Join(parts, " AND ")
}

// resolve finds the source and mapping of a filter or sort property:
// "prop" on the root, or "ref.prop" on a joined reference.
func (c *Compiler) resolve(st *Statement, property string) (*source, *schema.PropertyMapping, error) {
	src, name := st.root, property
	if ref, rest, ok := strings.Cut(property, "."); ok {
		j := st.join(ref)
		if j == nil {
			model := st.root.mm.Definition.Name
			if _, exists := st.root.mm.Property(ref); !exists {
				return nil, nil, entity.NewPropertyError(model, ref, entity.ErrUnknownProperty)
			}
			return nil, nil, entity.NewPropertyError(model, ref, ErrJoinNotRequested)
		}
		src, name = j.src, rest
	}
	pm, ok := src.mm.Property(name)
	if !ok {
		return nil, nil, entity.NewPropertyError(src.mm.Definition.Name, name, entity.ErrUnknownProperty)
	}
	return src, pm, nil
}

// stored checks that pm has columns on its model table.
func stored(src *source, pm *schema.PropertyMapping) error {
	switch {
	case pm.Kind == schema.StorageColumns || pm.Kind == schema.StorageForeignKey:
		return nil
	case pm.Property.Multiple:
		return entity.NewPropertyError(src.mm.Definition.Name, pm.Property.Name, entity.ErrNotSingleValued)
	default:
		return entity.NewPropertyError(src.mm.Definition.Name, pm.Property.Name, ErrNotStored)
	}
}

// filter renders f. always reports a filter that every row satisfies,
// which renders as nothing.
func (c *Compiler) filter(st *Statement, w *writer, f Filter) (sql string, always bool, err error) {
	switch f := f.(type) {
	case Condition:
		return c.condition(st, w, f)
	case Group:
		mark := len(w.args)
		var parts []string
		for _, child := range f.Filters {
			s, all, err := c.filter(st, w, child)
			if err != nil {
				return "", false, err
			}
			if all {
				if f.Or {
					w.args = w.args[:mark]
					return "", true, nil
				}
				continue
			}
			parts = append(parts, s)
		}
		switch len(parts) {
		case 0:
			return "", true, nil
		case 1:
			return parts[0], false, nil
		}
		sep := " AND "
		if f.Or {
			sep = " OR "
		}
		return "(" + strings.Join(parts, sep) + ")", false, nil
	default:
		return "", false, fmt.Errorf("unsupported filter %T", f)
	}
}

func (c *Compiler) condition(st *Statement, w *writer, cond Condition) (string, bool, error) {
	src, pm, err := c.resolve(st, cond.Property)
	if err != nil {
		return "", false, err
	}
	if err := stored(src, pm); err != nil {
		return "", false, err
	}
	fail := func(err error) (string, bool, error) {
		return "", false, entity.NewPropertyError(src.mm.Definition.Name, pm.Property.Name, err)
	}
	exprs := c.columns(src.alias, pm.Columns)

	switch cond.Op {
	case OpIsNull:
		return nullCheck(exprs, false), false, nil
	case OpNotNull:
		return nullCheck(exprs, true), false, nil

	case OpIn, OpNotIn:
		if len(cond.Values) == 0 {
			if cond.Op == OpNotIn {
				return "", true, nil
			}
			return "1 = 0", false, nil
		}
		tuples := make([][]any, len(cond.Values))
		for i, v := range cond.Values {
			t, err := c.storage(pm, v)
			if err != nil {
				return fail(err)
			}
			tuples[i] = t
		}
		return w.in(exprs, tuples, cond.Op == OpNotIn), false, nil

	case OpEq, OpNe:
		if cond.Value == nil {
			return nullCheck(exprs, cond.Op == OpNe), false, nil
		}
		vals, err := c.storage(pm, cond.Value)
		if err != nil {
			return fail(err)
		}
		if len(exprs) == 1 {
			return exprs[0] + " " + cond.Op.String() + " " + w.param(vals[0]), false, nil
		}
		eq := "(" + w.tupleEq(exprs, vals) + ")"
		if cond.Op == OpNe {
			eq = "NOT " + eq
		}
		return eq, false, nil

	case OpGt, OpGe, OpLt, OpLe, OpLike, OpNotLike:
		if len(exprs) != 1 || pm.Kind != schema.StorageColumns {
			return fail(fmt.Errorf("%w: %s", ErrUnsupportedOperator, cond.Op))
		}
		v := cond.Value
		if cond.Op != OpLike && cond.Op != OpNotLike {
			vals, err := c.storage(pm, cond.Value)
			if err != nil {
				return fail(err)
			}
			v = vals[0]
		}
		return exprs[0] + " " + cond.Op.String() + " " + w.param(v), false, nil

	default:
		return fail(fmt.Errorf("%w: %s", ErrUnsupportedOperator, cond.Op))
	}
}

func nullCheck(exprs []string, negate bool) string {
	if len(exprs) == 1 {
		if negate {
			return exprs[0] + " IS NOT NULL"
		}
		return exprs[0] + " IS NULL"
	}
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e + " IS NULL"
	}
	out := "(" + strings.Join(parts, " AND ") + ")"
	if negate {
		return "NOT " + out
	}
	return out
}

// storage converts a filter operand into the storage values of pm's
// columns. Reference operands may be a Ref, a Key, or a bare key value.
func (c *Compiler) storage(pm *schema.PropertyMapping, v any) ([]any, error) {
	if pm.Kind == schema.StorageColumns {
		return c.types.Encode(pm.Property.Type, v)
	}
	var key entity.Key
	switch k := v.(type) {
	case entity.Ref:
		key = k.RefKey()
	case entity.Key:
		key = k
	default:
		key = entity.Key{v}
	}
	return c.EncodeKey(pm.Target, key)
}

// EncodeKey converts key values of model into storage values.
func (c *Compiler) EncodeKey(model string, key entity.Key) ([]any, error) {
	mm, ok := c.schema.Model(model)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	props := mm.Definition.PrimaryKeyProperties()
	if len(key) != len(props) {
		return nil, fmt.Errorf("key of %s has %d values, want %d", model, len(key), len(props))
	}
	out := make([]any, len(key))
	for i, p := range props {
		vals, err := c.types.Encode(p.Type, key[i])
		if err != nil {
			return nil, err
		}
		out[i] = vals[0]
	}
	return out, nil
}

// DecodeKey converts key column values of model into a key. It returns
// nil when every value is null.
func (c *Compiler) DecodeKey(model string, vals []any) (entity.Key, error) {
	mm, ok := c.schema.Model(model)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	props := mm.Definition.PrimaryKeyProperties()
	key := make(entity.Key, len(vals))
	set := false
	for i, v := range vals {
		if v == nil {
			continue
		}
		set = true
		d, err := c.types.Decode(props[i].Type, []any{v})
		if err != nil {
			return nil, err
		}
		key[i] = d
	}
	if !set {
		return nil, nil
	}
	return key, nil
}

func (c *Compiler) orderBy(st *Statement, sorts []Sort) (string, error) {
	var items []string
	for _, s := range sorts {
		src, pm, err := c.resolve(st, s.Property)
		if err != nil {
			return "", err
		}
		if err := stored(src, pm); err != nil {
			return "", err
		}
		dir := " ASC"
		if s.Desc {
			dir = " DESC"
		}
		for _, expr := range c.columns(src.alias, pm.Columns) {
			items = append(items, expr+dir)
		}
	}
	return strings.Join(items, ", "), nil
}

func (c *Compiler) pagination(limit, offset *int) (string, error) {
	if (limit != nil && *limit < 0) || (offset != nil && *offset < 0) {
		return "", ErrNegativePagination
	}
	var sb strings.Builder
	switch {
	case limit != nil:
		sb.WriteString(" LIMIT " + strconv.Itoa(*limit))
	case offset != nil && c.d.OffsetRequiresLimit:
		sb.WriteString(" LIMIT -1")
	}
	if offset != nil {
		sb.WriteString(" OFFSET " + strconv.Itoa(*offset))
	}
	return sb.String(), nil
}

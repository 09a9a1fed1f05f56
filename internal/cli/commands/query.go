package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leaporm/pkg/datatype"
	"github.com/leapstack-labs/leaporm/pkg/entity"
	"github.com/leapstack-labs/leaporm/pkg/query"
	"github.com/leapstack-labs/leaporm/pkg/schema"
	"github.com/spf13/cobra"
)

// comparison operators in match order; two-character operators first
var operators = []struct {
	token string
	build func(property string, v any) query.Condition
}{
	{"!=", query.Ne},
	{">=", query.Ge},
	{"<=", query.Le},
	{"=", query.Eq},
	{">", query.Gt},
	{"<", query.Lt},
}

type queryOptions struct {
	where  []string
	like   []string
	sort   []string
	joins  []string
	limit  int
	offset int
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query MODEL",
		Short: "Read entities of a model from the target database",
		Long: `Query the stored entities of one model. Filters are combined with AND.

A --where filter has the form property<op>value where <op> is one of
=, !=, >, >=, < or <=. The value "null" with = or != tests for NULL.
A property of a joined reference is written as reference.property.`,
		Example: `  # All books
  leaporm query Book

  # Filter, sort and page
  leaporm query Book --where year>=2000 --like title=%Go% --sort year:desc --limit 10

  # Filter on a joined reference
  leaporm query Book --join author --where author.name=Ada`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := syncFirst(cmd, cc); err != nil {
				return err
			}
			svc, err := cc.Engine.Service(cmd.Context())
			if err != nil {
				return err
			}
			mm, ok := svc.Engine().Schema().Model(args[0])
			if !ok {
				return fmt.Errorf("model %q not found", args[0])
			}
			q, err := buildQuery(mm, opts)
			if err != nil {
				return err
			}
			rows, err := svc.Engine().Find(cmd.Context(), q)
			if err != nil {
				return err
			}
			return renderEntities(cc.Renderer, mm, rows)
		},
	}

	f := cmd.Flags()
	f.StringArrayVar(&opts.where, "where", nil, "Filter as property<op>value (repeatable)")
	f.StringArrayVar(&opts.like, "like", nil, "LIKE filter as property=pattern (repeatable)")
	f.StringArrayVar(&opts.sort, "sort", nil, "Sort by property, append :desc for descending (repeatable)")
	f.StringSliceVar(&opts.joins, "join", nil, "Join single-valued references in the same statement")
	f.IntVar(&opts.limit, "limit", 0, "Maximum number of rows (0 for no limit)")
	f.IntVar(&opts.offset, "offset", 0, "Rows to skip")
	return cmd
}

// buildQuery turns command-line options into a query on mm's model.
func buildQuery(mm *schema.ModelMapping, opts *queryOptions) (query.Query, error) {
	b := query.From(mm.Definition.Name)
	if len(opts.joins) > 0 {
		b.Join(opts.joins...)
	}

	for _, expr := range opts.where {
		cond, err := parseWhere(mm, expr)
		if err != nil {
			return query.Query{}, err
		}
		b.Where(cond)
	}
	for _, expr := range opts.like {
		prop, pattern, ok := strings.Cut(expr, "=")
		if !ok || prop == "" {
			return query.Query{}, fmt.Errorf("invalid --like %q: expected property=pattern", expr)
		}
		b.Where(query.Like(strings.TrimSpace(prop), pattern))
	}
	for _, expr := range opts.sort {
		prop, dir, _ := strings.Cut(expr, ":")
		switch strings.ToLower(dir) {
		case "", "asc":
			b.OrderBy(prop)
		case "desc":
			b.OrderByDesc(prop)
		default:
			return query.Query{}, fmt.Errorf("invalid sort direction %q in %q", dir, expr)
		}
	}

	if opts.limit < 0 || opts.offset < 0 {
		return query.Query{}, fmt.Errorf("limit and offset must not be negative")
	}
	if opts.limit > 0 {
		b.Limit(opts.limit)
	}
	if opts.offset > 0 {
		b.Offset(opts.offset)
	}
	return b.Build(), nil
}

func parseWhere(mm *schema.ModelMapping, expr string) (query.Condition, error) {
	for _, op := range operators {
		i := strings.Index(expr, op.token)
		if i <= 0 {
			continue
		}
		prop := strings.TrimSpace(expr[:i])
		raw := strings.TrimSpace(expr[i+len(op.token):])

		if strings.EqualFold(raw, "null") {
			switch op.token {
			case "=":
				return query.IsNull(prop), nil
			case "!=":
				return query.NotNull(prop), nil
			}
		}
		return op.build(prop, coerce(mm, prop, raw)), nil
	}
	return query.Condition{}, fmt.Errorf("invalid --where %q: expected property<op>value", expr)
}

// coerce converts a boolean literal for boolean properties. Other values
// stay strings; the type mappers parse them.
func coerce(mm *schema.ModelMapping, prop, raw string) any {
	if strings.Contains(prop, ".") {
		return raw
	}
	pm, ok := mm.Property(prop)
	if !ok || pm.Property.Type != datatype.Boolean {
		return raw
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}

func renderEntities(r *Renderer, mm *schema.ModelMapping, rows []*entity.Entity) error {
	props := mm.ColumnProperties()

	if r.EffectiveMode() == ModeJSON {
		out := make([]map[string]any, 0, len(rows))
		for _, e := range rows {
			m := make(map[string]any, len(props))
			for _, pm := range props {
				m[pm.Property.Name] = displayValue(e, pm.Property.Name)
			}
			out = append(out, m)
		}
		return r.JSON(out)
	}

	header := make([]string, len(props))
	for i, pm := range props {
		header[i] = pm.Property.Name
	}
	table := make([][]any, 0, len(rows))
	for _, e := range rows {
		row := make([]any, len(props))
		for i, pm := range props {
			row[i] = displayValue(e, pm.Property.Name)
		}
		table = append(table, row)
	}
	r.Table(header, table)
	r.Printf("(%d rows)\n", len(rows))
	return nil
}

func displayValue(e *entity.Entity, name string) any {
	v, ok := e.Value(name)
	if !ok {
		return nil
	}
	switch x := v.(type) {
	case entity.Scalar:
		return x.V
	case entity.MultiValue:
		return x.Values
	case entity.Reference:
		if x.Ref == nil {
			return nil
		}
		return keyString(x.Ref.RefKey())
	case entity.References:
		keys := make([]string, len(x.Refs))
		for i, ref := range x.Refs {
			keys[i] = keyString(ref.RefKey())
		}
		return keys
	default:
		return nil
	}
}

func keyString(k entity.Key) string {
	parts := make([]string, len(k))
	for i, v := range k {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "/")
}

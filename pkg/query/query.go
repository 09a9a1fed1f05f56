// Package query compiles structured reads into SQL, runs them, and
// hydrates the rows into entities whose references load lazily in batches.
package query

// Sort orders results by one property.
type Sort struct {
	Property string
	Desc     bool
}

// Query describes a read of one model. Build it with From; a built query
// is not modified by the engine.
type Query struct {
	Model  string
	Joins  []string
	Where  Filter
	Sorts  []Sort
	Limit  *int
	Offset *int
}

// Builder assembles a Query.
type Builder struct {
	q       Query
	filters []Filter
}

// From starts a query on model.
func From(model string) *Builder {
	return &Builder{q: Query{Model: model}}
}

// Join requests the target of a single-valued reference in the same
// statement. Joined targets are hydrated and attached as loaded.
func (b *Builder) Join(properties ...string) *Builder {
	b.q.Joins = append(b.q.Joins, properties...)
	return b
}

// Where adds filters, combined with AND with those already added.
func (b *Builder) Where(filters ...Filter) *Builder {
	b.filters = append(b.filters, filters...)
	return b
}

// OrderBy adds an ascending sort key.
func (b *Builder) OrderBy(property string) *Builder {
	b.q.Sorts = append(b.q.Sorts, Sort{Property: property})
	return b
}

// OrderByDesc adds a descending sort key.
func (b *Builder) OrderByDesc(property string) *Builder {
	b.q.Sorts = append(b.q.Sorts, Sort{Property: property, Desc: true})
	return b
}

// Limit caps the number of rows.
func (b *Builder) Limit(n int) *Builder {
	b.q.Limit = &n
	return b
}

// Offset skips rows.
func (b *Builder) Offset(n int) *Builder {
	b.q.Offset = &n
	return b
}

// Build returns the query. Later builder calls do not affect it.
func (b *Builder) Build() Query {
	q := b.q
	q.Joins = append([]string(nil), b.q.Joins...)
	q.Sorts = append([]Sort(nil), b.q.Sorts...)
	switch len(b.filters) {
	case 0:
	case 1:
		q.Where = b.filters[0]
	default:
		q.Where = And(append([]Filter(nil), b.filters...)...)
	}
	if b.q.Limit != nil {
		n := *b.q.Limit
		q.Limit = &n
	}
	if b.q.Offset != nil {
		n := *b.q.Offset
		q.Offset = &n
	}
	return q
}

package query

import (
	"testing"

	"github.com/leapstack-labs/leaporm/internal/testutil"
	"github.com/leapstack-labs/leaporm/pkg/datatype"
	"github.com/leapstack-labs/leaporm/pkg/dialect"
	"github.com/leapstack-labs/leaporm/pkg/entity"
	"github.com/leapstack-labs/leaporm/pkg/model"
	"github.com/leapstack-labs/leaporm/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func library() map[string]any {
	return map[string]any{
		"Country": map[string]any{"properties": map[string]any{
			"@id":  "integer+",
			"name": "string(100)!",
		}},
		"Author": map[string]any{"properties": map[string]any{
			"@id":     "integer+",
			"name":    "string(100)!",
			"country": "#Country",
			"aliases": "string[](40)",
		}},
		"Tag": map[string]any{"properties": map[string]any{
			"@id":  "integer+",
			"name": "string(50)!",
		}},
		"Book": map[string]any{"properties": map[string]any{
			"@id":     "integer+",
			"title":   "string(200)!",
			"year":    "integer",
			"author":  "#Author.books",
			"tags":    "#Tag[]",
			"country": "#Country(Author->country)",
		}},
		"Passport": map[string]any{"properties": map[string]any{
			"@id":    "integer+",
			"number": "string(20)",
			"holder": "#Holder.passport",
		}},
		"Holder": map[string]any{"properties": map[string]any{
			"@id":      "integer+",
			"name":     "string(100)",
			"passport": "#Passport.holder",
		}},
		"Customer": map[string]any{"properties": map[string]any{
			"@id":      "integer+",
			"fullName": "name",
		}},
	}
}

func planLibrary(t *testing.T) *schema.Schema {
	t.Helper()
	types := datatype.NewRegistry()
	logger := testutil.NewTestLogger(t)
	defs, err := model.NewCompiler(types, nil, logger).Compile(library())
	require.NoError(t, err)
	s, err := schema.NewPlanner(types, logger).Plan(defs)
	require.NoError(t, err)
	return s
}

func newTestCompiler(t *testing.T, d *dialect.Dialect) *Compiler {
	t.Helper()
	return NewCompiler(planLibrary(t), d, datatype.NewRegistry())
}

const bookColumns = "books.id AS books__id, books.author_id AS books__author_id, " +
	"books.title AS books__title, books.year AS books__year"

func TestCompile(t *testing.T) {
	tests := []struct {
		name     string
		query    Query
		wantSQL  string
		wantArgs []any
	}{
		{
			name:    "all rows",
			query:   From("Book").Build(),
			wantSQL: "SELECT " + bookColumns + " FROM books",
		},
		{
			name:     "like sorted and limited",
			query:    From("Book").Where(Like("title", "%Go%")).OrderBy("title").Limit(10).Build(),
			wantSQL:  "SELECT " + bookColumns + " FROM books WHERE books.title LIKE ? ORDER BY books.title ASC LIMIT 10",
			wantArgs: []any{"%Go%"},
		},
		{
			name:     "filters are anded",
			query:    From("Book").Where(Eq("title", "Dune"), Ge("year", 1965)).Build(),
			wantSQL:  "SELECT " + bookColumns + " FROM books WHERE (books.title = ? AND books.year >= ?)",
			wantArgs: []any{"Dune", int64(1965)},
		},
		{
			name:     "or group",
			query:    From("Book").Where(Or(Lt("year", 1900), IsNull("year"))).Build(),
			wantSQL:  "SELECT " + bookColumns + " FROM books WHERE (books.year < ? OR books.year IS NULL)",
			wantArgs: []any{int64(1900)},
		},
		{
			name:     "in",
			query:    From("Book").Where(In("id", 1, 2)).Build(),
			wantSQL:  "SELECT " + bookColumns + " FROM books WHERE books.id IN (?, ?)",
			wantArgs: []any{int64(1), int64(2)},
		},
		{
			name:    "empty in matches nothing",
			query:   From("Book").Where(In("id")).Build(),
			wantSQL: "SELECT " + bookColumns + " FROM books WHERE 1 = 0",
		},
		{
			name:    "empty not in matches everything",
			query:   From("Book").Where(NotIn("id")).Build(),
			wantSQL: "SELECT " + bookColumns + " FROM books",
		},
		{
			name:    "or with a vacuous branch drops its arguments",
			query:   From("Book").Where(Or(Eq("title", "Dune"), NotIn("id"))).Build(),
			wantSQL: "SELECT " + bookColumns + " FROM books",
		},
		{
			name:     "and skips a vacuous branch",
			query:    From("Book").Where(And(NotIn("id"), Eq("title", "Dune"))).Build(),
			wantSQL:  "SELECT " + bookColumns + " FROM books WHERE books.title = ?",
			wantArgs: []any{"Dune"},
		},
		{
			name:     "reference by key",
			query:    From("Book").Where(Eq("author", 3)).Build(),
			wantSQL:  "SELECT " + bookColumns + " FROM books WHERE books.author_id = ?",
			wantArgs: []any{int64(3)},
		},
		{
			name:     "reference by entity reference",
			query:    From("Book").Where(Ne("author", entity.EntityReference{Model: "Author", Key: entity.Key{7}})).Build(),
			wantSQL:  "SELECT " + bookColumns + " FROM books WHERE books.author_id <> ?",
			wantArgs: []any{int64(7)},
		},
		{
			name:    "null reference",
			query:   From("Book").Where(Eq("author", nil)).Build(),
			wantSQL: "SELECT " + bookColumns + " FROM books WHERE books.author_id IS NULL",
		},
		{
			name:    "sorts keep their order",
			query:   From("Book").OrderByDesc("year").OrderBy("title").Build(),
			wantSQL: "SELECT " + bookColumns + " FROM books ORDER BY books.year DESC, books.title ASC",
		},
		{
			name:    "offset without limit",
			query:   From("Book").Offset(20).Build(),
			wantSQL: "SELECT " + bookColumns + " FROM books LIMIT -1 OFFSET 20",
		},
		{
			name:     "compound equality",
			query:    From("Customer").Where(Eq("fullName", datatype.Name{First: "Ada", Last: "Lovelace"})).Build(),
			wantSQL:  "SELECT customers.id AS customers__id, customers.full_name_first AS customers__full_name__first, customers.full_name_last AS customers__full_name__last FROM customers WHERE (customers.full_name_first = ? AND customers.full_name_last = ?)",
			wantArgs: []any{"Ada", "Lovelace"},
		},
		{
			name:    "compound null check",
			query:   From("Customer").Where(NotNull("fullName")).Build(),
			wantSQL: "SELECT customers.id AS customers__id, customers.full_name_first AS customers__full_name__first, customers.full_name_last AS customers__full_name__last FROM customers WHERE NOT (customers.full_name_first IS NULL AND customers.full_name_last IS NULL)",
		},
	}

	c := newTestCompiler(t, dialect.SQLite)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := c.Compile(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, st.SQL)
			if tt.wantArgs == nil {
				assert.Empty(t, st.Args)
			} else {
				assert.Equal(t, tt.wantArgs, st.Args)
			}
		})
	}
}

func TestCompile_PostgresPlaceholders(t *testing.T) {
	c := newTestCompiler(t, dialect.Postgres)

	st, err := c.Compile(From("Book").
		Where(Eq("title", "Dune"), In("year", 1965, 1966)).
		Offset(5).
		Build())
	require.NoError(t, err)

	assert.Equal(t, "SELECT "+bookColumns+" FROM books WHERE (books.title = $1 AND books.year IN ($2, $3)) OFFSET 5", st.SQL)
	assert.Equal(t, []any{"Dune", int64(1965), int64(1966)}, st.Args)
}

func TestCompile_Joins(t *testing.T) {
	c := newTestCompiler(t, dialect.SQLite)

	t.Run("foreign key", func(t *testing.T) {
		st, err := c.Compile(From("Book").Join("author").Where(Eq("author.name", "Ann")).OrderBy("author.name").Build())
		require.NoError(t, err)
		assert.Equal(t, "SELECT "+bookColumns+", books_author.id AS books_author__id, "+
			"books_author.country_id AS books_author__country_id, books_author.name AS books_author__name "+
			"FROM books INNER JOIN authors books_author ON books_author.id = books.author_id "+
			"WHERE books_author.name = ? ORDER BY books_author.name ASC", st.SQL)
		assert.Equal(t, []any{"Ann"}, st.Args)
		assert.Equal(t, []string{
			"books__id", "books__author_id", "books__title", "books__year",
			"books_author__id", "books_author__country_id", "books_author__name",
		}, st.Columns())
	})

	t.Run("reverse foreign key", func(t *testing.T) {
		st, err := c.Compile(From("Passport").Join("holder").Build())
		require.NoError(t, err)
		assert.Equal(t, "SELECT passports.id AS passports__id, passports.number AS passports__number, "+
			"passports_holder.id AS passports_holder__id, passports_holder.name AS passports_holder__name, "+
			"passports_holder.passport_id AS passports_holder__passport_id "+
			"FROM passports INNER JOIN holders passports_holder ON passports_holder.passport_id = passports.id", st.SQL)
	})

	t.Run("duplicate joins collapse", func(t *testing.T) {
		st, err := c.Compile(From("Book").Join("author", "author").Build())
		require.NoError(t, err)
		assert.Len(t, st.joins, 1)
	})
}

func TestCompileCount(t *testing.T) {
	c := newTestCompiler(t, dialect.SQLite)

	st, err := c.CompileCount(From("Book").Where(Like("title", "%Go%")).OrderBy("title").Limit(3).Build())
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM books WHERE books.title LIKE ?", st.SQL)
	assert.Equal(t, []any{"%Go%"}, st.Args)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name     string
		query    Query
		wantErr  error
		property string
	}{
		{name: "unknown model", query: From("Nope").Build(), wantErr: ErrUnknownModel},
		{name: "negative limit", query: From("Book").Limit(-1).Build(), wantErr: ErrNegativePagination},
		{name: "negative offset", query: From("Book").Offset(-3).Build(), wantErr: ErrNegativePagination},
		{name: "unknown property", query: From("Book").Where(Eq("isbn", "x")).Build(), wantErr: entity.ErrUnknownProperty, property: "isbn"},
		{name: "unjoined reference", query: From("Book").Where(Eq("author.name", "Ann")).Build(), wantErr: ErrJoinNotRequested, property: "author"},
		{name: "unknown joined property", query: From("Book").Join("author").OrderBy("author.age").Build(), wantErr: entity.ErrUnknownProperty, property: "age"},
		{name: "join multi-valued", query: From("Book").Join("tags").Build(), wantErr: entity.ErrNotSingleValued, property: "tags"},
		{name: "join scalar", query: From("Book").Join("title").Build(), wantErr: entity.ErrNotReference, property: "title"},
		{name: "join path", query: From("Book").Join("country").Build(), wantErr: ErrUnsupportedJoin, property: "country"},
		{name: "filter multi-valued", query: From("Book").Where(Eq("tags", 1)).Build(), wantErr: entity.ErrNotSingleValued, property: "tags"},
		{name: "filter path", query: From("Book").Where(Eq("country", 1)).Build(), wantErr: ErrNotStored, property: "country"},
		{name: "range on reference", query: From("Book").Where(Gt("author", 1)).Build(), wantErr: ErrUnsupportedOperator, property: "author"},
		{name: "like on compound", query: From("Customer").Where(Like("fullName", "A%")).Build(), wantErr: ErrUnsupportedOperator, property: "fullName"},
		{name: "sort side table", query: From("Author").OrderBy("aliases").Build(), wantErr: entity.ErrNotSingleValued, property: "aliases"},
	}

	c := newTestCompiler(t, dialect.SQLite)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Compile(tt.query)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.property != "" {
				var perr *entity.PropertyError
				require.ErrorAs(t, err, &perr)
				assert.Equal(t, tt.property, perr.Property)
			}
		})
	}
}

func TestBuilder_BuildIsIndependent(t *testing.T) {
	b := From("Book").Where(Eq("title", "Dune")).OrderBy("title").Limit(5)
	q := b.Build()

	b.Where(Eq("year", 1965)).OrderBy("year").Limit(1)

	assert.Equal(t, Eq("title", "Dune"), q.Where)
	assert.Equal(t, []Sort{{Property: "title"}}, q.Sorts)
	require.NotNil(t, q.Limit)
	assert.Equal(t, 5, *q.Limit)
}

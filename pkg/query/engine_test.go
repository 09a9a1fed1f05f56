package query

import (
	"context"
	"database/sql"
	"testing"

	"github.com/leapstack-labs/leaporm/internal/testutil"
	"github.com/leapstack-labs/leaporm/pkg/adapter"
	"github.com/leapstack-labs/leaporm/pkg/adapters/sqlite"
	"github.com/leapstack-labs/leaporm/pkg/datatype"
	"github.com/leapstack-labs/leaporm/pkg/entity"
	"github.com/leapstack-labs/leaporm/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingQuerier records every statement sent to the database.
type countingQuerier struct {
	Querier
	queries []string
}

func (c *countingQuerier) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	c.queries = append(c.queries, query)
	return c.Querier.Query(ctx, query, args...)
}

func (c *countingQuerier) reset() { c.queries = nil }

var librarySeed = []string{
	"INSERT INTO countries (id, name) VALUES (1, 'Norway'), (2, 'Chile')",
	"INSERT INTO authors (id, name, country_id) VALUES (1, 'Ann', 1), (2, 'Bo', 2), (3, 'Cy', NULL)",
	`INSERT INTO authors_aliases (author_id, "position", aliases) VALUES (1, 0, 'A.'), (1, 1, 'Annie'), (2, 0, 'B')`,
	"INSERT INTO books (id, author_id, title, year) VALUES " +
		"(1, 1, 'Go in Action', 2015), (2, 1, 'Learning Go', 2021), (3, 2, 'Dune', 1965), (4, NULL, 'Anon', NULL)",
	"INSERT INTO tags (id, name) VALUES (1, 'go'), (2, 'scifi')",
	"INSERT INTO books_tags (book_id, tag_id) VALUES (1, 1), (2, 1), (3, 2)",
	"INSERT INTO passports (id, number) VALUES (1, 'N1'), (2, 'N2')",
	"INSERT INTO holders (id, name, passport_id) VALUES (1, 'Hal', 1)",
}

func openLibrary(t *testing.T) (*Engine, *countingQuerier) {
	t.Helper()
	ctx := context.Background()
	logger := testutil.NewTestLogger(t)

	a := sqlite.New(logger)
	require.NoError(t, a.Connect(ctx, adapter.Config{Type: "sqlite"}))
	t.Cleanup(func() { _ = a.Close() })

	s := planLibrary(t)
	_, err := schema.NewMigrator(a, nil, logger).Migrate(ctx, s, schema.MigrateOptions{})
	require.NoError(t, err)
	for _, stmt := range librarySeed {
		require.NoError(t, a.Exec(ctx, stmt))
	}

	db := &countingQuerier{Querier: a}
	return NewEngine(db, s, datatype.NewRegistry(), logger), db
}

func stringValues(t *testing.T, ents []*entity.Entity, property string) []any {
	t.Helper()
	out := make([]any, len(ents))
	for i, e := range ents {
		v, err := e.Get(property)
		require.NoError(t, err)
		out[i] = v
	}
	return out
}

func TestEngine_Find(t *testing.T) {
	ctx := context.Background()
	e, db := openLibrary(t)

	books, err := e.Find(ctx, From("Book").Where(Like("title", "%Go%")).OrderBy("title").Limit(10).Build())
	require.NoError(t, err)
	require.Len(t, db.queries, 1)
	assert.Equal(t, []any{"Go in Action", "Learning Go"}, stringValues(t, books, "title"))
	assert.Equal(t, []any{int64(2015), int64(2021)}, stringValues(t, books, "year"))

	book := books[0]
	assert.False(t, book.IsNew())
	assert.False(t, book.IsDirty())
	assert.Equal(t, entity.Key{int64(1)}, book.Key())

	assert.False(t, book.IsLoaded("author"), "references stay lazy")
	ref, err := book.Ref("author")
	require.NoError(t, err)
	assert.Equal(t, entity.EntityReference{Model: "Author", Key: entity.Key{int64(1)}}, ref)
	_, err = book.Related("author")
	assert.ErrorIs(t, err, entity.ErrNotLoaded)

	t.Run("null scalar", func(t *testing.T) {
		anon, err := e.First(ctx, From("Book").Where(Eq("title", "Anon")).Build())
		require.NoError(t, err)
		year, err := anon.Get("year")
		require.NoError(t, err)
		assert.Nil(t, year)
	})

	t.Run("empty in", func(t *testing.T) {
		found, err := e.Find(ctx, From("Book").Where(In("id")).Build())
		require.NoError(t, err)
		assert.Empty(t, found)

		all, err := e.Find(ctx, From("Book").Where(NotIn("id")).Build())
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})

	t.Run("offset", func(t *testing.T) {
		found, err := e.Find(ctx, From("Book").OrderBy("id").Offset(3).Build())
		require.NoError(t, err)
		assert.Equal(t, []any{"Anon"}, stringValues(t, found, "title"))
	})
}

func TestEngine_FirstAndCount(t *testing.T) {
	ctx := context.Background()
	e, _ := openLibrary(t)

	dune, err := e.First(ctx, From("Book").Where(Eq("year", 1965)).Build())
	require.NoError(t, err)
	title, _ := dune.Get("title")
	assert.Equal(t, "Dune", title)

	_, err = e.First(ctx, From("Book").Where(Eq("year", 1800)).Build())
	assert.ErrorIs(t, err, ErrNoRows)

	n, err := e.Count(ctx, From("Book").Where(Like("title", "%Go%")).Build())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = e.Count(ctx, From("Book").Where(In("id")).Build())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEngine_FindWithJoin(t *testing.T) {
	ctx := context.Background()
	e, db := openLibrary(t)

	books, err := e.Find(ctx, From("Book").Join("author").Where(Eq("author.name", "Ann")).OrderBy("id").Build())
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Len(t, db.queries, 1)

	first, err := books[0].Related("author")
	require.NoError(t, err)
	second, err := books[1].Related("author")
	require.NoError(t, err)
	assert.Same(t, first, second, "one entity per key")
	name, _ := first.Get("name")
	assert.Equal(t, "Ann", name)

	t.Run("reverse one-to-one links back", func(t *testing.T) {
		passports, err := e.Find(ctx, From("Passport").Join("holder").Build())
		require.NoError(t, err)
		require.Len(t, passports, 1, "inner join drops passports without a holder")

		holder, err := passports[0].Related("holder")
		require.NoError(t, err)
		back, err := holder.Related("passport")
		require.NoError(t, err)
		assert.Same(t, passports[0], back)
	})
}

func TestEngine_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("foreign key", func(t *testing.T) {
		e, db := openLibrary(t)
		books, err := e.Find(ctx, From("Book").OrderBy("id").Build())
		require.NoError(t, err)
		db.reset()

		require.NoError(t, e.Load(ctx, books, "author"))
		assert.Len(t, db.queries, 1)

		ann, err := books[0].Related("author")
		require.NoError(t, err)
		name, _ := ann.Get("name")
		assert.Equal(t, "Ann", name)
		again, _ := books[1].Related("author")
		assert.Same(t, ann, again)

		none, err := books[3].Related("author")
		require.NoError(t, err)
		assert.Nil(t, none)

		db.reset()
		require.NoError(t, e.Load(ctx, books, "author"))
		assert.Empty(t, db.queries, "loaded properties are not fetched again")
	})

	t.Run("reverse foreign key", func(t *testing.T) {
		e, db := openLibrary(t)
		authors, err := e.Find(ctx, From("Author").OrderBy("id").Build())
		require.NoError(t, err)
		db.reset()

		require.NoError(t, e.Load(ctx, authors, "books"))
		assert.Len(t, db.queries, 1)

		books, err := authors[0].RelatedAll("books")
		require.NoError(t, err)
		assert.Equal(t, []any{"Go in Action", "Learning Go"}, stringValues(t, books, "title"))

		back, err := books[0].Related("author")
		require.NoError(t, err)
		assert.Same(t, authors[0], back)

		none, err := authors[2].RelatedAll("books")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("association", func(t *testing.T) {
		e, db := openLibrary(t)
		books, err := e.Find(ctx, From("Book").OrderBy("id").Build())
		require.NoError(t, err)
		db.reset()

		require.NoError(t, e.Load(ctx, books, "tags"))
		assert.Len(t, db.queries, 1)

		first, err := books[0].RelatedAll("tags")
		require.NoError(t, err)
		second, err := books[1].RelatedAll("tags")
		require.NoError(t, err)
		third, err := books[2].RelatedAll("tags")
		require.NoError(t, err)
		require.Len(t, first, 1)
		require.Len(t, second, 1)
		assert.Same(t, first[0], second[0])
		assert.Equal(t, []any{"scifi"}, stringValues(t, third, "name"))

		none, err := books[3].RelatedAll("tags")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("side table", func(t *testing.T) {
		e, db := openLibrary(t)
		authors, err := e.Find(ctx, From("Author").OrderBy("id").Build())
		require.NoError(t, err)
		_, err = authors[0].Values("aliases")
		assert.ErrorIs(t, err, entity.ErrNotLoaded)
		db.reset()

		require.NoError(t, e.Load(ctx, authors, "aliases"))
		assert.Len(t, db.queries, 1)

		aliases, err := authors[0].Values("aliases")
		require.NoError(t, err)
		assert.Equal(t, []any{"A.", "Annie"}, aliases)

		aliases, err = authors[2].Values("aliases")
		require.NoError(t, err)
		assert.Empty(t, aliases)
	})

	t.Run("path", func(t *testing.T) {
		e, db := openLibrary(t)
		books, err := e.Find(ctx, From("Book").OrderBy("id").Build())
		require.NoError(t, err)
		db.reset()

		require.NoError(t, e.Load(ctx, books, "country"))
		assert.Len(t, db.queries, 1)

		norway, err := books[0].Related("country")
		require.NoError(t, err)
		name, _ := norway.Get("name")
		assert.Equal(t, "Norway", name)

		chile, err := books[2].Related("country")
		require.NoError(t, err)
		name, _ = chile.Get("name")
		assert.Equal(t, "Chile", name)

		none, err := books[3].Related("country")
		require.NoError(t, err)
		assert.Nil(t, none)
	})

	t.Run("nothing pending", func(t *testing.T) {
		e, db := openLibrary(t)
		fresh := entity.New(e.Schema().Models()[0].Definition)

		require.NoError(t, e.Load(ctx, nil, "books"))
		require.NoError(t, e.Load(ctx, []*entity.Entity{fresh}, fresh.Definition().PrimaryKey[0]))
		assert.Empty(t, db.queries)
	})

	t.Run("mixed models", func(t *testing.T) {
		e, _ := openLibrary(t)
		authors, err := e.Find(ctx, From("Author").Limit(1).Build())
		require.NoError(t, err)
		books, err := e.Find(ctx, From("Book").Limit(1).Build())
		require.NoError(t, err)

		err = e.Load(ctx, append(authors, books...), "books")
		assert.ErrorIs(t, err, ErrMixedModels)
	})

	t.Run("unknown property", func(t *testing.T) {
		e, _ := openLibrary(t)
		books, err := e.Find(ctx, From("Book").Limit(1).Build())
		require.NoError(t, err)

		err = e.Load(ctx, books, "publisher")
		assert.ErrorIs(t, err, entity.ErrUnknownProperty)
	})
}

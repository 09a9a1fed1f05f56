package schema

import (
	"testing"

	"github.com/leapstack-labs/leaporm/pkg/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func liveBooks() map[string]*adapter.TableInfo {
	return map[string]*adapter.TableInfo{
		"authors": {
			Name: "authors",
			Columns: []adapter.ColumnInfo{
				{Name: "id", Type: "INTEGER"},
				{Name: "name", Type: "VARCHAR(100)"},
			},
		},
		"books": {
			Name: "books",
			Columns: []adapter.ColumnInfo{
				{Name: "id", Type: "INTEGER"},
				{Name: "author_id", Type: "INTEGER", Nullable: true},
				{Name: "title", Type: "VARCHAR(200)"},
			},
			Indexes: []adapter.IndexInfo{{Name: "idx_books_author_id", Columns: []string{"author_id"}}},
			ForeignKeys: []adapter.ForeignKeyInfo{
				{Name: "fk_books_0", Columns: []string{"author_id"}, RefTable: "authors", RefColumns: []string{"id"}},
			},
		},
	}
}

func changeStrings(changes []Change) []string {
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.String()
	}
	return out
}

func TestDiff(t *testing.T) {
	s := planModels(t, authorBook())

	tests := []struct {
		name string
		live func() map[string]*adapter.TableInfo
		want []string
	}{
		{
			name: "empty database",
			live: func() map[string]*adapter.TableInfo { return nil },
			want: []string{
				"create table authors",
				"create table books",
				"create index idx_books_author_id on books",
			},
		},
		{
			name: "in sync",
			live: liveBooks,
			want: []string{},
		},
		{
			name: "case-insensitive names",
			live: func() map[string]*adapter.TableInfo {
				live := liveBooks()
				books := live["books"]
				books.Name = "BOOKS"
				books.Columns[2].Name = "Title"
				delete(live, "books")
				live["BOOKS"] = books
				return live
			},
			want: []string{},
		},
		{
			name: "missing column index and key",
			live: func() map[string]*adapter.TableInfo {
				live := liveBooks()
				books := live["books"]
				books.Columns = books.Columns[:1]
				books.Columns = append(books.Columns, adapter.ColumnInfo{Name: "title"})
				books.Indexes = nil
				books.ForeignKeys = nil
				return live
			},
			want: []string{
				"add column books.author_id",
				"create index idx_books_author_id on books",
				"add foreign key fk_books_author_id on books",
			},
		},
		{
			name: "live extras are drops",
			live: func() map[string]*adapter.TableInfo {
				live := liveBooks()
				books := live["books"]
				books.Columns = append(books.Columns, adapter.ColumnInfo{Name: "legacy_code"})
				books.Indexes = append(books.Indexes, adapter.IndexInfo{Name: "idx_books_legacy", Columns: []string{"legacy_code"}})
				books.ForeignKeys = append(books.ForeignKeys, adapter.ForeignKeyInfo{Name: "fk_books_1", Columns: []string{"legacy_code"}, RefTable: "codes"})
				live["audit_log"] = &adapter.TableInfo{Name: "audit_log"}
				return live
			},
			want: []string{
				"drop column legacy_code on books",
				"drop index idx_books_legacy on books",
				"drop foreign key fk_books_1 on books",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := changeStrings(Diff(s, tt.live()))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiff_NewTableCarriesDefinition(t *testing.T) {
	s := planModels(t, authorBook())
	changes := Diff(s, nil)
	require.NotEmpty(t, changes)

	books, _ := s.Table("books")
	assert.Equal(t, CreateTable, changes[1].Kind)
	assert.Same(t, books, changes[1].TableDef)
}

func TestChangeKind_Destructive(t *testing.T) {
	for _, k := range []ChangeKind{CreateTable, AddColumn, CreateIndex, AddForeignKey} {
		assert.False(t, k.Destructive(), k.String())
	}
	for _, k := range []ChangeKind{DropColumn, DropIndex, DropForeignKey} {
		assert.True(t, k.Destructive(), k.String())
	}
}

package entity

import (
	"testing"

	"github.com/leapstack-labs/leaporm/pkg/datatype"
	"github.com/leapstack-labs/leaporm/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bookDef(t *testing.T) *model.Definition {
	t.Helper()
	def := model.NewDefinition("Book")
	def.PrimaryKey = []string{"id"}
	props := []*model.Property{
		{Name: "id", Type: datatype.Integer, PrimaryKey: true, Generation: model.GenerationAuto},
		{Name: "title", Type: datatype.String},
		{Name: "isbn", Type: datatype.String, ReadOnly: true},
		{Name: "notes", Type: datatype.Text, Multiple: true},
		{Name: "author", Type: datatype.Virtual, Reference: &model.Reference{Target: "Author", Reverse: "books"}},
		{Name: "tags", Type: datatype.Virtual, Multiple: true, Reference: &model.Reference{Target: "Tag"}},
	}
	for _, p := range props {
		require.NoError(t, def.AddProperty(p))
	}
	return def
}

func TestEntity_Scalars(t *testing.T) {
	e := New(bookDef(t))
	assert.True(t, e.IsNew())
	assert.False(t, e.IsDirty())

	require.NoError(t, e.Set("title", "Go"))
	require.NoError(t, e.Set("isbn", "123"))
	v, err := e.Get("title")
	require.NoError(t, err)
	assert.Equal(t, "Go", v)
	assert.Equal(t, []string{"isbn", "title"}, e.DirtyProperties())

	v, err = e.Get("id")
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.False(t, e.Key().Complete())

	require.NoError(t, e.Set("id", int64(7)))
	assert.Equal(t, Key{int64(7)}, e.Key())

	e.MarkSaved()
	assert.False(t, e.IsNew())
	assert.False(t, e.IsDirty())

	err = e.Set("id", int64(8))
	assert.ErrorIs(t, err, ErrReadOnly)
	err = e.Set("isbn", "456")
	assert.ErrorIs(t, err, ErrReadOnly)
	require.NoError(t, e.Set("title", "Go 2"))
	assert.True(t, e.IsPropertyDirty("title"))
}

func TestEntity_Errors(t *testing.T) {
	e := New(bookDef(t))

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"unknown", func() error { _, err := e.Get("nope"); return err }, ErrUnknownProperty},
		{"get multi", func() error { _, err := e.Get("notes"); return err }, ErrNotSingleValued},
		{"get reference", func() error { _, err := e.Get("author"); return err }, ErrIsReference},
		{"set reference", func() error { return e.Set("author", 1) }, ErrIsReference},
		{"values single", func() error { _, err := e.Values("title"); return err }, ErrNotMultiValued},
		{"ref scalar", func() error { _, err := e.Ref("title"); return err }, ErrNotReference},
		{"ref multi", func() error { _, err := e.Ref("tags"); return err }, ErrNotSingleValued},
		{"refs single", func() error { _, err := e.Refs("author"); return err }, ErrNotMultiValued},
		{"set refs single", func() error { return e.SetRefs("author", nil) }, ErrNotMultiValued},
		{"related all unloaded", func() error { _, err := e.RelatedAll("tags"); return err }, ErrNotLoaded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var pe *PropertyError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, "Book", pe.Model)
		})
	}
}

func TestEntity_References(t *testing.T) {
	def := bookDef(t)
	e := Existing(def)
	e.Init("id", Scalar{V: int64(1)})
	e.Init("author", Reference{Ref: EntityReference{Model: "Author", Key: Key{int64(3)}}})
	e.Init("tags", References{})

	assert.True(t, e.IsLoaded("id"))
	assert.False(t, e.IsLoaded("author"))
	assert.False(t, e.IsLoaded("tags"))
	assert.False(t, e.IsDirty())

	ref, err := e.Ref("author")
	require.NoError(t, err)
	assert.Equal(t, "Author", ref.RefModel())
	assert.Equal(t, Key{int64(3)}, ref.RefKey())

	_, err = e.Related("author")
	assert.ErrorIs(t, err, ErrNotLoaded)

	authorDef := model.NewDefinition("Author")
	authorDef.PrimaryKey = []string{"id"}
	require.NoError(t, authorDef.AddProperty(&model.Property{Name: "id", Type: datatype.Integer, PrimaryKey: true}))
	author := Existing(authorDef)
	author.Init("id", Scalar{V: int64(3)})

	e.Attach("author", Reference{Ref: author})
	got, err := e.Related("author")
	require.NoError(t, err)
	assert.Same(t, author, got)
	assert.False(t, e.IsDirty())

	e.Attach("tags", References{Refs: []Ref{author}})
	all, err := e.RelatedAll("tags")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, e.SetRef("author", EntityReference{Model: "Author", Key: Key{int64(4)}}))
	assert.True(t, e.IsPropertyDirty("author"))
	assert.False(t, e.IsLoaded("author"))

	require.NoError(t, e.SetRef("author", nil))
	got, err = e.Related("author")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEntity_MultiValues(t *testing.T) {
	e := Existing(bookDef(t))
	_, err := e.Values("notes")
	assert.ErrorIs(t, err, ErrNotLoaded)

	e.Attach("notes", MultiValue{Values: []any{"a", "b"}})
	vals, err := e.Values("notes")
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, vals)

	require.NoError(t, e.SetValues("notes", []any{"c"}))
	assert.True(t, e.IsPropertyDirty("notes"))
	e.MarkClean("notes")
	assert.False(t, e.IsDirty())
}

func TestKey_String(t *testing.T) {
	assert.Equal(t, Key{int64(1)}.String(), Key{1}.String())
	assert.Equal(t, Key{int64(1)}.String(), Key{int32(1)}.String())
	assert.NotEqual(t, Key{"a", "b"}.String(), Key{"ab"}.String())
	assert.Equal(t, "x", Key{[]byte("x")}.String())
	assert.True(t, Key{1, "a"}.Complete())
	assert.False(t, Key{1, nil}.Complete())
	assert.False(t, Key{}.Complete())
}

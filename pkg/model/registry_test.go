package model

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.AddModelDefinition(NewDefinition("Book"))
	reg.AddModelDefinition(NewDefinition("Author"))
	assert.Equal(t, 2, reg.Len())

	def, ok := reg.GetModelDefinition("Book")
	require.True(t, ok)
	assert.Equal(t, "Book", def.Name)

	all := reg.AllModelDefinitions()
	require.Len(t, all, 2)
	assert.Equal(t, "Author", all[0].Name)
	assert.Equal(t, "Book", all[1].Name)

	replacement := NewDefinition("Book")
	replacement.Plural = "Volumes"
	reg.AddModelDefinition(replacement)
	def, _ = reg.GetModelDefinition("Book")
	assert.Equal(t, "Volumes", def.Plural)

	assert.True(t, reg.RemoveModelDefinition("Book"))
	assert.False(t, reg.RemoveModelDefinition("Book"))
	_, ok = reg.GetModelDefinition("Book")
	assert.False(t, ok)

	reg.Replace([]*Definition{NewDefinition("Tag")})
	assert.Equal(t, 1, reg.Len())
	_, ok = reg.GetModelDefinition("Author")
	assert.False(t, ok)
}

func TestRegistry_ConcurrentReaders(t *testing.T) {
	reg := NewRegistry()
	reg.AddModelDefinition(NewDefinition("Book"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = reg.GetModelDefinition("Book")
				_ = reg.AllModelDefinitions()
			}
		}()
	}
	for j := 0; j < 100; j++ {
		reg.Replace([]*Definition{NewDefinition("Book")})
	}
	wg.Wait()
	assert.Equal(t, 1, reg.Len())
}

func TestDefinition_Clone(t *testing.T) {
	def := NewDefinition("Book")
	def.PrimaryKey = []string{"id"}
	def.Config = map[string]any{"a": "b"}
	size := 10
	require.NoError(t, def.AddProperty(&Property{Name: "id", Type: "integer", PrimaryKey: true}))
	require.NoError(t, def.AddProperty(&Property{Name: "title", Type: "string", Size: &size}))

	c := def.Clone()
	assert.Equal(t, def, c)

	title, _ := c.Property("title")
	*title.Size = 20
	orig, _ := def.Property("title")
	assert.Equal(t, 10, *orig.Size)

	require.NoError(t, c.AddProperty(&Property{Name: "extra", Type: "string"}))
	_, ok := def.Property("extra")
	assert.False(t, ok)

	assert.Error(t, def.AddProperty(&Property{Name: "id", Type: "integer"}))
}

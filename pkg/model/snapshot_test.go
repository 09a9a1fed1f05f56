package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	raw := authorBookModels()
	raw["Event"] = map[string]any{
		"friendlyName": "Happening",
		"security": []any{
			map[string]any{"role": "admin", "permissions": []any{"read", "update"}, "filter": "owner = :user"},
		},
		"config": map[string]any{"nested": map[string]any{"k": []any{1, "x"}}},
		"properties": map[string]any{
			"@code":    map[string]any{"type": "uuid", "generation": "uuid"},
			"starts":   map[string]any{"type": "datetime", "default": time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("x", 3600))},
			"capacity": map[string]any{"type": "integer", "default": 50, "searchable": true},
			"ratio":    map[string]any{"type": "float", "default": 0.5, "readOnly": true},
			"open":     map[string]any{"type": "boolean", "default": true},
			"label":    "string(40)! // shown in lists",
			"price":    "decimal(8,2)",
			"host":     "#Author",
		},
	}
	defs, err := newTestCompiler(t, nil).Compile(raw)
	require.NoError(t, err)

	sources := []SourceInfo{
		{Name: "a.yaml", ID: "models/a.yaml", Hash: "h1", ModTime: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
	}
	snap := NewSnapshot(sources, defs)

	data, err := snap.Encode()
	require.NoError(t, err)

	got, err := DecodeSnapshot(data)
	require.NoError(t, err)

	assert.Equal(t, snap.Hash, got.Hash)
	assert.True(t, snap.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, snap.Sources, got.Sources)
	require.Len(t, got.Models, len(defs))
	for i := range defs {
		assert.Equal(t, defs[i], got.Models[i], defs[i].Name)
	}

	starts, _ := byName(got.Models)["Event"].Property("starts")
	assert.Equal(t, time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), starts.Default)
}

func TestDecodeSnapshot_Errors(t *testing.T) {
	_, err := DecodeSnapshot([]byte("{"))
	assert.Error(t, err)

	data, err := json.Marshal(map[string]any{"version": 99})
	require.NoError(t, err)
	_, err = DecodeSnapshot(data)
	assert.ErrorContains(t, err, "unsupported snapshot version 99")
}

func TestHashSources(t *testing.T) {
	a := SourceInfo{ID: "a.yaml", Hash: "1", ModTime: time.Unix(1, 0)}
	b := SourceInfo{ID: "b.yaml", Hash: "2", ModTime: time.Unix(2, 0)}

	h := HashSources([]SourceInfo{a, b})
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashSources([]SourceInfo{b, a}), "order must not matter")

	touched := a
	touched.ModTime = time.Unix(100, 0)
	assert.Equal(t, h, HashSources([]SourceInfo{touched, b}), "mtime must not matter")

	changed := a
	changed.Hash = "3"
	assert.NotEqual(t, h, HashSources([]SourceInfo{changed, b}))
}

func TestMergeSources(t *testing.T) {
	merged, err := MergeSources([]Source{
		{SourceInfo: SourceInfo{ID: "a.yaml"}, Models: map[string]any{"Author": map[string]any{}}},
		{SourceInfo: SourceInfo{ID: "b.yaml"}, Models: map[string]any{"Book": map[string]any{}}},
	})
	require.NoError(t, err)
	assert.Len(t, merged, 2)

	_, err = MergeSources([]Source{
		{SourceInfo: SourceInfo{ID: "a.yaml"}, Models: map[string]any{"Book": map[string]any{}}},
		{SourceInfo: SourceInfo{ID: "b.yaml"}, Models: map[string]any{"Book": map[string]any{}}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDeclaration)
	assert.Contains(t, err.Error(), "defined in both a.yaml and b.yaml")
}

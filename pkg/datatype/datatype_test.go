package datatype

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestDefinition_Resolve(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name    string
		typ     string
		size    *int
		size2   *int
		want    []Field
		wantErr string
	}{
		{
			name: "string default length",
			typ:  String,
			want: []Field{{Kind: KindString, Length: DefaultStringLength}},
		},
		{
			name: "string explicit length",
			typ:  String,
			size: intPtr(50),
			want: []Field{{Kind: KindString, Length: 50}},
		},
		{
			name:  "decimal precision and scale",
			typ:   Decimal,
			size:  intPtr(12),
			size2: intPtr(4),
			want:  []Field{{Kind: KindDecimal, Precision: 12, Scale: 4}},
		},
		{
			name: "decimal precision keeps default scale",
			typ:  Decimal,
			size: intPtr(8),
			want: []Field{{Kind: KindDecimal, Precision: 8, Scale: 2}},
		},
		{
			name: "compound keeps fields",
			typ:  NameType,
			want: []Field{
				{Key: "first", Kind: KindString, Length: 100},
				{Key: "last", Kind: KindString, Length: 100},
			},
		},
		{name: "size on boolean", typ: Boolean, size: intPtr(1), wantErr: "does not take a size"},
		{name: "size on compound", typ: NameType, size: intPtr(10), wantErr: "does not take a size"},
		{name: "size2 on string", typ: String, size: intPtr(10), size2: intPtr(2), wantErr: "single length"},
		{name: "size2 without size", typ: Decimal, size2: intPtr(2), wantErr: "size2 without size"},
		{name: "scale exceeds precision", typ: Decimal, size: intPtr(4), size2: intPtr(6), wantErr: "exceeds precision"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, ok := reg.Lookup(tt.typ)
			require.True(t, ok)

			got, err := def.Resolve(tt.size, tt.size2)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnsupportedSize)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefinition_ResolveDoesNotMutate(t *testing.T) {
	reg := NewRegistry()
	def, _ := reg.Lookup(String)

	_, err := def.Resolve(intPtr(10), nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultStringLength, def.Fields[0].Length)
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()

	err := reg.Register(&Definition{
		Name: "point",
		Fields: []Field{
			{Key: "x", Kind: KindFloat},
			{Key: "y", Kind: KindFloat},
		},
	})
	require.NoError(t, err)
	assert.True(t, reg.Has("point"))
	assert.Contains(t, reg.Names(), "point")

	err = reg.Register(&Definition{Name: "point", Fields: []Field{{Kind: KindFloat}}})
	assert.ErrorContains(t, err, "already registered")

	err = reg.Register(&Definition{Name: "bad", Fields: []Field{{Kind: KindText}}, Mapper: "missing"})
	assert.ErrorContains(t, err, "unknown value mapper")

	err = reg.Register(&Definition{Name: Virtual, Fields: []Field{{Kind: KindText}}})
	assert.Error(t, err)

	assert.True(t, reg.Has(Virtual))
	assert.False(t, reg.Has("nope"))
}

func TestRegistry_EncodeDecode(t *testing.T) {
	reg := NewRegistry()
	day := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	moment := time.Date(2024, 3, 9, 14, 30, 5, 0, time.UTC)

	tests := []struct {
		name       string
		typ        string
		value      any
		wantStored []any
		wantValue  any
	}{
		{name: "string", typ: String, value: "go", wantStored: []any{"go"}, wantValue: "go"},
		{name: "integer widening", typ: Integer, value: int32(7), wantStored: []any{int64(7)}, wantValue: int64(7)},
		{name: "boolean", typ: Boolean, value: true, wantStored: []any{int64(1)}, wantValue: true},
		{name: "date", typ: Date, value: day, wantStored: []any{"2024-03-09"}, wantValue: day},
		{name: "datetime", typ: DateTime, value: moment, wantStored: []any{"2024-03-09T14:30:05Z"}, wantValue: moment},
		{
			name:       "uuid",
			typ:        UUID,
			value:      "6BA7B810-9DAD-11D1-80B4-00C04FD430C8",
			wantStored: []any{"6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
			wantValue:  "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		},
		{
			name:       "json",
			typ:        JSON,
			value:      map[string]any{"a": float64(1)},
			wantStored: []any{`{"a":1}`},
			wantValue:  map[string]any{"a": float64(1)},
		},
		{
			name:       "name",
			typ:        NameType,
			value:      Name{First: "Ada", Last: "Lovelace"},
			wantStored: []any{"Ada", "Lovelace"},
			wantValue:  Name{First: "Ada", Last: "Lovelace"},
		},
		{
			name:       "money",
			typ:        Money,
			value:      MoneyValue{Amount: 12.5, Currency: "eur"},
			wantStored: []any{12.5, "EUR"},
			wantValue:  MoneyValue{Amount: 12.5, Currency: "EUR"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stored, err := reg.Encode(tt.typ, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStored, stored)

			got, err := reg.Decode(tt.typ, stored)
			require.NoError(t, err)
			assert.Equal(t, tt.wantValue, got)
		})
	}
}

func TestRegistry_DecodeBackendShapes(t *testing.T) {
	reg := NewRegistry()

	got, err := reg.Decode(String, []any{[]byte("raw")})
	require.NoError(t, err)
	assert.Equal(t, "raw", got)

	got, err = reg.Decode(Boolean, []any{false})
	require.NoError(t, err)
	assert.Equal(t, false, got)

	got, err = reg.Decode(Float, []any{"3.25"})
	require.NoError(t, err)
	assert.Equal(t, 3.25, got)

	got, err = reg.Decode(DateTime, []any{"2024-03-09 14:30:05"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 9, 14, 30, 5, 0, time.UTC), got)
}

func TestRegistry_NilValues(t *testing.T) {
	reg := NewRegistry()

	stored, err := reg.Encode(NameType, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{nil, nil}, stored)

	got, err := reg.Decode(NameType, []any{nil, nil})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRegistry_EncodeErrors(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Encode("nope", 1)
	assert.ErrorContains(t, err, "unknown data type")

	_, err = reg.Encode(Integer, "abc")
	assert.ErrorContains(t, err, "failed to encode integer value")

	_, err = reg.Encode(UUID, "not-a-uuid")
	assert.Error(t, err)

	_, err = reg.Decode(NameType, []any{"a"})
	assert.ErrorContains(t, err, "expects 2 fields")
}

func TestConversions(t *testing.T) {
	n, err := ToInt64(float64(4))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	_, err = ToInt64(4.5)
	assert.Error(t, err)

	f, err := ToFloat64(int32(3))
	require.NoError(t, err)
	assert.Equal(t, float64(3), f)

	s, err := ToString(int64(12))
	require.NoError(t, err)
	assert.Equal(t, "12", s)
}

package datatype

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Builtin type names.
const (
	String   = "string"
	Text     = "text"
	Integer  = "integer"
	Float    = "float"
	Decimal  = "decimal"
	Boolean  = "boolean"
	Date     = "date"
	DateTime = "datetime"
	UUID     = "uuid"
	JSON     = "json"
	NameType = "name"
	Money    = "money"
)

// DefaultStringLength is the column length of an unsized string.
const DefaultStringLength = 255

// Name is the native value of the compound "name" type.
type Name struct {
	First string `json:"first"`
	Last  string `json:"last"`
}

// MoneyValue is the native value of the compound "money" type.
type MoneyValue struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

func builtinTypes() []*Definition {
	simple := func(name string, f Field, sizing Sizing, mapper string) *Definition {
		return &Definition{Name: name, Fields: []Field{f}, Sizing: sizing, Mapper: mapper}
	}
	return []*Definition{
		simple(String, Field{Kind: KindString, Length: DefaultStringLength}, SizeLength, "string"),
		simple(Text, Field{Kind: KindText}, SizeNone, "string"),
		simple(Integer, Field{Kind: KindInteger}, SizeNone, "integer"),
		simple(Float, Field{Kind: KindFloat}, SizeNone, "float"),
		simple(Decimal, Field{Kind: KindDecimal, Precision: 10, Scale: 2}, SizePrecision, "float"),
		simple(Boolean, Field{Kind: KindBoolean}, SizeNone, "boolean"),
		simple(Date, Field{Kind: KindDate}, SizeNone, "date"),
		simple(DateTime, Field{Kind: KindDateTime}, SizeNone, "datetime"),
		simple(UUID, Field{Kind: KindUUID}, SizeNone, "uuid"),
		simple(JSON, Field{Kind: KindJSON}, SizeNone, "json"),
		{
			Name: NameType,
			Fields: []Field{
				{Key: "first", Kind: KindString, Length: 100},
				{Key: "last", Kind: KindString, Length: 100},
			},
			Mapper: "name",
		},
		{
			Name: Money,
			Fields: []Field{
				{Key: "amount", Kind: KindDecimal, Precision: 19, Scale: 4},
				{Key: "currency", Kind: KindString, Length: 3},
			},
			Mapper: "money",
		},
	}
}

func builtinMappers() map[string]ValueMapper {
	return map[string]ValueMapper{
		"string":   stringMapper{},
		"integer":  integerMapper{},
		"float":    floatMapper{},
		"boolean":  booleanMapper{},
		"date":     timeMapper{layout: time.DateOnly},
		"datetime": timeMapper{layout: time.RFC3339Nano},
		"uuid":     uuidMapper{},
		"json":     jsonMapper{},
		"name":     nameMapper{},
		"money":    moneyMapper{},
	}
}

type stringMapper struct{}

func (stringMapper) ToStorage(v any) ([]any, error) {
	s, err := ToString(v)
	return []any{s}, err
}

func (stringMapper) FromStorage(vs []any) (any, error) { return ToString(vs[0]) }

type integerMapper struct{}

func (integerMapper) ToStorage(v any) ([]any, error) {
	n, err := ToInt64(v)
	return []any{n}, err
}

func (integerMapper) FromStorage(vs []any) (any, error) { return ToInt64(vs[0]) }

type floatMapper struct{}

func (floatMapper) ToStorage(v any) ([]any, error) {
	f, err := ToFloat64(v)
	return []any{f}, err
}

func (floatMapper) FromStorage(vs []any) (any, error) { return ToFloat64(vs[0]) }

// booleanMapper stores booleans as 0/1 integers so that backends without a
// native boolean column round-trip them.
type booleanMapper struct{}

func (booleanMapper) ToStorage(v any) ([]any, error) {
	switch b := v.(type) {
	case bool:
		if b {
			return []any{int64(1)}, nil
		}
		return []any{int64(0)}, nil
	default:
		n, err := ToInt64(v)
		if err != nil {
			return nil, fmt.Errorf("cannot use %T as boolean", v)
		}
		return []any{boolInt(n != 0)}, nil
	}
}

func (booleanMapper) FromStorage(vs []any) (any, error) {
	switch b := vs[0].(type) {
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(b)
	default:
		n, err := ToInt64(b)
		if err != nil {
			return nil, fmt.Errorf("cannot read %T as boolean", b)
		}
		return n != 0, nil
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

type timeMapper struct {
	layout string
}

func (m timeMapper) ToStorage(v any) ([]any, error) {
	switch t := v.(type) {
	case time.Time:
		return []any{t.UTC().Format(m.layout)}, nil
	case string:
		parsed, err := parseTime(t)
		if err != nil {
			return nil, err
		}
		return []any{parsed.UTC().Format(m.layout)}, nil
	default:
		return nil, fmt.Errorf("cannot use %T as time", v)
	}
}

func (m timeMapper) FromStorage(vs []any) (any, error) {
	var t time.Time
	switch v := vs[0].(type) {
	case time.Time:
		t = v
	case string:
		parsed, err := parseTime(v)
		if err != nil {
			return nil, err
		}
		t = parsed
	default:
		return nil, fmt.Errorf("cannot read %T as time", v)
	}
	t = t.UTC()
	if m.layout == time.DateOnly {
		t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	return t, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	time.DateOnly,
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format %q", s)
}

type uuidMapper struct{}

func (uuidMapper) ToStorage(v any) ([]any, error) {
	id, err := toUUID(v)
	if err != nil {
		return nil, err
	}
	return []any{id.String()}, nil
}

func (uuidMapper) FromStorage(vs []any) (any, error) {
	id, err := toUUID(vs[0])
	if err != nil {
		return nil, err
	}
	return id.String(), nil
}

func toUUID(v any) (uuid.UUID, error) {
	switch id := v.(type) {
	case uuid.UUID:
		return id, nil
	case [16]byte:
		return uuid.UUID(id), nil
	case string:
		return uuid.Parse(id)
	case fmt.Stringer:
		return uuid.Parse(id.String())
	default:
		return uuid.UUID{}, fmt.Errorf("cannot use %T as uuid", v)
	}
}

type jsonMapper struct{}

func (jsonMapper) ToStorage(v any) ([]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []any{string(b)}, nil
}

func (jsonMapper) FromStorage(vs []any) (any, error) {
	s, err := ToString(vs[0])
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

type nameMapper struct{}

func (nameMapper) ToStorage(v any) ([]any, error) {
	switch n := v.(type) {
	case Name:
		return []any{n.First, n.Last}, nil
	case *Name:
		return []any{n.First, n.Last}, nil
	case map[string]any:
		return []any{n["first"], n["last"]}, nil
	default:
		return nil, fmt.Errorf("cannot use %T as name", v)
	}
}

func (nameMapper) FromStorage(vs []any) (any, error) {
	first, _ := ToString(vs[0])
	last, _ := ToString(vs[1])
	return Name{First: first, Last: last}, nil
}

type moneyMapper struct{}

func (moneyMapper) ToStorage(v any) ([]any, error) {
	switch m := v.(type) {
	case MoneyValue:
		return []any{m.Amount, strings.ToUpper(m.Currency)}, nil
	case *MoneyValue:
		return []any{m.Amount, strings.ToUpper(m.Currency)}, nil
	case map[string]any:
		amount, err := ToFloat64(m["amount"])
		if err != nil {
			return nil, err
		}
		currency, _ := ToString(m["currency"])
		return []any{amount, strings.ToUpper(currency)}, nil
	default:
		return nil, fmt.Errorf("cannot use %T as money", v)
	}
}

func (moneyMapper) FromStorage(vs []any) (any, error) {
	var out MoneyValue
	if vs[0] != nil {
		amount, err := ToFloat64(vs[0])
		if err != nil {
			return nil, err
		}
		out.Amount = amount
	}
	out.Currency, _ = ToString(vs[1])
	return out, nil
}

// ToString converts scalar storage values to a string.
func ToString(v any) (string, error) {
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	case fmt.Stringer:
		return s.String(), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, bool:
		return fmt.Sprint(s), nil
	default:
		return "", fmt.Errorf("cannot use %T as string", v)
	}
}

// ToInt64 converts any integer-like value to int64.
func ToInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("value %v is not an integer", n)
		}
		return int64(n), nil
	case float32:
		return ToInt64(float64(n))
	case string:
		return strconv.ParseInt(n, 10, 64)
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	default:
		return 0, fmt.Errorf("cannot use %T as integer", v)
	}
}

// ToFloat64 converts any numeric value to float64.
func ToFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	case []byte:
		return strconv.ParseFloat(string(n), 64)
	case interface{ Float64() float64 }:
		return n.Float64(), nil
	default:
		i, err := ToInt64(v)
		if err != nil {
			return 0, fmt.Errorf("cannot use %T as number", v)
		}
		return float64(i), nil
	}
}

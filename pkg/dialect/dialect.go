// Package dialect describes the SQL surface of a backend: parameter
// placeholders, identifier quoting, column types and auto-increment
// support.
//
// Concrete dialects are registered from builtin.go and looked up by the
// adapters in pkg/adapters.
package dialect

import (
	"strconv"
	"strings"

	"github.com/leapstack-labs/leaporm/pkg/datatype"
)

// PlaceholderStyle defines how query parameters are formatted.
type PlaceholderStyle int

const (
	// PlaceholderQuestion uses ? for all parameters (DuckDB, SQLite).
	PlaceholderQuestion PlaceholderStyle = iota
	// PlaceholderDollar uses $1, $2, etc. for parameters (PostgreSQL).
	PlaceholderDollar
)

// AutoIncrementStyle defines how a backend assigns generated integer keys.
type AutoIncrementStyle int

const (
	// AutoIncrementRowID marks the column INTEGER PRIMARY KEY AUTOINCREMENT.
	// Only a single-column key can use it.
	AutoIncrementRowID AutoIncrementStyle = iota
	// AutoIncrementIdentity declares the column GENERATED BY DEFAULT AS IDENTITY.
	AutoIncrementIdentity
	// AutoIncrementSequence creates a sequence and defaults the column to
	// its next value.
	AutoIncrementSequence
)

// IdentifierConfig defines how identifiers are quoted.
type IdentifierConfig struct {
	Quote    string // Quote character: ", `
	QuoteEnd string // End quote character, usually the same as Quote
	Escape   string // Escape sequence for QuoteEnd inside a name
}

// TypeMapper renders the column type of one storage field.
type TypeMapper func(f datatype.Field) string

// Dialect represents a SQL dialect configuration.
type Dialect struct {
	Name          string
	Identifiers   IdentifierConfig
	DefaultSchema string
	Placeholder   PlaceholderStyle
	AutoIncrement AutoIncrementStyle

	// AlterAddForeignKey reports whether foreign-key constraints can be
	// added to an existing table.
	AlterAddForeignKey bool

	// ForwardForeignKeys reports whether CREATE TABLE may reference a
	// table that does not exist yet.
	ForwardForeignKeys bool

	// OffsetRequiresLimit reports whether OFFSET is only valid after a
	// LIMIT clause. Such dialects read LIMIT -1 as unbounded.
	OffsetRequiresLimit bool

	reservedWords map[string]struct{}
	types         TypeMapper
}

// FormatPlaceholder returns a placeholder for the given parameter index (1-based).
// Returns "?" for PlaceholderQuestion style, "$1", "$2" etc. for PlaceholderDollar style.
func (d *Dialect) FormatPlaceholder(index int) string {
	switch d.Placeholder {
	case PlaceholderDollar:
		return "$" + strconv.Itoa(index)
	default:
		return "?"
	}
}

// IsReservedWord returns true if the word needs quoting when used as an identifier.
func (d *Dialect) IsReservedWord(word string) bool {
	_, ok := d.reservedWords[strings.ToLower(word)]
	return ok
}

// QuoteIdentifier quotes an identifier using the dialect's quote characters.
func (d *Dialect) QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, d.Identifiers.QuoteEnd, d.Identifiers.Escape)
	return d.Identifiers.Quote + escaped + d.Identifiers.QuoteEnd
}

// QuoteIdentifierIfNeeded quotes an identifier only if it is a reserved
// word or not a plain lowercase identifier.
func (d *Dialect) QuoteIdentifierIfNeeded(name string) string {
	if d.IsReservedWord(name) || !isPlain(name) {
		return d.QuoteIdentifier(name)
	}
	return name
}

// ColumnType renders the SQL type of a storage field.
func (d *Dialect) ColumnType(f datatype.Field) string {
	if d.types == nil {
		return standardType(f)
	}
	return d.types(f)
}

func isPlain(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// standardType is the ANSI-leaning rendering used when a dialect sets no
// mapper of its own.
func standardType(f datatype.Field) string {
	switch f.Kind {
	case datatype.KindString:
		return "VARCHAR(" + strconv.Itoa(f.Length) + ")"
	case datatype.KindInteger:
		return "BIGINT"
	case datatype.KindFloat:
		return "DOUBLE PRECISION"
	case datatype.KindDecimal:
		return "DECIMAL(" + strconv.Itoa(f.Precision) + "," + strconv.Itoa(f.Scale) + ")"
	case datatype.KindBoolean:
		return "SMALLINT"
	case datatype.KindDate:
		return "DATE"
	case datatype.KindDateTime:
		return "TIMESTAMP"
	case datatype.KindUUID:
		return "VARCHAR(36)"
	default:
		return "TEXT"
	}
}

// Builder provides a fluent API for constructing dialects.
type Builder struct {
	dialect *Dialect
}

// NewDialect creates a new dialect builder with the given name.
func NewDialect(name string) *Builder {
	return &Builder{
		dialect: &Dialect{
			Name: name,
			Identifiers: IdentifierConfig{
				Quote:    `"`,
				QuoteEnd: `"`,
				Escape:   `""`,
			},
			reservedWords: make(map[string]struct{}),
		},
	}
}

// Identifiers configures identifier quoting.
func (b *Builder) Identifiers(quote, quoteEnd, escape string) *Builder {
	b.dialect.Identifiers = IdentifierConfig{Quote: quote, QuoteEnd: quoteEnd, Escape: escape}
	return b
}

// DefaultSchema sets the default schema name.
func (b *Builder) DefaultSchema(schema string) *Builder {
	b.dialect.DefaultSchema = schema
	return b
}

// PlaceholderStyle sets how query parameters are formatted.
func (b *Builder) PlaceholderStyle(style PlaceholderStyle) *Builder {
	b.dialect.Placeholder = style
	return b
}

// AutoIncrement sets how generated integer keys are declared.
func (b *Builder) AutoIncrement(style AutoIncrementStyle) *Builder {
	b.dialect.AutoIncrement = style
	return b
}

// AlterAddForeignKey records whether foreign keys can be added to existing tables.
func (b *Builder) AlterAddForeignKey(ok bool) *Builder {
	b.dialect.AlterAddForeignKey = ok
	return b
}

// ForwardForeignKeys records whether a new table may reference a table created later.
func (b *Builder) ForwardForeignKeys(ok bool) *Builder {
	b.dialect.ForwardForeignKeys = ok
	return b
}

// OffsetRequiresLimit records whether OFFSET needs a preceding LIMIT.
func (b *Builder) OffsetRequiresLimit(ok bool) *Builder {
	b.dialect.OffsetRequiresLimit = ok
	return b
}

// ColumnTypes sets the column type mapper.
func (b *Builder) ColumnTypes(m TypeMapper) *Builder {
	b.dialect.types = m
	return b
}

// WithReservedWords registers words that need quoting when used as identifiers.
func (b *Builder) WithReservedWords(words ...string) *Builder {
	for _, w := range words {
		b.dialect.reservedWords[strings.ToLower(w)] = struct{}{}
	}
	return b
}

// Build returns the constructed dialect.
func (b *Builder) Build() *Dialect {
	return b.dialect
}

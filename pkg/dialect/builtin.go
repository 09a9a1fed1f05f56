package dialect

import (
	"strconv"

	"github.com/leapstack-labs/leaporm/pkg/datatype"
)

// commonReserved are words quoted by every builtin dialect.
var commonReserved = []string{
	"all", "and", "as", "asc", "between", "by", "case", "check", "column",
	"constraint", "create", "default", "delete", "desc", "distinct", "else",
	"end", "exists", "foreign", "from", "group", "having", "in", "index",
	"insert", "into", "is", "join", "key", "like", "limit", "not", "null",
	"offset", "on", "or", "order", "position", "primary", "references",
	"select", "set", "table", "then", "to", "union", "unique", "update",
	"user", "using", "values", "when", "where", "with",
}

// SQLite is the dialect of the sqlite adapter.
var SQLite = NewDialect("sqlite").
	DefaultSchema("main").
	PlaceholderStyle(PlaceholderQuestion).
	AutoIncrement(AutoIncrementRowID).
	AlterAddForeignKey(false).
	ForwardForeignKeys(true).
	OffsetRequiresLimit(true).
	WithReservedWords(commonReserved...).
	WithReservedWords("autoincrement", "pragma", "rowid").
	ColumnTypes(func(f datatype.Field) string {
		switch f.Kind {
		case datatype.KindString:
			return "VARCHAR(" + strconv.Itoa(f.Length) + ")"
		case datatype.KindInteger, datatype.KindBoolean:
			return "INTEGER"
		case datatype.KindFloat:
			return "REAL"
		case datatype.KindDecimal:
			return "NUMERIC(" + strconv.Itoa(f.Precision) + "," + strconv.Itoa(f.Scale) + ")"
		default:
			// Dates, UUIDs and JSON are stored as their text encoding.
			return "TEXT"
		}
	}).
	Build()

// Postgres is the dialect of the postgres adapter.
var Postgres = NewDialect("postgres").
	DefaultSchema("public").
	PlaceholderStyle(PlaceholderDollar).
	AutoIncrement(AutoIncrementIdentity).
	AlterAddForeignKey(true).
	WithReservedWords(commonReserved...).
	WithReservedWords("analyse", "analyze", "array", "current_user", "grant", "only", "session_user").
	ColumnTypes(func(f datatype.Field) string {
		switch f.Kind {
		case datatype.KindDateTime:
			return "TIMESTAMPTZ"
		case datatype.KindUUID:
			return "UUID"
		case datatype.KindJSON:
			return "JSONB"
		case datatype.KindDecimal:
			return "NUMERIC(" + strconv.Itoa(f.Precision) + "," + strconv.Itoa(f.Scale) + ")"
		default:
			return standardType(f)
		}
	}).
	Build()

// DuckDB is the dialect of the duckdb adapter.
var DuckDB = NewDialect("duckdb").
	DefaultSchema("main").
	PlaceholderStyle(PlaceholderQuestion).
	AutoIncrement(AutoIncrementSequence).
	AlterAddForeignKey(false).
	WithReservedWords(commonReserved...).
	WithReservedWords("pivot", "qualify", "unpivot").
	ColumnTypes(func(f datatype.Field) string {
		switch f.Kind {
		case datatype.KindString, datatype.KindText, datatype.KindJSON:
			return "VARCHAR"
		case datatype.KindFloat:
			return "DOUBLE"
		case datatype.KindDateTime:
			return "TIMESTAMPTZ"
		case datatype.KindUUID:
			return "UUID"
		default:
			return standardType(f)
		}
	}).
	Build()

func init() {
	Register(SQLite)
	Register(Postgres)
	Register(DuckDB)
}

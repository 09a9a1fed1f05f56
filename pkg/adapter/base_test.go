package adapter

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leapstack-labs/leaporm/pkg/dialect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseSQLAdapter_Close(t *testing.T) {
	tests := []struct {
		name      string
		setupDB   bool
		expectErr bool
	}{
		{
			name:      "close with nil DB",
			setupDB:   false,
			expectErr: false,
		},
		{
			name:      "close with open DB",
			setupDB:   true,
			expectErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &BaseSQLAdapter{}

			if tt.setupDB {
				db, mock, err := sqlmock.New()
				require.NoError(t, err)
				mock.ExpectClose()
				base.DB = db
			}

			err := base.Close()
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBaseSQLAdapter_Exec(t *testing.T) {
	tests := []struct {
		name      string
		setupDB   bool
		setupMock func(mock sqlmock.Sqlmock)
		sql       string
		expectErr bool
		errMsg    string
	}{
		{
			name:      "exec without connection",
			setupDB:   false,
			sql:       "SELECT 1",
			expectErr: true,
			errMsg:    "database connection not established",
		},
		{
			name:    "exec success",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("CREATE TABLE users").WillReturnResult(sqlmock.NewResult(0, 0))
			},
			sql:       "CREATE TABLE users (id INT)",
			expectErr: false,
		},
		{
			name:    "exec with error",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INVALID SQL").WillReturnError(assert.AnError)
			},
			sql:       "INVALID SQL",
			expectErr: true,
			errMsg:    "failed to execute SQL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			base := &BaseSQLAdapter{}

			if tt.setupDB {
				db, mock, err := sqlmock.New()
				require.NoError(t, err)
				defer func() { _ = db.Close() }()

				if tt.setupMock != nil {
					tt.setupMock(mock)
				}
				base.DB = db
			}

			err := base.Exec(ctx, tt.sql)
			if tt.expectErr {
				require.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBaseSQLAdapter_Query(t *testing.T) {
	tests := []struct {
		name      string
		setupDB   bool
		setupMock func(mock sqlmock.Sqlmock)
		sql       string
		expectErr bool
		errMsg    string
	}{
		{
			name:      "query without connection",
			setupDB:   false,
			sql:       "SELECT 1",
			expectErr: true,
			errMsg:    "database connection not established",
		},
		{
			name:    "query success",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"id", "name"}).
					AddRow(1, "alice").
					AddRow(2, "bob")
				mock.ExpectQuery("SELECT").WillReturnRows(rows)
			},
			sql:       "SELECT id, name FROM users",
			expectErr: false,
		},
		{
			name:    "query with error",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("INVALID").WillReturnError(assert.AnError)
			},
			sql:       "INVALID SQL",
			expectErr: true,
			errMsg:    "failed to execute query",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			base := &BaseSQLAdapter{}

			if tt.setupDB {
				db, mock, err := sqlmock.New()
				require.NoError(t, err)
				defer func() { _ = db.Close() }()

				if tt.setupMock != nil {
					tt.setupMock(mock)
				}
				base.DB = db
			}

			rows, err := base.Query(ctx, tt.sql)
			if tt.expectErr {
				require.Error(t, err)
				assert.Nil(t, rows)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				require.NoError(t, err)
				assert.NotNil(t, rows)
				defer func() { _ = rows.Close() }()
			}
		})
	}
}

func TestBaseSQLAdapter_IsConnected(t *testing.T) {
	tests := []struct {
		name     string
		setupDB  bool
		expected bool
	}{
		{
			name:     "not connected",
			setupDB:  false,
			expected: false,
		},
		{
			name:     "connected",
			setupDB:  true,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &BaseSQLAdapter{}

			if tt.setupDB {
				db, _, err := sqlmock.New()
				require.NoError(t, err)
				defer func() { _ = db.Close() }()
				base.DB = db
			}

			assert.Equal(t, tt.expected, base.IsConnected())
		})
	}
}

func TestBaseSQLAdapter_ExecWithArgs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec(`UPDATE books SET title = \? WHERE id = \?`).
		WithArgs("Go", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	base := &BaseSQLAdapter{DB: db}
	require.NoError(t, base.Exec(context.Background(), "UPDATE books SET title = ? WHERE id = ?", "Go", int64(1)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBaseSQLAdapter_BeginTx(t *testing.T) {
	_, err := (&BaseSQLAdapter{}).BeginTx(context.Background(), nil)
	require.ErrorContains(t, err, "database connection not established")

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := (&BaseSQLAdapter{DB: db}).BeginTx(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBaseSQLAdapter_ListTablesCommon(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`FROM information_schema.tables\s+WHERE table_schema = \$1`).
		WithArgs("library").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("authors").AddRow("books"))

	base := &BaseSQLAdapter{DB: db, Cfg: Config{Schema: "library"}}
	tables, err := base.ListTablesCommon(context.Background(), dialect.Postgres)
	require.NoError(t, err)
	assert.Equal(t, []string{"authors", "books"}, tables)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBaseSQLAdapter_GetColumnsCommon(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`FROM information_schema.columns`).
		WithArgs("main", "books").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "ordinal_position"}).
			AddRow("id", "BIGINT", "NO", 1).
			AddRow("title", "VARCHAR", "YES", 2))
	mock.ExpectQuery(`FROM information_schema.columns`).
		WithArgs("main", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "ordinal_position"}))

	base := &BaseSQLAdapter{DB: db}
	info, err := base.GetColumnsCommon(context.Background(), "books", dialect.DuckDB)
	require.NoError(t, err)
	assert.Equal(t, "main", info.Schema)
	require.Len(t, info.Columns, 2)
	assert.False(t, info.Columns[0].Nullable)
	col, ok := info.Column("title")
	require.True(t, ok)
	assert.True(t, col.Nullable)
	assert.Equal(t, 2, col.Position)

	_, err = base.GetColumnsCommon(context.Background(), "missing", dialect.DuckDB)
	assert.ErrorContains(t, err, "table missing not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupRows(t *testing.T) {
	rows := []GroupedRow{
		{Group: "fk_b", Column: "a_id", RefTable: "a", RefColumn: "id"},
		{Group: "fk_c", Column: "c1", RefTable: "c", RefColumn: "k1"},
		{Group: "fk_c", Column: "c2", RefTable: "c", RefColumn: "k2"},
	}
	fks := GroupForeignKeys(rows)
	require.Len(t, fks, 2)
	assert.Equal(t, ForeignKeyInfo{Name: "fk_c", Columns: []string{"c1", "c2"}, RefTable: "c", RefColumns: []string{"k1", "k2"}}, fks[1])

	idx := GroupIndexes([]GroupedRow{
		{Group: "ix", Column: "x", Unique: true},
		{Group: "ix", Column: "y", Unique: true},
	})
	assert.Equal(t, []IndexInfo{{Name: "ix", Columns: []string{"x", "y"}, Unique: true}}, idx)
}

func TestParseQualifiedName(t *testing.T) {
	schema, name := ParseQualifiedName("lib.books", "main")
	assert.Equal(t, "lib", schema)
	assert.Equal(t, "books", name)

	schema, name = ParseQualifiedName("books", "main")
	assert.Equal(t, "main", schema)
	assert.Equal(t, "books", name)
}

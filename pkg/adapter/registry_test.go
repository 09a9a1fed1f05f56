package adapter

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"testing"

	"github.com/leapstack-labs/leaporm/pkg/dialect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	BaseSQLAdapter
	connectErr error
	connected  bool
}

func (f *fakeAdapter) Connect(_ context.Context, cfg Config) error {
	f.Cfg = cfg
	f.connected = f.connectErr == nil
	return f.connectErr
}

func (f *fakeAdapter) ListTables(context.Context) ([]string, error) { return nil, nil }

func (f *fakeAdapter) GetTableInfo(context.Context, string) (*TableInfo, error) {
	return nil, sql.ErrNoRows
}

func (f *fakeAdapter) Dialect() *dialect.Dialect { return dialect.SQLite }

func TestUnknownAdapterError_Error(t *testing.T) {
	err := &UnknownAdapterError{
		Type:      "fake_db",
		Available: []string{"duckdb", "postgres"},
	}

	msg := err.Error()
	assert.Contains(t, msg, "fake_db", "error should mention the unknown type 'fake_db'")
	assert.Contains(t, msg, "leaporm.yaml", "error should mention config file")
}

func TestRegister(t *testing.T) {
	Register("test_adapter_internal", func(_ *slog.Logger) Adapter { return nil })

	assert.True(t, IsRegistered("test_adapter_internal"))
	assert.True(t, IsRegistered("TEST_ADAPTER_INTERNAL"))
	assert.Contains(t, ListAdapters(), "test_adapter_internal")

	factory, ok := Get("test_adapter_internal")
	assert.True(t, ok)
	assert.NotNil(t, factory)

	_, ok = Get("nonexistent")
	assert.False(t, ok)
}

func TestCanonicalName(t *testing.T) {
	tests := map[string]string{
		"postgresql": "postgres",
		"PG":         "postgres",
		" sqlite3 ":  "sqlite",
		"duckdb":     "duckdb",
	}
	for in, want := range tests {
		assert.Equal(t, want, CanonicalName(in), in)
	}
}

func TestNewAdapter(t *testing.T) {
	_, err := NewAdapter(Config{Type: ""}, nil)
	require.Error(t, err)
	assert.Equal(t, "adapter type not specified", err.Error())

	_, err = NewAdapter(Config{Type: "unknown_adapter"}, nil)
	var unknownErr *UnknownAdapterError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "unknown_adapter", unknownErr.Type)
}

func TestOpen(t *testing.T) {
	Register("fake_ok", func(_ *slog.Logger) Adapter { return &fakeAdapter{} })
	Register("fake_fail", func(_ *slog.Logger) Adapter {
		return &fakeAdapter{connectErr: errors.New("refused")}
	})

	a, err := Open(context.Background(), Config{Type: "fake_ok", Database: "x"}, nil)
	require.NoError(t, err)
	fake := a.(*fakeAdapter)
	assert.True(t, fake.connected)
	assert.Equal(t, "x", fake.Cfg.Database)

	_, err = Open(context.Background(), Config{Type: "fake_fail"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to fake_fail: refused")
}

package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kyleking/sql-agent/internal/embedding"
)

// NewTestDuckDB creates a DuckDB collection in a temporary directory that is
// closed when the test ends
func NewTestDuckDB(t *testing.T, provider embedding.Provider) *SQLCollection {
	t.Helper()

	if provider == nil {
		provider = embedding.NewHashProvider(64)
	}

	c, err := OpenDuckDB(context.Background(), filepath.Join(t.TempDir(), "test.db"),
		"test_schemas", provider, DefaultPoolOptions())
	if err != nil {
		t.Fatalf("failed to create test duckdb collection: %v", err)
	}

	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("failed to close test collection: %v", err)
		}
	})

	return c
}

// NewTestSQLite is NewTestDuckDB for the SQLite backend
func NewTestSQLite(t *testing.T, provider embedding.Provider) *SQLCollection {
	t.Helper()

	if provider == nil {
		provider = embedding.NewHashProvider(64)
	}

	c, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.sqlite"),
		"test_schemas", provider, DefaultPoolOptions())
	if err != nil {
		t.Fatalf("failed to create test sqlite collection: %v", err)
	}

	t.Cleanup(func() { _ = c.Close() })

	return c
}

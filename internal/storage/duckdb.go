package storage

import (
	"context"

	_ "github.com/marcboeker/go-duckdb" // DuckDB driver

	"github.com/kyleking/sql-agent/internal/embedding"
)

// OpenDuckDB opens (or creates) a DuckDB file and returns the named collection
func OpenDuckDB(ctx context.Context, path, collection string, provider embedding.Provider, opts PoolOptions) (*SQLCollection, error) {
	db, err := openFileDB(ctx, "duckdb", path, path, DuckDBDialect, opts)
	if err != nil {
		return nil, err
	}

	return newSQLCollection(db, DuckDBDialect, collection, provider, opts.QueryTimeout), nil
}

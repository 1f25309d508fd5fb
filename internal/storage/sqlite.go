package storage

import (
	"context"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/kyleking/sql-agent/internal/embedding"
)

// OpenSQLite opens (or creates) a SQLite file and returns the named collection.
// SQLite allows a single writer, so the pool is capped at one connection.
func OpenSQLite(ctx context.Context, path, collection string, provider embedding.Provider, opts PoolOptions) (*SQLCollection, error) {
	opts.MaxOpenConns = 1
	opts.MaxIdleConns = 1

	dsn := "file:" + path + "?_busy_timeout=5000&_foreign_keys=on"

	db, err := openFileDB(ctx, "sqlite3", dsn, path, SQLiteDialect, opts)
	if err != nil {
		return nil, err
	}

	return newSQLCollection(db, SQLiteDialect, collection, provider, opts.QueryTimeout), nil
}

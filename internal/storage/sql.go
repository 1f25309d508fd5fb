package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kyleking/sql-agent/internal/embedding"
	"github.com/kyleking/sql-agent/internal/errors"
)

// PoolOptions tunes the database/sql connection pool
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration
}

// DefaultPoolOptions mirrors the configuration defaults
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		QueryTimeout:    30 * time.Second,
	}
}

func (o PoolOptions) apply(db *sql.DB) {
	db.SetMaxOpenConns(o.MaxOpenConns)
	db.SetMaxIdleConns(o.MaxIdleConns)
	db.SetConnMaxLifetime(o.ConnMaxLifetime)
	db.SetConnMaxIdleTime(o.ConnMaxIdleTime)
}

// SQLCollection stores documents in a local SQL file and ranks them in
// process. Embeddings are kept as JSON arrays so DuckDB and SQLite can share
// one layout.
type SQLCollection struct {
	db       *sql.DB
	dialect  Dialect
	name     string
	provider embedding.Provider
	timeout  time.Duration
}

// openFileDB opens a local database file, creating its directory, and runs
// the dialect's migrations
func openFileDB(ctx context.Context, driver, dsn, path string, dialect Dialect, opts PoolOptions) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeFileSystem, "failed to create database directory")
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeStorage, "failed to open %s database", dialect.Name)
	}

	opts.apply(db)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, errors.ErrTypeStorage, "failed to ping %s database", dialect.Name)
	}

	if err := NewMigrationManager(db, dialect).MigrateUp(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "failed to migrate database")
	}

	return db, nil
}

func newSQLCollection(db *sql.DB, dialect Dialect, name string, provider embedding.Provider, timeout time.Duration) *SQLCollection {
	return &SQLCollection{
		db:       db,
		dialect:  dialect,
		name:     name,
		provider: provider,
		timeout:  timeout,
	}
}

func (c *SQLCollection) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.timeout)
}

func (c *SQLCollection) Upsert(ctx context.Context, id, document string, metadata Metadata) error {
	if err := validateID(id); err != nil {
		return err
	}

	if err := metadata.Validate(); err != nil {
		return err
	}

	vector, err := c.provider.GenerateEmbedding(ctx, document)
	if err != nil {
		return errors.Wrapf(err, errors.ErrTypeEmbedding, "failed to embed document %s", id)
	}

	metaJSON, err := json.Marshal(copyMetadata(metadata))
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "failed to encode metadata")
	}

	vecJSON, err := json.Marshal(vector)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "failed to encode embedding")
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	_, err = c.db.ExecContext(ctx, c.dialect.Rebind(`
		INSERT INTO documents (collection, id, document, metadata, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (collection, id) DO UPDATE SET
			document = excluded.document,
			metadata = excluded.metadata,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at`),
		c.name, id, document, string(metaJSON), string(vecJSON))
	if err != nil {
		return errors.Wrapf(err, errors.ErrTypeStorage, "failed to upsert document %s", id)
	}

	return nil
}

func (c *SQLCollection) Query(ctx context.Context, text string, limit int) ([]Match, error) {
	if limit <= 0 {
		return []Match{}, nil
	}

	count, err := c.Count(ctx)
	if err != nil {
		return nil, err
	}

	if count == 0 {
		return []Match{}, nil
	}

	query, err := c.provider.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeEmbedding, "failed to embed query")
	}

	qctx, cancel := c.withTimeout(ctx)
	defer cancel()

	rows, err := c.db.QueryContext(qctx, c.dialect.Rebind(
		"SELECT id, document, metadata, embedding FROM documents WHERE collection = ?"), c.name)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "failed to load documents")
	}
	defer rows.Close()

	var candidates []scored

	for rows.Next() {
		var (
			rec               Record
			metaJSON, vecJSON string
		)

		if err := rows.Scan(&rec.ID, &rec.Document, &metaJSON, &vecJSON); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeStorage, "failed to scan document")
		}

		if rec.Metadata, err = decodeMetadata(metaJSON); err != nil {
			return nil, err
		}

		var vector []float32
		if err := json.Unmarshal([]byte(vecJSON), &vector); err != nil {
			return nil, errors.Wrapf(err, errors.ErrTypeStorage, "corrupt embedding for %s", rec.ID)
		}

		candidates = append(candidates, scored{match: Match{Record: rec}, vector: vector})
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "failed to read documents")
	}

	return rank(query, candidates, limit), nil
}

func (c *SQLCollection) Get(ctx context.Context, ids ...string) ([]Record, error) {
	if len(ids) == 0 {
		return []Record{}, nil
	}

	args := []interface{}{c.name}
	for _, id := range ids {
		args = append(args, id)
	}

	records, err := c.selectRecords(ctx,
		"SELECT id, document, metadata FROM documents WHERE collection = ? AND id IN ("+placeholders(len(ids))+")",
		args...)
	if err != nil {
		return nil, err
	}

	return orderByIDs(records, ids), nil
}

func (c *SQLCollection) List(ctx context.Context) ([]Record, error) {
	return c.selectRecords(ctx,
		"SELECT id, document, metadata FROM documents WHERE collection = ? ORDER BY id", c.name)
}

func (c *SQLCollection) selectRecords(ctx context.Context, query string, args ...interface{}) ([]Record, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, c.dialect.Rebind(query), args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "failed to query documents")
	}
	defer rows.Close()

	records := []Record{}

	for rows.Next() {
		var (
			rec      Record
			metaJSON string
		)

		if err := rows.Scan(&rec.ID, &rec.Document, &metaJSON); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeStorage, "failed to scan document")
		}

		if rec.Metadata, err = decodeMetadata(metaJSON); err != nil {
			return nil, err
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "failed to read documents")
	}

	return records, nil
}

func (c *SQLCollection) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	args := []interface{}{c.name}
	for _, id := range ids {
		args = append(args, id)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	_, err := c.db.ExecContext(ctx, c.dialect.Rebind(
		"DELETE FROM documents WHERE collection = ? AND id IN ("+placeholders(len(ids))+")"), args...)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "failed to delete documents")
	}

	return nil
}

func (c *SQLCollection) Count(ctx context.Context) (int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var count int

	err := c.db.QueryRowContext(ctx, c.dialect.Rebind(
		"SELECT COUNT(*) FROM documents WHERE collection = ?"), c.name).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrTypeStorage, "failed to count documents")
	}

	return count, nil
}

func (c *SQLCollection) Reset(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if _, err := c.db.ExecContext(ctx, c.dialect.Rebind(
		"DELETE FROM documents WHERE collection = ?"), c.name); err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "failed to reset collection")
	}

	return nil
}

func (c *SQLCollection) Close() error {
	if c.db == nil {
		return nil
	}

	return c.db.Close()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func decodeMetadata(raw string) (Metadata, error) {
	meta := Metadata{}
	if raw == "" {
		return meta, nil
	}

	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStorage, fmt.Sprintf("corrupt metadata %.40q", raw))
	}

	return meta, nil
}

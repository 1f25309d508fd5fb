package storage

import (
	"context"
	"strings"
	"time"

	"github.com/kyleking/sql-agent/internal/config"
	"github.com/kyleking/sql-agent/internal/embedding"
	"github.com/kyleking/sql-agent/internal/errors"
)

// PoolOptionsFromConfig reads pool settings, falling back to the defaults
// for anything unparseable
func PoolOptionsFromConfig(cfg config.StoreConfig) PoolOptions {
	def := DefaultPoolOptions()

	opts := PoolOptions{
		MaxOpenConns:    cfg.MaxConnections,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: config.Duration(cfg.ConnMaxLifetime, def.ConnMaxLifetime),
		ConnMaxIdleTime: config.Duration(cfg.ConnMaxIdleTime, def.ConnMaxIdleTime),
		QueryTimeout:    config.Duration(cfg.QueryTimeout, def.QueryTimeout),
	}

	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = def.MaxOpenConns
	}

	if opts.MaxIdleConns < 0 {
		opts.MaxIdleConns = def.MaxIdleConns
	}

	return opts
}

// Open returns the collection for the configured backend
func Open(ctx context.Context, cfg config.StoreConfig, provider embedding.Provider) (Collection, error) {
	if provider == nil {
		return nil, errors.New(errors.ErrTypeConfig, "an embedding provider is required")
	}

	opts := PoolOptionsFromConfig(cfg)

	var (
		c   Collection
		err error
	)

	switch strings.ToLower(cfg.Backend) {
	case "memory":
		return NewMemoryCollection(cfg.Collection, provider), nil
	case "duckdb", "":
		c, err = asCollection(OpenDuckDB(ctx, config.ExpandPath(cfg.Path), cfg.Collection, provider, opts))
	case "sqlite":
		c, err = asCollection(OpenSQLite(ctx, config.ExpandPath(cfg.Path), cfg.Collection, provider, opts))
	case "postgres":
		c, err = asCollection(OpenPostgres(ctx, cfg.PostgresDSN, cfg.Collection, provider, opts))
	case "qdrant":
		dialCtx, cancel := context.WithTimeout(ctx, opts.QueryTimeout+5*time.Second)
		defer cancel()

		c, err = asCollection(OpenQdrant(dialCtx, cfg.QdrantHost, cfg.QdrantPort, cfg.Collection, provider))
	default:
		return nil, errors.Newf(errors.ErrTypeConfig, "unsupported store backend: %s", cfg.Backend)
	}

	if err != nil {
		return nil, err
	}

	return c, nil
}

// asCollection keeps a typed nil pointer from becoming a non-nil interface
func asCollection[T Collection](c T, err error) (Collection, error) {
	if err != nil {
		return nil, err
	}

	return c, nil
}

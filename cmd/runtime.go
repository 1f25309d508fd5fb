package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kyleking/sql-agent/internal/agent"
	"github.com/kyleking/sql-agent/internal/cache"
	"github.com/kyleking/sql-agent/internal/config"
	"github.com/kyleking/sql-agent/internal/embedding"
	"github.com/kyleking/sql-agent/internal/errors"
	"github.com/kyleking/sql-agent/internal/llm"
	"github.com/kyleking/sql-agent/internal/logging"
	"github.com/kyleking/sql-agent/internal/monitor"
	"github.com/kyleking/sql-agent/internal/schemastore"
	"github.com/kyleking/sql-agent/internal/source"
	"github.com/kyleking/sql-agent/internal/storage"
)

// Runtime holds the collaborators a command works with
type Runtime struct {
	Config     *config.Config
	Cache      cache.Cache
	Embedder   embedding.Provider
	Collection storage.Collection
	Store      *schemastore.Store
	Source     source.Source
	Generator  llm.Generator

	stopMetrics context.CancelFunc
}

// runtimeNeeds names the optional collaborators a command uses
type runtimeNeeds struct {
	source    bool
	generator bool
}

// newRuntime wires configuration into the store, source and generator
func newRuntime(ctx context.Context, cfg *config.Config, needs runtimeNeeds) (*Runtime, error) {
	rt := &Runtime{Config: cfg}

	if cfg.Embedding.Cache {
		fc, err := cache.NewFileCache(cfg.Cache.Directory, cfg.Cache.MaxSizeMB,
			time.Duration(cfg.Cache.TTLHours)*time.Hour)
		if err != nil {
			logging.WithError(err).Warn("embedding cache disabled")
		} else {
			rt.Cache = fc
		}
	}

	embedder, err := embedding.NewProvider(cfg.Embedding, rt.Cache)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeConfig, "failed to create embedding provider")
	}

	rt.Embedder = embedder

	collection, err := storage.Open(ctx, cfg.Store, embedder)
	if err != nil {
		return nil, errors.Wrapf(err, errors.GetType(err), "failed to open %s vector store", cfg.Store.Backend)
	}

	rt.Collection = collection
	rt.Store = schemastore.New(collection)

	if needs.source {
		src, err := source.New(ctx, cfg.Source)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}

		rt.Source = src
	}

	if needs.generator {
		gen, err := llm.New(ctx, cfg.LLM)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}

		rt.Generator = gen
	}

	if cfg.Debug.Enabled {
		rt.startMetrics(ctx)
	}

	logging.WithFields(map[string]interface{}{
		"backend":   cfg.Store.Backend,
		"embedding": embedder.GetName(),
	}).Debug("runtime ready")

	return rt, nil
}

func (rt *Runtime) startMetrics(ctx context.Context) {
	metricsCtx, cancel := context.WithCancel(ctx)
	rt.stopMetrics = cancel

	addr := fmt.Sprintf("localhost:%d", rt.Config.Debug.MetricsPort)

	go func() {
		if err := monitor.Serve(metricsCtx, addr); err != nil {
			logging.WithError(err).Warn("metrics server stopped")
		}
	}()
}

// Agent builds a query orchestrator over the runtime's store and generator
func (rt *Runtime) Agent(opts agent.Options) *agent.Agent {
	return agent.New(rt.Store, rt.Generator, opts)
}

func (rt *Runtime) Close() error {
	if rt.stopMetrics != nil {
		rt.stopMetrics()
	}

	if rt.Collection != nil {
		return rt.Collection.Close()
	}

	return nil
}

func agentOptions(cfg *config.Config) agent.Options {
	return agent.Options{
		TopK: cfg.Agent.TopK,
		History: agent.HistoryOptions{
			Enabled:   cfg.History.Enabled,
			MaxStored: cfg.History.MaxStored,
			InPrompt:  cfg.History.InPrompt,
			Summarize: cfg.History.Summarize,
		},
	}
}

// backendLabel is the store backend as shown to users
func backendLabel(cfg *config.Config) string {
	backend := strings.ToLower(cfg.Store.Backend)

	switch backend {
	case "duckdb", "sqlite":
		return backend + " (" + cfg.Store.Path + ")"
	case "qdrant":
		return fmt.Sprintf("qdrant (%s:%d)", cfg.Store.QdrantHost, cfg.Store.QdrantPort)
	default:
		return backend
	}
}

package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/sql-agent/internal/cache"
	"github.com/kyleking/sql-agent/internal/monitor"
	"github.com/kyleking/sql-agent/internal/schemastore"
)

func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:        "stats",
		Usage:       "Display store statistics",
		Description: `Show how many schemas are stored, which backends are configured and how the embedding cache is doing.`,
		Flags:       globalFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}

			rt, err := newRuntime(ctx, cfg, runtimeNeeds{})
			if err != nil {
				return err
			}
			defer rt.Close()

			info := statsInfo{
				Backend:   backendLabel(cfg),
				Embedding: rt.Embedder.GetName(),
				LLM:       cfg.LLM.Provider,
				Cache:     rt.Cache,
			}

			if cfg.LLM.Model != "" {
				info.LLM += ":" + cfg.LLM.Model
			}

			return RunStatsWithDeps(ctx, rt.Store, info, cfg.Debug.Verbose)
		},
	}
}

// statsInfo describes the configured collaborators
type statsInfo struct {
	Backend   string
	Embedding string
	LLM       string
	Cache     cache.Cache
}

func RunStatsWithDeps(ctx context.Context, store *schemastore.Store, info statsInfo, verbose bool) error {
	count, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count schemas: %w", err)
	}

	fmt.Printf("Store Statistics\n")
	fmt.Printf("================\n\n")

	fmt.Printf("Stored Schemas: %d\n", count)
	fmt.Printf("Backend: %s\n", info.Backend)
	fmt.Printf("Embedding: %s\n", info.Embedding)
	fmt.Printf("LLM: %s\n", info.LLM)

	if info.Cache != nil {
		stats, err := info.Cache.Stats(ctx)
		if err != nil {
			return fmt.Errorf("failed to read cache statistics: %w", err)
		}

		fmt.Printf("\nEmbedding Cache:\n")
		fmt.Printf("  Entries: %d\n", stats.TotalEntries)
		fmt.Printf("  Size: %.2f MB\n", float64(stats.TotalSize)/(1024*1024))
		fmt.Printf("  Hit Rate: %.1f%%\n", stats.HitRate*100)
	} else {
		fmt.Printf("\nEmbedding Cache: disabled\n")
	}

	if verbose {
		fmt.Printf("\n%s\n", monitor.ReadMemoryStats())
	}

	return nil
}

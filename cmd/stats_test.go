package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/sql-agent/internal/cache"
)

func TestRunStats(t *testing.T) {
	fc, err := cache.NewFileCache(t.TempDir(), 10, time.Hour)
	require.NoError(t, err)
	require.NoError(t, fc.Set(context.Background(), "k", []byte("vector"), 0))

	tests := []struct {
		name        string
		cache       cache.Cache
		verbose     bool
		contains    []string
		notContains []string
	}{
		{
			name:  "with cache",
			cache: fc,
			contains: []string{
				"Store Statistics",
				"Stored Schemas: 3",
				"Backend: memory",
				"Embedding: hash",
				"LLM: ollama:llama2",
				"Embedding Cache:",
				"Entries: 1",
			},
			notContains: []string{"Memory Statistics:"},
		},
		{
			name:     "cache disabled and verbose",
			verbose:  true,
			contains: []string{"Embedding Cache: disabled", "Memory Statistics:", "Goroutines:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := statsInfo{Backend: "memory", Embedding: "hash", LLM: "ollama:llama2", Cache: tt.cache}

			output, err := captureOutput(t, func() error {
				return RunStatsWithDeps(context.Background(), newLoadedStore(t), info, tt.verbose)
			})
			require.NoError(t, err)

			for _, expected := range tt.contains {
				assert.Contains(t, output, expected)
			}

			for _, unexpected := range tt.notContains {
				assert.NotContains(t, output, unexpected)
			}
		})
	}
}

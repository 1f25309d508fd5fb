package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kyleking/sql-agent/internal/cache"
	"github.com/kyleking/sql-agent/internal/config"
)

// Provider defines the interface for embedding providers
type Provider interface {
	// GenerateEmbedding generates an embedding for the given text
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// GetDimensions returns the dimensionality of embeddings produced by this provider
	GetDimensions() int

	// GetName returns the provider name for identification
	GetName() string
}

// NewProvider builds the configured provider. When c is non-nil the provider
// is wrapped so vectors are reused across runs.
func NewProvider(cfg config.EmbeddingConfig, c cache.Cache) (Provider, error) {
	var provider Provider

	switch strings.ToLower(cfg.Provider) {
	case "ollama":
		p, err := NewOllamaProvider(cfg.BaseURL, cfg.Model, cfg.Dimensions,
			config.Duration(cfg.Timeout, 30*time.Second))
		if err != nil {
			return nil, err
		}

		provider = p
	case "hash":
		provider = NewHashProvider(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	if c != nil && cfg.Cache {
		provider = NewCachedProvider(provider, c)
	}

	return provider, nil
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// the lengths differ or either vector is zero
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dot, normA, normB float64

	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func toFloat32(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}

	return out
}

package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/kyleking/sql-agent/internal/cache"
	"github.com/kyleking/sql-agent/internal/logging"
	"github.com/kyleking/sql-agent/internal/monitor"
)

// CachedProvider reuses vectors for text it has embedded before
type CachedProvider struct {
	inner Provider
	cache cache.Cache
}

// NewCachedProvider wraps inner with c
func NewCachedProvider(inner Provider, c cache.Cache) *CachedProvider {
	return &CachedProvider{inner: inner, cache: c}
}

func (p *CachedProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := p.key(text)

	if data, err := p.cache.Get(ctx, key); err == nil {
		var vec []float32
		if err := json.Unmarshal(data, &vec); err == nil && len(vec) > 0 {
			monitor.RecordEmbeddingCache(true)
			return vec, nil
		}
	}

	monitor.RecordEmbeddingCache(false)

	vec, err := p.inner.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(vec); err == nil {
		if err := p.cache.Set(ctx, key, data, 0); err != nil {
			logging.WithField("provider", p.inner.GetName()).WithError(err).Debug("failed to cache embedding")
		}
	}

	return vec, nil
}

func (p *CachedProvider) GetDimensions() int {
	return p.inner.GetDimensions()
}

func (p *CachedProvider) GetName() string {
	return p.inner.GetName()
}

// key binds the vector to the provider name so switching models never
// returns a stale vector
func (p *CachedProvider) key(text string) string {
	sum := sha256.Sum256([]byte(p.inner.GetName() + "\x00" + text))
	return "embedding:" + hex.EncodeToString(sum[:])
}

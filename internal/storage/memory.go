package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/kyleking/sql-agent/internal/embedding"
	"github.com/kyleking/sql-agent/internal/errors"
)

// MemoryCollection keeps everything in process. Contents are lost on Close.
type MemoryCollection struct {
	name     string
	provider embedding.Provider

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	record Record
	vector []float32
}

// NewMemoryCollection creates an empty in-process collection
func NewMemoryCollection(name string, provider embedding.Provider) *MemoryCollection {
	return &MemoryCollection{
		name:     name,
		provider: provider,
		entries:  make(map[string]memoryEntry),
	}
}

func (c *MemoryCollection) Upsert(ctx context.Context, id, document string, metadata Metadata) error {
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

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[id] = memoryEntry{
		record: Record{ID: id, Document: document, Metadata: copyMetadata(metadata)},
		vector: vector,
	}

	return nil
}

func (c *MemoryCollection) Query(ctx context.Context, text string, limit int) ([]Match, error) {
	if limit <= 0 {
		return []Match{}, nil
	}

	c.mu.RLock()
	empty := len(c.entries) == 0
	c.mu.RUnlock()

	if empty {
		return []Match{}, nil
	}

	query, err := c.provider.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeEmbedding, "failed to embed query")
	}

	c.mu.RLock()
	candidates := make([]scored, 0, len(c.entries))
	for _, e := range c.entries {
		candidates = append(candidates, scored{
			match:  Match{Record: cloneRecord(e.record)},
			vector: e.vector,
		})
	}
	c.mu.RUnlock()

	return rank(query, candidates, limit), nil
}

func (c *MemoryCollection) Get(_ context.Context, ids ...string) ([]Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Record, 0, len(ids))
	seen := make(map[string]bool, len(ids))

	for _, id := range ids {
		if e, ok := c.entries[id]; ok && !seen[id] {
			out = append(out, cloneRecord(e.record))
			seen[id] = true
		}
	}

	return out, nil
}

func (c *MemoryCollection) List(_ context.Context) ([]Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Record, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, cloneRecord(e.record))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (c *MemoryCollection) Delete(_ context.Context, ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range ids {
		delete(c.entries, id)
	}

	return nil
}

func (c *MemoryCollection) Count(_ context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries), nil
}

func (c *MemoryCollection) Reset(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]memoryEntry)

	return nil
}

func (c *MemoryCollection) Close() error {
	return nil
}

func cloneRecord(r Record) Record {
	r.Metadata = copyMetadata(r.Metadata)
	return r
}

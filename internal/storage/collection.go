// Package storage provides the vector collections schema documents are kept
// in. Every backend embeds documents itself through an embedding.Provider,
// so callers only deal in text.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kyleking/sql-agent/internal/embedding"
	"github.com/kyleking/sql-agent/internal/errors"
)

// Collection is a named set of documents searchable by similarity
type Collection interface {
	// Upsert inserts or replaces the document stored under id
	Upsert(ctx context.Context, id, document string, metadata Metadata) error

	// Query returns up to limit records ranked by similarity to text
	Query(ctx context.Context, text string, limit int) ([]Match, error)

	// Get returns the records for the ids that exist, in the order requested
	Get(ctx context.Context, ids ...string) ([]Record, error)

	// List returns every record ordered by id
	List(ctx context.Context) ([]Record, error)

	// Delete removes the given ids; unknown ids are ignored
	Delete(ctx context.Context, ids ...string) error

	Count(ctx context.Context) (int, error)

	// Reset drops every record, leaving the collection usable
	Reset(ctx context.Context) error

	Close() error
}

// Metadata holds scalar attributes stored next to a document
type Metadata map[string]interface{}

// Record is a stored document with its metadata
type Record struct {
	ID       string   `json:"id"`
	Document string   `json:"document"`
	Metadata Metadata `json:"metadata"`
}

// Match is a query hit; higher scores are more similar
type Match struct {
	Record
	Score float64 `json:"score"`
}

// Validate rejects values that are not strings, numbers, or booleans
func (m Metadata) Validate() error {
	for key, value := range m {
		switch value.(type) {
		case string, bool, int, int32, int64, float32, float64:
		default:
			return errors.Newf(errors.ErrTypeValidation,
				"metadata %q has unsupported type %T (must be string, number, or bool)", key, value)
		}
	}

	return nil
}

// String returns the value under key formatted as text, or "" when absent
func (m Metadata) String(key string) string {
	value, ok := m[key]
	if !ok || value == nil {
		return ""
	}

	if s, ok := value.(string); ok {
		return s
	}

	return fmt.Sprint(value)
}

// Keys returns the metadata keys in sorted order
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New(errors.ErrTypeValidation, "document id must not be empty")
	}

	return nil
}

// rank scores candidates against the query vector and keeps the best limit,
// breaking ties by id so results are stable
func rank(query []float32, candidates []scored, limit int) []Match {
	for i := range candidates {
		candidates[i].match.Score = embedding.CosineSimilarity(query, candidates[i].vector)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].match.Score != candidates[j].match.Score {
			return candidates[i].match.Score > candidates[j].match.Score
		}

		return candidates[i].match.ID < candidates[j].match.ID
	})

	if limit > len(candidates) {
		limit = len(candidates)
	}

	out := make([]Match, limit)
	for i := 0; i < limit; i++ {
		out[i] = candidates[i].match
	}

	return out
}

type scored struct {
	match  Match
	vector []float32
}

// orderByIDs returns the records whose id is in ids, following the order of ids
func orderByIDs(records []Record, ids []string) []Record {
	byID := make(map[string]Record, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	out := make([]Record, 0, len(ids))
	seen := make(map[string]bool, len(ids))

	for _, id := range ids {
		if r, ok := byID[id]; ok && !seen[id] {
			out = append(out, r)
			seen[id] = true
		}
	}

	return out
}

func copyMetadata(m Metadata) Metadata {
	if m == nil {
		return Metadata{}
	}

	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}

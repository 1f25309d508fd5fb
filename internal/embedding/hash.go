package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashProvider maps text to a fixed-size vector with the hashing trick:
// each lowercased token, and each adjacent pair of tokens, adds a signed
// count to one bucket. Texts sharing vocabulary land close together, which
// is enough for offline use and tests without a model server.
type HashProvider struct {
	dimensions int
}

// NewHashProvider creates a provider producing vectors of the given size
func NewHashProvider(dimensions int) *HashProvider {
	if dimensions <= 0 {
		dimensions = 256
	}

	return &HashProvider{dimensions: dimensions}
}

func (p *HashProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float64, p.dimensions)
	tokens := tokenize(text)

	for i, tok := range tokens {
		p.add(vec, tok, 1.0)

		if i > 0 {
			p.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}

	out := make([]float32, p.dimensions)
	if norm == 0 {
		return out, nil
	}

	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}

	return out, nil
}

func (p *HashProvider) add(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	bucket := int(sum % uint64(p.dimensions))
	if sum&(1<<63) != 0 {
		weight = -weight
	}

	vec[bucket] += weight
}

func (p *HashProvider) GetDimensions() int {
	return p.dimensions
}

func (p *HashProvider) GetName() string {
	return "hash"
}

// tokenize splits on anything that is not a letter or digit, so snake_case
// identifiers contribute their parts as well
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

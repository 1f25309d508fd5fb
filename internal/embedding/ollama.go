package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/kyleking/sql-agent/internal/errors"
)

// OllamaProvider embeds text through a local or remote Ollama server
type OllamaProvider struct {
	client     *api.Client
	model      string
	dimensions int
}

// NewOllamaProvider creates a provider for model served at baseURL
func NewOllamaProvider(baseURL, model string, dimensions int, timeout time.Duration) (*OllamaProvider, error) {
	if model == "" {
		return nil, errors.New(errors.ErrTypeConfig, "ollama embedding model is required")
	}

	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Newf(errors.ErrTypeConfig, "invalid ollama url %q", baseURL).
			WithSuggestion("Set SQL_AGENT_EMBEDDING_BASE_URL or OLLAMA_HOST to e.g. http://localhost:11434")
	}

	return &OllamaProvider{
		client:     api.NewClient(u, &http.Client{Timeout: timeout}),
		model:      model,
		dimensions: dimensions,
	}, nil
}

// GenerateEmbedding requests one embedding and checks its dimensionality
func (p *OllamaProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float32, p.dimensions), nil
	}

	resp, err := p.client.Embeddings(ctx, &api.EmbeddingRequest{
		Model:  p.model,
		Prompt: text,
	})
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeEmbedding, "ollama embedding with %s failed", p.model)
	}

	if len(resp.Embedding) == 0 {
		return nil, errors.Newf(errors.ErrTypeEmbedding, "ollama returned an empty embedding for %s", p.model).
			WithSuggestion(fmt.Sprintf("Pull the model first: ollama pull %s", p.model))
	}

	if p.dimensions > 0 && len(resp.Embedding) != p.dimensions {
		return nil, errors.Newf(errors.ErrTypeEmbedding,
			"dimension mismatch: expected %d, got %d", p.dimensions, len(resp.Embedding))
	}

	return toFloat32(resp.Embedding), nil
}

func (p *OllamaProvider) GetDimensions() int {
	return p.dimensions
}

func (p *OllamaProvider) GetName() string {
	return "ollama:" + p.model
}

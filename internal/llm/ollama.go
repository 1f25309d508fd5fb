package llm

import (
	"context"
	goerrors "errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/kyleking/sql-agent/internal/errors"
)

const defaultOllamaURL = "http://localhost:11434"

// Ollama generates with a local model through the Ollama API
type Ollama struct {
	client    *api.Client
	model     string
	maxTokens int
}

func NewOllama(baseURL, model string, maxTokens int, timeout time.Duration) (*Ollama, error) {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.NewConfigError("invalid Ollama base URL: "+baseURL, "llm.base_url")
	}

	return &Ollama{
		client:    api.NewClient(u, &http.Client{Timeout: timeout}),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (o *Ollama) GetName() string {
	return ProviderOllama + ":" + o.model
}

func (o *Ollama) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	return o.GenerateWithSystem(ctx, "", prompt, temperature)
}

func (o *Ollama) GenerateWithSystem(ctx context.Context, system, user string, temperature float64) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  o.model,
		Prompt: user,
		System: system,
		Stream: &stream,
		Options: map[string]interface{}{
			"temperature": temperature,
			"num_predict": o.maxTokens,
		},
	}

	var out strings.Builder

	err := o.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		var status api.StatusError
		if goerrors.As(err, &status) {
			return "", &APIError{Provider: ProviderOllama, StatusCode: status.StatusCode, Body: status.ErrorMessage}
		}

		return "", errors.Wrap(err, errors.ErrTypeNetwork, "ollama request failed")
	}

	return out.String(), nil
}

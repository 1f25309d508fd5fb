package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kyleking/sql-agent/internal/errors"
)

const (
	defaultAnthropicURL = "https://api.anthropic.com/v1"
	anthropicVersion    = "2023-06-01"
)

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Anthropic uses the messages API
type Anthropic struct {
	apiKey     string
	model      string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
}

func NewAnthropic(apiKey, model, baseURL string, maxTokens int, timeout time.Duration) (*Anthropic, error) {
	if apiKey == "" {
		return nil, errors.NewConfigError("API key is required for Anthropic provider", "llm.api_key").
			WithSuggestion("Set ANTHROPIC_API_KEY")
	}

	if baseURL == "" {
		baseURL = defaultAnthropicURL
	}

	return &Anthropic{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (a *Anthropic) GetName() string {
	return ProviderAnthropic + ":" + a.model
}

func (a *Anthropic) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	return a.GenerateWithSystem(ctx, "", prompt, temperature)
}

func (a *Anthropic) GenerateWithSystem(ctx context.Context, system, user string, temperature float64) (string, error) {
	reqBody := anthropicRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Temperature: temperature,
		System:      system,
		Messages:    []anthropicMessage{{Role: "user", Content: user}},
	}

	respBody, err := postJSON(ctx, a.httpClient, ProviderAnthropic, a.baseURL+"/messages", map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicVersion,
	}, reqBody)
	if err != nil {
		return "", err
	}

	return parseAnthropicResponse(respBody)
}

// parseAnthropicResponse also reads Claude responses from Bedrock invoke
func parseAnthropicResponse(body []byte) (string, error) {
	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", errors.Wrap(err, errors.ErrTypeGeneration, "failed to parse Anthropic response")
	}

	if response.Error != nil {
		return "", errors.Newf(errors.ErrTypeGeneration, "Anthropic API error: %s", response.Error.Message)
	}

	var parts []string
	for _, c := range response.Content {
		if c.Type == "" || c.Type == "text" {
			parts = append(parts, c.Text)
		}
	}

	if len(parts) == 0 {
		return "", errors.New(errors.ErrTypeGeneration, "no response from Anthropic")
	}

	return strings.Join(parts, ""), nil
}

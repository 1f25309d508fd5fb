package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kyleking/sql-agent/internal/errors"
)

const defaultOpenAIURL = "https://api.openai.com/v1"

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIChoice struct {
	Message openAIMessage `json:"message"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// OpenAI uses the chat completions API
type OpenAI struct {
	apiKey     string
	model      string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
}

func NewOpenAI(apiKey, model, baseURL string, maxTokens int, timeout time.Duration) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.NewConfigError("API key is required for OpenAI provider", "llm.api_key").
			WithSuggestion("Set OPENAI_API_KEY")
	}

	if baseURL == "" {
		baseURL = defaultOpenAIURL
	}

	return &OpenAI{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (o *OpenAI) GetName() string {
	return ProviderOpenAI + ":" + o.model
}

func (o *OpenAI) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	return o.chat(ctx, []openAIMessage{{Role: "user", Content: prompt}}, temperature)
}

func (o *OpenAI) GenerateWithSystem(ctx context.Context, system, user string, temperature float64) (string, error) {
	return o.chat(ctx, []openAIMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, temperature)
}

func (o *OpenAI) chat(ctx context.Context, messages []openAIMessage, temperature float64) (string, error) {
	reqBody := openAIRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   o.maxTokens,
	}

	respBody, err := postJSON(ctx, o.httpClient, ProviderOpenAI, o.baseURL+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + o.apiKey}, reqBody)
	if err != nil {
		return "", err
	}

	var response openAIResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", errors.Wrap(err, errors.ErrTypeGeneration, "failed to parse OpenAI response")
	}

	if response.Error != nil {
		return "", errors.Newf(errors.ErrTypeGeneration, "OpenAI API error: %s", response.Error.Message)
	}

	if len(response.Choices) == 0 {
		return "", errors.New(errors.ErrTypeGeneration, "no response from OpenAI")
	}

	return response.Choices[0].Message.Content, nil
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kyleking/sql-agent/internal/errors"
)

const (
	defaultTimeout = 60 * time.Second

	// maxErrorBody bounds how much of a failed response is kept in the error
	maxErrorBody = 2048
)

// APIError is a non-2xx response from a provider
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API request failed with status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// postJSON sends body as JSON and returns the raw response body
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, body interface{}) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeInternal, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeConfig, "failed to create request")
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeNetwork, "%s request failed", provider)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeNetwork, "failed to read %s response", provider)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(respBody) > maxErrorBody {
			respBody = respBody[:maxErrorBody]
		}

		return nil, &APIError{Provider: provider, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(respBody))}
	}

	return respBody, nil
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Endpoint is an OpenAI compatible HTTP API: a base URL, an optional bearer
// key and the client used to reach it. Chat and embedding clients share it.
type Endpoint struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewEndpoint(baseURL, apiKey string, timeout time.Duration) Endpoint {
	return Endpoint{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// PostJSON sends in to BaseURL+path and decodes the reply into out.
// Transport failures and error statuses are classified by TransportError and
// StatusError; an "error" object in a 2xx body is reported as well.
func (e Endpoint) PostJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.APIKey)
	}

	resp, err := e.HTTP.Do(req)
	if err != nil {
		return TransportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := StatusError(resp.StatusCode, body); err != nil {
		return err
	}

	var envelope struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to parse response (body: %s): %w", preview(body), err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("API error: %s", envelope.Error.Message)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response (body: %s): %w", preview(body), err)
	}
	return nil
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"ctxasm/internal/domain"
)

// ChatClient talks to any OpenAI compatible chat completions endpoint.
type ChatClient struct {
	endpoint    Endpoint
	model       string
	temperature float64
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

// Options configures a ChatClient.
type Options struct {
	BaseURL   string
	Model     string
	APIKeyEnv string
	Timeout   time.Duration
}

func NewChatClient(opts Options) (*ChatClient, error) {
	apiKey := ""
	if opts.APIKeyEnv != "" {
		apiKey = os.Getenv(opts.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("API key not found in environment variable: %s", opts.APIKeyEnv)
		}
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	return &ChatClient{
		endpoint: NewEndpoint(opts.BaseURL, apiKey, opts.Timeout),
		model:    opts.Model,
	}, nil
}

// Complete sends prompt as a single user message.
func (c *ChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	var resp chatResponse
	err := c.endpoint.PostJSON(ctx, "/chat/completions", chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.temperature,
	}, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("API returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *ChatClient) ModelName() string {
	return c.model
}

// StatusError maps a non-2xx response to an error. 429 wraps
// domain.ErrRateLimited and 5xx wraps domain.ErrProviderUnavailable, both of
// which the rate limiter retries.
func StatusError(code int, body []byte) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d: %s", domain.ErrRateLimited, code, preview(body))
	case code >= 500:
		return fmt.Errorf("%w: status %d: %s", domain.ErrProviderUnavailable, code, preview(body))
	default:
		return fmt.Errorf("API returned status %d: %s", code, preview(body))
	}
}

// TransportError classifies a failed round trip. Cancellation is returned
// as the context error; anything else counts as the provider being unreachable.
func TransportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

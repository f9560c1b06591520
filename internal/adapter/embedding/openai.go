package embedding

import (
	"context"
	"fmt"
	"os"
	"time"

	"ctxasm/internal/adapter/llm"
)

// Widths of the embedding models whose output size is fixed. Other models
// fall back to the provider default unless WithDimension says otherwise.
var knownDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
}

const (
	openAIBaseURL = "https://api.openai.com/v1"
	ollamaBaseURL = "http://localhost:11434/v1"
	// inputs per request; larger Embed calls are split
	requestBatch = 100
)

// OpenAIEmbedder embeds documents through an OpenAI compatible /embeddings
// endpoint. Ollama serves the same API.
type OpenAIEmbedder struct {
	endpoint  llm.Endpoint
	model     string
	dimension int
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data []embeddingData `json:"data"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

func NewOpenAIEmbedder(apiKeyEnv, model string) (*OpenAIEmbedder, error) {
	return NewOpenAICompatibleEmbedder(apiKeyEnv, model, openAIBaseURL)
}

// NewOllamaEmbedder needs no key; local models are slow to load, hence the longer timeout.
func NewOllamaEmbedder(model, baseURL string) (*OpenAIEmbedder, error) {
	if baseURL == "" {
		baseURL = ollamaBaseURL
	}
	e := &OpenAIEmbedder{
		endpoint:  llm.NewEndpoint(baseURL, "", 120*time.Second),
		model:     model,
		dimension: dimensionOf(model, 768),
	}
	return e, nil
}

func NewOpenAICompatibleEmbedder(apiKeyEnv, model, baseURL string) (*OpenAIEmbedder, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}
	return newEmbedder(apiKey, model, baseURL), nil
}

func newEmbedder(apiKey, model, baseURL string) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		endpoint:  llm.NewEndpoint(baseURL, apiKey, 60*time.Second),
		model:     model,
		dimension: dimensionOf(model, 1536),
	}
}

func dimensionOf(model string, fallback int) int {
	if d, ok := knownDimensions[model]; ok {
		return d
	}
	return fallback
}

// WithDimension overrides the dimension inferred from the model name.
func (e *OpenAIEmbedder) WithDimension(d int) *OpenAIEmbedder {
	if d > 0 {
		e.dimension = d
	}
	return e
}

// Embed returns one vector per text, in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += requestBatch {
		end := min(start+requestBatch, len(texts))
		vecs, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var resp embeddingResponse
	if err := e.endpoint.PostJSON(ctx, "/embeddings", embeddingRequest{Input: texts, Model: e.model}, &resp); err != nil {
		return nil, err
	}

	// providers may answer out of order; Index says which input a vector belongs to
	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(vecs) {
			vecs[d.Index] = d.Embedding
		}
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("API returned no embedding for input %d", i)
		}
	}
	return vecs, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

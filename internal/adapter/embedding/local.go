package embedding

import (
	"context"
	"math"

	"github.com/cespare/xxhash/v2"

	"ctxasm/internal/adapter/analyzer"
)

// HashEmbedder is a deterministic, offline embedder: every term is hashed
// into one of dimension buckets and the bag of terms is L2 normalized.
// Texts sharing vocabulary end up close under cosine similarity.
type HashEmbedder struct {
	dimension int
	tokenizer *analyzer.Tokenizer
}

func NewHashEmbedder(dimension int, tokenizer *analyzer.Tokenizer) *HashEmbedder {
	if dimension <= 0 {
		dimension = 256
	}
	return &HashEmbedder{dimension: dimension, tokenizer: tokenizer}
}

func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec := make([]float32, e.dimension)
		for _, term := range e.tokenizer.Tokenize(text) {
			vec[xxhash.Sum64String(term)%uint64(e.dimension)]++
		}
		normalize(vec)
		embeddings[i] = vec
	}
	return embeddings, nil
}

func (e *HashEmbedder) Dimension() int {
	return e.dimension
}

func (e *HashEmbedder) ModelName() string {
	return "hash"
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
}

package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctxasm/internal/adapter/analyzer"
	"ctxasm/internal/domain"
)

func TestOpenAIEmbedder_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := embeddingResponse{}
		// answer out of order to exercise index mapping
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, embeddingData{Index: i, Embedding: []float32{float32(i), 1}})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := newEmbedder("key", "custom", srv.URL).WithDimension(2)
	vecs, err := e.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{2, 1}, vecs[2])
	assert.Equal(t, 2, e.Dimension())
}

func TestOpenAIEmbedder_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newEmbedder("key", "m", srv.URL).Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestOpenAIEmbedder_MissingVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embeddingResponse{Data: []embeddingData{{Index: 0, Embedding: []float32{1}}}})
	}))
	defer srv.Close()

	_, err := newEmbedder("key", "m", srv.URL).Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input 1")
}

func TestDimensionOf(t *testing.T) {
	assert.Equal(t, 3072, dimensionOf("text-embedding-3-large", 1536))
	assert.Equal(t, 384, dimensionOf("all-minilm", 768))
	assert.Equal(t, 768, dimensionOf("some-local-model", 768))
}

func TestHashEmbedder(t *testing.T) {
	e := NewHashEmbedder(64, analyzer.NewTokenizer(true))

	vecs, err := e.Embed(context.Background(), []string{
		"running dogs",
		"the dog runs",
		"",
	})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Len(t, vecs[0], 64)
	assert.Equal(t, vecs[0], vecs[1], "stemming makes both texts the same bag")
	for _, x := range vecs[2] {
		assert.Zero(t, x)
	}
}

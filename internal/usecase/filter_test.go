package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctxasm/internal/domain"
)

func candidates(contents ...string) []domain.CandidateDocument {
	out := make([]domain.CandidateDocument, len(contents))
	for i, c := range contents {
		out[i] = domain.CandidateDocument{Path: "/docs/" + c + ".md", Content: c}
	}
	return out
}

func docPaths(docs []domain.CandidateDocument) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Path
	}
	return out
}

func TestFilter_ThresholdIsStrict(t *testing.T) {
	scorer := &mapScorer{scores: map[string]int{"five": 5, "six": 6}}
	u := NewFilterUseCase(scorer, 10, 2, nil)

	got, err := u.Filter(context.Background(), "q", candidates("five", "six"), 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "/docs/six.md", got[0].Path)
	assert.Equal(t, 6, got[0].Score)
	assert.Equal(t, "scored 6", got[0].Reason)
	assert.False(t, got[0].HighlyRelevant)
}

func TestFilter_HighlyRelevantFirst(t *testing.T) {
	scorer := &mapScorer{scores: map[string]int{"a": 7, "b": 9, "c": 8, "d": 9, "e": 3}}
	u := NewFilterUseCase(scorer, 7, 4, nil)

	// retrieval order a, b, c, d, e
	got, err := u.Filter(context.Background(), "q", candidates("a", "b", "c", "d", "e"), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"/docs/b.md", "/docs/d.md", "/docs/c.md", "/docs/a.md", "/docs/e.md"}, docPaths(got))
	assert.True(t, got[0].HighlyRelevant)
	assert.True(t, got[2].HighlyRelevant)
	assert.False(t, got[3].HighlyRelevant)
}

func TestFilter_ScoringFailureCountsAsZero(t *testing.T) {
	scorer := &mapScorer{
		scores: map[string]int{"ok": 8},
		errs:   map[string]error{"broken": fmt.Errorf("%w: not json", domain.ErrScoring)},
	}
	u := NewFilterUseCase(scorer, 10, 1, nil)

	got, err := u.Filter(context.Background(), "q", candidates("broken", "ok"), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"/docs/ok.md"}, docPaths(got))
}

func TestFilter_SystemicFailurePropagates(t *testing.T) {
	scorer := &mapScorer{errs: map[string]error{"x": domain.ErrProviderUnavailable}}
	u := NewFilterUseCase(scorer, 10, 1, nil)

	_, err := u.Filter(context.Background(), "q", candidates("x", "y"), 0)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestFilter_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	u := NewFilterUseCase(&mapScorer{}, 10, 1, nil)

	_, err := u.Filter(ctx, "q", candidates("x"), 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFilter_DoesNotMutateInput(t *testing.T) {
	in := candidates("a")
	u := NewFilterUseCase(&mapScorer{scores: map[string]int{"a": 9}}, 5, 1, nil)

	_, err := u.Filter(context.Background(), "q", in, 0)
	require.NoError(t, err)
	assert.Zero(t, in[0].Score)
	assert.False(t, in[0].HighlyRelevant)
}

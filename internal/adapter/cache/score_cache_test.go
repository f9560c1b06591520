package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctxasm/internal/domain"
)

func TestScoreCache_GetPut(t *testing.T) {
	c := NewScoreCache(10, time.Minute)

	_, hit := c.Get("q", "content")
	assert.False(t, hit)

	c.Put("q", "content", domain.Relevance{Score: 7, Reason: "match"})
	rel, hit := c.Get("q", "content")
	require.True(t, hit)
	assert.Equal(t, 7, rel.Score)

	_, hit = c.Get("q", "other content")
	assert.False(t, hit)
	_, hit = c.Get("other q", "content")
	assert.False(t, hit)
}

func TestScoreCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewScoreCache(2, time.Minute)

	c.Put("q", "a", domain.Relevance{Score: 1})
	c.Put("q", "b", domain.Relevance{Score: 2})
	_, _ = c.Get("q", "a")
	c.Put("q", "c", domain.Relevance{Score: 3})

	assert.Equal(t, 2, c.Size())
	_, hit := c.Get("q", "b")
	assert.False(t, hit)
	_, hit = c.Get("q", "a")
	assert.True(t, hit)
}

func TestScoreCache_TTLAndInvalidate(t *testing.T) {
	c := NewScoreCache(10, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put("q", "a", domain.Relevance{Score: 1})
	now = now.Add(2 * time.Minute)
	_, hit := c.Get("q", "a")
	assert.False(t, hit)

	c.Put("q", "a", domain.Relevance{Score: 1})
	c.Invalidate()
	_, hit = c.Get("q", "a")
	assert.False(t, hit)
	assert.Zero(t, c.Size())
}

type countingScorer struct {
	calls int
	err   error
}

func (s *countingScorer) Score(_ context.Context, _, _ string) (domain.Relevance, error) {
	s.calls++
	if s.err != nil {
		return domain.Relevance{}, s.err
	}
	return domain.Relevance{Score: 8}, nil
}

func TestCachedScorer(t *testing.T) {
	inner := &countingScorer{}
	s := NewCachedScorer(inner, NewScoreCache(10, time.Minute))

	for i := 0; i < 3; i++ {
		rel, err := s.Score(context.Background(), "q", "body")
		require.NoError(t, err)
		assert.Equal(t, 8, rel.Score)
	}
	assert.Equal(t, 1, inner.calls)

	failing := &countingScorer{err: errors.New("boom")}
	s = NewCachedScorer(failing, NewScoreCache(10, time.Minute))
	_, err := s.Score(context.Background(), "q", "body")
	assert.Error(t, err)
	_, err = s.Score(context.Background(), "q", "body")
	assert.Error(t, err)
	assert.Equal(t, 2, failing.calls)
}

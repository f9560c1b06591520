package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctxasm/internal/adapter/analyzer"
	"ctxasm/internal/domain"
)

func newAllocator(ex *echoExcerpter, minBuffer int) *Allocator {
	return NewAllocator(ex, analyzer.NewTokenizer(false), 32, minBuffer, nil)
}

func doc(path string, wordCount int) domain.CandidateDocument {
	return domain.CandidateDocument{Path: path, Content: words(wordCount), Score: 8}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		limit         int
		full, segment float64
		want          domain.BudgetAllocation
	}{
		{1000, 0.7, 0.2, domain.BudgetAllocation{TotalLimit: 1000, FullTextQuota: 700, SegmentQuota: 200, BufferQuota: 100}},
		{1000, 0.29, 0.71, domain.BudgetAllocation{TotalLimit: 1000, FullTextQuota: 290, SegmentQuota: 710, BufferQuota: 0}},
		{999, 0.5, 0.5, domain.BudgetAllocation{TotalLimit: 999, FullTextQuota: 499, SegmentQuota: 499, BufferQuota: 1}},
		{10, 0, 0, domain.BudgetAllocation{TotalLimit: 10, BufferQuota: 10}},
		{0, 0.7, 0.2, domain.BudgetAllocation{}},
		{-50, 0.7, 0.2, domain.BudgetAllocation{}},
	}
	for _, tt := range tests {
		got, err := Split(tt.limit, tt.full, tt.segment)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "limit=%d full=%g segment=%g", tt.limit, tt.full, tt.segment)
	}
}

func TestSplit_InvalidRatios(t *testing.T) {
	for _, r := range [][2]float64{{0.8, 0.3}, {-0.1, 0.5}, {0.5, -0.1}} {
		_, err := Split(1000, r[0], r[1])
		assert.ErrorIs(t, err, domain.ErrInvalidBudget, "ratios %v", r)
	}
}

func TestAllocate_PartialFit(t *testing.T) {
	// 500, 400 and 100 tokens
	docs := []domain.CandidateDocument{doc("/d/1", 385), doc("/d/2", 308), doc("/d/3", 77)}

	got, err := newAllocator(&echoExcerpter{}, 0).Allocate(context.Background(), "q", docs, 1000, 0.7, 0.2)
	require.NoError(t, err)

	assert.Equal(t, domain.BudgetAllocation{TotalLimit: 1000, FullTextQuota: 700, SegmentQuota: 200, BufferQuota: 100}, got.Allocation)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "/d/1", got.Items[0].Path)
	assert.False(t, got.Items[0].Excerpt)
	assert.Equal(t, 500, got.Items[0].Tokens)

	assert.Equal(t, "/d/2", got.Items[1].Path)
	assert.True(t, got.Items[1].Excerpt)
	assert.LessOrEqual(t, got.Items[1].Tokens, 200)
	assert.Equal(t, 698, got.UsedTokens)
	assert.Empty(t, got.Warnings)
}

func TestAllocate_ShortExcerptsLeaveRoom(t *testing.T) {
	docs := []domain.CandidateDocument{doc("/d/1", 385), doc("/d/2", 308), doc("/d/3", 77)}

	got, err := newAllocator(&echoExcerpter{fixed: "short excerpt words"}, 0).Allocate(context.Background(), "q", docs, 1000, 0.7, 0.2)
	require.NoError(t, err)
	require.Len(t, got.Items, 3)
	assert.True(t, got.Items[1].Excerpt)
	assert.True(t, got.Items[2].Excerpt)
	assert.Equal(t, "/d/3", got.Items[2].Path)
	assert.Equal(t, 500+3+3, got.UsedTokens)
}

func TestAllocate_OversizedDocumentIsExcerpted(t *testing.T) {
	// 800 tokens, then 100
	docs := []domain.CandidateDocument{doc("/d/big", 616), doc("/d/small", 77)}

	got, err := newAllocator(&echoExcerpter{}, 0).Allocate(context.Background(), "q", docs, 1000, 0.7, 0.2)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "/d/small", got.Items[0].Path)
	assert.False(t, got.Items[0].Excerpt)
	assert.Equal(t, "/d/big", got.Items[1].Path)
	assert.True(t, got.Items[1].Excerpt)
}

func TestAllocate_HigherScoredDocumentKeptWhole(t *testing.T) {
	// 400 tokens each; only one fits the 700 token full-text quota
	first, second := doc("/d/z", 308), doc("/d/a", 308)
	first.Score, second.Score = 9, 7

	got, err := newAllocator(&echoExcerpter{}, 0).Allocate(context.Background(), "q", []domain.CandidateDocument{first, second}, 1000, 0.7, 0.2)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "/d/z", got.Items[0].Path)
	assert.False(t, got.Items[0].Excerpt)
	assert.Equal(t, 400, got.Items[0].Tokens)
	assert.True(t, got.Items[1].Excerpt)
}

func TestAllocate_EmptyInput(t *testing.T) {
	got, err := newAllocator(&echoExcerpter{}, 0).Allocate(context.Background(), "q", nil, 1000, 0.7, 0.2)
	require.NoError(t, err)
	assert.NotNil(t, got.Items)
	assert.Empty(t, got.Items)
	assert.Zero(t, got.UsedTokens)
	assert.Empty(t, got.Warnings)
}

func TestAllocate_NoBudgetWarns(t *testing.T) {
	docs := []domain.CandidateDocument{doc("/d/1", 10)}

	got, err := newAllocator(&echoExcerpter{}, 0).Allocate(context.Background(), "q", docs, 0, 0.7, 0.2)
	require.NoError(t, err)
	assert.Empty(t, got.Items)
	assert.Len(t, got.Warnings, 1)

	got, err = newAllocator(&echoExcerpter{}, 200).Allocate(context.Background(), "q", docs, 1000, 0.7, 0.2)
	require.NoError(t, err)
	assert.Empty(t, got.Items)
	require.Len(t, got.Warnings, 1)
	assert.Contains(t, got.Warnings[0], "buffer quota 100")
}

func TestAllocate_InvalidRatios(t *testing.T) {
	_, err := newAllocator(&echoExcerpter{}, 0).Allocate(context.Background(), "q", nil, 1000, 0.9, 0.2)
	assert.ErrorIs(t, err, domain.ErrInvalidBudget)
}

func TestAllocate_ExcerptFailureDropsDocument(t *testing.T) {
	docs := []domain.CandidateDocument{doc("/d/1", 385), doc("/d/2", 308)}

	got, err := newAllocator(&echoExcerpter{err: errors.New("model refused")}, 0).Allocate(context.Background(), "q", docs, 1000, 0.7, 0.2)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "/d/1", got.Items[0].Path)
}

func TestAllocate_CancelledDuringExcerpt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	docs := []domain.CandidateDocument{doc("/d/1", 385), doc("/d/2", 308)}

	_, err := newAllocator(&echoExcerpter{err: context.Canceled}, 0).Allocate(ctx, "q", docs, 1000, 0.7, 0.2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAllocate_NeverExceedsQuotas(t *testing.T) {
	docs := []domain.CandidateDocument{
		doc("/d/a", 50), doc("/d/b", 700), doc("/d/c", 120), doc("/d/d", 5), doc("/d/e", 300), doc("/d/f", 0),
	}
	for _, limit := range []int{1, 50, 333, 1000, 4096} {
		for _, full := range []float64{0, 0.3, 0.7, 1} {
			for _, seg := range []float64{0, 0.2, 0.5} {
				if full+seg > 1 {
					continue
				}
				got, err := newAllocator(&echoExcerpter{}, 0).Allocate(context.Background(), "q", docs, limit, full, seg)
				require.NoError(t, err)

				a := got.Allocation
				assert.Equal(t, limit, a.FullTextQuota+a.SegmentQuota+a.BufferQuota)
				assert.GreaterOrEqual(t, a.BufferQuota, 0)

				fullUsed, segUsed := 0, 0
				seen := map[string]bool{}
				for _, it := range got.Items {
					assert.False(t, seen[it.Path], "duplicate %s", it.Path)
					seen[it.Path] = true
					assert.Positive(t, it.Tokens)
					if it.Excerpt {
						segUsed += it.Tokens
					} else {
						fullUsed += it.Tokens
					}
				}
				assert.LessOrEqual(t, fullUsed, a.FullTextQuota, "limit=%d full=%g seg=%g", limit, full, seg)
				assert.LessOrEqual(t, segUsed, a.SegmentQuota, "limit=%d full=%g seg=%g", limit, full, seg)
				assert.Equal(t, fullUsed+segUsed, got.UsedTokens)
			}
		}
	}
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctxasm/internal/adapter/analyzer"
	"ctxasm/internal/domain"
)

func testIndex(paths ...string) domain.Index {
	idx := domain.Index{}
	for _, p := range paths {
		idx[p] = domain.IndexEntry{Path: p, ContentHash: p}
	}
	return idx
}

func newSelector(m *stubMatcher, r *stubRelated, s *mapScorer, reader mapReader, opts SelectOptions) *SelectUseCase {
	if r == nil {
		r = &stubRelated{}
	}
	if s == nil {
		s = &mapScorer{}
	}
	return NewSelectUseCase(m, r, s, reader, analyzer.NewTokenizer(false), opts, nil)
}

func paths(files []domain.TargetFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

func TestSelect_LevelNoneReturnsEverything(t *testing.T) {
	idx := testIndex("/p/c.go", "/p/a.go", "/p/b.go")
	m := &stubMatcher{}

	got, err := newSelector(m, nil, nil, nil, SelectOptions{Level: FilterNone}).Select(context.Background(), "anything", idx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/p/a.go", "/p/b.go", "/p/c.go"}, paths(got))
	assert.Empty(t, m.batches, "no stage runs at level 0")

	got, err = newSelector(m, nil, nil, nil, SelectOptions{Level: FilterNone, MaxFiles: 2}).Select(context.Background(), "q", idx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/p/a.go", "/p/b.go"}, paths(got))

	got, err = newSelector(m, nil, nil, nil, SelectOptions{Level: FilterVerified, Skip: true}).Select(context.Background(), "q", idx)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Empty(t, m.batches)
}

func TestSelect_EmptyIndex(t *testing.T) {
	got, err := newSelector(&stubMatcher{}, nil, nil, nil, SelectOptions{Level: FilterVerified}).Select(context.Background(), "q", domain.Index{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSelect_QueryStageOrdering(t *testing.T) {
	idx := testIndex("/p/a.go", "/p/b.go", "/p/c.go", "/p/d.go")
	m := &stubMatcher{
		results: map[string]domain.TargetFile{
			"/p/a.go": {Path: "/p/a.go", Score: 3},
			"/p/c.go": {Path: "/p/c.go", Score: 8},
			"/p/d.go": {Path: "/p/d.go", Score: 8},
		},
		extra: []domain.TargetFile{{Path: "/p/invented.go", Score: 10}},
	}

	got, err := newSelector(m, nil, nil, nil, SelectOptions{Level: FilterQuery, BatchSize: 10}).Select(context.Background(), "q", idx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/p/c.go", "/p/d.go", "/p/a.go"}, paths(got), "descending score, ties by path, invented paths dropped")
	for _, f := range got {
		assert.Equal(t, domain.StageQuery, f.Stage)
	}
}

func TestSelect_HintsRankFirst(t *testing.T) {
	idx := domain.Index{
		"/p/auth/session.go": {Path: "/p/auth/session.go"},
		"/p/db/pool.go":      {Path: "/p/db/pool.go", Symbols: domain.Symbols{Functions: []string{"NewPool"}}},
		"/p/util/strings.go": {Path: "/p/util/strings.go"},
		"/p/util/other.go":   {Path: "/p/util/other.go"},
	}
	m := &stubMatcher{results: map[string]domain.TargetFile{
		"/p/util/strings.go": {Path: "/p/util/strings.go", Score: 9},
		"/p/db/pool.go":      {Path: "/p/db/pool.go", Score: 2},
	}}

	got, err := newSelector(m, nil, nil, nil, SelectOptions{Level: FilterQuery}).Select(context.Background(), "fix @auth/session.go, and @@NewPoll please", idx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/p/auth/session.go", "/p/db/pool.go", "/p/util/strings.go"}, paths(got))
	assert.True(t, got[0].Hint)
	assert.True(t, got[1].Hint, "symbol hint matches by similarity")
	assert.Equal(t, 10.0, got[1].Score)
	assert.False(t, got[2].Hint)
}

func TestMatchHints_PrefersNamedPaths(t *testing.T) {
	entries := testIndex("/p/a.go", "/p/auth/x.go", "/p/data/y.go", "/p/cmd/main.go").Entries()
	hinted := func(query string) []string {
		var out []string
		for _, e := range entries {
			if _, ok := matchHints(parseHints(query), entries)[e.Path]; ok {
				out = append(out, e.Path)
			}
		}
		return out
	}

	assert.Equal(t, []string{"/p/a.go"}, hinted("see @a"), "short hint names a file, not every path containing it")
	assert.Equal(t, []string{"/p/auth/x.go"}, hinted("see @auth"))
	assert.Equal(t, []string{"/p/cmd/main.go"}, hinted("see @cmd/main.go"))
	assert.Equal(t, []string{"/p/data/y.go"}, hinted("see @at"), "substring is the fallback")
	assert.Empty(t, hinted("see @nothing"))
}

func TestParseHints(t *testing.T) {
	h := parseHints("look at @src/a.go, @@Load and @ @@ email@example")
	assert.Equal(t, []string{"src/a.go"}, h.paths)
	assert.Equal(t, []string{"Load"}, h.symbols)
}

func TestSimilar(t *testing.T) {
	assert.True(t, similar("session.go", "sesion.go"))
	assert.True(t, similar("NewPool", "NewPoll"))
	assert.False(t, similar("session.go", "pool.go"))
	assert.False(t, similar("", "x"))
}

func TestSelect_FallbackToAllFiles(t *testing.T) {
	idx := testIndex("/p/b.go", "/p/a.go")

	got, err := newSelector(&stubMatcher{}, nil, nil, nil, SelectOptions{Level: FilterQuery}).Select(context.Background(), "q", idx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/p/a.go", "/p/b.go"}, paths(got))
	assert.Equal(t, fallbackReason, got[0].Reason)
	assert.Equal(t, domain.StageFallback, got[0].Stage)
}

func TestSelect_Batching(t *testing.T) {
	idx := testIndex("/p/1.go", "/p/2.go", "/p/3.go", "/p/4.go", "/p/5.go")
	m := &stubMatcher{}

	_, err := newSelector(m, nil, nil, nil, SelectOptions{Level: FilterQuery, BatchSize: 2}).Select(context.Background(), "q", idx)
	require.NoError(t, err)

	var sizes []int
	total := 0
	for _, b := range m.batches {
		sizes = append(sizes, len(b))
		total += len(b)
	}
	assert.ElementsMatch(t, []int{2, 2, 1}, sizes)
	assert.Equal(t, 5, total)
}

func TestSelect_BatchingByTokens(t *testing.T) {
	u := newSelector(&stubMatcher{}, nil, nil, nil, SelectOptions{BatchSize: 100, MaxInputLength: 10})

	// each long path renders to 7 words, about 9 tokens
	entries := testIndex("/p/a/b/c/d/e.go", "/p/f/g/h/i/j.go", "/p/k.go").Entries()
	batches := u.batches(entries)
	require.Len(t, batches, 3)
	for _, b := range batches {
		assert.Len(t, b, 1)
	}

	u = newSelector(&stubMatcher{}, nil, nil, nil, SelectOptions{BatchSize: 100, MaxInputLength: 100})
	assert.Len(t, u.batches(entries), 1)
}

func TestSelect_FailingBatchIsSkipped(t *testing.T) {
	idx := testIndex("/p/a.go", "/p/b.go")
	m := &stubMatcher{
		results:    map[string]domain.TargetFile{"/p/a.go": {Path: "/p/a.go", Score: 7}, "/p/b.go": {Path: "/p/b.go", Score: 7}},
		err:        errors.New("malformed reply"),
		errOnBatch: 0,
	}

	got, err := newSelector(m, nil, nil, nil, SelectOptions{Level: FilterQuery, BatchSize: 1, Workers: 1}).Select(context.Background(), "q", idx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSelect_SystemicFailurePropagates(t *testing.T) {
	idx := testIndex("/p/a.go")
	m := &stubMatcher{err: fmt.Errorf("giving up: %w", domain.ErrProviderUnavailable), errOnBatch: -1}

	_, err := newSelector(m, nil, nil, nil, SelectOptions{Level: FilterQuery}).Select(context.Background(), "q", idx)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestSelect_VerificationThresholdIsStrict(t *testing.T) {
	idx := testIndex("/p/five.go", "/p/six.go")
	m := &stubMatcher{results: map[string]domain.TargetFile{
		"/p/five.go": {Path: "/p/five.go", Score: 5},
		"/p/six.go":  {Path: "/p/six.go", Score: 5},
	}}
	reader := mapReader{"/p/five.go": "five", "/p/six.go": "six"}
	scorer := &mapScorer{scores: map[string]int{"five": 5, "six": 6}}

	got, err := newSelector(m, nil, scorer, reader, SelectOptions{Level: FilterVerified, VerifyThreshold: 5}).Select(context.Background(), "q", idx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "/p/six.go", got[0].Path)
	assert.Equal(t, 6.0, got[0].Score)
	assert.Equal(t, "scored 6", got[0].Reason)
}

func TestSelect_FullCascade(t *testing.T) {
	idx := testIndex("/p/a.go", "/p/b.go", "/p/c.go", "/p/d.go", "/p/e.go")
	m := &stubMatcher{results: map[string]domain.TargetFile{
		"/p/a.go": {Path: "/p/a.go", Score: 9},
		"/p/b.go": {Path: "/p/b.go", Score: 4},
	}}
	related := &stubRelated{results: []domain.TargetFile{
		{Path: "/p/a.go", Reason: "already selected"},
		{Path: "/p/c.go", Reason: "imported by a.go"},
		{Path: "/p/d.go", Reason: "imported by a.go"},
		{Path: "/p/zzz.go", Reason: "not indexed"},
	}}
	reader := mapReader{"/p/a.go": "A", "/p/b.go": "B", "/p/c.go": "C", "/p/d.go": "D"}
	scorer := &mapScorer{
		scores: map[string]int{"A": 7, "B": 9, "C": 7, "D": 2},
	}

	got, err := newSelector(m, related, scorer, reader, SelectOptions{Level: FilterVerified, VerifyThreshold: 6}).Select(context.Background(), "q", idx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/p/b.go", "/p/a.go", "/p/c.go"}, paths(got))
	assert.Equal(t, domain.StageRelated, got[2].Stage)
}

func TestSelect_VerificationFailureScoresZero(t *testing.T) {
	idx := testIndex("/p/a.go", "/p/b.go", "/p/c.go")
	m := &stubMatcher{results: map[string]domain.TargetFile{
		"/p/a.go": {Path: "/p/a.go", Score: 5},
		"/p/b.go": {Path: "/p/b.go", Score: 5},
		"/p/c.go": {Path: "/p/c.go", Score: 5},
	}}
	// c.go cannot be read
	reader := mapReader{"/p/a.go": "A", "/p/b.go": "B"}
	scorer := &mapScorer{
		scores: map[string]int{"A": 8, "B": 8},
		errs:   map[string]error{"B": fmt.Errorf("%w: bad json", domain.ErrScoring)},
	}

	got, err := newSelector(m, nil, scorer, reader, SelectOptions{Level: FilterVerified, VerifyThreshold: 0}).Select(context.Background(), "q", idx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/p/a.go"}, paths(got))
}

func TestSelect_VerificationProviderDownPropagates(t *testing.T) {
	idx := testIndex("/p/a.go")
	m := &stubMatcher{results: map[string]domain.TargetFile{"/p/a.go": {Path: "/p/a.go", Score: 5}}}
	scorer := &mapScorer{errs: map[string]error{"A": fmt.Errorf("%w: %w", domain.ErrScoring, domain.ErrRateLimited)}}

	_, err := newSelector(m, nil, scorer, mapReader{"/p/a.go": "A"}, SelectOptions{Level: FilterVerified}).Select(context.Background(), "q", idx)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

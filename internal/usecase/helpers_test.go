package usecase

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"ctxasm/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// lineExtractor reports every "func NAME" line as a function.
type lineExtractor struct {
	mu     sync.Mutex
	calls  []string
	failOn map[string]error
	// afterCall runs after each successful call
	afterCall func()
}

func (e *lineExtractor) Extract(ctx context.Context, path, content string) (domain.Symbols, error) {
	e.mu.Lock()
	e.calls = append(e.calls, path)
	e.mu.Unlock()

	if err := e.failOn[path]; err != nil {
		return domain.Symbols{}, err
	}
	var syms domain.Symbols
	for _, line := range strings.Split(content, "\n") {
		if name, ok := strings.CutPrefix(strings.TrimSpace(line), "func "); ok {
			syms.Functions = append(syms.Functions, strings.TrimSuffix(strings.Fields(name)[0], "()"))
		}
	}
	if e.afterCall != nil {
		e.afterCall()
	}
	return syms, nil
}

func (e *lineExtractor) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// mapScorer scores content by looking it up; unknown content scores 0.
type mapScorer struct {
	scores map[string]int
	errs   map[string]error
}

func (s *mapScorer) Score(_ context.Context, _ string, content string) (domain.Relevance, error) {
	if err := s.errs[content]; err != nil {
		return domain.Relevance{}, err
	}
	score := s.scores[content]
	return domain.Relevance{Score: score, Reason: fmt.Sprintf("scored %d", score)}, nil
}

type mapReader map[string]string

func (r mapReader) ReadFile(path string) (string, error) {
	c, ok := r[path]
	if !ok {
		return "", os.ErrNotExist
	}
	return c, nil
}

type stubMatcher struct {
	mu      sync.Mutex
	batches [][]string
	results map[string]domain.TargetFile
	extra   []domain.TargetFile
	err     error
	// errOnBatch fails only the batch with this index
	errOnBatch int
}

func (m *stubMatcher) MatchFiles(_ context.Context, _ string, batch []domain.IndexEntry) ([]domain.TargetFile, error) {
	m.mu.Lock()
	n := len(m.batches)
	paths := make([]string, len(batch))
	for i, e := range batch {
		paths[i] = e.Path
	}
	m.batches = append(m.batches, paths)
	m.mu.Unlock()

	if m.err != nil && (m.errOnBatch < 0 || m.errOnBatch == n) {
		return nil, m.err
	}
	var out []domain.TargetFile
	for _, e := range batch {
		if r, ok := m.results[e.Path]; ok {
			out = append(out, r)
		}
	}
	if n == 0 {
		out = append(out, m.extra...)
	}
	return out, nil
}

type stubRelated struct {
	results []domain.TargetFile
}

func (r *stubRelated) RelatedFiles(_ context.Context, _ []string, batch []domain.IndexEntry) ([]domain.TargetFile, error) {
	inBatch := make(map[string]bool)
	for _, e := range batch {
		inBatch[e.Path] = true
	}
	var out []domain.TargetFile
	for _, t := range r.results {
		if inBatch[t.Path] {
			out = append(out, t)
		}
	}
	return out, nil
}

// echoExcerpter returns the content unchanged, or a fixed excerpt.
type echoExcerpter struct {
	fixed string
	err   error
}

func (e *echoExcerpter) Excerpt(_ context.Context, _ string, content string, _ int) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	if e.fixed != "" {
		return e.fixed, nil
	}
	return content, nil
}

// words returns n space-separated words.
func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

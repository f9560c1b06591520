package heuristic

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctxasm/internal/adapter/analyzer"
	"ctxasm/internal/domain"
)

func TestSplitCamel(t *testing.T) {
	assert.Equal(t, "parse HTTP Header", splitCamel("parseHTTPHeader"))
	assert.Equal(t, "Load Index", splitCamel("LoadIndex"))
	assert.Equal(t, "load_index", splitCamel("load_index"))
}

func TestSymbolMatcher(t *testing.T) {
	tok := analyzer.NewTokenizer(true)
	m := NewSymbolMatcher(tok)

	batch := []domain.IndexEntry{
		{Path: "/p/auth/session.go", Symbols: domain.Symbols{Functions: []string{"NewSession", "ValidateToken"}}},
		{Path: "/p/db/pool.go", Symbols: domain.Symbols{Classes: []string{"Pool"}, Usage: "Connection pooling."}},
		{Path: "/p/util.go"},
	}

	got, err := m.MatchFiles(context.Background(), "validate the session token", batch)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "/p/auth/session.go", got[0].Path)
	assert.Equal(t, 10.0, got[0].Score)
	assert.Equal(t, domain.StageQuery, got[0].Stage)

	got, err = m.MatchFiles(context.Background(), "connection pool", batch)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "/p/db/pool.go", got[0].Path)

	got, err = m.MatchFiles(context.Background(), "the", batch)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTermScorer(t *testing.T) {
	s := NewTermScorer(analyzer.NewTokenizer(true))
	ctx := context.Background()

	rel, err := s.Score(ctx, "budget allocator excerpt", "the allocator splits the budget")
	require.NoError(t, err)
	assert.Equal(t, 7, rel.Score)

	rel, err = s.Score(ctx, "budget", "nothing here")
	require.NoError(t, err)
	assert.Zero(t, rel.Score)

	rel, err = s.Score(ctx, "budget", "Budget budgets")
	require.NoError(t, err)
	assert.Equal(t, 10, rel.Score)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Score(cancelled, "budget", "budget")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestImportTarget(t *testing.T) {
	tests := map[string]string{
		`"ctxasm/internal/domain"`:         "ctxasm/internal/domain",
		`ctxasm/internal/domain`:           "ctxasm/internal/domain",
		`x "ctxasm/internal/domain"`:       "ctxasm/internal/domain",
		`import os`:                        "os",
		`from app.models import User`:      "app/models",
		`import app.models`:                "app/models",
		`import { a } from './lib/util';`: "lib/util",
		`use crate::store::index;`:         "crate/store/index",
		`from . import x`:                  "",
	}
	for in, want := range tests {
		assert.Equal(t, want, importTarget(in), in)
	}
}

func TestMatchesImport(t *testing.T) {
	assert.True(t, matchesImport("/root/proj/internal/domain/entities.go", `ctxasm/internal/domain`))
	assert.True(t, matchesImport("/root/proj/app/models.py", "from app.models import User"))
	assert.True(t, matchesImport("/root/proj/lib/util.ts", `import { a } from './lib/util';`))
	assert.False(t, matchesImport("/root/proj/os/thing.go", "import os"))
	assert.False(t, matchesImport("/root/proj/internal/port/llm.go", `ctxasm/internal/domain`))
}

func TestImportFinder(t *testing.T) {
	batch := []domain.IndexEntry{
		{Path: "/p/internal/usecase/select.go", Symbols: domain.Symbols{Imports: []string{"ctxasm/internal/domain"}}},
		{Path: "/p/internal/domain/entities.go"},
		{Path: "/p/internal/usecase/select_test.go"},
		{Path: "/p/internal/cli/root.go", Symbols: domain.Symbols{Imports: []string{"ctxasm/internal/usecase"}}},
		{Path: "/p/README.go"},
	}

	got, err := NewImportFinder().RelatedFiles(context.Background(), []string{"/p/internal/usecase/select.go"}, batch)
	require.NoError(t, err)

	reasons := make(map[string]string)
	for _, tf := range got {
		assert.Equal(t, domain.StageRelated, tf.Stage)
		reasons[tf.Path] = tf.Reason
	}
	assert.Equal(t, map[string]string{
		"/p/internal/domain/entities.go":     "imported by select.go",
		"/p/internal/usecase/select_test.go": "test pair of select.go",
		"/p/internal/cli/root.go":            "imports select.go",
	}, reasons)
}

func TestWindowExcerpter(t *testing.T) {
	tok := analyzer.NewTokenizer(true)
	e := NewWindowExcerpter(tok)
	ctx := context.Background()

	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, fmt.Sprintf("filler line number %d with padding words", i))
	}
	lines[150] = "the allocator divides the budget into quotas"
	content := strings.Join(lines, "\n")

	out, err := e.Excerpt(ctx, "budget allocator", content, 100)
	require.NoError(t, err)
	assert.Contains(t, out, "the allocator divides the budget")
	assert.LessOrEqual(t, tok.CountTokens(out), 100)

	small := "short content"
	out, err = e.Excerpt(ctx, "anything", small, 100)
	require.NoError(t, err)
	assert.Equal(t, small, out)

	out, err = e.Excerpt(ctx, "q", "", 100)
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = e.Excerpt(ctx, "unmatched", content, 50)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "filler line number 0"))
	assert.LessOrEqual(t, tok.CountTokens(out), 50)
}

package strategy

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctxasm/internal/adapter/analyzer"
	"ctxasm/internal/domain"
)

type stubLLM struct {
	reply   string
	err     error
	prompts []string
}

func (s *stubLLM) Complete(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.reply, s.err
}

func (s *stubLLM) ModelName() string { return "stub" }

func TestExtractor(t *testing.T) {
	model := &stubLLM{reply: "```\nUsage: loads config\nFunctions: Load, Save\nImports: import \"os\"^^import \"fmt\"\n```"}
	e := NewExtractor(model)

	syms, err := e.Extract(context.Background(), "/p/config.go", "package config")
	require.NoError(t, err)
	assert.Equal(t, "loads config", syms.Usage)
	assert.Equal(t, []string{"Load", "Save"}, syms.Functions)
	assert.Equal(t, []string{`import "os"`, `import "fmt"`}, syms.Imports)
	assert.Contains(t, model.prompts[0], "Source of /p/config.go")
	assert.Contains(t, model.prompts[0], "package config")
}

func TestExtractor_EmptyReply(t *testing.T) {
	syms, err := NewExtractor(&stubLLM{}).Extract(context.Background(), "a.go", "x")
	require.NoError(t, err)
	assert.True(t, syms.IsEmpty())
}

func TestExtractor_UnparsableReply(t *testing.T) {
	_, err := NewExtractor(&stubLLM{reply: "I'm sorry, I cannot help with that."}).Extract(context.Background(), "/p/a.go", "x")
	assert.ErrorIs(t, err, domain.ErrExtraction)
	assert.Contains(t, err.Error(), "/p/a.go")
}

func TestExtractor_Failure(t *testing.T) {
	_, err := NewExtractor(&stubLLM{err: domain.ErrRateLimited}).Extract(context.Background(), "a.go", "x")
	assert.ErrorIs(t, err, domain.ErrExtraction)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestMatcher(t *testing.T) {
	model := &stubLLM{reply: "Sure:\n```json\n{\"file_list\": [{\"file_path\": \"/p/a.go\", \"reason\": \"defines Load\", \"confidence\": 8}, {\"file_path\": \"/p/b.go\", \"reason\": \"uses it\"}, {\"file_path\": \"\"}]}\n```"}
	m := NewMatcher(model)

	batch := []domain.IndexEntry{{Path: "/p/a.go", Symbols: domain.Symbols{Functions: []string{"Load"}}}}
	got, err := m.MatchFiles(context.Background(), "where is @@Load", batch)
	require.NoError(t, err)
	assert.Equal(t, []domain.TargetFile{
		{Path: "/p/a.go", Score: 8, Reason: "defines Load", Stage: domain.StageQuery},
		{Path: "/p/b.go", Score: defaultConfidence, Reason: "uses it", Stage: domain.StageQuery},
	}, got)
	assert.Contains(t, model.prompts[0], "##/p/a.go\nFunctions: Load")
	assert.Contains(t, model.prompts[0], "where is @@Load")
}

func TestMatcher_BadReply(t *testing.T) {
	_, err := NewMatcher(&stubLLM{reply: "I could not find anything"}).MatchFiles(context.Background(), "q", nil)
	assert.Error(t, err)
}

func TestRelatedFinder(t *testing.T) {
	model := &stubLLM{reply: `{"file_list": [{"file_path": "/p/dep.go", "reason": "imported"}]}`}
	got, err := NewRelatedFinder(model).RelatedFiles(context.Background(), []string{"/p/a.go", "/p/b.go"}, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.StageRelated, got[0].Stage)
	assert.Contains(t, model.prompts[0], "/p/a.go\n/p/b.go")
}

func TestScorer(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  int
	}{
		{"plain", `{"relevant_score": 7, "reason": "uses the cache"}`, 7},
		{"fenced", "```json\n{\"relevant_score\": 3, \"reason\": \"x\"}\n```", 3},
		{"clamped high", `{"relevant_score": 42, "reason": "x"}`, 10},
		{"clamped low", `{"relevant_score": -1, "reason": "x"}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel, err := NewScorer(&stubLLM{reply: tt.reply}, nil, 0).Score(context.Background(), "q", "c")
			require.NoError(t, err)
			assert.Equal(t, tt.want, rel.Score)
		})
	}
}

func TestScorer_Failures(t *testing.T) {
	_, err := NewScorer(&stubLLM{reply: "no idea"}, nil, 0).Score(context.Background(), "q", "c")
	assert.ErrorIs(t, err, domain.ErrScoring)

	_, err = NewScorer(&stubLLM{err: errors.New("boom")}, nil, 0).Score(context.Background(), "q", "c")
	assert.ErrorIs(t, err, domain.ErrScoring)
}

func TestScorer_TruncatesContent(t *testing.T) {
	model := &stubLLM{reply: `{"relevant_score": 1, "reason": "x"}`}
	tok := analyzer.NewTokenizer(false)
	content := strings.Repeat("word ", 100) + "TAILMARKER"

	_, err := NewScorer(model, tok, 20).Score(context.Background(), "q", content)
	require.NoError(t, err)
	assert.NotContains(t, model.prompts[0], "TAILMARKER")
}

func TestExcerpter(t *testing.T) {
	tok := analyzer.NewTokenizer(false)

	model := &stubLLM{reply: strings.Repeat("relevant passage text ", 50)}
	out, err := NewExcerpter(model, tok).Excerpt(context.Background(), "q", "doc", 40)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.LessOrEqual(t, tok.CountTokens(out), 40)
	assert.Contains(t, model.prompts[0], "at most 30 words")

	out, err = NewExcerpter(&stubLLM{reply: NoRelevantInfo}, tok).Excerpt(context.Background(), "q", "doc", 40)
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = NewExcerpter(&stubLLM{reply: "x"}, tok).Excerpt(context.Background(), "q", "doc", 0)
	require.NoError(t, err)
	assert.Empty(t, out)
}

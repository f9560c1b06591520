// Package strategy implements the extraction, selection, scoring and
// excerpt strategies on top of a text-generation model.
package strategy

import (
	"context"
	"fmt"
	"strings"

	"ctxasm/internal/adapter/llm"
	"ctxasm/internal/adapter/symtext"
	"ctxasm/internal/domain"
	"ctxasm/internal/port"
)

// Extractor asks the model for the symbols of a file or chunk.
type Extractor struct {
	llm port.LLM
}

func NewExtractor(model port.LLM) *Extractor {
	return &Extractor{llm: model}
}

// Extract implements port.SymbolExtractor.
func (e *Extractor) Extract(ctx context.Context, path, content string) (domain.Symbols, error) {
	prompt, err := render("extract", struct{ Path, Code string }{path, content})
	if err != nil {
		return domain.Symbols{}, err
	}
	reply, err := e.llm.Complete(ctx, prompt)
	if err != nil {
		return domain.Symbols{}, fmt.Errorf("%w: %s: %w", domain.ErrExtraction, path, err)
	}
	syms, ok := symtext.ParseStrict(stripFence(reply))
	if !ok {
		return domain.Symbols{}, fmt.Errorf("%w: %s: unparsable reply", domain.ErrExtraction, path)
	}
	return syms, nil
}

type fileList struct {
	Files []struct {
		Path       string   `json:"file_path"`
		Reason     string   `json:"reason"`
		Confidence *float64 `json:"confidence"`
	} `json:"file_list"`
}

// defaultConfidence is used when the model lists a file without a confidence.
const defaultConfidence = 5

func (l fileList) targets(stage domain.Stage) []domain.TargetFile {
	out := make([]domain.TargetFile, 0, len(l.Files))
	for _, f := range l.Files {
		if f.Path == "" {
			continue
		}
		score := float64(defaultConfidence)
		if f.Confidence != nil {
			score = clamp(*f.Confidence)
		}
		out = append(out, domain.TargetFile{
			Path:   f.Path,
			Score:  score,
			Reason: f.Reason,
			Stage:  stage,
		})
	}
	return out
}

// Matcher asks the model which files of a batch a query is about.
type Matcher struct {
	llm port.LLM
}

func NewMatcher(model port.LLM) *Matcher {
	return &Matcher{llm: model}
}

// MatchFiles implements port.QueryMatcher.
func (m *Matcher) MatchFiles(ctx context.Context, query string, batch []domain.IndexEntry) ([]domain.TargetFile, error) {
	prompt, err := render("match", struct{ Indices, Query string }{symtext.RenderEntries(batch), query})
	if err != nil {
		return nil, err
	}
	reply, err := m.llm.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var list fileList
	if err := llm.ExtractJSON(reply, &list); err != nil {
		return nil, err
	}
	return list.targets(domain.StageQuery), nil
}

// RelatedFinder asks the model which files of a batch the selected files depend on.
type RelatedFinder struct {
	llm port.LLM
}

func NewRelatedFinder(model port.LLM) *RelatedFinder {
	return &RelatedFinder{llm: model}
}

// RelatedFiles implements port.RelatedFinder.
func (f *RelatedFinder) RelatedFiles(ctx context.Context, selected []string, batch []domain.IndexEntry) ([]domain.TargetFile, error) {
	prompt, err := render("related", struct{ Indices, Paths string }{symtext.RenderEntries(batch), strings.Join(selected, "\n")})
	if err != nil {
		return nil, err
	}
	reply, err := f.llm.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var list fileList
	if err := llm.ExtractJSON(reply, &list); err != nil {
		return nil, err
	}
	return list.targets(domain.StageRelated), nil
}

// Scorer asks the model for a 0-10 relevance score.
type Scorer struct {
	llm port.LLM
	// content beyond this many tokens is cut before scoring; 0 keeps everything
	maxTokens int
	tokenizer port.Tokenizer
}

func NewScorer(model port.LLM, tokenizer port.Tokenizer, maxTokens int) *Scorer {
	return &Scorer{llm: model, tokenizer: tokenizer, maxTokens: maxTokens}
}

// Score implements port.RelevanceScorer.
func (s *Scorer) Score(ctx context.Context, query, content string) (domain.Relevance, error) {
	if s.maxTokens > 0 && s.tokenizer != nil {
		content = s.tokenizer.Truncate(content, s.maxTokens)
	}
	prompt, err := render("verify", struct{ Content, Query string }{content, query})
	if err != nil {
		return domain.Relevance{}, err
	}
	reply, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		return domain.Relevance{}, fmt.Errorf("%w: %w", domain.ErrScoring, err)
	}

	var raw struct {
		Score  float64 `json:"relevant_score"`
		Reason string  `json:"reason"`
	}
	if err := llm.ExtractJSON(reply, &raw); err != nil {
		return domain.Relevance{}, fmt.Errorf("%w: %w", domain.ErrScoring, err)
	}
	return domain.Relevance{Score: int(clamp(raw.Score)), Reason: raw.Reason}, nil
}

// Excerpter asks the model to copy out the passages relevant to a query.
type Excerpter struct {
	llm       port.LLM
	tokenizer port.Tokenizer
}

func NewExcerpter(model port.LLM, tokenizer port.Tokenizer) *Excerpter {
	return &Excerpter{llm: model, tokenizer: tokenizer}
}

// Excerpt implements port.Excerpter. The reply is trimmed to maxTokens.
func (e *Excerpter) Excerpt(ctx context.Context, query, content string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		return "", nil
	}
	// the estimate is 1.3 tokens per word
	words := maxTokens * 10 / 13
	prompt, err := render("excerpt", struct {
		Content, Query, None string
		Words                int
	}{content, query, NoRelevantInfo, words})
	if err != nil {
		return "", err
	}
	reply, err := e.llm.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(stripFence(reply))
	if reply == "" || strings.Contains(reply, NoRelevantInfo) {
		return "", nil
	}
	return e.tokenizer.Truncate(reply, maxTokens), nil
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 10:
		return 10
	}
	return v
}

// stripFence removes a surrounding ``` block if the model added one.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

package heuristic

import (
	"context"
	"fmt"

	"ctxasm/internal/adapter/analyzer"
	"ctxasm/internal/domain"
)

// TermScorer rates content by the share of distinct query terms it contains.
type TermScorer struct {
	tokenizer *analyzer.Tokenizer
}

func NewTermScorer(tokenizer *analyzer.Tokenizer) *TermScorer {
	return &TermScorer{tokenizer: tokenizer}
}

// Score implements port.RelevanceScorer.
func (s *TermScorer) Score(ctx context.Context, query, content string) (domain.Relevance, error) {
	if err := ctx.Err(); err != nil {
		return domain.Relevance{}, err
	}
	q := newTermSet(s.tokenizer.Tokenize(splitCamel(query)))
	if len(q) == 0 {
		return domain.Relevance{Reason: "query has no searchable terms"}, nil
	}

	docTerms := s.tokenizer.Tokenize(splitCamel(content))
	matched := newTermSet(docTerms).overlap(q)
	return domain.Relevance{
		Score:  scaleToTen(matched, len(q)),
		Reason: fmt.Sprintf("contains %d of %d query terms", matched, len(q)),
	}, nil
}

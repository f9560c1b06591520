package heuristic

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"ctxasm/internal/adapter/analyzer"
	"ctxasm/internal/domain"
)

// SymbolMatcher picks index entries whose path, symbol names or usage line
// share terms with the query.
type SymbolMatcher struct {
	tokenizer *analyzer.Tokenizer
}

func NewSymbolMatcher(tokenizer *analyzer.Tokenizer) *SymbolMatcher {
	return &SymbolMatcher{tokenizer: tokenizer}
}

// MatchFiles implements port.QueryMatcher. Score is the share of query terms
// found in the entry, scaled to 0-10.
func (m *SymbolMatcher) MatchFiles(ctx context.Context, query string, batch []domain.IndexEntry) ([]domain.TargetFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := newTermSet(m.tokenizer.Tokenize(splitCamel(query)))
	if len(q) == 0 {
		return nil, nil
	}

	var out []domain.TargetFile
	for _, e := range batch {
		terms := pathTerms(m.tokenizer, e.Path)
		terms = append(terms, identifierTerms(m.tokenizer, e.Symbols.Names())...)
		terms = append(terms, m.tokenizer.Tokenize(e.Symbols.Usage)...)
		set := newTermSet(terms)

		matched := matchedTerms(set, q)
		if len(matched) == 0 {
			continue
		}
		out = append(out, domain.TargetFile{
			Path:   e.Path,
			Score:  float64(scaleToTen(len(matched), len(q))),
			Reason: fmt.Sprintf("matches %s", strings.Join(matched, ", ")),
			Stage:  domain.StageQuery,
		})
	}
	return out, nil
}

func matchedTerms(set, query termSet) []string {
	var out []string
	for t := range query {
		if _, ok := set[t]; ok {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// Package heuristic holds deterministic, offline implementations of the
// selection and scoring strategies. They need no model provider and are the
// default when llm.provider is "local".
package heuristic

import (
	"strings"
	"unicode"

	"ctxasm/internal/adapter/analyzer"
)

type termSet map[string]struct{}

func newTermSet(terms []string) termSet {
	s := make(termSet, len(terms))
	for _, t := range terms {
		s[t] = struct{}{}
	}
	return s
}

// overlap returns how many of the query terms occur in s.
func (s termSet) overlap(query termSet) int {
	n := 0
	for t := range query {
		if _, ok := s[t]; ok {
			n++
		}
	}
	return n
}

// identifierTerms tokenizes names such as "parseHTTPHeader" or
// "load_index" into their component words.
func identifierTerms(tokenizer *analyzer.Tokenizer, names []string) []string {
	var terms []string
	for _, n := range names {
		terms = append(terms, tokenizer.Tokenize(splitCamel(n))...)
	}
	return terms
}

func splitCamel(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte(' ')
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// pathTerms tokenizes the slash, dot, dash and underscore separated parts of a path.
func pathTerms(tokenizer *analyzer.Tokenizer, path string) []string {
	parts := strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '\\' || r == '.' || r == '-' || r == '_'
	})
	return identifierTerms(tokenizer, parts)
}

func scaleToTen(matched, total int) int {
	if total == 0 || matched == 0 {
		return 0
	}
	score := (matched*10 + total/2) / total
	if score > 10 {
		score = 10
	}
	return score
}

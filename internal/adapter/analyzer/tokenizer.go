package analyzer

import (
	"strings"
	"unicode"

	"github.com/surgebase/porter2"
)

// Tokenizer splits text into tokens with optional stemming and stopword removal.
// It also serves as the token estimator used for every budget in the pipeline.
type Tokenizer struct {
	stopwords map[string]struct{}
	useStem   bool
}

// NewTokenizer creates a new Tokenizer.
func NewTokenizer(useStemming bool) *Tokenizer {
	return &Tokenizer{
		stopwords: defaultStopwords(),
		useStem:   useStemming,
	}
}

// Tokenize splits text into lower-cased search terms.
func (t *Tokenizer) Tokenize(text string) []string {
	words := splitWords(text)
	tokens := make([]string, 0, len(words))

	for _, word := range words {
		word = strings.ToLower(word)
		if len(word) < 2 {
			continue
		}
		if _, isStop := t.stopwords[word]; isStop {
			continue
		}
		if t.useStem {
			word = porter2.Stem(word)
		}
		tokens = append(tokens, word)
	}

	return tokens
}

// CountTokens returns an approximate token count for LLM budget estimation.
func (t *Tokenizer) CountTokens(text string) int {
	words := splitWords(text)
	if len(words) == 0 {
		return 0
	}
	// average word is about 1.3 tokens
	return wordsToTokens(len(words))
}

// Truncate keeps the longest prefix of text whose estimate fits maxTokens.
// The cut lands on a line boundary when that keeps at least half of the
// allowed text, otherwise right after the last whole word.
func (t *Tokenizer) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if t.CountTokens(text) <= maxTokens {
		return text
	}

	keep := 0
	for wordsToTokens(keep+1) <= maxTokens {
		keep++
	}
	if keep == 0 {
		return ""
	}

	end := wordEndOffset(text, keep)
	cut := text[:end]
	if nl := strings.LastIndexByte(cut, '\n'); nl > len(cut)/2 {
		return cut[:nl]
	}
	return cut
}

// WordCount returns the number of words CountTokens bases its estimate on.
// Word counts of newline-joined texts add up, token estimates do not.
func (t *Tokenizer) WordCount(text string) int {
	return len(splitWords(text))
}

// TokensForWords converts a word count into the CountTokens estimate.
func (t *Tokenizer) TokensForWords(n int) int {
	return wordsToTokens(n)
}

func wordsToTokens(n int) int {
	return int(float64(n) * 1.3)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// wordEndOffset returns the byte offset just past the n-th word of text.
func wordEndOffset(text string, n int) int {
	count := 0
	inWord := false
	for i, r := range text {
		if isWordRune(r) {
			inWord = true
			continue
		}
		if inWord {
			count++
			inWord = false
			if count == n {
				return i
			}
		}
	}
	return len(text)
}

// splitWords splits text into words using unicode word boundaries.
func splitWords(text string) []string {
	var words []string
	var current strings.Builder

	for _, r := range text {
		if isWordRune(r) {
			current.WriteRune(r)
		} else {
			if current.Len() > 0 {
				words = append(words, current.String())
				current.Reset()
			}
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}

	return words
}

// defaultStopwords returns a set of common English stopwords.
func defaultStopwords() map[string]struct{} {
	stops := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "he", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with", "this",
		"have", "had", "but", "not", "you", "your", "we", "our",
		"they", "their", "she", "her", "his", "if", "or", "so",
		"no", "can", "do", "does", "did", "been", "being", "would",
		"could", "should", "may", "might", "must", "shall", "which",
		"who", "whom", "what", "when", "where", "why", "how", "all",
		"each", "every", "both", "few", "more", "most", "other",
		"some", "such", "than", "too", "very", "just", "also",
	}
	m := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		m[s] = struct{}{}
	}
	return m
}

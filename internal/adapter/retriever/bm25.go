package retriever

import (
	"math"
	"strings"

	"ctxasm/internal/adapter/analyzer"
)

// BM25Ranker scores a set of documents against a query with Okapi BM25,
// computing term statistics over exactly the documents it is given.
type BM25Ranker struct {
	tokenizer       *analyzer.Tokenizer
	k1              float64
	b               float64
	pathBoostWeight float64
}

func NewBM25Ranker(tokenizer *analyzer.Tokenizer, k1, b, pathBoostWeight float64) *BM25Ranker {
	return &BM25Ranker{
		tokenizer:       tokenizer,
		k1:              k1,
		b:               b,
		pathBoostWeight: pathBoostWeight,
	}
}

// RankInput is one document to score.
type RankInput struct {
	Path string
	Text string
}

// Scores returns one score per input, in input order.
func (r *BM25Ranker) Scores(query string, docs []RankInput) []float64 {
	scores := make([]float64, len(docs))
	queryTokens := r.tokenizer.Tokenize(query)
	if len(queryTokens) == 0 || len(docs) == 0 {
		return scores
	}

	queryTokenSet := make(map[string]struct{}, len(queryTokens))
	for _, t := range queryTokens {
		queryTokenSet[t] = struct{}{}
	}

	tfs := make([]map[string]int, len(docs))
	lengths := make([]float64, len(docs))
	df := make(map[string]int)
	total := 0.0

	for i, d := range docs {
		tokens := r.tokenizer.Tokenize(d.Text)
		tf := make(map[string]int)
		for _, tok := range tokens {
			if _, wanted := queryTokenSet[tok]; wanted {
				tf[tok]++
			}
		}
		for tok := range tf {
			df[tok]++
		}
		tfs[i] = tf
		lengths[i] = float64(len(tokens))
		total += lengths[i]
	}

	N := float64(len(docs))
	avgDl := total / N
	if avgDl == 0 {
		avgDl = 1
	}

	for i, d := range docs {
		score := 0.0
		for term := range queryTokenSet {
			tf := float64(tfs[i][term])
			if tf == 0 {
				continue
			}
			n := float64(df[term])
			idf := math.Log((N-n+0.5)/(n+0.5) + 1)
			score += idf * (tf * (r.k1 + 1)) / (tf + r.k1*(1-r.b+r.b*lengths[i]/avgDl))
		}
		if r.pathBoostWeight > 0 {
			score *= 1 + r.calculatePathBoost(d.Path, queryTokenSet)*r.pathBoostWeight
		}
		scores[i] = score
	}
	return scores
}

func (r *BM25Ranker) calculatePathBoost(path string, queryTokenSet map[string]struct{}) float64 {
	pathTokens := tokenizePath(path)
	if len(pathTokens) == 0 || len(queryTokenSet) == 0 {
		return 0
	}

	matches := 0
	for _, pt := range pathTokens {
		if _, exists := queryTokenSet[pt]; exists {
			matches++
		}
	}

	return float64(matches) / float64(len(queryTokenSet))
}

func tokenizePath(path string) []string {
	path = strings.TrimPrefix(path, "/")

	var tokens []string
	for _, part := range strings.Split(path, "/") {
		for _, sp := range strings.Split(part, ".") {
			for _, token := range strings.FieldsFunc(sp, func(r rune) bool {
				return r == '_' || r == '-'
			}) {
				token = strings.ToLower(token)
				if len(token) >= 2 {
					tokens = append(tokens, token)
				}
			}
		}
	}
	return tokens
}

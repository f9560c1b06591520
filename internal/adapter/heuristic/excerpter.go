package heuristic

import (
	"context"
	"sort"
	"strings"

	"ctxasm/internal/adapter/analyzer"
	"ctxasm/internal/adapter/chunker"
	"ctxasm/internal/domain"
)

const (
	minWindowTokens = 32
	maxWindowTokens = 512
)

// WindowExcerpter cuts content into overlapping line windows, keeps the
// windows that share the most terms with the query and returns them in
// document order. Skipped stretches are marked with a "..." line.
type WindowExcerpter struct {
	tokenizer *analyzer.Tokenizer
	chunker   *chunker.LineChunker
}

func NewWindowExcerpter(tokenizer *analyzer.Tokenizer) *WindowExcerpter {
	return &WindowExcerpter{
		tokenizer: tokenizer,
		chunker:   chunker.NewLineChunker(0, tokenizer),
	}
}

// Excerpt implements port.Excerpter.
func (e *WindowExcerpter) Excerpt(ctx context.Context, query, content string, maxTokens int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if maxTokens <= 0 || strings.TrimSpace(content) == "" {
		return "", nil
	}
	if e.tokenizer.CountTokens(content) <= maxTokens {
		return content, nil
	}

	window := maxTokens / 4
	if window < minWindowTokens {
		window = minWindowTokens
	}
	if window > maxWindowTokens {
		window = maxWindowTokens
	}
	windows := e.chunker.Split("", content, window)

	q := newTermSet(e.tokenizer.Tokenize(splitCamel(query)))
	type scored struct {
		chunk domain.Chunk
		hits  int
	}
	ranked := make([]scored, len(windows))
	for i, w := range windows {
		ranked[i] = scored{chunk: w, hits: newTermSet(e.tokenizer.Tokenize(splitCamel(w.Text))).overlap(q)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].hits > ranked[j].hits })

	// Greedy by relevance. Window estimates are summed as words so that the
	// joined excerpt stays within maxTokens.
	var picked []domain.Chunk
	words := 0
	for _, r := range ranked {
		if r.hits == 0 && len(picked) > 0 {
			break
		}
		w := e.tokenizer.WordCount(r.chunk.Text)
		if e.tokenizer.TokensForWords(words+w) > maxTokens {
			continue
		}
		picked = append(picked, r.chunk)
		words += w
	}
	if len(picked) == 0 {
		return e.tokenizer.Truncate(content, maxTokens), nil
	}

	sort.Slice(picked, func(i, j int) bool { return picked[i].Seq < picked[j].Seq })
	var b strings.Builder
	for i, c := range picked {
		if i > 0 {
			b.WriteByte('\n')
			if c.Seq != picked[i-1].Seq+1 {
				b.WriteString("...\n")
			}
		}
		b.WriteString(c.Text)
	}
	return b.String(), nil
}

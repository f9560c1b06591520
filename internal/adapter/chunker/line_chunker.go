package chunker

import (
	"strings"

	"ctxasm/internal/adapter/analyzer"
	"ctxasm/internal/domain"
)

// LineChunker splits content on line boundaries into sequential chunks
// whose token estimate stays within a cap. A single line over the cap
// becomes a chunk of its own.
type LineChunker struct {
	overlap   int
	tokenizer *analyzer.Tokenizer
}

func NewLineChunker(overlap int, tokenizer *analyzer.Tokenizer) *LineChunker {
	return &LineChunker{
		overlap:   overlap,
		tokenizer: tokenizer,
	}
}

// Split implements port.Chunker.
func (c *LineChunker) Split(path, content string, maxTokens int) []domain.Chunk {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	words := make([]int, len(lines))
	for i, l := range lines {
		words[i] = c.tokenizer.WordCount(l)
	}

	var chunks []domain.Chunk
	startLine := 0

	for startLine < len(lines) {
		endLine := startLine
		currentWords := 0

		for endLine < len(lines) {
			next := currentWords + words[endLine]
			if endLine > startLine && c.tokenizer.TokensForWords(next) > maxTokens {
				break
			}
			currentWords = next
			endLine++
		}

		chunks = append(chunks, domain.Chunk{
			SourcePath: path,
			Seq:        len(chunks),
			StartLine:  startLine + 1,
			EndLine:    endLine,
			Text:       strings.Join(lines[startLine:endLine], "\n"),
			Tokens:     c.tokenizer.TokensForWords(currentWords),
		})

		if endLine >= len(lines) {
			break
		}

		newStart := endLine - c.calculateOverlapLines(words, startLine, endLine)
		if newStart <= startLine {
			newStart = startLine + 1
		}
		startLine = newStart
	}

	return chunks
}

func (c *LineChunker) calculateOverlapLines(words []int, start, end int) int {
	if c.overlap == 0 {
		return 0
	}

	overlapLines := 0
	n := 0

	for i := end - 1; i > start && c.tokenizer.TokensForWords(n) < c.overlap; i-- {
		n += words[i]
		overlapLines++
	}

	return overlapLines
}

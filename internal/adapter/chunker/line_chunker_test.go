package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctxasm/internal/adapter/analyzer"
)

func TestLineChunkerBasic(t *testing.T) {
	tokenizer := analyzer.NewTokenizer(false)
	chunker := NewLineChunker(0, tokenizer)

	content := `package main

import "fmt"

func main() {
    fmt.Println("Hello, World!")
}

func helper() {
    // some helper function
    return
}`

	chunks := chunker.Split("/test/file.go", content, 8)
	require.Greater(t, len(chunks), 1)

	for i, chunk := range chunks {
		assert.Equal(t, "/test/file.go", chunk.SourcePath)
		assert.Equal(t, i, chunk.Seq)
		assert.GreaterOrEqual(t, chunk.StartLine, 1)
		assert.GreaterOrEqual(t, chunk.EndLine, chunk.StartLine)
		assert.LessOrEqual(t, tokenizer.CountTokens(chunk.Text), 8)
		assert.Equal(t, tokenizer.CountTokens(chunk.Text), chunk.Tokens)
	}
}

func TestLineChunkerNoOverlapReassembles(t *testing.T) {
	tokenizer := analyzer.NewTokenizer(false)
	chunker := NewLineChunker(0, tokenizer)

	lines := []string{
		"Line one", "Line two", "Line three", "Line four",
		"Line five", "Line six", "Line seven", "Line eight",
	}
	content := strings.Join(lines, "\n")

	chunks := chunker.Split("f.txt", content, 6)
	require.NotEmpty(t, chunks)

	var parts []string
	for i, chunk := range chunks {
		parts = append(parts, chunk.Text)
		if i > 0 {
			assert.Equal(t, chunks[i-1].EndLine+1, chunk.StartLine)
		}
	}
	assert.Equal(t, content, strings.Join(parts, "\n"))
	assert.Equal(t, len(lines), chunks[len(chunks)-1].EndLine)
}

func TestLineChunkerOverlap(t *testing.T) {
	tokenizer := analyzer.NewTokenizer(false)
	chunker := NewLineChunker(2, tokenizer)

	content := "Line1 a\nLine2 b\nLine3 c\nLine4 d\nLine5 e"

	chunks := chunker.Split("f.txt", content, 6)
	require.GreaterOrEqual(t, len(chunks), 2)

	for i := 0; i < len(chunks)-1; i++ {
		assert.LessOrEqual(t, chunks[i+1].StartLine, chunks[i].EndLine, "chunk %d should overlap the next", i)
		assert.Greater(t, chunks[i+1].StartLine, chunks[i].StartLine)
	}
}

func TestLineChunkerEmptyContent(t *testing.T) {
	chunker := NewLineChunker(0, analyzer.NewTokenizer(false))

	assert.Empty(t, chunker.Split("empty.go", "", 50))
}

func TestLineChunkerSingleLine(t *testing.T) {
	chunker := NewLineChunker(0, analyzer.NewTokenizer(false))

	content := "Just a single line of code"
	chunks := chunker.Split("single.go", content, 50)

	require.Len(t, chunks, 1)
	assert.Equal(t, content, chunks[0].Text)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 1, chunks[0].EndLine)
}

func TestLineChunkerLongLine(t *testing.T) {
	chunker := NewLineChunker(0, analyzer.NewTokenizer(false))

	long := "This is a very long line with many many words that will exceed the token limit"
	chunks := chunker.Split("long.go", long+"\nshort", 5)

	require.Len(t, chunks, 2)
	assert.Equal(t, long, chunks[0].Text)
	assert.Equal(t, "short", chunks[1].Text)
}

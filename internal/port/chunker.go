package port

import "ctxasm/internal/domain"

// Chunker splits a file into pieces small enough for a single extraction call.
type Chunker interface {
	Split(path, content string, maxTokens int) []domain.Chunk
}

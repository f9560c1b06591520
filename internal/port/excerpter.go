package port

import "context"

// Excerpter shrinks content to the parts most relevant to a query, within maxTokens.
type Excerpter interface {
	Excerpt(ctx context.Context, query, content string, maxTokens int) (string, error)
}

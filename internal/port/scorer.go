package port

import (
	"context"

	"ctxasm/internal/domain"
)

// RelevanceScorer rates content against a query on a 0-10 scale.
type RelevanceScorer interface {
	Score(ctx context.Context, query, content string) (domain.Relevance, error)
}

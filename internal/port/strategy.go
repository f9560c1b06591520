package port

import (
	"context"

	"ctxasm/internal/domain"
)

type SymbolExtractor interface {
	Extract(ctx context.Context, path, content string) (domain.Symbols, error)
}

// QueryMatcher picks the entries of one batch that a query is about.
// Returned paths must come from the batch; anything else is discarded by the caller.
type QueryMatcher interface {
	MatchFiles(ctx context.Context, query string, batch []domain.IndexEntry) ([]domain.TargetFile, error)
}

// RelatedFinder proposes entries of one batch that relate to the already selected paths.
type RelatedFinder interface {
	RelatedFiles(ctx context.Context, selected []string, batch []domain.IndexEntry) ([]domain.TargetFile, error)
}

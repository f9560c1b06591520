package port

import (
	"context"

	"ctxasm/internal/domain"
)

// DocumentRetriever produces candidate documents for a query, best first.
type DocumentRetriever interface {
	Retrieve(ctx context.Context, query string) ([]domain.CandidateDocument, error)
}

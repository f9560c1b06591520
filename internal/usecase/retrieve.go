package usecase

import (
	"context"
	"log/slog"

	"ctxasm/internal/domain"
	"ctxasm/internal/port"
	"ctxasm/internal/slogutil"
)

// RetrieveUseCase handles document retrieval.
type RetrieveUseCase struct {
	retriever port.DocumentRetriever
	logger    *slog.Logger
}

// NewRetrieveUseCase creates a new retrieve use case.
func NewRetrieveUseCase(retriever port.DocumentRetriever, logger *slog.Logger) *RetrieveUseCase {
	return &RetrieveUseCase{
		retriever: retriever,
		logger:    slogutil.OrDiscard(logger),
	}
}

// Retrieve returns candidate documents for query, best first.
func (u *RetrieveUseCase) Retrieve(ctx context.Context, query string) ([]domain.CandidateDocument, error) {
	docs, err := u.retriever.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	u.logger.Debug("documents retrieved", "count", len(docs))
	return docs, nil
}

package usecase

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"ctxasm/internal/domain"
	"ctxasm/internal/port"
	"ctxasm/internal/slogutil"
)

// FilterUseCase scores retrieved documents and drops the irrelevant ones.
type FilterUseCase struct {
	scorer port.RelevanceScorer
	// documents scoring above this are flagged highly relevant
	highlyRelevant int
	workers        int
	logger         *slog.Logger
}

func NewFilterUseCase(scorer port.RelevanceScorer, highlyRelevant, workers int, logger *slog.Logger) *FilterUseCase {
	if workers <= 0 {
		workers = 1
	}
	return &FilterUseCase{
		scorer:         scorer,
		highlyRelevant: highlyRelevant,
		workers:        workers,
		logger:         slogutil.OrDiscard(logger),
	}
}

// WithScorer returns a copy that scores with s.
func (u *FilterUseCase) WithScorer(s port.RelevanceScorer) *FilterUseCase {
	c := *u
	c.scorer = s
	return &c
}

// Filter keeps the candidates scoring strictly above threshold. Highly
// relevant documents come first by descending score; the rest keep their
// retrieval order. Scoring failures count as 0.
func (u *FilterUseCase) Filter(ctx context.Context, query string, candidates []domain.CandidateDocument, threshold int) ([]domain.CandidateDocument, error) {
	scored := make([]domain.CandidateDocument, len(candidates))
	copy(scored, candidates)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.workers)
	for i := range scored {
		g.Go(func() error {
			rel, err := u.scorer.Score(gctx, query, scored[i].Content)
			if err != nil {
				if isSystemic(gctx, err) {
					return err
				}
				u.logger.Warn("document scoring failed, scoring 0", "path", scored[i].Path, "error", err)
				rel = domain.Relevance{}
			}
			scored[i].Score = rel.Score
			scored[i].Reason = rel.Reason
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var high, rest []domain.CandidateDocument
	for _, d := range scored {
		if d.Score <= threshold {
			continue
		}
		if d.Score > u.highlyRelevant {
			d.HighlyRelevant = true
			high = append(high, d)
		} else {
			rest = append(rest, d)
		}
	}
	// stable: equal scores keep retrieval rank
	sort.SliceStable(high, func(i, j int) bool { return high[i].Score > high[j].Score })

	u.logger.Debug("documents filtered",
		"candidates", len(candidates),
		"highly_relevant", len(high),
		"relevant", len(rest),
	)
	return append(high, rest...), nil
}

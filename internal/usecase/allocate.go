package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"ctxasm/internal/adapter/analyzer"
	"ctxasm/internal/domain"
	"ctxasm/internal/port"
	"ctxasm/internal/slogutil"
)

// Allocator packs ranked documents into a token budget split between whole
// documents, excerpts and unused headroom.
type Allocator struct {
	excerpter        port.Excerpter
	tokenizer        *analyzer.Tokenizer
	minExcerptTokens int
	minBufferTokens  int
	logger           *slog.Logger
}

func NewAllocator(excerpter port.Excerpter, tokenizer *analyzer.Tokenizer, minExcerptTokens, minBufferTokens int, logger *slog.Logger) *Allocator {
	return &Allocator{
		excerpter:        excerpter,
		tokenizer:        tokenizer,
		minExcerptTokens: minExcerptTokens,
		minBufferTokens:  minBufferTokens,
		logger:           slogutil.OrDiscard(logger),
	}
}

// Split computes the quotas for a limit. Quotas are floored; the buffer takes
// the remainder. A non-positive limit is treated as 0.
func Split(limit int, fullTextRatio, segmentRatio float64) (domain.BudgetAllocation, error) {
	if fullTextRatio < 0 || segmentRatio < 0 || fullTextRatio+segmentRatio > 1+1e-9 {
		return domain.BudgetAllocation{}, fmt.Errorf("%w: full_text_ratio=%g segment_ratio=%g", domain.ErrInvalidBudget, fullTextRatio, segmentRatio)
	}
	if limit <= 0 {
		return domain.BudgetAllocation{}, nil
	}
	full := quota(limit, fullTextRatio)
	segment := quota(limit, segmentRatio)
	if full+segment > limit {
		segment = limit - full
	}
	return domain.BudgetAllocation{
		TotalLimit:    limit,
		FullTextQuota: full,
		SegmentQuota:  segment,
		BufferQuota:   limit - full - segment,
	}, nil
}

// quota floors limit*ratio, tolerating float error such as 1000*0.29.
func quota(limit int, ratio float64) int {
	return int(math.Floor(float64(limit)*ratio + 1e-9))
}

// Allocate fills the full-text quota with whole documents in input order,
// then excerpts the documents that did not fit into the segment quota.
// Unused quota is not carried over. Budget problems that are not caller
// errors yield an empty context with a warning.
func (a *Allocator) Allocate(ctx context.Context, query string, docs []domain.CandidateDocument, tokenLimit int, fullTextRatio, segmentRatio float64) (*domain.AssembledContext, error) {
	alloc, err := Split(tokenLimit, fullTextRatio, segmentRatio)
	if err != nil {
		return nil, err
	}
	out := &domain.AssembledContext{
		Query:      query,
		Allocation: alloc,
		Items:      []domain.ContextItem{},
	}

	if tokenLimit <= 0 {
		a.warn(out, fmt.Sprintf("token limit %d leaves no room for context", tokenLimit))
		return out, nil
	}
	if alloc.BufferQuota < a.minBufferTokens {
		a.warn(out, fmt.Sprintf("buffer quota %d is below the required %d tokens", alloc.BufferQuota, a.minBufferTokens))
		return out, nil
	}
	if len(docs) == 0 {
		return out, nil
	}

	used := 0
	var carried []domain.CandidateDocument
	for i, d := range docs {
		tokens := a.tokens(d)
		if tokens == 0 {
			continue
		}
		if tokens > alloc.FullTextQuota {
			carried = append(carried, d)
			continue
		}
		if used+tokens > alloc.FullTextQuota {
			carried = append(carried, docs[i:]...)
			break
		}
		out.Items = append(out.Items, domain.ContextItem{
			Path:    d.Path,
			Content: d.Content,
			Tokens:  tokens,
			Score:   d.Score,
			Reason:  d.Reason,
		})
		used += tokens
	}
	out.UsedTokens = used

	segUsed := 0
	for _, d := range carried {
		remaining := alloc.SegmentQuota - segUsed
		if remaining < a.minExcerptTokens || remaining <= 0 {
			a.logger.Debug("segment quota exhausted, dropping document", "path", d.Path, "remaining", remaining)
			continue
		}
		excerpt, err := a.excerpter.Excerpt(ctx, query, d.Content, remaining)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Warn("excerpt failed, dropping document", "path", d.Path, "error", err)
			continue
		}
		excerpt = a.tokenizer.Truncate(excerpt, remaining)
		tokens := a.tokenizer.CountTokens(excerpt)
		if tokens == 0 {
			continue
		}
		out.Items = append(out.Items, domain.ContextItem{
			Path:    d.Path,
			Content: excerpt,
			Tokens:  tokens,
			Excerpt: true,
			Score:   d.Score,
			Reason:  d.Reason,
		})
		segUsed += tokens
	}
	out.UsedTokens += segUsed

	a.logger.Info("context allocated",
		"documents", len(docs),
		"items", len(out.Items),
		"full_text_tokens", used,
		"segment_tokens", segUsed,
		"limit", tokenLimit,
	)
	return out, nil
}

func (a *Allocator) tokens(d domain.CandidateDocument) int {
	if d.Tokens > 0 {
		return d.Tokens
	}
	return a.tokenizer.CountTokens(d.Content)
}

func (a *Allocator) warn(out *domain.AssembledContext, msg string) {
	out.Warnings = append(out.Warnings, msg)
	a.logger.Warn("context budget", "warning", msg)
}

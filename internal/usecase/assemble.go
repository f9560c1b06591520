package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"ctxasm/internal/adapter/analyzer"
	"ctxasm/internal/adapter/cache"
	"ctxasm/internal/domain"
	"ctxasm/internal/port"
	"ctxasm/internal/slogutil"
)

// SessionOptions are the per-session knobs of AssembleContext.
type SessionOptions struct {
	SkipBuildIndex bool
	// MinScore is the exclusive document retention threshold.
	MinScore      int
	TokenLimit    int
	FullTextRatio float64
	SegmentRatio  float64
}

// Session carries everything one assembly needs that is not a collaborator.
// A zero CodeRoot or DocsRoot disables that half of the pipeline.
type Session struct {
	CodeRoot string
	DocsRoot string
	Options  SessionOptions
	// Scores memoizes relevance scores across calls in the same session.
	// Nil disables caching.
	Scores *cache.ScoreCache
}

// Assembler is the context assembly entry point. It runs the index, the
// file selection and the document retrieval paths and packs their output
// into one budget.
type Assembler struct {
	index     *IndexUseCase
	store     port.IndexStore
	selector  *SelectUseCase
	retriever *RetrieveUseCase
	filter    *FilterUseCase
	allocator *Allocator
	walker    port.FileWalker
	reader    port.FileReader
	tokenizer *analyzer.Tokenizer
	logger    *slog.Logger
}

// AssemblerDeps groups the collaborators of an Assembler. Retriever and
// Filter may be nil when no document corpus is configured.
type AssemblerDeps struct {
	Index     *IndexUseCase
	Store     port.IndexStore
	Selector  *SelectUseCase
	Retriever *RetrieveUseCase
	Filter    *FilterUseCase
	Allocator *Allocator
	Walker    port.FileWalker
	Reader    port.FileReader
	Tokenizer *analyzer.Tokenizer
}

func NewAssembler(deps AssemblerDeps, logger *slog.Logger) *Assembler {
	return &Assembler{
		index:     deps.Index,
		store:     deps.Store,
		selector:  deps.Selector,
		retriever: deps.Retriever,
		filter:    deps.Filter,
		allocator: deps.Allocator,
		walker:    deps.Walker,
		reader:    deps.Reader,
		tokenizer: deps.Tokenizer,
		logger:    slogutil.OrDiscard(logger),
	}
}

// AssembleContext builds the context for query. Per-file and per-document
// failures are absorbed; cancellation, a missing corpus root and a provider
// that stays unavailable propagate.
func (a *Assembler) AssembleContext(ctx context.Context, sess *Session, query string) (*domain.AssembledContext, error) {
	if sess == nil {
		return nil, errors.New("nil session")
	}
	var warnings []string

	var codeDocs []domain.CandidateDocument
	if sess.CodeRoot != "" {
		docs, w, err := a.codeCandidates(ctx, sess, query)
		if err != nil {
			return nil, err
		}
		codeDocs = docs
		warnings = append(warnings, w...)
	}

	var textDocs []domain.CandidateDocument
	if sess.DocsRoot != "" && a.retriever != nil {
		retrieved, err := a.retriever.Retrieve(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("retrieve documents: %w", err)
		}
		textDocs = retrieved
		if filter := a.filter; filter != nil {
			if sess.Scores != nil {
				filter = filter.WithScorer(cache.NewCachedScorer(filter.scorer, sess.Scores))
			}
			textDocs, err = filter.Filter(ctx, query, retrieved, sess.Options.MinScore)
			if err != nil {
				return nil, fmt.Errorf("filter documents: %w", err)
			}
		}
	}

	merged := append(codeDocs, textDocs...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })

	out, err := a.allocator.Allocate(ctx, query, merged, sess.Options.TokenLimit, sess.Options.FullTextRatio, sess.Options.SegmentRatio)
	if err != nil {
		return nil, err
	}
	out.ID = uuid.NewString()
	out.Warnings = append(warnings, out.Warnings...)
	a.logger.Info("context assembled",
		"id", out.ID,
		"code_candidates", len(codeDocs),
		"doc_candidates", len(textDocs),
		"items", len(out.Items),
		"used_tokens", out.UsedTokens,
	)
	return out, nil
}

func (a *Assembler) codeCandidates(ctx context.Context, sess *Session, query string) ([]domain.CandidateDocument, []string, error) {
	var warnings []string

	if !sess.Options.SkipBuildIndex {
		sources, err := CollectSources(ctx, sess.CodeRoot, a.walker, a.reader, a.logger)
		if err != nil {
			return nil, nil, err
		}
		res, err := a.index.Build(ctx, sources, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("build index: %w", err)
		}
		warnings = append(warnings, res.Warnings...)
	}

	idx, err := a.store.Load()
	if err != nil {
		if !errors.Is(err, domain.ErrIndexCorrupt) {
			return nil, nil, fmt.Errorf("load index: %w", err)
		}
		a.logger.Warn("index unreadable, selecting from an empty index", "error", err)
		idx = domain.Index{}
	}

	selector := a.selector
	if sess.Scores != nil {
		selector = selector.WithScorer(cache.NewCachedScorer(selector.scorer, sess.Scores))
	}
	targets, err := selector.Select(ctx, query, idx)
	if err != nil {
		return nil, nil, fmt.Errorf("select files: %w", err)
	}

	docs := make([]domain.CandidateDocument, 0, len(targets))
	for _, t := range targets {
		content, err := a.reader.ReadFile(t.Path)
		if err != nil {
			a.logger.Warn("selected file unreadable, skipping", "path", t.Path, "error", err)
			continue
		}
		docs = append(docs, domain.CandidateDocument{
			Path:    t.Path,
			Content: content,
			Tokens:  a.tokenizer.CountTokens(content),
			Score:   int(t.Score),
			Reason:  t.Reason,
		})
	}
	return docs, warnings, nil
}

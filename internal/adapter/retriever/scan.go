package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"ctxasm/internal/adapter/analyzer"
	"ctxasm/internal/adapter/fs"
	"ctxasm/internal/domain"
	"ctxasm/internal/slogutil"
)

// ScanRetriever reads every eligible document under root and returns all of
// them, best BM25 match first. Ties keep lexicographic path order.
type ScanRetriever struct {
	root      string
	walker    *fs.Walker
	tokenizer *analyzer.Tokenizer
	ranker    *BM25Ranker
	logger    *slog.Logger
}

func NewScanRetriever(root string, walker *fs.Walker, tokenizer *analyzer.Tokenizer, ranker *BM25Ranker, logger *slog.Logger) *ScanRetriever {
	return &ScanRetriever{
		root:      root,
		walker:    walker,
		tokenizer: tokenizer,
		ranker:    ranker,
		logger:    slogutil.OrDiscard(logger),
	}
}

func (r *ScanRetriever) Retrieve(ctx context.Context, query string) ([]domain.CandidateDocument, error) {
	docs, err := loadCorpus(ctx, r.root, r.walker, r.tokenizer, r.logger)
	if err != nil {
		return nil, err
	}

	inputs := make([]RankInput, len(docs))
	for i, d := range docs {
		inputs[i] = RankInput{Path: d.Path, Text: d.Content}
	}
	for i, s := range r.ranker.Scores(query, inputs) {
		docs[i].RetrievalScore = s
	}

	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].RetrievalScore != docs[j].RetrievalScore {
			return docs[i].RetrievalScore > docs[j].RetrievalScore
		}
		return docs[i].Path < docs[j].Path
	})
	return docs, nil
}

// loadCorpus reads every file the walker admits. Unreadable and empty files
// are skipped; a missing root is domain.ErrCorpusRoot.
func loadCorpus(ctx context.Context, root string, walker *fs.Walker, tokenizer *analyzer.Tokenizer, logger *slog.Logger) ([]domain.CandidateDocument, error) {
	if err := checkRoot(root); err != nil {
		return nil, err
	}

	files, err := walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("walk corpus: %w", err)
	}

	docs := make([]domain.CandidateDocument, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := fs.ReadFile(f.Path)
		if err != nil {
			logger.Warn("skipping unreadable document", "path", f.Path, "error", err)
			continue
		}
		if content == "" {
			continue
		}
		docs = append(docs, domain.CandidateDocument{
			Path:    f.Path,
			Content: content,
			Tokens:  tokenizer.CountTokens(content),
		})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

func checkRoot(root string) error {
	if root == "" {
		return fmt.Errorf("%w: no corpus root configured", domain.ErrCorpusRoot)
	}
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrCorpusRoot, root)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", domain.ErrCorpusRoot, root)
	}
	return nil
}

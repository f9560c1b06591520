package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/cespare/xxhash/v2"

	"ctxasm/internal/adapter/analyzer"
	"ctxasm/internal/adapter/fs"
	"ctxasm/internal/domain"
	"ctxasm/internal/port"
	"ctxasm/internal/slogutil"
)

// SemanticRetriever answers queries by nearest-neighbor lookup in a vector
// store. Every Retrieve first syncs the store with the corpus, re-embedding
// only documents whose content fingerprint changed.
type SemanticRetriever struct {
	root        string
	walker      *fs.Walker
	tokenizer   *analyzer.Tokenizer
	vectorStore port.VectorStore
	embedder    port.Embedder
	topK        int
	batchSize   int
	maxTokens   int
	logger      *slog.Logger
}

// SemanticOptions tunes SemanticRetriever. Zero values take defaults.
type SemanticOptions struct {
	TopK      int
	BatchSize int
	// MaxEmbedTokens truncates each document before embedding.
	MaxEmbedTokens int
}

func NewSemanticRetriever(
	root string,
	walker *fs.Walker,
	tokenizer *analyzer.Tokenizer,
	vectorStore port.VectorStore,
	embedder port.Embedder,
	opts SemanticOptions,
	logger *slog.Logger,
) *SemanticRetriever {
	if opts.TopK <= 0 {
		opts.TopK = 50
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.MaxEmbedTokens <= 0 {
		opts.MaxEmbedTokens = 2000
	}
	return &SemanticRetriever{
		root:        root,
		walker:      walker,
		tokenizer:   tokenizer,
		vectorStore: vectorStore,
		embedder:    embedder,
		topK:        opts.TopK,
		batchSize:   opts.BatchSize,
		maxTokens:   opts.MaxEmbedTokens,
		logger:      slogutil.OrDiscard(logger),
	}
}

// SyncResult counts what Sync did.
type SyncResult struct {
	Embedded  int
	Removed   int
	Unchanged int
}

// Sync brings the vector store in line with the corpus.
func (r *SemanticRetriever) Sync(ctx context.Context) (SyncResult, error) {
	var res SyncResult

	docs, err := loadCorpus(ctx, r.root, r.walker, r.tokenizer, r.logger)
	if err != nil {
		return res, err
	}
	stored, err := r.vectorStore.Fingerprints()
	if err != nil {
		return res, fmt.Errorf("read fingerprints: %w", err)
	}

	present := make(map[string]struct{}, len(docs))
	var stale []domain.CandidateDocument
	var fps []uint64
	for _, d := range docs {
		present[d.Path] = struct{}{}
		fp := xxhash.Sum64String(d.Content)
		if old, ok := stored[d.Path]; ok && old == fp {
			res.Unchanged++
			continue
		}
		stale = append(stale, d)
		fps = append(fps, fp)
	}

	for start := 0; start < len(stale); start += r.batchSize {
		end := start + r.batchSize
		if end > len(stale) {
			end = len(stale)
		}
		texts := make([]string, 0, end-start)
		for _, d := range stale[start:end] {
			texts = append(texts, r.tokenizer.Truncate(d.Content, r.maxTokens))
		}

		vecs, err := r.embedder.Embed(ctx, texts)
		if err != nil {
			return res, fmt.Errorf("embed documents: %w", err)
		}
		if len(vecs) != len(texts) {
			return res, fmt.Errorf("embedder returned %d vectors for %d documents", len(vecs), len(texts))
		}

		items := make([]port.VectorItem, len(vecs))
		for i, v := range vecs {
			items[i] = port.VectorItem{
				ID:          stale[start+i].Path,
				Vector:      v,
				Fingerprint: fps[start+i],
			}
		}
		if err := r.vectorStore.Upsert(items); err != nil {
			return res, fmt.Errorf("store vectors: %w", err)
		}
		res.Embedded += len(items)
	}

	var gone []string
	for id := range stored {
		if _, ok := present[id]; !ok {
			gone = append(gone, id)
		}
	}
	if len(gone) > 0 {
		if err := r.vectorStore.Delete(gone); err != nil {
			return res, fmt.Errorf("delete vectors: %w", err)
		}
		res.Removed = len(gone)
	}

	r.logger.Debug("similarity index synced",
		"embedded", res.Embedded,
		"removed", res.Removed,
		"unchanged", res.Unchanged,
	)
	return res, nil
}

func (r *SemanticRetriever) Retrieve(ctx context.Context, query string) ([]domain.CandidateDocument, error) {
	if _, err := r.Sync(ctx); err != nil {
		return nil, err
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, errors.New("embedding returned empty result")
	}

	results, err := r.vectorStore.Search(embeddings[0], r.topK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	docs := make([]domain.CandidateDocument, 0, len(results))
	for _, result := range results {
		content, err := fs.ReadFile(result.ID)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				r.logger.Warn("skipping unreadable document", "path", result.ID, "error", err)
			}
			continue
		}
		docs = append(docs, domain.CandidateDocument{
			Path:           result.ID,
			Content:        content,
			Tokens:         r.tokenizer.CountTokens(content),
			RetrievalScore: result.Score,
		})
	}
	return docs, nil
}

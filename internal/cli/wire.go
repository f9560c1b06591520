package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"ctxasm/config"
	"ctxasm/internal/adapter/analyzer"
	"ctxasm/internal/adapter/cache"
	"ctxasm/internal/adapter/chunker"
	"ctxasm/internal/adapter/embedding"
	"ctxasm/internal/adapter/fs"
	"ctxasm/internal/adapter/heuristic"
	"ctxasm/internal/adapter/llm"
	"ctxasm/internal/adapter/ratelimit"
	"ctxasm/internal/adapter/retriever"
	"ctxasm/internal/adapter/store"
	"ctxasm/internal/adapter/strategy"
	"ctxasm/internal/port"
	"ctxasm/internal/slogutil"
	"ctxasm/internal/usecase"
)

// strategies are the pluggable judgments the pipeline delegates.
type strategies struct {
	extractor port.SymbolExtractor
	matcher   port.QueryMatcher
	related   port.RelatedFinder
	scorer    port.RelevanceScorer
	excerpter port.Excerpter
}

// app holds the wired pipeline for one command invocation.
type app struct {
	cfg       *config.Config
	root      string
	docsRoot  string
	logger    *slog.Logger
	tokenizer *analyzer.Tokenizer
	store     *store.JSONIndexStore
	walker    *fs.Walker
	reader    *fs.RootReader
	limiter   *ratelimit.Limiter

	index     *usecase.IndexUseCase
	selector  *usecase.SelectUseCase
	retrieve  *usecase.RetrieveUseCase
	filter    *usecase.FilterUseCase
	allocator *usecase.Allocator

	closers []func() error
}

func newApp(cfg *config.Config, root string, logger *slog.Logger) (*app, error) {
	logger = slogutil.OrDiscard(logger)
	a := &app{
		cfg:       cfg,
		root:      root,
		logger:    logger,
		tokenizer: analyzer.NewTokenizer(cfg.Index.Stemming),
		store:     store.NewJSONIndexStore(config.IndexPath(root)),
	}

	reader, err := fs.NewRootReader(root)
	if err != nil {
		return nil, fmt.Errorf("invalid root: %w", err)
	}
	a.reader = reader

	a.walker, err = newWalker(root, cfg.Index.Includes, cfg.Index.Excludes, nil, logger)
	if err != nil {
		return nil, err
	}

	limits := ratelimit.DefaultConfig()
	limits.Interval = time.Duration(cfg.Index.AntiQuotaLimit * float64(time.Second))
	limits.MaxInFlight = cfg.LLM.MaxInFlight
	limits.MaxRetries = cfg.LLM.MaxRetries
	limits.Backoff = cfg.LLM.RetryBackoff.Std()
	a.limiter = ratelimit.New(limits, logger)

	strat, err := newStrategies(cfg, a.tokenizer, a.limiter)
	if err != nil {
		return nil, err
	}

	a.index = usecase.NewIndexUseCase(a.store, strat.extractor, chunker.NewLineChunker(0, a.tokenizer), a.tokenizer,
		usecase.IndexOptions{
			Root:           root,
			SkipExts:       cfg.Index.SkipExts,
			MaxInputLength: cfg.Index.MaxInputLength,
			Workers:        cfg.Index.Workers,
		}, logger)

	a.selector = usecase.NewSelectUseCase(strat.matcher, strat.related, strat.scorer, a.reader, a.tokenizer,
		usecase.SelectOptions{
			Level:           usecase.FilterLevel(cfg.Filter.IndexFilterLevel),
			Skip:            cfg.Filter.SkipFilterIndex,
			MaxFiles:        cfg.Filter.IndexFilterFileNum,
			VerifyThreshold: cfg.Filter.VerifyFileRelevanceScore,
			BatchSize:       cfg.Filter.FilterBatchSize,
			MaxInputLength:  cfg.Index.MaxInputLength,
			Workers:         cfg.Filter.Workers,
		}, logger)

	a.filter = usecase.NewFilterUseCase(strat.scorer, cfg.Docs.DocFilterRelevance, cfg.Filter.Workers, logger)
	a.allocator = usecase.NewAllocator(strat.excerpter, a.tokenizer, cfg.Budget.MinExcerptTokens, cfg.Budget.MinBufferTokens, logger)

	if cfg.Docs.Root != "" {
		a.docsRoot = cfg.Docs.Root
		if !filepath.IsAbs(a.docsRoot) {
			a.docsRoot = filepath.Join(root, a.docsRoot)
		}
		docs, err := a.newDocumentRetriever()
		if err != nil {
			a.Close()
			return nil, err
		}
		a.retrieve = usecase.NewRetrieveUseCase(docs, logger)
	}
	return a, nil
}

// Close releases the stores opened by newApp.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) assembler() *usecase.Assembler {
	return usecase.NewAssembler(usecase.AssemblerDeps{
		Index:     a.index,
		Store:     a.store,
		Selector:  a.selector,
		Retriever: a.retrieve,
		Filter:    a.filter,
		Allocator: a.allocator,
		Walker:    a.walker,
		Reader:    a.reader,
		Tokenizer: a.tokenizer,
	}, a.logger)
}

func (a *app) session() *usecase.Session {
	return &usecase.Session{
		CodeRoot: a.root,
		DocsRoot: a.docsRoot,
		Options: usecase.SessionOptions{
			SkipBuildIndex: a.cfg.Index.SkipBuildIndex,
			MinScore:       a.cfg.Docs.MinScore,
			TokenLimit:     a.cfg.Budget.TokenLimit,
			FullTextRatio:  a.cfg.Budget.FullTextRatio,
			SegmentRatio:   a.cfg.Budget.SegmentRatio,
		},
		Scores: cache.NewScoreCache(a.cfg.Cache.Size, a.cfg.Cache.TTL.Std()),
	}
}

func (a *app) newDocumentRetriever() (port.DocumentRetriever, error) {
	walker, err := newWalker(a.docsRoot, nil, a.cfg.Index.Excludes, a.cfg.Docs.RequiredExts, a.logger)
	if err != nil {
		return nil, err
	}

	switch a.cfg.Docs.Strategy {
	case "semantic":
		embedder, err := newEmbedder(a.cfg, a.tokenizer, a.limiter)
		if err != nil {
			return nil, err
		}
		if err := config.EnsureDir(a.root); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", config.DirName, err)
		}
		bolt, err := store.NewBoltStore(config.VectorDBPath(a.root))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, bolt.Close)

		cleared, reason, err := bolt.Prepare(a.cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare vector store: %w", err)
		}
		if cleared {
			a.logger.Info("similarity index cleared", "reason", reason)
		}

		vectors, err := store.NewBoltVectorStore(bolt.DB(), embedder.Dimension())
		if err != nil {
			return nil, fmt.Errorf("failed to open vector store: %w", err)
		}
		return retriever.NewSemanticRetriever(a.docsRoot, walker, a.tokenizer, vectors, embedder,
			retriever.SemanticOptions{
				TopK:      a.cfg.Docs.TopK,
				BatchSize: a.cfg.Embedding.BatchSize,
			}, a.logger), nil
	default:
		ranker := retriever.NewBM25Ranker(a.tokenizer, a.cfg.Docs.K1, a.cfg.Docs.B, a.cfg.Docs.PathBoostWeight)
		return retriever.NewScanRetriever(a.docsRoot, walker, a.tokenizer, ranker, a.logger), nil
	}
}

// newWalker builds a walker that also honors the ignore file found in root.
func newWalker(root string, includes, excludes, exts []string, logger *slog.Logger) (*fs.Walker, error) {
	w := fs.NewWalker(includes, excludes).WithExtensions(exts)
	rules, source, err := fs.LoadIgnoreRules(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read ignore file: %w", err)
	}
	if rules != nil {
		logger.Debug("using ignore rules", "file", source)
		w = w.WithIgnore(rules)
	}
	return w, nil
}

func newStrategies(cfg *config.Config, tok *analyzer.Tokenizer, limiter *ratelimit.Limiter) (strategies, error) {
	switch cfg.LLM.Provider {
	case "", "local":
		return strategies{
			extractor: analyzer.NewSymbolExtractor(),
			matcher:   heuristic.NewSymbolMatcher(tok),
			related:   heuristic.NewImportFinder(),
			scorer:    heuristic.NewTermScorer(tok),
			excerpter: heuristic.NewWindowExcerpter(tok),
		}, nil
	case "openai":
		client, err := llm.NewChatClient(llm.Options{
			BaseURL:   cfg.LLM.BaseURL,
			Model:     cfg.LLM.Model,
			APIKeyEnv: cfg.LLM.APIKeyEnv,
			Timeout:   cfg.LLM.Timeout.Std(),
		})
		if err != nil {
			return strategies{}, fmt.Errorf("failed to create LLM client: %w", err)
		}
		model := ratelimit.WrapLLM(client, limiter)
		return strategies{
			extractor: strategy.NewExtractor(model),
			matcher:   strategy.NewMatcher(model),
			related:   strategy.NewRelatedFinder(model),
			scorer:    strategy.NewScorer(model, tok, cfg.Index.MaxInputLength),
			excerpter: strategy.NewExcerpter(model, tok),
		}, nil
	default:
		return strategies{}, fmt.Errorf("unsupported llm provider: %s", cfg.LLM.Provider)
	}
}

// newEmbedder returns the configured embedder. Remote providers share the
// provider limiter; the local hash embedder does not need it.
func newEmbedder(cfg *config.Config, tok *analyzer.Tokenizer, limiter *ratelimit.Limiter) (port.Embedder, error) {
	var (
		remote *embedding.OpenAIEmbedder
		err    error
	)
	switch cfg.Embedding.Provider {
	case "", "local":
		return embedding.NewHashEmbedder(cfg.Embedding.Dimension, tok), nil
	case "openai":
		remote, err = embedding.NewOpenAIEmbedder(cfg.Embedding.APIKeyEnv, cfg.Embedding.Model)
	case "ollama":
		remote, err = embedding.NewOllamaEmbedder(cfg.Embedding.Model, cfg.Embedding.BaseURL)
	case "compatible":
		remote, err = embedding.NewOpenAICompatibleEmbedder(cfg.Embedding.APIKeyEnv, cfg.Embedding.Model, cfg.Embedding.BaseURL)
		if err == nil {
			// the model name says nothing about its width
			remote = remote.WithDimension(cfg.Embedding.Dimension)
		}
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embedding.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return ratelimit.WrapEmbedder(remote, limiter), nil
}

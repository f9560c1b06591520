package usecase

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/hbollon/go-edlib"
	"golang.org/x/sync/errgroup"

	"ctxasm/internal/adapter/analyzer"
	"ctxasm/internal/adapter/symtext"
	"ctxasm/internal/domain"
	"ctxasm/internal/port"
	"ctxasm/internal/slogutil"
)

// FilterLevel selects how much of the selection cascade runs.
type FilterLevel int

const (
	// FilterNone returns every indexed path.
	FilterNone FilterLevel = iota
	// FilterQuery runs the query match only.
	FilterQuery
	// FilterVerified runs query match, expansion and content verification.
	FilterVerified
)

// HintSimilarity is the Jaro-Winkler similarity at which a hint matches a
// name it does not equal.
const HintSimilarity = 0.92

const fallbackReason = "no related files found, using all files"

// SelectOptions tunes SelectUseCase.
type SelectOptions struct {
	Level FilterLevel
	// Skip forces FilterNone.
	Skip bool
	// MaxFiles caps the result; <= 0 is unlimited.
	MaxFiles int
	// VerifyThreshold is exclusive: a file needs a higher score to stay.
	VerifyThreshold int
	BatchSize       int
	// MaxInputLength caps the estimated tokens of one batch's rendered entries.
	MaxInputLength int
	Workers        int
}

// SelectUseCase picks the indexed files relevant to a query.
type SelectUseCase struct {
	matcher   port.QueryMatcher
	related   port.RelatedFinder
	scorer    port.RelevanceScorer
	reader    port.FileReader
	tokenizer *analyzer.Tokenizer
	opts      SelectOptions
	logger    *slog.Logger
}

func NewSelectUseCase(
	matcher port.QueryMatcher,
	related port.RelatedFinder,
	scorer port.RelevanceScorer,
	reader port.FileReader,
	tokenizer *analyzer.Tokenizer,
	opts SelectOptions,
	logger *slog.Logger,
) *SelectUseCase {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &SelectUseCase{
		matcher:   matcher,
		related:   related,
		scorer:    scorer,
		reader:    reader,
		tokenizer: tokenizer,
		opts:      opts,
		logger:    slogutil.OrDiscard(logger),
	}
}

// WithScorer returns a copy that verifies with s.
func (u *SelectUseCase) WithScorer(s port.RelevanceScorer) *SelectUseCase {
	c := *u
	c.scorer = s
	return &c
}

// Select runs the cascade configured by the filter level over idx.
func (u *SelectUseCase) Select(ctx context.Context, query string, idx domain.Index) ([]domain.TargetFile, error) {
	entries := idx.Entries()
	if len(entries) == 0 {
		return nil, nil
	}

	level := u.opts.Level
	if u.opts.Skip {
		level = FilterNone
	}
	if level == FilterNone {
		out := make([]domain.TargetFile, len(entries))
		for i, e := range entries {
			out[i] = domain.TargetFile{Path: e.Path, Stage: domain.StageFallback}
		}
		return u.limit(out), nil
	}

	selected, err := u.matchStage(ctx, query, idx, entries)
	if err != nil {
		return nil, err
	}
	if level == FilterQuery {
		return selected, nil
	}

	related, err := u.relatedStage(ctx, selected, idx, entries)
	if err != nil {
		return nil, err
	}
	verified, err := u.verifyStage(ctx, query, append(selected, related...))
	if err != nil {
		return nil, err
	}
	sortByScore(verified)
	return u.limit(verified), nil
}

// matchStage resolves hints and asks the matcher batch by batch.
func (u *SelectUseCase) matchStage(ctx context.Context, query string, idx domain.Index, entries []domain.IndexEntry) ([]domain.TargetFile, error) {
	hints := matchHints(parseHints(query), entries)

	found := make(map[string]domain.TargetFile)
	var mu sync.Mutex
	err := u.eachBatch(ctx, entries, func(batch []domain.IndexEntry) error {
		matches, err := u.matcher.MatchFiles(ctx, query, batch)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		for _, m := range matches {
			p := NormalizePath(m.Path)
			if _, known := idx[p]; !known {
				u.logger.Debug("dropping unknown path from matcher", "path", m.Path)
				continue
			}
			m.Path = p
			m.Stage = domain.StageQuery
			if prev, ok := found[p]; !ok || m.Score > prev.Score {
				found[p] = m
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var inferred []domain.TargetFile
	for p, m := range found {
		if _, isHint := hints[p]; !isHint {
			inferred = append(inferred, m)
		}
	}

	if len(hints) == 0 && len(inferred) == 0 {
		out := make([]domain.TargetFile, len(entries))
		for i, e := range entries {
			out[i] = domain.TargetFile{Path: e.Path, Reason: fallbackReason, Stage: domain.StageFallback}
		}
		u.logger.Info("no related files found, using all files", "files", len(out))
		return u.limit(out), nil
	}

	hinted := make([]domain.TargetFile, 0, len(hints))
	for _, h := range hints {
		hinted = append(hinted, h)
	}
	sort.Slice(hinted, func(i, j int) bool { return hinted[i].Path < hinted[j].Path })
	sortByScore(inferred)
	return u.limit(append(hinted, inferred...)), nil
}

// relatedStage expands the selection with files it depends on.
func (u *SelectUseCase) relatedStage(ctx context.Context, selected []domain.TargetFile, idx domain.Index, entries []domain.IndexEntry) ([]domain.TargetFile, error) {
	if len(selected) == 0 || len(selected) == len(entries) {
		return nil, nil
	}
	present := make(map[string]struct{}, len(selected))
	paths := make([]string, len(selected))
	for i, s := range selected {
		present[s.Path] = struct{}{}
		paths[i] = s.Path
	}

	found := make(map[string]domain.TargetFile)
	var mu sync.Mutex
	err := u.eachBatch(ctx, entries, func(batch []domain.IndexEntry) error {
		rel, err := u.related.RelatedFiles(ctx, paths, batch)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		for _, r := range rel {
			p := NormalizePath(r.Path)
			if _, known := idx[p]; !known {
				continue
			}
			if _, dup := present[p]; dup {
				continue
			}
			r.Path = p
			r.Stage = domain.StageRelated
			if prev, ok := found[p]; !ok || r.Score > prev.Score {
				found[p] = r
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.TargetFile, 0, len(found))
	for _, r := range found {
		out = append(out, r)
	}
	sortByScore(out)
	return out, nil
}

// verifyStage scores each candidate's content and keeps those strictly above
// the threshold. Read and scoring failures count as score 0.
func (u *SelectUseCase) verifyStage(ctx context.Context, query string, candidates []domain.TargetFile) ([]domain.TargetFile, error) {
	scores := make([]domain.Relevance, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.opts.Workers)
	for i, c := range candidates {
		g.Go(func() error {
			content, err := u.reader.ReadFile(c.Path)
			if err != nil {
				u.logger.Warn("cannot read file for verification", "path", c.Path, "error", err)
				return nil
			}
			rel, err := u.scorer.Score(gctx, query, content)
			if err != nil {
				if isSystemic(gctx, err) {
					return err
				}
				u.logger.Warn("verification failed, scoring 0", "path", c.Path, "error", err)
				return nil
			}
			scores[i] = rel
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var kept []domain.TargetFile
	for i, c := range candidates {
		if scores[i].Score <= u.opts.VerifyThreshold {
			u.logger.Debug("file dropped by verification", "path", c.Path, "score", scores[i].Score)
			continue
		}
		c.Score = float64(scores[i].Score)
		if scores[i].Reason != "" {
			c.Reason = scores[i].Reason
		}
		kept = append(kept, c)
	}
	return kept, nil
}

// eachBatch calls fn for every batch of entries on a bounded pool. A batch
// that fails is logged and skipped unless the failure is systemic.
func (u *SelectUseCase) eachBatch(ctx context.Context, entries []domain.IndexEntry, fn func([]domain.IndexEntry) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.opts.Workers)
	for i, batch := range u.batches(entries) {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			err := fn(batch)
			if err == nil {
				return nil
			}
			if isSystemic(gctx, err) {
				return err
			}
			u.logger.Warn("batch failed, skipping", "batch", i, "files", len(batch), "error", err)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// batches groups entries into runs of at most BatchSize entries whose
// rendered form stays within MaxInputLength tokens. An entry too large on
// its own gets a batch of its own.
func (u *SelectUseCase) batches(entries []domain.IndexEntry) [][]domain.IndexEntry {
	var (
		out   [][]domain.IndexEntry
		cur   []domain.IndexEntry
		words int
	)
	for _, e := range entries {
		w := u.tokenizer.WordCount(symtext.RenderEntry(e))
		tooBig := u.opts.MaxInputLength > 0 && u.tokenizer.TokensForWords(words+w) > u.opts.MaxInputLength
		if len(cur) > 0 && (len(cur) >= u.opts.BatchSize || tooBig) {
			out = append(out, cur)
			cur, words = nil, 0
		}
		cur = append(cur, e)
		words += w
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

func (u *SelectUseCase) limit(files []domain.TargetFile) []domain.TargetFile {
	if u.opts.MaxFiles > 0 && len(files) > u.opts.MaxFiles {
		return files[:u.opts.MaxFiles]
	}
	return files
}

// sortByScore orders by descending score, ties by path.
func sortByScore(files []domain.TargetFile) {
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Score != files[j].Score {
			return files[i].Score > files[j].Score
		}
		return files[i].Path < files[j].Path
	})
}

type hints struct {
	paths   []string
	symbols []string
}

// parseHints finds "@path" and "@@symbol" tokens in a query.
func parseHints(query string) hints {
	var h hints
	for _, tok := range strings.Fields(query) {
		tok = strings.TrimRight(tok, ",.;:!?)\"'`")
		switch {
		case strings.HasPrefix(tok, "@@"):
			if name := strings.TrimPrefix(tok, "@@"); name != "" {
				h.symbols = append(h.symbols, name)
			}
		case strings.HasPrefix(tok, "@"):
			if p := strings.TrimPrefix(tok, "@"); p != "" {
				h.paths = append(h.paths, p)
			}
		}
	}
	return h
}

// matchHints returns the entries named by hints, keyed by path.
func matchHints(h hints, entries []domain.IndexEntry) map[string]domain.TargetFile {
	out := make(map[string]domain.TargetFile)
	add := func(e domain.IndexEntry, reason string) {
		if _, ok := out[e.Path]; ok {
			return
		}
		out[e.Path] = domain.TargetFile{
			Path:   e.Path,
			Score:  10,
			Reason: reason,
			Hint:   true,
			Stage:  domain.StageHint,
		}
	}

	for _, p := range h.paths {
		for _, e := range pathHintMatches(p, entries) {
			add(e, "path hint @"+p)
		}
	}
	for _, s := range h.symbols {
		for _, e := range entries {
			for _, name := range e.Symbols.Names() {
				if name == s || similar(name, s) {
					add(e, "symbol hint @@"+s)
					break
				}
			}
		}
	}
	return out
}

// pathHintMatches returns the entries a path hint names. A hint with a slash
// must be a path suffix; a bare hint must equal a directory, a file name or a
// file name without extension. Similar file names count too. Only when
// nothing matches that way is a case-insensitive substring accepted.
func pathHintMatches(hint string, entries []domain.IndexEntry) []domain.IndexEntry {
	lh := strings.ToLower(strings.TrimPrefix(hint, "./"))
	var named, contains []domain.IndexEntry
	for _, e := range entries {
		lp := strings.ToLower(e.Path)
		if namesPath(lp, lh) || similar(path.Base(e.Path), path.Base(hint)) {
			named = append(named, e)
		} else if strings.Contains(lp, lh) {
			contains = append(contains, e)
		}
	}
	if len(named) > 0 {
		return named
	}
	return contains
}

func namesPath(lowerPath, lowerHint string) bool {
	if strings.Contains(lowerHint, "/") {
		return lowerPath == lowerHint || strings.HasSuffix(lowerPath, "/"+strings.TrimPrefix(lowerHint, "/"))
	}
	for _, seg := range strings.Split(lowerPath, "/") {
		if seg == lowerHint || strings.TrimSuffix(seg, path.Ext(seg)) == lowerHint {
			return true
		}
	}
	return false
}

func similar(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	sim, err := edlib.StringsSimilarity(strings.ToLower(a), strings.ToLower(b), edlib.JaroWinkler)
	return err == nil && float64(sim) >= HintSimilarity
}

// isSystemic reports whether err should abort the whole operation instead of
// being absorbed per item: cancellation, or a provider that stayed
// unavailable or rate limited after retries.
func isSystemic(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrProviderUnavailable)
}

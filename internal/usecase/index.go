package usecase

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"ctxasm/internal/adapter/analyzer"
	"ctxasm/internal/domain"
	"ctxasm/internal/port"
	"ctxasm/internal/slogutil"
)

// IndexOptions tunes IndexUseCase.
type IndexOptions struct {
	// Root is the project root. Entries outside it produce a warning.
	Root string
	// SkipExts lists extensions (".md") that are never extracted.
	SkipExts []string
	// MaxInputLength caps the estimated tokens of one extraction call.
	MaxInputLength int
	Workers        int
}

// IndexUseCase builds and maintains the symbol index.
type IndexUseCase struct {
	store     port.IndexStore
	extractor port.SymbolExtractor
	chunker   port.Chunker
	tokenizer *analyzer.Tokenizer
	opts      IndexOptions
	skip      map[string]struct{}
	logger    *slog.Logger
}

// NewIndexUseCase creates a new index use case.
func NewIndexUseCase(
	store port.IndexStore,
	extractor port.SymbolExtractor,
	chunker port.Chunker,
	tokenizer *analyzer.Tokenizer,
	opts IndexOptions,
	logger *slog.Logger,
) *IndexUseCase {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	skip := make(map[string]struct{}, len(opts.SkipExts))
	for _, e := range opts.SkipExts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		skip[e] = struct{}{}
	}
	return &IndexUseCase{
		store:     store,
		extractor: extractor,
		chunker:   chunker,
		tokenizer: tokenizer,
		opts:      opts,
		skip:      skip,
		logger:    slogutil.OrDiscard(logger),
	}
}

// IndexResult contains the results of an indexing operation.
type IndexResult struct {
	FilesIndexed    int
	FilesUnchanged  int
	FilesSkipped    int
	FilesFailed     int
	ChunksExtracted int
	// Rebuilt is set when the stored index was unreadable and was started over.
	Rebuilt  bool
	Errors   []string
	Warnings []string
}

// ProgressFunc is called once per input file, from any goroutine.
type ProgressFunc func(done, total int)

type extractJob struct {
	path    string
	content string
	hash    string
	mtime   float64
}

// Build brings the index in line with files. Unchanged files (same MD5) are
// never re-extracted; entries for files not in the input are kept. The store
// is written only when an entry changed. On cancellation, or when the
// provider stays rate limited or unreachable, the entries finished so far
// are saved and the error is returned.
func (u *IndexUseCase) Build(ctx context.Context, files []domain.SourceFile, progress ProgressFunc) (*IndexResult, error) {
	result := &IndexResult{}

	current, err := u.store.Load()
	if err != nil {
		if !errors.Is(err, domain.ErrIndexCorrupt) {
			return nil, fmt.Errorf("failed to load index: %w", err)
		}
		u.logger.Warn("index unreadable, rebuilding from scratch", "error", err)
		current = domain.Index{}
		result.Rebuilt = true
	}
	if w := u.checkRoot(current); w != "" {
		result.Warnings = append(result.Warnings, w)
	}

	var (
		mu      sync.Mutex // guards result, next and changed
		progMu  sync.Mutex
		done    int
		changed = result.Rebuilt && len(files) > 0
	)
	total := len(files)
	tick := func() {
		if progress == nil {
			return
		}
		progMu.Lock()
		done++
		progress(done, total)
		progMu.Unlock()
	}

	var jobs []extractJob
	for _, f := range files {
		p := NormalizePath(f.Path)
		if f.Content == "" || u.skipped(p) {
			result.FilesSkipped++
			tick()
			continue
		}
		hash := contentHash(f.Content)
		if existing, ok := current[p]; ok && existing.ContentHash == hash {
			result.FilesUnchanged++
			tick()
			continue
		}
		var mtime float64
		if !f.ModTime.IsZero() {
			mtime = float64(f.ModTime.UnixNano()) / 1e9
		}
		jobs = append(jobs, extractJob{path: p, content: f.Content, hash: hash, mtime: mtime})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].path < jobs[j].path })

	next := current.Clone()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.opts.Workers)

	for _, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			syms, chunks, err := u.extract(gctx, job.path, job.content)
			if err != nil && isSystemic(gctx, err) {
				// completed entries are still saved below
				return fmt.Errorf("%s: %w", job.path, err)
			}

			mu.Lock()
			if err != nil {
				result.FilesFailed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", job.path, err))
				u.logger.Warn("symbol extraction failed", "path", job.path, "error", err)
			} else {
				next[job.path] = domain.IndexEntry{
					Path:         job.path,
					Symbols:      syms,
					LastModified: job.mtime,
					ContentHash:  job.hash,
				}
				changed = true
				result.FilesIndexed++
				result.ChunksExtracted += chunks
			}
			mu.Unlock()

			tick()
			return nil
		})
	}
	poolErr := g.Wait()
	sort.Strings(result.Errors)

	if changed {
		if err := u.store.Save(next); err != nil {
			return result, fmt.Errorf("failed to save index: %w", err)
		}
	}
	u.logger.Info("index build finished",
		"indexed", result.FilesIndexed,
		"unchanged", result.FilesUnchanged,
		"skipped", result.FilesSkipped,
		"failed", result.FilesFailed,
		"saved", changed,
	)
	if err := ctx.Err(); err != nil {
		return result, err
	}
	if poolErr != nil {
		return result, fmt.Errorf("indexing stopped: %w", poolErr)
	}
	return result, nil
}

// extract runs the extractor over the whole file, or over line-bounded
// chunks when the file is larger than one call allows, and merges the parts.
func (u *IndexUseCase) extract(ctx context.Context, path, content string) (domain.Symbols, int, error) {
	if u.opts.MaxInputLength <= 0 || u.tokenizer.CountTokens(content) <= u.opts.MaxInputLength {
		syms, err := u.extractor.Extract(ctx, path, content)
		return syms, 1, err
	}

	chunks := u.chunker.Split(path, content, u.opts.MaxInputLength)
	var merged domain.Symbols
	for _, c := range chunks {
		syms, err := u.extractor.Extract(ctx, path, c.Text)
		if err != nil {
			return domain.Symbols{}, 0, fmt.Errorf("chunk %d (lines %d-%d): %w", c.Seq, c.StartLine, c.EndLine, err)
		}
		merged = merged.Merge(syms)
	}
	return merged, len(chunks), nil
}

// Prune removes entries whose path is not in existing and returns how many
// were removed.
func (u *IndexUseCase) Prune(ctx context.Context, existing []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	idx, err := u.store.Load()
	if err != nil {
		return 0, fmt.Errorf("failed to load index: %w", err)
	}

	keep := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		keep[NormalizePath(p)] = struct{}{}
	}
	removed := 0
	for p := range idx {
		if _, ok := keep[p]; !ok {
			delete(idx, p)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := u.store.Save(idx); err != nil {
		return 0, fmt.Errorf("failed to save index: %w", err)
	}
	u.logger.Info("pruned index", "removed", removed)
	return removed, nil
}

// checkRoot warns once when entries live outside the project root, which
// usually means the index was copied from another checkout.
func (u *IndexUseCase) checkRoot(idx domain.Index) string {
	if u.opts.Root == "" || len(idx) == 0 {
		return ""
	}
	root := strings.TrimSuffix(NormalizePath(u.opts.Root), "/") + "/"
	outside := 0
	example := ""
	for _, e := range idx.Entries() {
		if !strings.HasPrefix(e.Path, root) {
			if outside == 0 {
				example = e.Path
			}
			outside++
		}
	}
	if outside == 0 {
		return ""
	}
	msg := fmt.Sprintf("%d index entries are outside %s (e.g. %s); the index may belong to another checkout, consider 'ctxasm import' or '--prune'", outside, u.opts.Root, example)
	u.logger.Warn("index entries outside project root", "count", outside, "root", u.opts.Root, "example", example)
	return msg
}

func (u *IndexUseCase) skipped(p string) bool {
	_, ok := u.skip[strings.ToLower(path.Ext(p))]
	return ok
}

// NormalizePath cleans p and makes it slash-separated. Index keys always go
// through it.
func NormalizePath(p string) string {
	return filepath.ToSlash(filepath.Clean(p))
}

func contentHash(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

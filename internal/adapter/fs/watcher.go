package fs

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"ctxasm/internal/slogutil"
)

// Watcher reports batches of changed files under a root. Events are
// debounced so a burst of writes produces a single callback.
type Watcher struct {
	walker   *Walker
	debounce time.Duration
	logger   *slog.Logger
}

func NewWatcher(walker *Walker, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	return &Watcher{
		walker:   walker,
		debounce: debounce,
		logger:   slogutil.OrDiscard(logger),
	}
}

// Run watches root until ctx is done. onChange receives the sorted, slash
// separated absolute paths touched since the previous callback. It is called
// from the Run goroutine, never concurrently.
func (w *Watcher) Run(ctx context.Context, root string, onChange func(paths []string)) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addTree(fw, root, root); err != nil {
		return err
	}

	pending := make(map[string]struct{})
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(fw, root, ev.Name); err != nil {
						w.logger.Warn("failed to watch new directory", "path", ev.Name, "error", err)
					}
					continue
				}
			}
			if !w.relevant(root, ev.Name) {
				continue
			}
			pending[filepath.ToSlash(ev.Name)] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			pending = make(map[string]struct{})
			onChange(paths)
		}
	}
}

func (w *Watcher) relevant(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return w.walker == nil || w.walker.Allowed(rel)
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.walker != nil && path != root {
			if rel, err := filepath.Rel(root, path); err == nil {
				rel = filepath.ToSlash(rel)
				if w.walker.shouldExclude(rel+"/") || w.walker.ignored(rel, true) {
					return filepath.SkipDir
				}
			}
		}
		return fw.Add(path)
	})
}

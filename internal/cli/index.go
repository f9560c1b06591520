package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"ctxasm/config"
	"ctxasm/internal/adapter/fs"
	"ctxasm/internal/usecase"
)

var (
	indexWatch bool
	indexPrune bool
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Build or refresh the symbol index",
	Long: `Extract symbols from every source file under the project root and store
them in .ctxasm/index.json. Files whose content did not change are not
extracted again.

Examples:
  ctxasm index .                 # Index current directory
  ctxasm index --prune           # Also drop entries of deleted files
  ctxasm index --watch           # Keep the index fresh while files change

In watch mode every batch of changes re-scans the tree; only files whose
content changed are extracted again. Combine with --prune to also drop
entries of deleted files.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVarP(&indexWatch, "watch", "w", false, "rebuild incrementally when files change")
	indexCmd.Flags().BoolVar(&indexPrune, "prune", false, "remove entries of files that no longer exist")
}

func runIndex(cmd *cobra.Command, args []string) error {
	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	cfg := GetConfig()
	if err := config.EnsureDir(path); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", config.DirName, err)
	}

	a, err := newApp(cfg, path, GetLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Scanning %s...\n", path)
	if err := indexOnce(ctx, a, path, true, indexPrune); err != nil {
		return err
	}
	if !indexWatch {
		return nil
	}

	fmt.Printf("\nWatching %s for changes (Ctrl+C to stop)...\n", path)
	watcher := fs.NewWatcher(a.walker, cfg.Index.WatchDebounce.Std(), a.logger)
	return watcher.Run(ctx, path, func(changed []string) {
		fmt.Printf("\n%d file(s) changed, updating index...\n", len(changed))
		a.logger.Debug("watched files changed", "paths", changed)
		if err := indexOnce(ctx, a, path, false, indexPrune); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Printf("Update failed: %v\n", err)
		}
	})
}

// indexOnce collects the sources under root and brings the index in line.
// Entries of deleted files are dropped only when prune is set.
func indexOnce(ctx context.Context, a *app, root string, showProgress, prune bool) error {
	files, err := usecase.CollectSources(ctx, root, a.walker, a.reader, a.logger)
	if err != nil {
		return err
	}

	var progress usecase.ProgressFunc
	if showProgress && len(files) > 0 {
		progress = newIndexProgress(len(files))
	}

	result, err := a.index.Build(ctx, files, progress)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println("\nInterrupted; completed entries were saved.")
		}
		return fmt.Errorf("indexing failed: %w", err)
	}

	removed := 0
	if prune {
		removed, err = a.index.Prune(ctx, usecase.SourcePaths(files))
		if err != nil {
			return fmt.Errorf("prune failed: %w", err)
		}
	}

	printIndexResult(result, removed, a.store.Path())
	return nil
}

func newIndexProgress(total int) usecase.ProgressFunc {
	var (
		mu    sync.Mutex
		start = time.Now()
	)
	bar := progressbar.NewOptions(total,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Indexing[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)

	return func(done, total int) {
		mu.Lock()
		defer mu.Unlock()

		bar.Set(done)
		if done > 0 {
			elapsed := time.Since(start)
			rate := float64(done) / elapsed.Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-done)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Indexing[reset] ETA: %s", formatDuration(eta)))
			}
		}
	}
}

func printIndexResult(result *usecase.IndexResult, removed int, indexPath string) {
	fmt.Printf("\nIndexing complete:\n")
	if result.Rebuilt {
		fmt.Printf("  Index was unreadable and has been rebuilt\n")
	}
	fmt.Printf("  Files indexed:   %d\n", result.FilesIndexed)
	fmt.Printf("  Files unchanged: %d\n", result.FilesUnchanged)
	fmt.Printf("  Files skipped:   %d\n", result.FilesSkipped)
	fmt.Printf("  Files failed:    %d\n", result.FilesFailed)
	fmt.Printf("  Chunks sent:     %d\n", result.ChunksExtracted)
	if removed > 0 {
		fmt.Printf("  Entries pruned:  %d\n", removed)
	}

	if len(result.Warnings) > 0 || len(result.Errors) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, w := range result.Warnings {
			fmt.Printf("  - %s\n", w)
		}
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	fmt.Printf("\nIndex stored at: %s\n", indexPath)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}

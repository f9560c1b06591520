package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"ctxasm/internal/domain"
	"ctxasm/internal/port"
	"ctxasm/internal/slogutil"
)

// CollectSources walks root and reads every file the walker admits.
// Unreadable files are logged and left out.
func CollectSources(ctx context.Context, root string, walker port.FileWalker, reader port.FileReader, logger *slog.Logger) ([]domain.SourceFile, error) {
	logger = slogutil.OrDiscard(logger)

	files, err := walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	sources := make([]domain.SourceFile, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := reader.ReadFile(f.Path)
		if err != nil {
			logger.Warn("skipping unreadable file", "path", f.Path, "error", err)
			continue
		}
		sources = append(sources, domain.SourceFile{
			Path:    f.Path,
			Content: content,
			ModTime: f.ModTime,
		})
	}
	return sources, nil
}

// SourcePaths returns the paths of files, for Prune.
func SourcePaths(files []domain.SourceFile) []string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths
}

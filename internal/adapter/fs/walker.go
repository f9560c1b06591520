package fs

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"ctxasm/internal/port"
)

// Walker lists files under a root that pass the include/exclude globs, the
// ignore rules and the extension allowlist. Patterns are matched against
// slash-separated paths relative to the root.
type Walker struct {
	includes   []string
	excludes   []string
	ignore     *IgnoreRules
	extensions map[string]struct{}
}

func NewWalker(includes, excludes []string) *Walker {
	if len(includes) == 0 {
		includes = []string{"**/*"}
	}
	return &Walker{
		includes: includes,
		excludes: excludes,
	}
}

// WithIgnore applies gitignore-style rules on top of the globs.
func (w *Walker) WithIgnore(rules *IgnoreRules) *Walker {
	w.ignore = rules
	return w
}

// WithExtensions restricts results to the given extensions (".md" or "md").
// An empty list allows every extension.
func (w *Walker) WithExtensions(exts []string) *Walker {
	if len(exts) == 0 {
		w.extensions = nil
		return w
	}
	w.extensions = make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		w.extensions[e] = struct{}{}
	}
	return w
}

func (w *Walker) Walk(root string) ([]port.FileInfo, error) {
	var files []port.FileInfo

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if relPath == "." {
				return nil
			}
			if w.shouldExclude(relPath+"/") || w.ignored(relPath, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		if !w.shouldInclude(relPath) || w.shouldExclude(relPath) || w.ignored(relPath, false) || !w.allowedExt(relPath) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, port.FileInfo{
			Path:    filepath.ToSlash(path),
			RelPath: relPath,
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
		return nil
	})

	return files, err
}

// Allowed reports whether a single relative path would be returned by Walk,
// ignoring directory pruning.
func (w *Walker) Allowed(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	return w.shouldInclude(relPath) && !w.shouldExclude(relPath) && !w.ignored(relPath, false) && w.allowedExt(relPath)
}

func (w *Walker) shouldInclude(path string) bool {
	for _, pattern := range w.includes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

func (w *Walker) shouldExclude(path string) bool {
	for _, pattern := range w.excludes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

func (w *Walker) ignored(path string, isDir bool) bool {
	return w.ignore != nil && w.ignore.Match(path, isDir)
}

func (w *Walker) allowedExt(path string) bool {
	if w.extensions == nil {
		return true
	}
	_, ok := w.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ctxasm/internal/domain"
)

// RootReader reads files that live under root. Relative paths are resolved
// against root; anything resolving outside it is refused.
type RootReader struct {
	root string
}

func NewRootReader(root string) (*RootReader, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &RootReader{root: filepath.Clean(abs)}, nil
}

func (r *RootReader) Root() string {
	return r.root
}

// Resolve returns the cleaned absolute path for p, or ErrPathOutsideRoot.
func (r *RootReader) Resolve(p string) (string, error) {
	p = filepath.FromSlash(p)
	if !filepath.IsAbs(p) {
		p = filepath.Join(r.root, p)
	}
	p = filepath.Clean(p)

	rel, err := filepath.Rel(r.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", domain.ErrPathOutsideRoot, p)
	}
	return p, nil
}

func (r *RootReader) ReadFile(p string) (string, error) {
	abs, err := r.Resolve(p)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

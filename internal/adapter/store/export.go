package store

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"ctxasm/internal/domain"
)

// ExportFileName is used when Export is given a directory.
const ExportFileName = "index.json"

// Export writes idx to dest with paths made relative to root, so the file
// can be imported into a checkout at a different location. dest may be a
// directory (index.json is written inside it) or a file; a ".zst" suffix
// selects zstd compression. Paths outside root are kept as they are.
func Export(idx domain.Index, root, dest string) (string, error) {
	dest = resolveExportPath(dest)

	converted := make(domain.Index, len(idx))
	for key, e := range idx {
		rel := relativeTo(root, key)
		e.Path = rel
		converted[rel] = e
	}

	data, err := encodeIndex(converted)
	if err != nil {
		return "", fmt.Errorf("encode index: %w", err)
	}
	if isCompressed(dest) {
		if data, err = compress(data); err != nil {
			return "", err
		}
	}
	if err := writeFileAtomic(dest, data); err != nil {
		return "", err
	}
	return dest, nil
}

// Import reads an exported index and rebases its relative paths onto root.
func Import(root, src string) (domain.Index, error) {
	src = resolveExportPath(src)

	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	if isCompressed(src) {
		if data, err = decompress(data); err != nil {
			return nil, err
		}
	}

	exported, err := decodeIndex(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrIndexCorrupt, src, err)
	}

	idx := make(domain.Index, len(exported))
	for key, e := range exported {
		abs := key
		if !filepath.IsAbs(filepath.FromSlash(key)) {
			abs = filepath.ToSlash(filepath.Join(root, filepath.FromSlash(key)))
		}
		e.Path = abs
		idx[abs] = e
	}
	return idx, nil
}

func resolveExportPath(p string) string {
	if info, err := os.Stat(p); err == nil && info.IsDir() {
		return filepath.Join(p, ExportFileName)
	}
	return p
}

func relativeTo(root, p string) string {
	rel, err := filepath.Rel(filepath.FromSlash(root), filepath.FromSlash(p))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return p
	}
	return filepath.ToSlash(rel)
}

func isCompressed(p string) bool {
	return strings.HasSuffix(p, ".zst")
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: zstd reader: %v", domain.ErrIndexCorrupt, err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", domain.ErrIndexCorrupt, err)
	}
	return out, nil
}

package port

import "time"

type FileWalker interface {
	Walk(root string) ([]FileInfo, error)
}

type FileInfo struct {
	Path    string // absolute, slash-separated
	RelPath string
	ModTime time.Time
	Size    int64
}

// FileReader reads files by path. Implementations may confine reads to a root.
type FileReader interface {
	ReadFile(path string) (string, error)
}

package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"ctxasm/internal/adapter/symtext"
	"ctxasm/internal/domain"
)

// indexRecord is the on-disk shape of one entry.
type indexRecord struct {
	ModuleName   string  `json:"module_name"`
	Symbols      string  `json:"symbols"`
	LastModified float64 `json:"last_modified"`
	MD5          string  `json:"md5"`
}

// JSONIndexStore keeps the whole index in a single JSON file.
// Writes go to a temp file in the same directory which is then renamed over
// the target, so readers see either the previous or the new index.
type JSONIndexStore struct {
	path string
	mu   sync.Mutex
}

func NewJSONIndexStore(path string) *JSONIndexStore {
	return &JSONIndexStore{path: path}
}

func (s *JSONIndexStore) Path() string {
	return s.path
}

// Load reads the index. A missing file yields an empty index.
func (s *JSONIndexStore) Load() (domain.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Index{}, nil
		}
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer f.Close()

	idx, err := decodeIndex(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrIndexCorrupt, s.path, err)
	}
	return idx, nil
}

// Save atomically replaces the stored index.
func (s *JSONIndexStore) Save(idx domain.Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := encodeIndex(idx)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

// Backup copies the current index file to <path>.bak. A missing index is not an error.
func (s *JSONIndexStore) Backup() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	bak := s.path + ".bak"
	if err := writeFileAtomic(bak, data); err != nil {
		return "", err
	}
	return bak, nil
}

func encodeIndex(idx domain.Index) ([]byte, error) {
	records := make(map[string]indexRecord, len(idx))
	for key, e := range idx {
		records[key] = indexRecord{
			ModuleName:   e.Path,
			Symbols:      symtext.Format(e.Symbols),
			LastModified: e.LastModified,
			MD5:          e.ContentHash,
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	// map keys are emitted sorted, which keeps the file stable across saves
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeIndex(r io.Reader) (domain.Index, error) {
	var records map[string]indexRecord
	dec := json.NewDecoder(r)
	if err := dec.Decode(&records); err != nil {
		return nil, err
	}

	idx := make(domain.Index, len(records))
	for key, rec := range records {
		path := rec.ModuleName
		if path == "" {
			path = key
		}
		idx[key] = domain.IndexEntry{
			Path:         path,
			Symbols:      symtext.Parse(rec.Symbols),
			LastModified: rec.LastModified,
			ContentHash:  rec.MD5,
		}
	}
	return idx, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename index: %w", err)
	}
	return nil
}

package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStore writes one pretty-printed JSON document per task under
// <dir>/results/. It is the default backend.
type FileStore struct {
	resultsDir string
}

// NewFileStore creates the results directory beneath experimentDir.
func NewFileStore(experimentDir string) (*FileStore, error) {
	dir := filepath.Join(experimentDir, "results")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}
	return &FileStore{resultsDir: dir}, nil
}

func (s *FileStore) path(taskID string) string {
	return filepath.Join(s.resultsDir, taskID+".json")
}

// Save writes the document for taskID.
func (s *FileStore) Save(taskID string, result any, meta *Metadata) error {
	doc, err := encodeDocument(taskID, result, meta)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", taskID, err)
	}
	if err := os.WriteFile(s.path(taskID), data, 0o644); err != nil {
		return fmt.Errorf("write result %s: %w", taskID, err)
	}
	return nil
}

// Load reads the document for taskID.
func (s *FileStore) Load(taskID string) (*Document, error) {
	data, err := os.ReadFile(s.path(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read result %s: %w", taskID, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse result %s: %w", taskID, err)
	}
	return &doc, nil
}

// List returns stored task ids sorted lexically, which matches execution
// order for the zero-padded task_NNNN naming scheme.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.resultsDir)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op for file storage.
func (s *FileStore) Close() error { return nil }

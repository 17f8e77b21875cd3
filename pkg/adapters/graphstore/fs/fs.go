package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/metahuman-os/cortex/pkg/domain"
)

// Store reads workflow graph documents from a directory of JSON files,
// one file per workflow named <workflow>.json. The file's mtime serves
// as the modification marker, so editing a workflow on disk invalidates
// only that workflow's cache entry.
type Store struct {
	dir    string
	logger *zap.Logger
}

// NewStore creates a filesystem store rooted at dir.
func NewStore(dir string, logger *zap.Logger) *Store {
	return &Store{dir: dir, logger: logger}
}

// Load reads and parses the document for name.
func (s *Store) Load(ctx context.Context, name string) (*domain.GraphDocument, string, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, "", fmt.Errorf("workflow %q: %w", name, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("workflow %q: %w", name, err)
	}

	var doc domain.GraphDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, "", fmt.Errorf("workflow %q: parse: %w", name, err)
	}
	if doc.Name == "" {
		doc.Name = name
	}

	return &doc, markerFrom(info), nil
}

// Stat returns the current modification marker for name.
func (s *Store) Stat(ctx context.Context, name string) (string, error) {
	path, err := s.path(name)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("workflow %q: %w", name, err)
	}
	return markerFrom(info), nil
}

// Save writes doc to disk atomically via a temp file rename.
func (s *Store) Save(ctx context.Context, doc *domain.GraphDocument) error {
	if doc == nil || doc.Name == "" {
		return fmt.Errorf("document has no name")
	}
	path, err := s.path(doc.Name)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("workflow %q: marshal: %w", doc.Name, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("workflow %q: write: %w", doc.Name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("workflow %q: rename: %w", doc.Name, err)
	}

	s.logger.Debug("workflow saved",
		zap.String("workflow", doc.Name),
		zap.String("path", path))
	return nil
}

// List returns the workflow names present in the directory.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	return names, nil
}

func (s *Store) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid workflow name %q", name)
	}
	return filepath.Join(s.dir, name+".json"), nil
}

func markerFrom(info os.FileInfo) string {
	return strconv.FormatInt(info.ModTime().UnixNano(), 10)
}

package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/metahuman-os/cortex/pkg/domain"
)

// Store is an in-memory graph document store for tests. Each Save bumps
// the workflow's revision, which serves as the modification marker.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	doc      *domain.GraphDocument
	revision int64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]entry)}
}

// Load returns the document for name with its revision marker.
func (s *Store) Load(ctx context.Context, name string) (*domain.GraphDocument, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	if !ok {
		return nil, "", fmt.Errorf("workflow %q not found", name)
	}
	return e.doc, strconv.FormatInt(e.revision, 10), nil
}

// Stat returns the revision marker for name.
func (s *Store) Stat(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	if !ok {
		return "", fmt.Errorf("workflow %q not found", name)
	}
	return strconv.FormatInt(e.revision, 10), nil
}

// Save stores doc under its name, bumping the revision.
func (s *Store) Save(ctx context.Context, doc *domain.GraphDocument) error {
	if doc == nil || doc.Name == "" {
		return fmt.Errorf("document has no name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.entries[doc.Name]
	s.entries[doc.Name] = entry{doc: doc, revision: prev.revision + 1}
	return nil
}

// List returns the stored workflow names, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

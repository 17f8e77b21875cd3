package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/metahuman-os/cortex/pkg/ports"
)

// Store is an in-memory semantic memory backend. Search scores entries
// by token overlap with the query, which is enough for tests and small
// single-process deployments.
type Store struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]string)}
}

// Store saves content under key, replacing any previous value.
func (s *Store) Store(ctx context.Context, key, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = content
	return nil
}

// Search returns up to limit entries scored against query, best first.
// Entries with no overlap are omitted.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]ports.MemoryHit, error) {
	if limit <= 0 {
		limit = 5
	}

	s.mu.RLock()
	hits := make([]ports.MemoryHit, 0, len(s.entries))
	for key, content := range s.entries {
		if score := overlapScore(query, content); score > 0 {
			hits = append(hits, ports.MemoryHit{Key: key, Content: content, Score: score})
		}
	}
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Key < hits[j].Key
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// overlapScore is the fraction of query tokens present in content.
func overlapScore(query, content string) float64 {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	matched := 0
	for _, t := range tokens {
		if strings.Contains(lower, t) {
			matched++
		}
	}
	return float64(matched) / float64(len(tokens))
}

package redis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/metahuman-os/cortex/pkg/ports"
)

const hashKey = "cortex:memory"

// Store keeps semantic memory entries in a Redis hash. Search loads the
// hash and scores entries by token overlap, the same ranking the
// in-memory backend uses.
type Store struct {
	client *redis.Client
	logger *zap.Logger
}

// NewStore creates a Redis-backed memory store.
func NewStore(client *redis.Client, logger *zap.Logger) *Store {
	return &Store{client: client, logger: logger}
}

// Store saves content under key.
func (s *Store) Store(ctx context.Context, key, content string) error {
	if err := s.client.HSet(ctx, hashKey, key, content).Err(); err != nil {
		return fmt.Errorf("memory store %q: %w", key, err)
	}
	return nil
}

// Search returns up to limit entries scored against query, best first.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]ports.MemoryHit, error) {
	if limit <= 0 {
		limit = 5
	}

	entries, err := s.client.HGetAll(ctx, hashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("memory search: %w", err)
	}

	hits := make([]ports.MemoryHit, 0, len(entries))
	for key, content := range entries {
		if score := overlapScore(query, content); score > 0 {
			hits = append(hits, ports.MemoryHit{Key: key, Content: content, Score: score})
		}
	}

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

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/metahuman-os/cortex/pkg/domain"
)

const (
	docKeyPrefix = "cortex:graph:"
	revKeySuffix = ":rev"
)

// Store keeps workflow graph documents in Redis. Documents live under
// cortex:graph:<name> as JSON; a revision counter at
// cortex:graph:<name>:rev is bumped on every save and serves as the
// modification marker.
type Store struct {
	client *redis.Client
	logger *zap.Logger
}

// NewStore creates a Redis-backed graph document store.
func NewStore(client *redis.Client, logger *zap.Logger) *Store {
	return &Store{client: client, logger: logger}
}

// Load reads and parses the document for name.
func (s *Store) Load(ctx context.Context, name string) (*domain.GraphDocument, string, error) {
	pipe := s.client.Pipeline()
	docCmd := pipe.Get(ctx, docKeyPrefix+name)
	revCmd := pipe.Get(ctx, docKeyPrefix+name+revKeySuffix)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, "", fmt.Errorf("workflow %q: %w", name, err)
	}

	data, err := docCmd.Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, "", fmt.Errorf("workflow %q not found", name)
		}
		return nil, "", fmt.Errorf("workflow %q: %w", name, err)
	}

	var doc domain.GraphDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, "", fmt.Errorf("workflow %q: parse: %w", name, err)
	}
	if doc.Name == "" {
		doc.Name = name
	}

	rev, _ := revCmd.Result()
	return &doc, rev, nil
}

// Stat returns the revision marker for name.
func (s *Store) Stat(ctx context.Context, name string) (string, error) {
	rev, err := s.client.Get(ctx, docKeyPrefix+name+revKeySuffix).Result()
	if err != nil {
		if err == redis.Nil {
			return "", fmt.Errorf("workflow %q not found", name)
		}
		return "", fmt.Errorf("workflow %q: %w", name, err)
	}
	return rev, nil
}

// Save writes doc and bumps its revision counter.
func (s *Store) Save(ctx context.Context, doc *domain.GraphDocument) error {
	if doc == nil || doc.Name == "" {
		return fmt.Errorf("document has no name")
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("workflow %q: marshal: %w", doc.Name, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, docKeyPrefix+doc.Name, data, 0)
	pipe.Incr(ctx, docKeyPrefix+doc.Name+revKeySuffix)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("workflow %q: save: %w", doc.Name, err)
	}

	s.logger.Debug("workflow saved",
		zap.String("workflow", doc.Name))
	return nil
}

// List returns the stored workflow names.
func (s *Store) List(ctx context.Context) ([]string, error) {
	var cursor uint64
	var names []string

	for {
		keys, next, err := s.client.Scan(ctx, cursor, docKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("list workflows: %w", err)
		}
		for _, key := range keys {
			if strings.HasSuffix(key, revKeySuffix) {
				continue
			}
			names = append(names, strings.TrimPrefix(key, docKeyPrefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return names, nil
}

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metahuman-os/cortex/pkg/domain"
)

func TestStoreRevisionMarkers(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	doc := &domain.GraphDocument{Name: "chat"}
	require.NoError(t, s.Save(ctx, doc))

	got, marker, err := s.Load(ctx, "chat")
	require.NoError(t, err)
	assert.Same(t, doc, got)
	assert.Equal(t, "1", marker)

	stat, err := s.Stat(ctx, "chat")
	require.NoError(t, err)
	assert.Equal(t, marker, stat)

	// every save bumps the revision
	require.NoError(t, s.Save(ctx, doc))
	stat, err = s.Stat(ctx, "chat")
	require.NoError(t, err)
	assert.Equal(t, "2", stat)
}

func TestStoreMissingWorkflow(t *testing.T) {
	s := NewStore()

	_, _, err := s.Load(context.Background(), "missing")
	assert.Error(t, err)

	_, err = s.Stat(context.Background(), "missing")
	assert.Error(t, err)
}

func TestStoreList(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &domain.GraphDocument{Name: "task"}))
	require.NoError(t, s.Save(ctx, &domain.GraphDocument{Name: "chat"}))

	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"chat", "task"}, names)

	assert.Error(t, s.Save(ctx, &domain.GraphDocument{}))
}

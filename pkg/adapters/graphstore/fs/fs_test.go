package fs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/metahuman-os/cortex/pkg/domain"
)

func testDoc(name string) *domain.GraphDocument {
	return &domain.GraphDocument{
		Name: name,
		Nodes: []domain.GraphNode{
			{ID: 1, Type: "input/chat"},
			{ID: 2, Type: "output/response"},
		},
		Links: []domain.Link{
			{ID: 1, OriginNodeID: 1, OriginSlot: 0, TargetNodeID: 2, TargetSlot: 0, Type: domain.TypeMessage},
		},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir(), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testDoc("chat")))

	doc, marker, err := s.Load(ctx, "chat")
	require.NoError(t, err)
	assert.Equal(t, "chat", doc.Name)
	require.Len(t, doc.Nodes, 2)
	require.Len(t, doc.Links, 1)
	assert.Equal(t, domain.TypeMessage, doc.Links[0].Type)
	assert.NotEmpty(t, marker)

	stat, err := s.Stat(ctx, "chat")
	require.NoError(t, err)
	assert.Equal(t, marker, stat)

	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"chat"}, names)
}

func TestStoreMarkerChangesOnSave(t *testing.T) {
	s := NewStore(t.TempDir(), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testDoc("chat")))
	first, err := s.Stat(ctx, "chat")
	require.NoError(t, err)

	// mtime resolution is coarse on some filesystems
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, s.Save(ctx, testDoc("chat")))

	second, err := s.Stat(ctx, "chat")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestStoreMissingWorkflow(t *testing.T) {
	s := NewStore(t.TempDir(), zap.NewNop())

	_, _, err := s.Load(context.Background(), "missing")
	assert.Error(t, err)

	_, err = s.Stat(context.Background(), "missing")
	assert.Error(t, err)
}

func TestStoreRejectsPathTraversal(t *testing.T) {
	s := NewStore(t.TempDir(), zap.NewNop())

	for _, name := range []string{"", "../etc/passwd", "a/b", `a\b`} {
		_, _, err := s.Load(context.Background(), name)
		assert.Error(t, err, "name %q", name)
	}
}

func TestStoreSaveRequiresName(t *testing.T) {
	s := NewStore(t.TempDir(), zap.NewNop())

	assert.Error(t, s.Save(context.Background(), nil))
	assert.Error(t, s.Save(context.Background(), &domain.GraphDocument{}))
}

package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metahuman-os/cortex/pkg/domain"
)

func noopExec(_ context.Context, _ ExecRequest) (map[string]interface{}, error) {
	return map[string]interface{}{"out": "x"}, nil
}

func testDesc(kind string, cat domain.Category) domain.NodeTypeDescriptor {
	return domain.NodeTypeDescriptor{
		Kind:     kind,
		Category: cat,
		Outputs:  []domain.PortSpec{{Name: "out", Type: domain.TypeWildcard}},
	}
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(testDesc("test/a", domain.CategoryTransform), noopExec))

	desc, fn, err := r.Lookup("test/a")
	require.NoError(t, err)
	assert.Equal(t, "test/a", desc.Kind)
	require.NotNil(t, fn)

	assert.True(t, r.Has("test/a"))
	assert.False(t, r.Has("test/b"))
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(testDesc("test/a", domain.CategoryTransform), noopExec))

	err := r.Register(testDesc("test/a", domain.CategoryTransform), noopExec)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDuplicateKind)
}

func TestRegisterRejectsMissingPieces(t *testing.T) {
	r := New()

	assert.Error(t, r.Register(testDesc("", domain.CategoryTransform), noopExec))
	assert.Error(t, r.Register(testDesc("test/a", domain.CategoryTransform), nil))
}

func TestRegisterRejectsZeroOutputsForNonTerminal(t *testing.T) {
	r := New()

	desc := domain.NodeTypeDescriptor{Kind: "test/bad", Category: domain.CategoryTransform}
	err := r.Register(desc, noopExec)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoOutputs)

	// terminal kinds may declare no outputs
	terminal := domain.NodeTypeDescriptor{
		Kind:     "test/out",
		Category: domain.CategoryOutput,
		Inputs:   []domain.PortSpec{{Name: "in", Type: domain.TypeWildcard}},
	}
	assert.NoError(t, r.Register(terminal, noopExec))
}

func TestLookupUnknownKind(t *testing.T) {
	r := New()

	_, _, err := r.Lookup("test/missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrKindNotFound)

	var regErr *domain.RegistryError
	require.True(t, errors.As(err, &regErr))
	assert.Equal(t, "test/missing", regErr.Kind)
}

func TestListByCategorySorted(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(testDesc("test/b", domain.CategoryTransform), noopExec))
	require.NoError(t, r.Register(testDesc("test/a", domain.CategoryTransform), noopExec))
	require.NoError(t, r.Register(testDesc("test/c", domain.CategoryControl), noopExec))

	transforms := r.ListByCategory(domain.CategoryTransform)
	require.Len(t, transforms, 2)
	assert.Equal(t, "test/a", transforms[0].Kind)
	assert.Equal(t, "test/b", transforms[1].Kind)

	assert.Equal(t, []string{"test/a", "test/b", "test/c"}, r.Kinds())
}

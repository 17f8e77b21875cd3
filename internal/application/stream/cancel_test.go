package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancellationRegistryKeepsFirstReason(t *testing.T) {
	r := NewCancellationRegistry()

	_, ok := r.Check("run-1")
	assert.False(t, ok)

	r.Request("run-1", "user request")
	r.Request("run-1", "second request")

	entry, ok := r.Check("run-1")
	require.True(t, ok)
	assert.Equal(t, "user request", entry.Reason)
	assert.False(t, entry.RequestedAt.IsZero())
	assert.Equal(t, 1, r.Pending())
}

func TestCancellationRegistryClear(t *testing.T) {
	r := NewCancellationRegistry()
	r.Request("run-1", "user request")
	r.Request("run-2", "shutdown")

	r.Clear("run-1")
	_, ok := r.Check("run-1")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Pending())

	// clearing an unknown run is a no-op
	r.Clear("run-9")
	assert.Equal(t, 1, r.Pending())
}

package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metahuman-os/cortex/pkg/domain"
	"github.com/metahuman-os/cortex/pkg/ports"
)

func builtins(t *testing.T) *Registry {
	t.Helper()
	r := New()
	require.NoError(t, RegisterBuiltins(r, Deps{}))
	return r
}

func TestRegisterBuiltinsCatalog(t *testing.T) {
	r := builtins(t)

	for _, kind := range []string{
		"input/chat", "input/mode",
		"output/response", "output/speech",
		"control/loop", "condition/if", "condition/mode",
		"model/generate", "transform/extract_text",
		"memory/search", "memory/store", "skill/invoke",
		"transform/template", "transform/merge",
	} {
		assert.True(t, r.Has(kind), "missing kind %s", kind)
	}

	// registering twice collides on every kind
	assert.Error(t, RegisterBuiltins(r, Deps{}))
}

func TestLoopControllerDefaults(t *testing.T) {
	r := builtins(t)

	desc, _, err := r.Lookup("control/loop")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryControl, desc.Category)
	assert.Equal(t, 10, desc.DefaultProperties["maxIterations"])
}

func TestChatInputReadsRunContext(t *testing.T) {
	r := builtins(t)
	_, fn, err := r.Lookup("input/chat")
	require.NoError(t, err)

	out, err := fn(context.Background(), ExecRequest{
		Context: domain.NewRunContext(map[string]interface{}{"message": "hello"}),
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", out["message"])
}

func TestIfConditionTakesOneBranch(t *testing.T) {
	r := builtins(t)
	_, fn, err := r.Lookup("condition/if")
	require.NoError(t, err)

	out, err := fn(context.Background(), ExecRequest{
		Inputs: map[string]interface{}{"condition": true, "value": 42},
	})
	require.NoError(t, err)
	assert.Equal(t, 42, out["true"])
	assert.Nil(t, out["false"])

	out, err = fn(context.Background(), ExecRequest{
		Inputs: map[string]interface{}{"condition": false, "value": 42},
	})
	require.NoError(t, err)
	assert.Nil(t, out["true"])
	assert.Equal(t, 42, out["false"])
}

func TestLoopControllerRoutesByCompletion(t *testing.T) {
	r := builtins(t)
	_, fn, err := r.Lookup("control/loop")
	require.NoError(t, err)

	out, err := fn(context.Background(), ExecRequest{
		Inputs: map[string]interface{}{"value": "draft"},
	})
	require.NoError(t, err)
	assert.Equal(t, "draft", out["loop"])
	assert.Nil(t, out["exit"])

	out, err = fn(context.Background(), ExecRequest{
		Inputs: map[string]interface{}{"value": "final", "complete": true},
	})
	require.NoError(t, err)
	assert.Equal(t, "final", out["exit"])
	assert.Nil(t, out["loop"])
}

func TestModeRouter(t *testing.T) {
	r := builtins(t)
	_, fn, err := r.Lookup("condition/mode")
	require.NoError(t, err)

	out, err := fn(context.Background(), ExecRequest{
		Inputs: map[string]interface{}{"mode": "task"},
	})
	require.NoError(t, err)
	assert.Equal(t, "task", out["task"])
	assert.Nil(t, out["chat"])

	out, err = fn(context.Background(), ExecRequest{
		Inputs: map[string]interface{}{"mode": "unknown"},
	})
	require.NoError(t, err)
	assert.Equal(t, "unknown", out["chat"])
}

func TestTemplateSubstitution(t *testing.T) {
	r := builtins(t)
	_, fn, err := r.Lookup("transform/template")
	require.NoError(t, err)

	out, err := fn(context.Background(), ExecRequest{
		Inputs: map[string]interface{}{
			"values": map[string]interface{}{"name": "Ada"},
			"text":   "the answer",
		},
		Properties: map[string]interface{}{"template": "Hi {{name}}: {{text}}"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada: the answer", out["text"])
}

func TestExtractText(t *testing.T) {
	r := builtins(t)
	_, fn, err := r.Lookup("transform/extract_text")
	require.NoError(t, err)

	out, err := fn(context.Background(), ExecRequest{
		Inputs: map[string]interface{}{"response": &ports.ModelResponse{Content: "body"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "body", out["text"])
}

func TestCollaboratorKindsFailWithoutDeps(t *testing.T) {
	r := builtins(t)

	for _, kind := range []string{"model/generate", "memory/search", "memory/store", "skill/invoke"} {
		_, fn, err := r.Lookup(kind)
		require.NoError(t, err)
		_, err = fn(context.Background(), ExecRequest{
			Inputs:     map[string]interface{}{},
			Properties: map[string]interface{}{"skill": "echo"},
		})
		assert.Error(t, err, "kind %s should fail without its collaborator", kind)
	}
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/metahuman-os/cortex/pkg/domain"
	"github.com/metahuman-os/cortex/pkg/registry"
)

func testExecutor(t *testing.T) (*Executor, *registry.Registry) {
	t.Helper()
	r := testRegistry(t)
	return NewExecutor(r, nil, nil, zap.NewNop(), 0), r
}

func collectEvents(events *[]domain.ExecutionEvent) domain.EventHandler {
	return func(ev domain.ExecutionEvent) {
		*events = append(*events, ev)
	}
}

func TestExecuteLinearGraph(t *testing.T) {
	ex, _ := testExecutor(t)

	doc := &domain.GraphDocument{
		Name: "linear",
		Nodes: []domain.GraphNode{
			node(1, "input/chat"),
			node(2, "transform/extract_text"),
			node(3, "output/response"),
		},
		Links: []domain.Link{
			link(1, 1, 0, 2, 0, domain.TypeMessage),
			link(2, 2, 0, 3, 0, domain.TypeString),
		},
	}

	state, err := ex.Execute(context.Background(), "run-1", doc,
		map[string]interface{}{"message": "hello"}, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusCompleted, state.Status)
	assert.Equal(t, "hello", state.FinalOutput)
	assert.NotNil(t, state.CompletedAt)
	for _, id := range []int{1, 2, 3} {
		assert.Equal(t, domain.NodeStatusCompleted, state.Node(id).Status, "node %d", id)
		assert.Equal(t, 1, state.Node(id).Iterations, "node %d", id)
	}
}

func TestExecuteBranchSkipsUntakenPath(t *testing.T) {
	ex, reg := testExecutor(t)
	require.NoError(t, reg.Register(domain.NodeTypeDescriptor{
		Kind:     "test/flag",
		Category: domain.CategoryInput,
		Outputs:  []domain.PortSpec{{Name: "flag", Type: domain.TypeBoolean}},
	}, func(_ context.Context, req registry.ExecRequest) (map[string]interface{}, error) {
		return map[string]interface{}{"flag": req.Properties["flag"]}, nil
	}))

	doc := &domain.GraphDocument{
		Name: "branch",
		Nodes: []domain.GraphNode{
			{ID: 1, Type: "test/flag", Properties: map[string]interface{}{"flag": true}},
			node(2, "condition/if"),
			node(3, "output/response"),
			node(4, "transform/template"),
		},
		Links: []domain.Link{
			link(1, 1, 0, 2, 0, domain.TypeBoolean),
			// true branch reaches the terminal, false branch feeds a template
			link(2, 2, 0, 3, 0, domain.TypeWildcard),
			link(3, 2, 1, 4, 1, domain.TypeWildcard),
		},
	}

	state, err := ex.Execute(context.Background(), "run-2", doc, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusCompleted, state.Status)
	assert.Equal(t, domain.NodeStatusCompleted, state.Node(3).Status)
	assert.Equal(t, 0, state.Node(4).Iterations)
	assert.Equal(t, domain.NodeStatusPending, state.Node(4).Status)
}

func TestExecuteLoopBoundForcesExit(t *testing.T) {
	ex, _ := testExecutor(t)

	doc := &domain.GraphDocument{
		Name: "refine",
		Nodes: []domain.GraphNode{
			node(1, "input/chat"),
			node(2, "transform/extract_text"),
			{ID: 3, Type: "control/loop", Properties: map[string]interface{}{"maxIterations": 3}},
			node(4, "output/response"),
		},
		Links: []domain.Link{
			link(1, 1, 0, 2, 0, domain.TypeMessage),
			link(2, 2, 0, 3, 0, domain.TypeString),
			// loop output re-enters the transform until the bound is hit
			link(3, 3, 0, 2, 0, domain.TypeWildcard),
			link(4, 3, 1, 4, 0, domain.TypeWildcard),
		},
	}

	state, err := ex.Execute(context.Background(), "run-3", doc,
		map[string]interface{}{"message": "draft"}, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusCompleted, state.Status)
	assert.Equal(t, 3, state.Node(2).Iterations)
	assert.Equal(t, 3, state.Node(3).Iterations)
	assert.Equal(t, "draft", state.FinalOutput)
}

func TestExecuteLoopCarriesValueRegardlessOfLinkOrder(t *testing.T) {
	ex, reg := testExecutor(t)
	require.NoError(t, reg.Register(domain.NodeTypeDescriptor{
		Kind:     "test/append",
		Category: domain.CategoryTransform,
		Inputs:   []domain.PortSpec{{Name: "in", Type: domain.TypeWildcard}},
		Outputs:  []domain.PortSpec{{Name: "out", Type: domain.TypeWildcard}},
	}, func(_ context.Context, req registry.ExecRequest) (map[string]interface{}, error) {
		return map[string]interface{}{"out": fmt.Sprintf("%vx", req.Inputs["in"])}, nil
	}))

	// The loop-back link is listed before the forward link feeding the
	// same slot; each re-entry must still consume the loop-carried value,
	// accumulating one suffix per pass.
	doc := &domain.GraphDocument{
		Name: "accumulate",
		Nodes: []domain.GraphNode{
			node(1, "input/chat"),
			node(2, "test/append"),
			{ID: 3, Type: "control/loop", Properties: map[string]interface{}{"maxIterations": 3}},
			node(4, "output/response"),
		},
		Links: []domain.Link{
			link(3, 3, 0, 2, 0, domain.TypeWildcard),
			link(1, 1, 0, 2, 0, domain.TypeMessage),
			link(2, 2, 0, 3, 0, domain.TypeWildcard),
			link(4, 3, 1, 4, 0, domain.TypeWildcard),
		},
	}

	state, err := ex.Execute(context.Background(), "run-9", doc,
		map[string]interface{}{"message": "d"}, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusCompleted, state.Status)
	assert.Equal(t, "dxxx", state.FinalOutput)
	assert.Equal(t, 3, state.Node(2).Iterations)
}

func failKind(t *testing.T, reg *registry.Registry) {
	t.Helper()
	require.NoError(t, reg.Register(domain.NodeTypeDescriptor{
		Kind:     "test/fail",
		Category: domain.CategoryTransform,
		Inputs:   []domain.PortSpec{{Name: "in", Type: domain.TypeWildcard}},
		Outputs:  []domain.PortSpec{{Name: "out", Type: domain.TypeWildcard}},
	}, func(context.Context, registry.ExecRequest) (map[string]interface{}, error) {
		return nil, fmt.Errorf("boom")
	}))
}

func TestExecuteCriticalFailureFailsRun(t *testing.T) {
	ex, reg := testExecutor(t)
	failKind(t, reg)

	doc := &domain.GraphDocument{
		Name: "critical",
		Nodes: []domain.GraphNode{
			node(1, "input/chat"),
			node(2, "test/fail"),
			node(3, "output/response"),
		},
		Links: []domain.Link{
			link(1, 1, 0, 2, 0, domain.TypeMessage),
			link(2, 2, 0, 3, 0, domain.TypeWildcard),
		},
	}

	state, err := ex.Execute(context.Background(), "run-4", doc,
		map[string]interface{}{"message": "hello"}, nil)
	require.Error(t, err)

	var nodeErr *domain.NodeExecutionError
	require.True(t, errors.As(err, &nodeErr))
	assert.Equal(t, 2, nodeErr.NodeID)
	assert.Equal(t, domain.RunStatusFailed, state.Status)
	assert.Equal(t, domain.NodeStatusFailed, state.Node(2).Status)
}

func TestExecuteLocalFailureKeepsRunAlive(t *testing.T) {
	ex, reg := testExecutor(t)
	failKind(t, reg)

	// The failing node feeds only the template's optional values input, so
	// its failure never reaches the terminal through a required port.
	doc := &domain.GraphDocument{
		Name: "local",
		Nodes: []domain.GraphNode{
			node(1, "input/chat"),
			node(2, "test/fail"),
			node(3, "transform/template"),
			node(4, "output/response"),
		},
		Links: []domain.Link{
			link(1, 1, 0, 2, 0, domain.TypeMessage),
			link(2, 1, 0, 3, 1, domain.TypeMessage),
			link(3, 2, 0, 3, 0, domain.TypeWildcard),
			link(4, 3, 0, 4, 0, domain.TypeString),
		},
	}

	state, err := ex.Execute(context.Background(), "run-5", doc,
		map[string]interface{}{"message": "hello"}, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusCompleted, state.Status)
	assert.Equal(t, "hello", state.FinalOutput)
	assert.Equal(t, domain.NodeStatusFailed, state.Node(2).Status)
}

func TestExecuteEventOrdering(t *testing.T) {
	ex, _ := testExecutor(t)

	doc := &domain.GraphDocument{
		Name: "linear",
		Nodes: []domain.GraphNode{
			node(1, "input/chat"),
			node(2, "transform/extract_text"),
			node(3, "output/response"),
		},
		Links: []domain.Link{
			link(1, 1, 0, 2, 0, domain.TypeMessage),
			link(2, 2, 0, 3, 0, domain.TypeString),
		},
	}

	var events []domain.ExecutionEvent
	_, err := ex.Execute(context.Background(), "run-6", doc,
		map[string]interface{}{"message": "hello"}, collectEvents(&events))
	require.NoError(t, err)

	require.NotEmpty(t, events)
	assert.Equal(t, domain.EventNodeStart, events[0].Type)
	assert.Equal(t, domain.EventGraphComplete, events[len(events)-1].Type)

	started := make(map[int]bool)
	for _, ev := range events {
		switch ev.Type {
		case domain.EventNodeStart:
			started[ev.NodeID] = true
		case domain.EventNodeComplete:
			assert.True(t, started[ev.NodeID], "node %d completed before starting", ev.NodeID)
		}
		assert.Equal(t, "run-6", ev.RunID)
		assert.False(t, ev.Timestamp.IsZero())
	}

	completes := 0
	for _, ev := range events {
		if ev.Type == domain.EventGraphComplete {
			completes++
		}
	}
	assert.Equal(t, 1, completes)
}

func TestExecuteHonoursCancelledContext(t *testing.T) {
	ex, _ := testExecutor(t)

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(&domain.CancellationError{Reason: "user request"})

	var events []domain.ExecutionEvent
	state, err := ex.Execute(ctx, "run-7", validChatDoc(),
		map[string]interface{}{"message": "hello"}, collectEvents(&events))
	require.Error(t, err)

	var cancelErr *domain.CancellationError
	require.True(t, errors.As(err, &cancelErr))
	assert.Equal(t, "user request", cancelErr.Reason)
	assert.Equal(t, domain.RunStatusCancelled, state.Status)
	require.NotEmpty(t, events)
	assert.Equal(t, domain.EventGraphComplete, events[len(events)-1].Type)
}

func TestExecuteTimeoutCause(t *testing.T) {
	ex, _ := testExecutor(t)

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(&domain.TimeoutError{Budget: 0})

	state, err := ex.Execute(ctx, "run-8", validChatDoc(),
		map[string]interface{}{"message": "hello"}, nil)
	require.Error(t, err)

	var timeoutErr *domain.TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, domain.RunStatusFailed, state.Status)
}

package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/metahuman-os/cortex/internal/application/workers"
	"github.com/metahuman-os/cortex/pkg/domain"
	"github.com/metahuman-os/cortex/pkg/ports"
	"github.com/metahuman-os/cortex/pkg/registry"
)

// DefaultMaxIterations bounds loop re-entry when a loop controller carries
// no maxIterations property.
const DefaultMaxIterations = 10

// Executor drives node invocation over a validated graph document.
//
// Within one run, ExecutionState is mutated only by the goroutine running
// Execute; data-independent ready nodes may be dispatched concurrently
// through the worker pool, but their results are applied sequentially.
type Executor struct {
	registry    *registry.Registry
	pool        *workers.Pool
	metrics     ports.MetricsCollector
	logger      *zap.Logger
	nodeTimeout time.Duration
}

// NewExecutor creates an executor. pool and metrics may be nil; a nil pool
// dispatches every node inline, a zero nodeTimeout disables per-node
// deadlines.
func NewExecutor(
	reg *registry.Registry,
	pool *workers.Pool,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	nodeTimeout time.Duration,
) *Executor {
	return &Executor{
		registry:    reg,
		pool:        pool,
		metrics:     metrics,
		logger:      logger,
		nodeTimeout: nodeTimeout,
	}
}

type invokeResult struct {
	outputs  map[string]interface{}
	err      error
	duration time.Duration
}

// Execute runs doc to completion and returns the final execution state.
//
// The returned error is non-nil for run-level failure: a critical node
// error, cooperative cancellation, or a deadline carried by ctx. Local node
// failures whose outputs cannot reach the terminal node through required
// inputs do not fail the run. graph_complete is emitted exactly once on
// every path.
func (e *Executor) Execute(
	ctx context.Context,
	runID string,
	doc *domain.GraphDocument,
	initialContext map[string]interface{},
	onEvent domain.EventHandler,
) (*domain.ExecutionState, error) {
	view, err := buildGraphView(doc, e.registry)
	if err != nil {
		return nil, err
	}

	state := domain.NewExecutionState(runID, doc)
	rc := domain.NewRunContext(initialContext)
	emit := func(ev domain.ExecutionEvent) {
		ev.RunID = runID
		ev.Timestamp = time.Now()
		if onEvent != nil {
			onEvent(ev)
		}
	}

	queue := append([]int(nil), view.entries...)
	inQueue := make(map[int]bool, len(queue))
	for _, id := range queue {
		inQueue[id] = true
	}

	e.logger.Debug("execution started",
		zap.String("run_id", runID),
		zap.String("graph", doc.Name),
		zap.Int("nodes", len(doc.Nodes)))

	for len(queue) > 0 {
		// Cooperative cancellation check point: between dispatch waves.
		if ctx.Err() != nil {
			return state, e.finishInterrupted(ctx, state, emit)
		}

		// Everything queued has fully resolved inputs, so the whole batch
		// is data-independent and safe to dispatch concurrently.
		batch := queue
		queue = nil
		for id := range inQueue {
			delete(inQueue, id)
		}

		results := e.dispatch(ctx, view, state, rc, batch, emit)

		enqueue := func(id int) {
			if inQueue[id] || !e.ready(view, state, id) {
				return
			}
			inQueue[id] = true
			queue = append(queue, id)
		}

		for i, id := range batch {
			res := results[i]
			ns := state.Node(id)
			node := view.nodes[id]

			if res.err != nil {
				ns.Status = domain.NodeStatusFailed
				ns.Error = res.err.Error()
				nodeErr := &domain.NodeExecutionError{NodeID: id, NodeType: node.Type, Err: res.err}
				emit(domain.ExecutionEvent{
					Type: domain.EventNodeError, NodeID: id, NodeType: node.Type,
					Iteration: ns.Iterations,
					Payload:   map[string]interface{}{"error": res.err.Error()},
				})
				e.recordNode(node.Type, string(domain.NodeStatusFailed), res.duration)

				if e.critical(view, id) {
					state.Status = domain.RunStatusFailed
					state.Error = nodeErr.Error()
					e.finish(state, emit)
					return state, nodeErr
				}
				e.logger.Warn("node failed locally, continuing",
					zap.String("run_id", runID),
					zap.Int("node_id", id),
					zap.String("node_type", node.Type),
					zap.Error(res.err))
				continue
			}

			ns.Status = domain.NodeStatusCompleted
			ns.Outputs = res.outputs
			emit(domain.ExecutionEvent{
				Type: domain.EventNodeComplete, NodeID: id, NodeType: node.Type,
				Iteration: ns.Iterations,
				Payload:   map[string]interface{}{"duration_ms": res.duration.Milliseconds()},
			})
			e.recordNode(node.Type, string(domain.NodeStatusCompleted), res.duration)

			if view.descs[id].Category == domain.CategoryOutput {
				state.Status = domain.RunStatusCompleted
				state.FinalOutput = terminalValue(res.outputs)
				e.finish(state, emit)
				return state, nil
			}

			e.scheduleDownstream(view, state, id, res.outputs, enqueue)
		}
	}

	// Quiescence: no node ready and no loop-back pending.
	state.Status = domain.RunStatusCompleted
	e.finish(state, emit)
	return state, nil
}

// dispatch runs one wave of ready nodes, emitting node_start for each in
// batch order before any invocation completes.
func (e *Executor) dispatch(
	ctx context.Context,
	view *graphView,
	state *domain.ExecutionState,
	rc *domain.RunContext,
	batch []int,
	emit func(domain.ExecutionEvent),
) []invokeResult {
	type call struct {
		id     int
		inputs map[string]interface{}
		props  map[string]interface{}
	}

	calls := make([]call, len(batch))
	for i, id := range batch {
		ns := state.Node(id)
		ns.Iterations++
		ns.Status = domain.NodeStatusRunning
		ns.Error = ""
		calls[i] = call{
			id:     id,
			inputs: e.gatherInputs(view, state, id),
			props:  effectiveProperties(view.nodes[id], view.descs[id]),
		}
		emit(domain.ExecutionEvent{
			Type:      domain.EventNodeStart,
			NodeID:    id,
			NodeType:  view.nodes[id].Type,
			Iteration: ns.Iterations,
		})
	}

	results := make([]invokeResult, len(batch))
	run := func(i int) func(context.Context) {
		return func(taskCtx context.Context) {
			results[i] = e.invoke(taskCtx, view, rc, calls[i].id, calls[i].inputs, calls[i].props)
		}
	}

	if e.pool == nil || len(batch) < 2 {
		for i := range batch {
			run(i)(ctx)
		}
		return results
	}

	done := make(chan int, len(batch))
	for i := range batch {
		i := i
		task := run(i)
		if err := e.pool.Submit(ctx, func(taskCtx context.Context) {
			task(taskCtx)
			done <- i
		}); err != nil {
			// Pool saturated or shut down; fall back to inline execution.
			task(ctx)
			done <- i
		}
	}
	for range batch {
		<-done
	}
	return results
}

func (e *Executor) invoke(
	ctx context.Context,
	view *graphView,
	rc *domain.RunContext,
	id int,
	inputs map[string]interface{},
	props map[string]interface{},
) invokeResult {
	if e.nodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.nodeTimeout)
		defer cancel()
	}

	start := time.Now()
	outputs, err := view.fns[id](ctx, registry.ExecRequest{
		NodeID:     id,
		Inputs:     inputs,
		Properties: props,
		Context:    rc,
	})
	return invokeResult{outputs: outputs, err: err, duration: time.Since(start)}
}

// ready reports whether every required input of id is resolvable: a value
// is present, the port is optional, or the port is fed exclusively by
// loop-back edges (which deliver values only on re-entry).
func (e *Executor) ready(view *graphView, state *domain.ExecutionState, id int) bool {
	desc := view.descs[id]
	for slot, spec := range desc.Inputs {
		if spec.Optional {
			continue
		}
		feeds := feedingLinks(view, id, slot)
		if len(feeds) == 0 {
			// Required but unconnected: never ready.
			return false
		}
		satisfied := false
		backOnly := true
		for _, l := range feeds {
			if !view.backEdges[l.ID] {
				backOnly = false
			}
			if e.resolvedValue(view, state, l) != nil {
				satisfied = true
			}
		}
		if !satisfied && !backOnly {
			return false
		}
	}
	return true
}

// gatherInputs resolves the current input values for id. Forward links
// resolve first and a loop-back link carrying a value overrides them, so a
// re-entered node sees the loop-carried value rather than the stale
// upstream one, whatever order the document lists the links in.
func (e *Executor) gatherInputs(view *graphView, state *domain.ExecutionState, id int) map[string]interface{} {
	desc := view.descs[id]
	inputs := make(map[string]interface{}, len(desc.Inputs))
	for slot, spec := range desc.Inputs {
		feeds := feedingLinks(view, id, slot)
		for _, l := range feeds {
			if view.backEdges[l.ID] {
				continue
			}
			if v := e.resolvedValue(view, state, l); v != nil {
				inputs[spec.Name] = v
			}
		}
		for _, l := range feeds {
			if !view.backEdges[l.ID] {
				continue
			}
			if v := e.resolvedValue(view, state, l); v != nil {
				inputs[spec.Name] = v
			}
		}
	}
	return inputs
}

func feedingLinks(view *graphView, id, slot int) []domain.Link {
	var out []domain.Link
	for _, l := range view.inbound[id] {
		if l.TargetSlot == slot {
			out = append(out, l)
		}
	}
	return out
}

// resolvedValue returns the value flowing over l, or nil when the origin has
// not produced that slot this run.
func (e *Executor) resolvedValue(view *graphView, state *domain.ExecutionState, l domain.Link) interface{} {
	ns, ok := state.NodeStates[l.OriginNodeID]
	if !ok || ns.Outputs == nil {
		return nil
	}
	return ns.Outputs[view.outputName(l.OriginNodeID, l.OriginSlot)]
}

// scheduleDownstream enqueues the consumers of every taken output slot.
// Loop-back edges are bounded: once the looped node's iteration counter
// reaches the router's maxIterations the exit path is forced instead, so
// termination is structural rather than an error.
func (e *Executor) scheduleDownstream(
	view *graphView,
	state *domain.ExecutionState,
	id int,
	outputs map[string]interface{},
	enqueue func(int),
) {
	for _, l := range view.outbound[id] {
		name := view.outputName(id, l.OriginSlot)
		val := outputs[name]
		if val == nil {
			continue
		}

		if !view.backEdges[l.ID] {
			enqueue(l.TargetNodeID)
			continue
		}

		maxIter := maxIterations(view.nodes[id], view.descs[id])
		if state.Node(l.TargetNodeID).Iterations < maxIter {
			enqueue(l.TargetNodeID)
			continue
		}

		e.logger.Debug("loop bound reached, forcing exit path",
			zap.String("run_id", state.RunID),
			zap.Int("router_id", id),
			zap.Int("looped_node_id", l.TargetNodeID),
			zap.Int("max_iterations", maxIter))
		for _, exit := range view.outbound[id] {
			if view.backEdges[exit.ID] {
				continue
			}
			exitName := view.outputName(id, exit.OriginSlot)
			if outputs[exitName] == nil {
				outputs[exitName] = val
			}
			enqueue(exit.TargetNodeID)
		}
	}
}

// critical reports whether a failure of id can reach a terminal node
// through required inputs. Failures feeding only optional consumers, or
// unable to reach the terminal at all, stay local.
func (e *Executor) critical(view *graphView, id int) bool {
	visited := make(map[int]bool)
	stack := []int{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true

		for _, l := range view.outbound[cur] {
			target := view.descs[l.TargetNodeID]
			if target == nil {
				continue
			}
			if spec, ok := target.Input(l.TargetSlot); ok && spec.Optional {
				continue
			}
			if target.Category == domain.CategoryOutput {
				return true
			}
			stack = append(stack, l.TargetNodeID)
		}
	}
	return false
}

func (e *Executor) finish(state *domain.ExecutionState, emit func(domain.ExecutionEvent)) {
	now := time.Now()
	state.CompletedAt = &now
	emit(domain.ExecutionEvent{
		Type: domain.EventGraphComplete,
		Payload: map[string]interface{}{
			"status":      string(state.Status),
			"duration_ms": state.Duration().Milliseconds(),
		},
	})
}

// finishInterrupted resolves an interrupted run into cancelled or failed
// depending on the cancellation cause carried by ctx.
func (e *Executor) finishInterrupted(
	ctx context.Context,
	state *domain.ExecutionState,
	emit func(domain.ExecutionEvent),
) error {
	cause := context.Cause(ctx)

	var timeoutErr *domain.TimeoutError
	if errors.As(cause, &timeoutErr) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		if timeoutErr == nil {
			timeoutErr = &domain.TimeoutError{}
		}
		state.Status = domain.RunStatusFailed
		state.Error = timeoutErr.Error()
		e.finish(state, emit)
		return timeoutErr
	}

	var cancelErr *domain.CancellationError
	if !errors.As(cause, &cancelErr) {
		cancelErr = &domain.CancellationError{Reason: cause.Error()}
	}
	state.Status = domain.RunStatusCancelled
	state.Error = cancelErr.Error()
	e.finish(state, emit)
	return cancelErr
}

func (e *Executor) recordNode(nodeType, status string, duration time.Duration) {
	if e.metrics != nil {
		e.metrics.RecordNodeExecuted(nodeType, status, duration)
	}
}

// terminalValue extracts the final result a terminal node produced.
func terminalValue(outputs map[string]interface{}) interface{} {
	if v, ok := outputs["result"]; ok {
		return v
	}
	for _, v := range outputs {
		return v
	}
	return nil
}

// effectiveProperties overlays a node's own properties on the registered
// defaults.
func effectiveProperties(node *domain.GraphNode, desc *domain.NodeTypeDescriptor) map[string]interface{} {
	props := make(map[string]interface{}, len(desc.DefaultProperties)+len(node.Properties))
	for k, v := range desc.DefaultProperties {
		props[k] = v
	}
	for k, v := range node.Properties {
		props[k] = v
	}
	return props
}

func maxIterations(node *domain.GraphNode, desc *domain.NodeTypeDescriptor) int {
	props := effectiveProperties(node, desc)
	switch v := props["maxIterations"].(type) {
	case int:
		if v > 0 {
			return v
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return DefaultMaxIterations
}

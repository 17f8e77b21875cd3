package domain

import "time"

// EventType tags an execution lifecycle event.
type EventType string

const (
	EventNodeStart     EventType = "node_start"
	EventNodeComplete  EventType = "node_complete"
	EventNodeError     EventType = "node_error"
	EventGraphComplete EventType = "graph_complete"
)

// ExecutionEvent is one lifecycle event of a run.
//
// Ordering guarantees within a run: node_start precedes the matching
// node_complete or node_error for the same node id and iteration;
// graph_complete is always the final event; events for repeated iterations
// of the same node id are ordered by iteration count.
type ExecutionEvent struct {
	Type      EventType              `json:"type"`
	RunID     string                 `json:"run_id"`
	NodeID    int                    `json:"node_id,omitempty"`
	NodeType  string                 `json:"node_type,omitempty"`
	Iteration int                    `json:"iteration,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventHandler consumes execution events. Handlers run on the executor
// goroutine and must not block.
type EventHandler func(ExecutionEvent)

package domain

import "time"

// RunStatus is the overall status of one graph execution.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// NodeStatus is the status of one node within a run.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
)

// NodeState records the most recent invocation of one node id within a run.
// Outputs are keyed by output port name; for repeated iterations only the
// latest outputs are retained.
type NodeState struct {
	NodeID     int                    `json:"node_id"`
	Status     NodeStatus             `json:"status"`
	Outputs    map[string]interface{} `json:"outputs,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Iterations int                    `json:"iterations"`
}

// ExecutionState is the per-run mutable record of produced values and
// progress. It is mutated only by the executor goroutine that owns the run.
type ExecutionState struct {
	RunID       string              `json:"run_id"`
	Status      RunStatus           `json:"status"`
	NodeStates  map[int]*NodeState  `json:"node_states"`
	FinalOutput interface{}         `json:"final_output,omitempty"`
	Error       string              `json:"error,omitempty"`
	StartedAt   time.Time           `json:"started_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

// NewExecutionState creates the initial state for one run over doc.
func NewExecutionState(runID string, doc *GraphDocument) *ExecutionState {
	st := &ExecutionState{
		RunID:      runID,
		Status:     RunStatusRunning,
		NodeStates: make(map[int]*NodeState, len(doc.Nodes)),
		StartedAt:  time.Now(),
	}
	for _, n := range doc.Nodes {
		st.NodeStates[n.ID] = &NodeState{NodeID: n.ID, Status: NodeStatusPending}
	}
	return st
}

// Node returns the state record for a node id, creating it if needed.
func (s *ExecutionState) Node(id int) *NodeState {
	ns, ok := s.NodeStates[id]
	if !ok {
		ns = &NodeState{NodeID: id, Status: NodeStatusPending}
		s.NodeStates[id] = ns
	}
	return ns
}

// Duration returns the elapsed run time, using now for open runs.
func (s *ExecutionState) Duration() time.Duration {
	if s.CompletedAt != nil {
		return s.CompletedAt.Sub(s.StartedAt)
	}
	return time.Since(s.StartedAt)
}

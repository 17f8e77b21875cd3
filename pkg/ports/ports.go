// Package ports declares the interfaces between the engine core and its
// collaborators. Adapters under pkg/adapters implement the infrastructure
// side; node execution functions consume the collaborator side.
package ports

import (
	"context"
	"time"

	"github.com/metahuman-os/cortex/pkg/domain"
)

// GraphStore loads workflow graph documents by logical name. Load returns
// the document together with an opaque modification marker; callers cache
// by (name, marker) and a changed marker invalidates only that entry.
type GraphStore interface {
	Load(ctx context.Context, name string) (*domain.GraphDocument, string, error)
	// Stat returns the current modification marker without loading the
	// document.
	Stat(ctx context.Context, name string) (string, error)
	Save(ctx context.Context, doc *domain.GraphDocument) error
	List(ctx context.Context) ([]string, error)
}

// AuditEvent is a structured record of retry, fallback, and completion
// activity around runs.
type AuditEvent struct {
	ID        string                 `json:"id"`
	Kind      string                 `json:"kind"`
	RunID     string                 `json:"run_id,omitempty"`
	Workflow  string                 `json:"workflow,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Audit event kinds.
const (
	AuditRunCompleted = "run_completed"
	AuditRunFailed    = "run_failed"
	AuditRunCancelled = "run_cancelled"
	AuditRetry        = "retry"
	AuditFallback     = "fallback"
)

// AuditSink receives audit events. Record is fire-and-forget: it must never
// block the caller, and a slow or failing sink must not stall execution.
type AuditSink interface {
	Record(event AuditEvent)
	Close() error
}

// Message is one chat message exchanged with a model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ModelRequest describes one model completion call.
type ModelRequest struct {
	Model       string    `json:"model,omitempty"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// ModelResponse is the result of one model completion call.
type ModelResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	StopReason   string `json:"stop_reason,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// ModelClient is the LLM backend used by model node kinds and by the error
// boundary's direct-call fallback.
type ModelClient interface {
	Complete(ctx context.Context, req *ModelRequest) (*ModelResponse, error)
}

// MemoryHit is one semantic memory search result.
type MemoryHit struct {
	Key     string  `json:"key"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// MemoryStore is the semantic memory collaborator behind memory node kinds.
type MemoryStore interface {
	Search(ctx context.Context, query string, limit int) ([]MemoryHit, error)
	Store(ctx context.Context, key, content string) error
}

// SkillRunner executes a named skill with arguments on behalf of skill node
// kinds. Skill internals (filesystem access, external tools) live behind
// this boundary.
type SkillRunner interface {
	Run(ctx context.Context, skill string, args map[string]interface{}) (interface{}, error)
}

// MetricsCollector records engine metrics.
type MetricsCollector interface {
	RecordRunStarted(workflow string)
	RecordRunCompleted(workflow, status string, duration time.Duration)
	RecordNodeExecuted(nodeType, status string, duration time.Duration)
	RecordFrameSent(kind string)
	RecordCacheHit(hit bool)
	RecordRetry(workflow string)
	RecordFallback(workflow string)
	SetActiveRuns(count int)
	RecordWorkerPoolStatus(idle, busy int)
}

// Event is one message on the in-process event bus. The WebSocket API
// subscribes to per-run topics to mirror execution events to clients.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	RunID     string                 `json:"run_id"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventHandler consumes bus events.
type EventHandler func(ctx context.Context, event Event) error

// EventBus distributes events to subscribers by topic.
type EventBus interface {
	Publish(ctx context.Context, topic string, event Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}

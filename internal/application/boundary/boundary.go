package boundary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/metahuman-os/cortex/pkg/domain"
	"github.com/metahuman-os/cortex/pkg/ports"
)

// Default retry policy.
const (
	DefaultMaxRetries = 2
	DefaultBaseDelay  = 500 * time.Millisecond
)

// Runner is the wrapped execution. The engine executor satisfies it.
type Runner interface {
	Execute(ctx context.Context, runID string, doc *domain.GraphDocument, initial map[string]interface{}, onEvent domain.EventHandler) (*domain.ExecutionState, error)
}

// Options tunes the boundary's retry and fallback behavior.
type Options struct {
	// MaxRetries is the number of re-attempts after the first failure.
	// MaxRetries of 2 means at most 3 invocations.
	MaxRetries int
	// BaseDelay is the first backoff delay; it doubles per attempt.
	BaseDelay time.Duration
	// Fallback enables a direct model call when every attempt failed,
	// producing a degraded answer instead of an error.
	Fallback bool
	// FallbackModel overrides the model used for the fallback call.
	FallbackModel string
}

func (o Options) withDefaults() Options {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	return o
}

// Boundary wraps graph execution with retries and an optional direct
// model fallback. Validation failures, cancellations, and timeouts pass
// through unretried; only genuine execution failures are re-attempted.
type Boundary struct {
	inner   Runner
	model   ports.ModelClient
	audit   ports.AuditSink
	metrics ports.MetricsCollector
	logger  *zap.Logger
	opts    Options
}

// New creates a boundary around inner. model enables the fallback path
// and may be nil; audit and metrics may be nil.
func New(inner Runner, model ports.ModelClient, audit ports.AuditSink, metrics ports.MetricsCollector, logger *zap.Logger, opts Options) *Boundary {
	return &Boundary{
		inner:   inner,
		model:   model,
		audit:   audit,
		metrics: metrics,
		logger:  logger,
		opts:    opts.withDefaults(),
	}
}

// Execute runs the graph, retrying failed attempts with exponential
// backoff and falling back to a direct model call when configured. The
// workflow name used for audit records is taken from the document.
func (b *Boundary) Execute(ctx context.Context, runID string, doc *domain.GraphDocument, initial map[string]interface{}, onEvent domain.EventHandler) (*domain.ExecutionState, error) {
	workflow := ""
	if doc != nil {
		workflow = doc.Name
	}

	var lastState *domain.ExecutionState
	var lastErr error

	for attempt := 0; attempt <= b.opts.MaxRetries; attempt++ {
		state, err := b.inner.Execute(ctx, runID, doc, initial, onEvent)
		if err == nil {
			return state, nil
		}
		if !retryable(err) {
			return state, err
		}
		lastState, lastErr = state, err

		if attempt == b.opts.MaxRetries {
			break
		}

		delay := b.opts.BaseDelay << attempt
		b.logger.Warn("run attempt failed, retrying",
			zap.String("run_id", runID),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err))
		b.recordRetry(runID, workflow, attempt+1, err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return lastState, lastErr
		}
	}

	if b.opts.Fallback && b.model != nil {
		if state, err := b.fallback(ctx, runID, doc, initial, lastErr); err == nil {
			return state, nil
		} else {
			b.logger.Error("fallback model call failed",
				zap.String("run_id", runID),
				zap.Error(err))
		}
	}

	return lastState, lastErr
}

// fallback answers the user's message with a single direct model call,
// bypassing the graph entirely.
func (b *Boundary) fallback(ctx context.Context, runID string, doc *domain.GraphDocument, initial map[string]interface{}, cause error) (*domain.ExecutionState, error) {
	message := userMessage(initial)
	if message == "" {
		return nil, fmt.Errorf("no user message available for fallback")
	}

	b.logger.Info("attempts exhausted, falling back to direct model call",
		zap.String("run_id", runID),
		zap.Error(cause))
	b.recordFallback(runID, doc, cause)

	resp, err := b.model.Complete(ctx, &ports.ModelRequest{
		Model: b.opts.FallbackModel,
		Messages: []ports.Message{
			{Role: "user", Content: message},
		},
	})
	if err != nil {
		return nil, err
	}

	state := domain.NewExecutionState(runID, doc)
	state.Status = domain.RunStatusCompleted
	state.FinalOutput = resp.Content
	now := time.Now()
	state.CompletedAt = &now
	return state, nil
}

// retryable reports whether a failed attempt should be re-run. Invalid
// graphs stay invalid, and cancellation and timeout are verdicts on the
// run rather than transient faults.
func retryable(err error) bool {
	var verr *domain.ValidationError
	var cerr *domain.CancellationError
	var terr *domain.TimeoutError
	if errors.As(err, &verr) || errors.As(err, &cerr) || errors.As(err, &terr) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// userMessage pulls the user's text out of the initial run context.
func userMessage(initial map[string]interface{}) string {
	for _, key := range []string{"message", "input", "query"} {
		if v, ok := initial[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func (b *Boundary) recordRetry(runID, workflow string, attempt int, cause error) {
	if b.metrics != nil {
		b.metrics.RecordRetry(workflow)
	}
	if b.audit == nil {
		return
	}
	b.audit.Record(ports.AuditEvent{
		ID:        uuid.New().String(),
		Kind:      ports.AuditRetry,
		RunID:     runID,
		Workflow:  workflow,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"attempt": attempt,
			"error":   cause.Error(),
		},
	})
}

func (b *Boundary) recordFallback(runID string, doc *domain.GraphDocument, cause error) {
	workflow := ""
	if doc != nil {
		workflow = doc.Name
	}
	if b.metrics != nil {
		b.metrics.RecordFallback(workflow)
	}
	if b.audit == nil {
		return
	}
	data := map[string]interface{}{}
	if cause != nil {
		data["error"] = cause.Error()
	}
	b.audit.Record(ports.AuditEvent{
		ID:        uuid.New().String(),
		Kind:      ports.AuditFallback,
		RunID:     runID,
		Workflow:  workflow,
		Timestamp: time.Now(),
		Data:      data,
	})
}

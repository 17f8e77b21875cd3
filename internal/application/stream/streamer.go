package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/metahuman-os/cortex/internal/application/engine"
	"github.com/metahuman-os/cortex/pkg/domain"
	"github.com/metahuman-os/cortex/pkg/ports"
)

// Default feed pacing.
const (
	DefaultTimeout            = 120 * time.Second
	DefaultProgressInterval   = 250 * time.Millisecond
	DefaultCancelPollInterval = 100 * time.Millisecond
)

// GraphRunner executes one graph run. The bare executor implements it;
// the error boundary wraps an executor behind the same signature.
type GraphRunner interface {
	Execute(ctx context.Context, runID string, doc *domain.GraphDocument, initial map[string]interface{}, onEvent domain.EventHandler) (*domain.ExecutionState, error)
}

// Options tunes feed pacing. Zero values fall back to the defaults.
type Options struct {
	// DefaultTimeout bounds runs whose request carries no timeout.
	DefaultTimeout time.Duration
	// ProgressInterval is the minimum spacing between progress frames.
	// Intermediate progress is coalesced, keeping only the latest.
	ProgressInterval time.Duration
	// CancelPollInterval is how often the cancellation registry is
	// consulted while no events are arriving.
	CancelPollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.DefaultTimeout <= 0 {
		o.DefaultTimeout = DefaultTimeout
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = DefaultProgressInterval
	}
	if o.CancelPollInterval <= 0 {
		o.CancelPollInterval = DefaultCancelPollInterval
	}
	return o
}

// RunRequest describes one streamed run.
type RunRequest struct {
	// RunID identifies the run for cancellation. Empty generates one.
	RunID string
	// Workflow names the graph to load from the store. Ignored when
	// Document is set.
	Workflow string
	// Document, when non-nil, is executed directly without a store load.
	Document *domain.GraphDocument
	// Timeout overrides the configured default when positive.
	Timeout time.Duration
	// Input seeds the run context, typically the user message.
	Input map[string]interface{}
}

// RunInfo describes one in-flight run.
type RunInfo struct {
	RunID     string    `json:"run_id"`
	Workflow  string    `json:"workflow"`
	StartedAt time.Time `json:"started_at"`
}

// Streamer turns graph runs into live frame feeds. One Streamer serves
// all runs; per-run state lives in the active-runs map and is removed
// when the run terminates.
type Streamer struct {
	store     ports.GraphStore
	cache     *DocumentCache
	cancels   *CancellationRegistry
	validator *engine.Validator
	runner    GraphRunner
	bus       ports.EventBus
	audit     ports.AuditSink
	metrics   ports.MetricsCollector
	logger    *zap.Logger
	opts      Options

	runs   sync.Map
	active atomic.Int64
}

type runHandle struct {
	workflow  string
	startedAt time.Time
}

type runResult struct {
	state *domain.ExecutionState
	err   error
}

// NewStreamer creates a streamer. bus, audit, and metrics may be nil.
func NewStreamer(store ports.GraphStore, validator *engine.Validator, runner GraphRunner, bus ports.EventBus, audit ports.AuditSink, metrics ports.MetricsCollector, logger *zap.Logger, opts Options) *Streamer {
	return &Streamer{
		store:     store,
		cache:     NewDocumentCache(),
		cancels:   NewCancellationRegistry(),
		validator: validator,
		runner:    runner,
		bus:       bus,
		audit:     audit,
		metrics:   metrics,
		logger:    logger,
		opts:      opts.withDefaults(),
	}
}

// Cancel requests cooperative cancellation of an in-flight run. It
// reports false when no run with that id is active.
func (s *Streamer) Cancel(runID, reason string) bool {
	if _, ok := s.runs.Load(runID); !ok {
		return false
	}
	if reason == "" {
		reason = "cancelled by request"
	}
	s.cancels.Request(runID, reason)
	s.logger.Info("cancellation requested",
		zap.String("run_id", runID),
		zap.String("reason", reason))
	return true
}

// ActiveRuns lists runs currently in flight.
func (s *Streamer) ActiveRuns() []RunInfo {
	var infos []RunInfo
	s.runs.Range(func(key, value interface{}) bool {
		h := value.(*runHandle)
		infos = append(infos, RunInfo{
			RunID:     key.(string),
			Workflow:  h.workflow,
			StartedAt: h.startedAt,
		})
		return true
	})
	return infos
}

// InvalidateDocument drops the cached copy of a workflow document.
func (s *Streamer) InvalidateDocument(name string) {
	s.cache.Invalidate(name)
}

// Run executes one graph and pushes frames to w until the run reaches a
// terminal state. Exactly one terminal frame is written: answer on
// success, cancelled on a cancellation request, error otherwise. The
// returned error mirrors the terminal frame; a successful run returns
// nil.
func (s *Streamer) Run(ctx context.Context, req RunRequest, w FrameWriter) error {
	runID := req.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	started := time.Now()

	doc := req.Document
	if doc == nil {
		var err error
		doc, err = s.loadDocument(ctx, req.Workflow)
		if err != nil {
			s.writeFrame(w, errorFrame(runID, err.Error(), false))
			return err
		}
	}
	if res := s.validator.Validate(doc); !res.Valid {
		err := res.Err(req.Workflow)
		s.writeFrame(w, errorFrame(runID, err.Error(), false))
		return err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.opts.DefaultTimeout
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	s.runs.Store(runID, &runHandle{workflow: req.Workflow, startedAt: started})
	s.recordStarted(req.Workflow)
	defer func() {
		s.runs.Delete(runID)
		s.cancels.Clear(runID)
		if s.metrics != nil {
			s.metrics.SetActiveRuns(int(s.active.Add(-1)))
		}
	}()

	s.logger.Info("run started",
		zap.String("run_id", runID),
		zap.String("workflow", req.Workflow),
		zap.Duration("timeout", timeout))

	events := make(chan domain.ExecutionEvent, 256)
	done := make(chan runResult, 1)
	go func() {
		state, err := s.runner.Execute(runCtx, runID, doc, req.Input, func(ev domain.ExecutionEvent) {
			select {
			case events <- ev:
			case <-runCtx.Done():
			}
		})
		done <- runResult{state: state, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	poll := time.NewTicker(s.opts.CancelPollInterval)
	defer poll.Stop()

	var pending *Frame
	var lastProgress time.Time

	for {
		select {
		case <-timer.C:
			terr := &domain.TimeoutError{Budget: timeout}
			cancel(terr)
			s.writeFrame(w, errorFrame(runID, terr.Error(), true))
			s.finish(runID, req.Workflow, string(domain.RunStatusFailed), started, map[string]interface{}{
				"timeout_ms": timeout.Milliseconds(),
			})
			s.release(events, done)
			return terr

		case <-poll.C:
			if entry, ok := s.cancels.Check(runID); ok {
				return s.cancelled(w, runID, req.Workflow, entry, cancel, started, events, done)
			}
			if pending != nil && time.Since(lastProgress) >= s.opts.ProgressInterval {
				s.writeFrame(w, *pending)
				pending = nil
				lastProgress = time.Now()
			}

		case ev := <-events:
			if entry, ok := s.cancels.Check(runID); ok {
				return s.cancelled(w, runID, req.Workflow, entry, cancel, started, events, done)
			}
			s.mirror(runCtx, runID, ev)
			f := progressFrame(runID, doc, ev)
			if time.Since(lastProgress) >= s.opts.ProgressInterval {
				s.writeFrame(w, f)
				pending = nil
				lastProgress = time.Now()
			} else {
				pending = &f
			}

		case res := <-done:
			s.flushEvents(runCtx, runID, events)
			return s.settle(w, runID, req.Workflow, started, res)
		}
	}
}

func (s *Streamer) loadDocument(ctx context.Context, name string) (*domain.GraphDocument, error) {
	if marker, err := s.store.Stat(ctx, name); err == nil {
		if doc, ok := s.cache.Get(name, marker); ok {
			if s.metrics != nil {
				s.metrics.RecordCacheHit(true)
			}
			return doc, nil
		}
	}
	doc, marker, err := s.store.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordCacheHit(false)
	}
	s.cache.Put(name, marker, doc)
	return doc, nil
}

// settle writes the terminal frame for a run that finished on its own.
func (s *Streamer) settle(w FrameWriter, runID, workflow string, started time.Time, res runResult) error {
	var cerr *domain.CancellationError
	var terr *domain.TimeoutError

	switch {
	case res.err == nil:
		s.writeFrame(w, Frame{Type: FrameAnswer, Data: map[string]interface{}{
			"run_id":      runID,
			"answer":      res.state.FinalOutput,
			"status":      string(res.state.Status),
			"duration_ms": time.Since(started).Milliseconds(),
		}})
		s.finish(runID, workflow, string(domain.RunStatusCompleted), started, nil)
		return nil

	case errors.As(res.err, &cerr):
		s.writeFrame(w, cancelledFrame(runID, cerr.Reason))
		s.finish(runID, workflow, string(domain.RunStatusCancelled), started, map[string]interface{}{
			"reason": cerr.Reason,
		})
		return res.err

	case errors.As(res.err, &terr):
		s.writeFrame(w, errorFrame(runID, terr.Error(), true))
		s.finish(runID, workflow, string(domain.RunStatusFailed), started, map[string]interface{}{
			"timeout_ms": terr.Budget.Milliseconds(),
		})
		return res.err

	default:
		s.writeFrame(w, errorFrame(runID, res.err.Error(), false))
		s.finish(runID, workflow, string(domain.RunStatusFailed), started, map[string]interface{}{
			"error": res.err.Error(),
		})
		return res.err
	}
}

// cancelled winds down a run for which a cancellation request was found.
func (s *Streamer) cancelled(w FrameWriter, runID, workflow string, entry CancelEntry, cancel context.CancelCauseFunc, started time.Time, events chan domain.ExecutionEvent, done chan runResult) error {
	cerr := &domain.CancellationError{Reason: entry.Reason}
	cancel(cerr)
	s.writeFrame(w, cancelledFrame(runID, entry.Reason))
	s.finish(runID, workflow, string(domain.RunStatusCancelled), started, map[string]interface{}{
		"reason": entry.Reason,
	})
	s.release(events, done)
	return cerr
}

// release consumes leftover executor output in the background so the run
// goroutine can wind down after an early return.
func (s *Streamer) release(events chan domain.ExecutionEvent, done chan runResult) {
	go func() {
		for {
			select {
			case <-events:
			case <-done:
				return
			}
		}
	}()
}

// flushEvents mirrors events still buffered after the run finished. No
// progress frames are written; the terminal frame follows immediately.
func (s *Streamer) flushEvents(ctx context.Context, runID string, events chan domain.ExecutionEvent) {
	for {
		select {
		case ev := <-events:
			s.mirror(ctx, runID, ev)
		default:
			return
		}
	}
}

// mirror republishes an execution event on the in-process bus for
// WebSocket observers.
func (s *Streamer) mirror(ctx context.Context, runID string, ev domain.ExecutionEvent) {
	if s.bus == nil {
		return
	}
	_ = s.bus.Publish(ctx, "runs."+runID, ports.Event{
		ID:        uuid.New().String(),
		Type:      string(ev.Type),
		RunID:     runID,
		Timestamp: ev.Timestamp,
		Data: map[string]interface{}{
			"node_id":   ev.NodeID,
			"node_type": ev.NodeType,
			"iteration": ev.Iteration,
			"payload":   ev.Payload,
		},
	})
}

func (s *Streamer) writeFrame(w FrameWriter, f Frame) {
	if err := w.WriteFrame(f); err != nil {
		s.logger.Warn("frame write failed",
			zap.String("kind", f.Type),
			zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.RecordFrameSent(f.Type)
	}
}

func (s *Streamer) recordStarted(workflow string) {
	count := s.active.Add(1)
	if s.metrics != nil {
		s.metrics.RecordRunStarted(workflow)
		s.metrics.SetActiveRuns(int(count))
	}
}

func (s *Streamer) finish(runID, workflow, status string, started time.Time, data map[string]interface{}) {
	dur := time.Since(started)
	s.logger.Info("run finished",
		zap.String("run_id", runID),
		zap.String("workflow", workflow),
		zap.String("status", status),
		zap.Duration("duration", dur))

	if s.metrics != nil {
		s.metrics.RecordRunCompleted(workflow, status, dur)
	}
	if s.audit == nil {
		return
	}
	kind := ports.AuditRunCompleted
	switch status {
	case string(domain.RunStatusFailed):
		kind = ports.AuditRunFailed
	case string(domain.RunStatusCancelled):
		kind = ports.AuditRunCancelled
	}
	s.audit.Record(ports.AuditEvent{
		ID:        uuid.New().String(),
		Kind:      kind,
		RunID:     runID,
		Workflow:  workflow,
		Timestamp: time.Now(),
		Data:      data,
	})
}

func progressFrame(runID string, doc *domain.GraphDocument, ev domain.ExecutionEvent) Frame {
	return Frame{Type: FrameProgress, Data: map[string]interface{}{
		"run_id":    runID,
		"event":     string(ev.Type),
		"node_id":   ev.NodeID,
		"node_type": ev.NodeType,
		"iteration": ev.Iteration,
		"label":     labelFor(doc, ev),
	}}
}

func errorFrame(runID, message string, timedOut bool) Frame {
	data := map[string]interface{}{
		"run_id":  runID,
		"message": message,
	}
	if timedOut {
		data["timeout"] = true
	}
	return Frame{Type: FrameError, Data: data}
}

func cancelledFrame(runID, reason string) Frame {
	return Frame{Type: FrameCancelled, Data: map[string]interface{}{
		"run_id": runID,
		"reason": reason,
	}}
}

package boundary

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/metahuman-os/cortex/pkg/domain"
	"github.com/metahuman-os/cortex/pkg/ports"
)

type fakeRunner struct {
	calls int
	err   error
	state *domain.ExecutionState
}

func (f *fakeRunner) Execute(_ context.Context, runID string, doc *domain.GraphDocument, _ map[string]interface{}, _ domain.EventHandler) (*domain.ExecutionState, error) {
	f.calls++
	if f.err != nil {
		return f.state, f.err
	}
	st := domain.NewExecutionState(runID, doc)
	st.Status = domain.RunStatusCompleted
	return st, nil
}

type fakeModel struct {
	calls int
	err   error
}

func (f *fakeModel) Complete(_ context.Context, _ *ports.ModelRequest) (*ports.ModelResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &ports.ModelResponse{Content: "fallback answer"}, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []ports.AuditEvent
}

func (s *recordingSink) Record(ev ports.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Kind
	}
	return out
}

func emptyDoc(name string) *domain.GraphDocument {
	return &domain.GraphDocument{Name: name}
}

func TestExecutePassesThroughSuccess(t *testing.T) {
	runner := &fakeRunner{}
	b := New(runner, nil, nil, nil, zap.NewNop(), Options{MaxRetries: 2, BaseDelay: time.Millisecond})

	state, err := b.Execute(context.Background(), "run-1", emptyDoc("chat"), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, state.Status)
	assert.Equal(t, 1, runner.calls)
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("node blew up")}
	sink := &recordingSink{}
	b := New(runner, nil, sink, nil, zap.NewNop(), Options{MaxRetries: 2, BaseDelay: time.Millisecond})

	_, err := b.Execute(context.Background(), "run-2", emptyDoc("chat"), nil, nil)
	require.Error(t, err)
	assert.Equal(t, 3, runner.calls)
	assert.Equal(t, []string{ports.AuditRetry, ports.AuditRetry}, sink.kinds())
}

func TestExecuteDoesNotRetryVerdicts(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"validation", &domain.ValidationError{GraphName: "chat", Issues: []string{"bad"}}},
		{"cancellation", &domain.CancellationError{Reason: "user request"}},
		{"timeout", &domain.TimeoutError{Budget: time.Second}},
		{"context", context.Canceled},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runner := &fakeRunner{err: tc.err}
			b := New(runner, nil, nil, nil, zap.NewNop(), Options{MaxRetries: 2, BaseDelay: time.Millisecond})

			_, err := b.Execute(context.Background(), "run-3", emptyDoc("chat"), nil, nil)
			assert.ErrorIs(t, err, tc.err)
			assert.Equal(t, 1, runner.calls)
		})
	}
}

func TestExecuteFallsBackToDirectModelCall(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("node blew up")}
	model := &fakeModel{}
	sink := &recordingSink{}
	b := New(runner, model, sink, nil, zap.NewNop(), Options{
		MaxRetries: 1,
		BaseDelay:  time.Millisecond,
		Fallback:   true,
	})

	state, err := b.Execute(context.Background(), "run-4", emptyDoc("chat"),
		map[string]interface{}{"message": "hello"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, runner.calls)
	assert.Equal(t, 1, model.calls)
	assert.Equal(t, domain.RunStatusCompleted, state.Status)
	assert.Equal(t, "fallback answer", state.FinalOutput)
	assert.Equal(t, []string{ports.AuditRetry, ports.AuditFallback}, sink.kinds())
}

func TestExecuteFallbackNeedsUserMessage(t *testing.T) {
	cause := fmt.Errorf("node blew up")
	runner := &fakeRunner{err: cause}
	model := &fakeModel{}
	b := New(runner, model, nil, nil, zap.NewNop(), Options{
		MaxRetries: 0,
		BaseDelay:  time.Millisecond,
		Fallback:   true,
	})

	_, err := b.Execute(context.Background(), "run-5", emptyDoc("chat"),
		map[string]interface{}{"unrelated": 1}, nil)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 0, model.calls)
}

func TestExecuteFallbackErrorSurfacesOriginal(t *testing.T) {
	cause := fmt.Errorf("node blew up")
	runner := &fakeRunner{err: cause}
	model := &fakeModel{err: fmt.Errorf("model down")}
	b := New(runner, model, nil, nil, zap.NewNop(), Options{
		MaxRetries: 0,
		BaseDelay:  time.Millisecond,
		Fallback:   true,
	})

	_, err := b.Execute(context.Background(), "run-6", emptyDoc("chat"),
		map[string]interface{}{"message": "hello"}, nil)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, model.calls)
}

// Package skills provides the skill runner behind the skill node kinds.
// Skills are named Go functions registered at startup; graph authors
// invoke them by name with a JSON argument object.
package skills

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Func is one skill implementation.
type Func func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Runner dispatches skill invocations to registered functions.
type Runner struct {
	mu     sync.RWMutex
	skills map[string]Func
	logger *zap.Logger
}

// NewRunner creates a runner with the builtin skills registered.
func NewRunner(logger *zap.Logger) *Runner {
	r := &Runner{
		skills: make(map[string]Func),
		logger: logger,
	}
	r.Register("echo", echoSkill)
	r.Register("current_time", currentTimeSkill)
	return r
}

// Register adds or replaces a skill.
func (r *Runner) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills[name] = fn
}

// Names returns the registered skill names, sorted.
func (r *Runner) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.skills))
	for name := range r.skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run invokes the named skill.
func (r *Runner) Run(ctx context.Context, skill string, args map[string]interface{}) (interface{}, error) {
	r.mu.RLock()
	fn, ok := r.skills[skill]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown skill: %s", skill)
	}

	start := time.Now()
	result, err := fn(ctx, args)
	r.logger.Debug("skill invoked",
		zap.String("skill", skill),
		zap.Bool("ok", err == nil),
		zap.Duration("duration", time.Since(start)))
	return result, err
}

func echoSkill(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return args, nil
}

func currentTimeSkill(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return time.Now().UTC().Format(time.RFC3339), nil
}

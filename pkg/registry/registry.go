package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/metahuman-os/cortex/pkg/domain"
)

// ExecRequest carries the resolved call site of one node invocation.
type ExecRequest struct {
	// NodeID is the invoked node's id within its graph.
	NodeID int

	// Inputs holds the resolved input values keyed by input port name.
	// Optional unresolved ports are absent.
	Inputs map[string]interface{}

	// Properties are the node's effective properties: registered defaults
	// overlaid with the graph node's own properties.
	Properties map[string]interface{}

	// Context is the shared per-run context.
	Context *domain.RunContext
}

// Input returns a resolved input value, or false if absent.
func (r *ExecRequest) Input(name string) (interface{}, bool) {
	v, ok := r.Inputs[name]
	return v, ok
}

// StringInput returns a string input, falling back to def.
func (r *ExecRequest) StringInput(name, def string) string {
	if v, ok := r.Inputs[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// StringProperty returns a string property, falling back to def.
func (r *ExecRequest) StringProperty(name, def string) string {
	if v, ok := r.Properties[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// ExecFunc executes one node invocation and returns its outputs keyed by
// output port name. An absent or nil output marks that slot as untaken;
// downstream consumers of untaken slots are not scheduled.
type ExecFunc func(ctx context.Context, req ExecRequest) (map[string]interface{}, error)

type entry struct {
	desc domain.NodeTypeDescriptor
	fn   ExecFunc
}

// Registry is the static table of node kinds.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a node kind. It rejects duplicate kind keys and descriptors
// declaring zero outputs for non-terminal categories.
func (r *Registry) Register(desc domain.NodeTypeDescriptor, fn ExecFunc) error {
	if desc.Kind == "" {
		return fmt.Errorf("descriptor kind is required")
	}
	if fn == nil {
		return fmt.Errorf("kind %q: execution function is required", desc.Kind)
	}
	if len(desc.Outputs) == 0 && desc.Category != domain.CategoryOutput {
		return fmt.Errorf("kind %q: %w", desc.Kind, domain.ErrNoOutputs)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[desc.Kind]; exists {
		return fmt.Errorf("kind %q: %w", desc.Kind, domain.ErrDuplicateKind)
	}
	r.entries[desc.Kind] = entry{desc: desc, fn: fn}
	return nil
}

// Lookup returns the descriptor and execution function for a kind.
func (r *Registry) Lookup(kind string) (*domain.NodeTypeDescriptor, ExecFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[kind]
	if !ok {
		return nil, nil, &domain.RegistryError{Kind: kind}
	}
	desc := e.desc
	return &desc, e.fn, nil
}

// Has reports whether a kind is registered.
func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[kind]
	return ok
}

// ListByCategory returns the descriptors of one category, sorted by kind.
func (r *Registry) ListByCategory(cat domain.Category) []domain.NodeTypeDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.NodeTypeDescriptor
	for _, e := range r.entries {
		if e.desc.Category == cat {
			out = append(out, e.desc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Kinds returns all registered kind keys, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for k := range r.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

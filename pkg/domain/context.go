package domain

import "sync"

// RunContext is the shared, per-run key/value context handed to every node
// invocation. Entry nodes are seeded from it (persona defaults, user input,
// mode) and any node may publish values for later nodes.
//
// Node invocations in one dispatch wave may touch it concurrently, so access
// is guarded.
type RunContext struct {
	mu     sync.RWMutex
	values map[string]interface{}
}

// NewRunContext creates a run context seeded with initial values.
func NewRunContext(initial map[string]interface{}) *RunContext {
	values := make(map[string]interface{}, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &RunContext{values: values}
}

// Get returns the value for key, or false if absent.
func (c *RunContext) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// GetString returns the string value for key, or def.
func (c *RunContext) GetString(key, def string) string {
	if v, ok := c.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Set publishes a value into the shared context.
func (c *RunContext) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Snapshot returns a copy of the current values.
func (c *RunContext) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]interface{}, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

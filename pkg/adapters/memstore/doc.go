// Package memstore provides the semantic memory backends used by the
// memory node kinds.
//
// Implementations:
//   - redis: entries in a Redis hash, scored by token overlap on search
//   - memory: in-memory for testing and single-process use
package memstore

// Package domain defines the data model of the cognitive graph engine:
// graph documents and their JSON wire format, node type descriptors with
// semantically typed ports, per-run execution state, lifecycle events, and
// the engine error taxonomy.
//
// Graph documents are immutable once loaded. Execution state is created
// fresh per run and discarded once its final output and events have been
// consumed; it is never persisted.
package domain

// Package registry holds the static catalog of node kinds. Each kind is a
// flat NodeTypeDescriptor paired with its execution function; new kinds are
// added purely by registration at process start, never by subclassing.
//
// The table is read-heavy and write-once-per-kind: registration happens
// during wiring, lookups happen on every node invocation.
package registry

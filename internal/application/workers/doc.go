// Package workers implements the dispatch pool for node invocations.
//
// The pool manages a fixed number of goroutines that execute
// data-independent nodes of one dispatch wave concurrently. Submission is
// non-blocking: when the pool is saturated the executor runs the node
// inline instead, so scheduling never deadlocks on pool capacity.
//
// The health monitor tracks pool occupancy and reports it to logs and
// metrics.
package workers

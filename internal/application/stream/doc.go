// Package stream wraps one graph execution as a live, push-based frame
// feed for a remote caller: cooperative cancellation keyed by a
// caller-supplied run id, a wall-clock timeout raced against execution,
// progress throttling, graph document caching, and friendly progress
// labels.
//
// A feed always terminates with exactly one of the answer, error, or
// cancelled frame kinds; progress frames are advisory and may be dropped
// by a client without losing correctness.
package stream

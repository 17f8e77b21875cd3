// Package audit provides audit sinks for run activity. Sinks are
// fire-and-forget: events are handed to a bounded queue and written by
// a background goroutine, and are dropped rather than ever blocking a
// run.
//
// Implementations:
//   - redis: Redis Streams, one entry per event on a single stream
//   - log: structured log output via zap
package audit

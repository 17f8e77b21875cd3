// Package graphstore provides workflow graph document stores.
//
// Implementations:
//   - fs: JSON documents on disk, file mtime as the modification marker
//   - redis: Redis with a revision counter as the modification marker
//   - memory: in-memory for testing
package graphstore

// Package llm provides model client implementations.
//
// The factory creates clients by provider name. Currently supports:
//   - Anthropic Claude
package llm

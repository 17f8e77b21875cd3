// Package http provides the HTTP REST API.
//
// The server exposes endpoints for:
//   - Streamed workflow runs over server-sent events
//   - Run cancellation and active-run listing
//   - Graph validation and workflow document management
//   - Health checks and Prometheus metrics
package http

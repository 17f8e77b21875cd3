// Package websocket provides real-time run observation via WebSocket.
//
// Clients connect to /api/v1/runs/:id/ws to receive the execution
// events of a run as they happen. The primary answer channel is the SSE
// stream; this is a secondary observer feed.
package websocket

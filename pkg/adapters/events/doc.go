// Package events provides the in-process event bus. The streamer
// mirrors execution events onto per-run topics; the WebSocket API
// subscribes to them to push live progress to observers.
package events

// Package boundary wraps graph execution in a retry and fallback layer.
// Failed runs are re-attempted with exponential backoff up to a
// configured limit; when every attempt fails and a model client is
// available, the user's message is answered with one direct model call
// so the caller still receives a usable, if degraded, response.
package boundary

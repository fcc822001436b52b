// Package server is the HTTP surface: websocket upgrade endpoints for
// viewers and chat members, per-stream health reads, liveness, and metrics
// exposition. Handlers own the read side of each websocket connection; the
// write side belongs to a per-connection transport pump that the relay and
// chat actors drive through domain.ClientTransport.
package server

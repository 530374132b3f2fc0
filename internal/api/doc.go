// Package api implements the HTTP API and WebSocket stream for synthd.
//
// This package provides:
//   - Engine control under /api/v1: status, boot, quit and send
//   - The lifecycle journal under /api/v1/history
//   - Prometheus exposition of supervisor counters on /metrics
//   - A WebSocket hub that streams status updates and engine replies
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Errors
//
// Failures are JSON {"status", "code", "message"}. Supervisor state
// conflicts map to 409, OSC codec errors to 400, process launch failures
// to 422 and anything unexpected to 500.
//
// # WebSocket
//
// Clients connect to the configured path (default /ws) and receive
// "engine.status" events immediately. Sending
//
//	{"type": "subscribe", "id": "1", "payload": {"channels": ["engine.reply"]}}
//
// adds decoded engine replies to the stream.
//
// The API does not authenticate; it binds to localhost by default.
package api

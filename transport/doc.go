// Package transport connects clients to session engines.
//
// # SSE bridge
//
// The SSE bridge multiplexes many clients over one HTTP path:
//
//	t := transport.NewSSE(":8080", factory,
//	    transport.WithLogger(logger),
//	    transport.WithSubmitRateLimit(20, 40),
//	)
//	err := t.Serve(ctx)
//
// GET /sse opens an event stream and starts a fresh engine for it. The
// first event names the session endpoint:
//
//	event: endpoint
//	data: ?sessionId=5f0c...
//
// Every frame the engine writes then arrives as a message event. Clients
// deliver frames with POST /sse?sessionId=..., which answers 202 once the
// body is in the engine's inbound pipe. Unknown sessions get 404, bodies
// over the limit get 413.
//
// By default an engine is cancelled when its stream closes. Use
// WithDetachedEngines to let it run to completion instead.
//
// # WebSocket
//
// NewWebSocket serves the same sessions over one WebSocket connection
// each, with one text message per frame.
//
// # Stdio
//
// NewStdio runs one engine over the process's stdin and stdout.
package transport

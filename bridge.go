// Package bridge exposes byte-stream engines to remote clients.
//
// An engine reads newline-delimited frames from an io.ReadWriter and writes
// frames back. The bridge gives every client its own engine instance and
// carries the frames over one of three legs:
//   - SSE+POST: a long-lived event stream for server frames and POSTed
//     bodies for client frames, correlated by a session id
//   - WebSocket: one connection per session
//   - stdio: a single engine over the process's stdin and stdout
//
// Basic usage:
//
//	echo := bridge.EngineFunc(func(ctx context.Context, stream io.ReadWriter) error {
//	    _, err := io.Copy(stream, stream)
//	    return err
//	})
//
//	bridge.ServeSSE(ctx, ":8080", func() bridge.Engine { return echo })
package bridge

import (
	"context"

	"github.com/felixgeelhaar/mcp-bridge/engine"
	"github.com/felixgeelhaar/mcp-bridge/middleware"
	"github.com/felixgeelhaar/mcp-bridge/transport"
)

// Re-export engine types for convenience.
type (
	Engine     = engine.Engine
	EngineFunc = engine.EngineFunc
	Factory    = engine.Factory
	Notifier   = engine.Notifier
)

// Re-export transport types for convenience.
type (
	Option     = transport.Option
	Transport  = transport.Transport
	CORSConfig = transport.CORSConfig
)

// Re-export middleware types for convenience.
type (
	HandlerFunc = middleware.HandlerFunc
	Middleware  = middleware.Middleware
)

// ServeSSE serves factory's engines over SSE+POST on addr until ctx is
// cancelled, then shuts down gracefully.
func ServeSSE(ctx context.Context, addr string, factory Factory, opts ...Option) error {
	return transport.NewSSE(addr, factory, opts...).Serve(ctx)
}

// ServeWebSocket serves factory's engines over WebSocket on addr.
func ServeWebSocket(ctx context.Context, addr string, factory Factory, opts ...Option) error {
	return transport.NewWebSocket(addr, factory, opts...).Serve(ctx)
}

// ServeStdio runs one engine over the process's stdin and stdout. It returns
// nil once stdin is exhausted and the engine has finished.
func ServeStdio(ctx context.Context, factory Factory, opts ...Option) error {
	return transport.NewStdio(factory, opts...).Serve(ctx)
}

// NewJSONRPCFactory returns a Factory producing JSON-RPC engines that
// dispatch each request to handler through mw.
func NewJSONRPCFactory(handler HandlerFunc, mw ...Middleware) Factory {
	return func() Engine {
		return engine.NewJSONRPC(handler, engine.WithMiddleware(mw...))
	}
}

// Middleware functions re-exported for convenience.
var (
	Chain     = middleware.Chain
	Recover   = middleware.Recover
	RequestID = middleware.RequestID
	Timeout   = middleware.Timeout
)

// Transport options re-exported for convenience.
var (
	WithLogger          = transport.WithLogger
	WithPath            = transport.WithPath
	WithEndpointPrefix  = transport.WithEndpointPrefix
	WithBodyLimit       = transport.WithBodyLimit
	WithPipeCapacity    = transport.WithPipeCapacity
	WithDetachedEngines = transport.WithDetachedEngines
	WithSubmitRateLimit = transport.WithSubmitRateLimit
	WithCORSOrigins     = transport.WithCORSOrigins
	WithStdin           = transport.WithStdin
	WithStdout          = transport.WithStdout
)

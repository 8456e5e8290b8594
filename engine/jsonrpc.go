package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/felixgeelhaar/mcp-bridge/codec"
	"github.com/felixgeelhaar/mcp-bridge/middleware"
	"github.com/felixgeelhaar/mcp-bridge/protocol"
)

// JSONRPC is an Engine that decodes each frame as a JSON-RPC request, runs
// it through a middleware-wrapped handler and writes the response as one
// frame. Requests are handled in arrival order.
type JSONRPC struct {
	handler middleware.HandlerFunc
	log     *slog.Logger
}

// Option configures a JSONRPC engine.
type Option func(*jsonrpcConfig)

type jsonrpcConfig struct {
	middleware []middleware.Middleware
	logger     *slog.Logger
}

// WithMiddleware wraps the handler with m, outermost first.
func WithMiddleware(m ...middleware.Middleware) Option {
	return func(c *jsonrpcConfig) {
		c.middleware = append(c.middleware, m...)
	}
}

// WithLogger sets the logger. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *jsonrpcConfig) {
		c.logger = l
	}
}

// NewJSONRPC returns an engine dispatching requests to handler.
func NewJSONRPC(handler middleware.HandlerFunc, opts ...Option) *JSONRPC {
	cfg := &jsonrpcConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	if len(cfg.middleware) > 0 {
		handler = middleware.Chain(cfg.middleware...)(handler)
	}
	return &JSONRPC{handler: handler, log: cfg.logger}
}

// Run processes frames until the read side of stream ends or ctx is done.
func (e *JSONRPC) Run(ctx context.Context, stream io.ReadWriter) error {
	out := &frameWriter{w: stream}
	ctx = ContextWithNotifier(ctx, out)
	frames := codec.NewReader(stream)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := frames.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read frame: %w", err)
		}
		if len(frame) == 0 {
			continue
		}

		resp := e.handleFrame(ctx, frame)
		if resp == nil {
			continue
		}
		if err := out.send(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
}

func (e *JSONRPC) handleFrame(ctx context.Context, frame []byte) *protocol.Response {
	req, err := protocol.DecodeRequest(frame)
	if err != nil {
		e.log.WarnContext(ctx, "engine.frame.invalid", slog.String("err", err.Error()))
		return protocol.NewErrorResponse(nil, protocol.NewParseError(err.Error()))
	}

	resp, err := e.handler(ctx, req)

	if req.IsNotification() {
		if err != nil {
			e.log.WarnContext(ctx, "engine.notification.fail",
				slog.String("method", req.Method), slog.String("err", err.Error()))
		}
		return nil
	}

	if err != nil {
		var rpcErr *protocol.Error
		if errors.As(err, &rpcErr) {
			return protocol.NewErrorResponse(req.ID, rpcErr)
		}
		return protocol.NewErrorResponse(req.ID, protocol.NewInternalError(err.Error()))
	}
	return resp
}

// Notifier pushes server-initiated notifications onto a session's stream.
type Notifier interface {
	Notify(method string, params any) error
}

type notifierKey struct{}

// ContextWithNotifier attaches n to ctx.
func ContextWithNotifier(ctx context.Context, n Notifier) context.Context {
	return context.WithValue(ctx, notifierKey{}, n)
}

// NotifierFromContext returns the notifier for the current stream, or nil.
func NotifierFromContext(ctx context.Context) Notifier {
	n, _ := ctx.Value(notifierKey{}).(Notifier)
	return n
}

// frameWriter serializes frames written by the engine loop and by handlers
// sending notifications.
type frameWriter struct {
	mu    sync.Mutex
	w     io.Writer
	codec codec.LineCodec
}

func (f *frameWriter) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.codec.Encode(f.w, data)
}

func (f *frameWriter) Notify(method string, params any) error {
	n, err := protocol.NewNotification(method, params)
	if err != nil {
		return err
	}
	return f.send(n)
}

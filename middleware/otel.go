package middleware

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/mcp-bridge/protocol"
)

// InstrumentationName names the tracer and meter used across the module.
const InstrumentationName = "github.com/felixgeelhaar/mcp-bridge"

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*otelConfig)

type otelConfig struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	serviceName    string
	skipMethods    map[string]bool
}

// WithTracerProvider sets a custom tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *otelConfig) {
		c.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom meter provider.
func WithMeterProvider(mp metric.MeterProvider) OTelOption {
	return func(c *otelConfig) {
		c.meterProvider = mp
	}
}

// WithOTelServiceName sets the service name for telemetry.
func WithOTelServiceName(name string) OTelOption {
	return func(c *otelConfig) {
		c.serviceName = name
	}
}

// WithOTelSkipMethods skips tracing for the given methods, typically ping.
func WithOTelSkipMethods(methods ...string) OTelOption {
	return func(c *otelConfig) {
		for _, m := range methods {
			c.skipMethods[m] = true
		}
	}
}

// OTel returns middleware that opens a span per request and records request
// count, latency and errors. The session id is attached to spans only; it is
// kept out of metric attributes to bound cardinality.
func OTel(opts ...OTelOption) Middleware {
	cfg := &otelConfig{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
		serviceName:    "mcp-bridge",
		skipMethods:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	tracer := cfg.tracerProvider.Tracer(InstrumentationName)
	meter := cfg.meterProvider.Meter(InstrumentationName)

	requestCounter, _ := meter.Int64Counter(
		"bridge.engine.requests",
		metric.WithDescription("Requests handled by session engines"),
		metric.WithUnit("{request}"),
	)
	requestDuration, _ := meter.Float64Histogram(
		"bridge.engine.request.duration",
		metric.WithDescription("Duration of engine requests"),
		metric.WithUnit("ms"),
	)
	errorCounter, _ := meter.Int64Counter(
		"bridge.engine.errors",
		metric.WithDescription("Engine requests that ended in an error"),
		metric.WithUnit("{error}"),
	)

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			if cfg.skipMethods[req.Method] {
				return next(ctx, req)
			}

			ctx, span := tracer.Start(ctx, "jsonrpc."+req.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("rpc.method", req.Method),
					attribute.String("service.name", cfg.serviceName),
				),
			)
			defer span.End()

			if id := protocol.SessionIDFromContext(ctx); id != "" {
				span.SetAttributes(attribute.String("bridge.session_id", id))
			}
			if id := RequestIDFromContext(ctx); id != "" {
				span.SetAttributes(attribute.String("bridge.request_id", id))
			}

			attrs := metric.WithAttributes(
				attribute.String("rpc.method", req.Method),
				attribute.String("service.name", cfg.serviceName),
			)
			requestCounter.Add(ctx, 1, attrs)

			start := time.Now()
			resp, err := next(ctx, req)
			requestDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)

			code := 0
			switch {
			case err != nil:
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				var rpcErr *protocol.Error
				if errors.As(err, &rpcErr) {
					code = rpcErr.Code
				}
			case resp != nil && resp.Error != nil:
				span.SetStatus(codes.Error, resp.Error.Message)
				code = resp.Error.Code
			default:
				span.SetStatus(codes.Ok, "")
				return resp, nil
			}

			if code != 0 {
				span.SetAttributes(attribute.Int("rpc.error_code", code))
				errorCounter.Add(ctx, 1, metric.WithAttributes(
					attribute.String("rpc.method", req.Method),
					attribute.Int("rpc.error_code", code),
				))
			} else {
				errorCounter.Add(ctx, 1, attrs)
			}
			return resp, err
		}
	}
}

package transport

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/felixgeelhaar/mcp-bridge/middleware"
)

type metrics struct {
	active  metric.Int64UpDownCounter
	submits metric.Int64Counter
	frames  metric.Int64Counter
	engines metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) *metrics {
	meter := mp.Meter(middleware.InstrumentationName)

	active, _ := meter.Int64UpDownCounter(
		"bridge.sessions.active",
		metric.WithDescription("Sessions with a running engine"),
		metric.WithUnit("{session}"),
	)
	submits, _ := meter.Int64Counter(
		"bridge.submits",
		metric.WithDescription("Message submits by response status"),
		metric.WithUnit("{request}"),
	)
	frames, _ := meter.Int64Counter(
		"bridge.frames.relayed",
		metric.WithDescription("Engine frames delivered to clients"),
		metric.WithUnit("{frame}"),
	)
	engines, _ := meter.Int64Counter(
		"bridge.engine.failures",
		metric.WithDescription("Engines that exited with an error"),
		metric.WithUnit("{engine}"),
	)

	return &metrics{active: active, submits: submits, frames: frames, engines: engines}
}

func (m *metrics) sessionOpened(ctx context.Context, leg string) {
	m.active.Add(ctx, 1, metric.WithAttributes(attribute.String("bridge.transport", leg)))
}

func (m *metrics) sessionClosed(ctx context.Context, leg string) {
	m.active.Add(ctx, -1, metric.WithAttributes(attribute.String("bridge.transport", leg)))
}

func (m *metrics) submitted(ctx context.Context, status int) {
	m.submits.Add(ctx, 1, metric.WithAttributes(attribute.String("http.status_code", strconv.Itoa(status))))
}

func (m *metrics) relayed(ctx context.Context, leg string) {
	m.frames.Add(ctx, 1, metric.WithAttributes(attribute.String("bridge.transport", leg)))
}

func (m *metrics) engineFailed(ctx context.Context, leg string) {
	m.engines.Add(ctx, 1, metric.WithAttributes(attribute.String("bridge.transport", leg)))
}

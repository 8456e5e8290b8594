package transport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Transport carries frames between clients and session engines.
type Transport interface {
	// Serve runs the transport until ctx is cancelled or it fails.
	Serve(ctx context.Context) error

	// Addr describes where the transport listens.
	Addr() string
}

const (
	// DefaultPath is where the SSE bridge accepts stream connects and submits.
	DefaultPath = "/sse"

	// DefaultBodyLimit is the largest message body a submit may carry.
	DefaultBodyLimit = 4 << 20

	// SessionIDParam is the query parameter naming the target session.
	SessionIDParam = "sessionId"
)

// Option configures a transport. Options that do not apply to a given
// transport are ignored by it.
type Option func(*config)

type limiter interface {
	Allow(ctx context.Context, key string) bool
}

type config struct {
	logger        *slog.Logger
	meterProvider metric.MeterProvider

	path           string
	endpointPrefix string
	bodyLimit      int64
	pipeCapacity   int
	detached       bool
	submitLimiter  limiter
	cors           *CORSConfig

	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
	drainDelay      time.Duration

	checkOrigin func(*http.Request) bool

	in  io.Reader
	out io.Writer
}

func newConfig(opts []Option) *config {
	cfg := &config{
		path:            DefaultPath,
		bodyLimit:       DefaultBodyLimit,
		readTimeout:     30 * time.Second,
		writeTimeout:    30 * time.Second,
		shutdownTimeout: 10 * time.Second,
		in:              os.Stdin,
		out:             os.Stdout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	if cfg.meterProvider == nil {
		cfg.meterProvider = otel.GetMeterProvider()
	}
	return cfg
}

// WithLogger sets the logger. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithMeterProvider sets the meter provider for bridge metrics. Defaults to
// the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProvider = mp
	}
}

// WithPath sets the path serving both stream connects and submits.
func WithPath(path string) Option {
	return func(c *config) {
		c.path = path
	}
}

// WithEndpointPrefix sets the text placed before "?sessionId=" in the
// endpoint event. The default is empty, giving a relative query reference.
func WithEndpointPrefix(prefix string) Option {
	return func(c *config) {
		c.endpointPrefix = prefix
	}
}

// WithBodyLimit sets the largest accepted submit body in bytes.
func WithBodyLimit(n int64) Option {
	return func(c *config) {
		c.bodyLimit = n
	}
}

// WithPipeCapacity sets the buffer size of each session pipe.
func WithPipeCapacity(n int) Option {
	return func(c *config) {
		c.pipeCapacity = n
	}
}

// WithDetachedEngines lets engines outlive their stream connection. The
// engine of a disconnected client keeps running until its inbound stream
// ends or the server shuts down, and its output is discarded.
func WithDetachedEngines() Option {
	return func(c *config) {
		c.detached = true
	}
}

// WithSubmitRateLimit allows each session rate submits per second with the
// given burst. Excess submits get 429.
func WithSubmitRateLimit(rate, burst int) Option {
	return func(c *config) {
		c.submitLimiter = newSubmitLimiter(rate, burst)
	}
}

// WithReadTimeout sets the server read timeout.
func WithReadTimeout(d time.Duration) Option {
	return func(c *config) {
		c.readTimeout = d
	}
}

// WithWriteTimeout sets the server write timeout. Event streams and
// websocket connections are exempt.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *config) {
		c.writeTimeout = d
	}
}

// WithStdin sets the stdio transport's input.
func WithStdin(r io.Reader) Option {
	return func(c *config) {
		c.in = r
	}
}

// WithStdout sets the stdio transport's output.
func WithStdout(w io.Writer) Option {
	return func(c *config) {
		c.out = w
	}
}

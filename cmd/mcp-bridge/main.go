// Command mcp-bridge serves the Rust documentation engine over SSE+POST,
// WebSocket or stdio.
//
// With -call it instead runs one documentation tool, prints the result
// and exits non-zero if the tool reported an error:
//
//	mcp-bridge -call lookup_crate -args '{"crate_name":"serde"}' -format json
//
// Settings come from an optional TOML file (-config or BRIDGE_CONFIG) and
// BRIDGE_* environment variables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/mcp-bridge/config"
	"github.com/felixgeelhaar/mcp-bridge/docs"
	"github.com/felixgeelhaar/mcp-bridge/engine"
	"github.com/felixgeelhaar/mcp-bridge/middleware"
	"github.com/felixgeelhaar/mcp-bridge/transport"
)

var version = "dev"

// oneShot describes a single tool call made instead of serving.
type oneShot struct {
	tool   string
	args   string
	format string
	output string
}

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	showVersion := flag.Bool("version", false, "print the version and exit")
	var call oneShot
	flag.StringVar(&call.tool, "call", "", "call one tool (lookup_crate, search_crates, lookup_item) and exit")
	flag.StringVar(&call.args, "args", "{}", "JSON arguments for -call")
	flag.StringVar(&call.format, "format", formatText, "output format for -call: text or json")
	flag.StringVar(&call.output, "output", "", "write the -call result to this file instead of stdout")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	if call.tool != "" {
		err = runCall(ctx, *configPath, call)
	} else {
		err = run(ctx, *configPath)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "mcp-bridge:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	// stdout belongs to the protocol when serving stdio, so logs go to stderr.
	logger := cfg.Log.NewLogger(os.Stderr)

	handler, closeHandler, err := newHandler(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeHandler()

	factory := handler.Factory(
		engine.WithMiddleware(engineMiddleware(cfg.Engine, logger)...),
		engine.WithLogger(logger),
	)

	t := newTransport(cfg.Server, factory, logger)
	logger.Info("bridge.start",
		slog.String("transport", cfg.Server.Transport),
		slog.String("addr", t.Addr()),
		slog.String("cache", cfg.Cache.Backend),
	)

	err = t.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("bridge.stop")
		return nil
	}
	return err
}

func runCall(ctx context.Context, configPath string, call oneShot) (err error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := cfg.Log.NewLogger(os.Stderr)

	handler, closeHandler, err := newHandler(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeHandler()

	var w io.Writer = os.Stdout
	if call.output != "" {
		f, ferr := os.Create(call.output)
		if ferr != nil {
			return ferr
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}
	return callTool(ctx, handler, call.tool, call.args, call.format, w)
}

func newHandler(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*docs.Handler, func(), error) {
	cache, closeCache, err := newCache(ctx, cfg.Cache)
	if err != nil {
		return nil, nil, err
	}
	client := docs.NewClient(
		docs.WithHTTPClient(&http.Client{Timeout: cfg.Docs.HTTPTimeout}),
		docs.WithDocsBaseURL(cfg.Docs.DocsBaseURL),
		docs.WithRegistryBaseURL(cfg.Docs.RegistryBaseURL),
		docs.WithUserAgent(cfg.Docs.UserAgent),
		docs.WithCache(cache),
		docs.WithClientLogger(logger),
	)
	return docs.NewHandler(client, docs.WithVersion(version), docs.WithLogger(logger)), closeCache, nil
}

func newCache(ctx context.Context, cfg config.CacheConfig) (docs.Cache, func(), error) {
	if cfg.Backend != "redis" {
		return docs.NewMemoryCache(), func() {}, nil
	}
	rc, err := docs.NewRedisCache(ctx, docs.RedisConfig{
		Addr:      cfg.RedisAddr,
		KeyPrefix: cfg.KeyPrefix,
		TTL:       cfg.TTL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("cache: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

func engineMiddleware(cfg config.EngineConfig, logger *slog.Logger) []middleware.Middleware {
	mw := []middleware.Middleware{
		middleware.Recover(),
		middleware.RequestID(),
		middleware.Logging(middleware.NewSlogLogger(logger)),
		middleware.OTel(middleware.WithOTelServiceName(docs.ServerName)),
	}
	if cfg.RequestTimeout > 0 {
		mw = append(mw, middleware.Timeout(cfg.RequestTimeout))
	}
	if cfg.MaxParamsSize > 0 {
		mw = append(mw, middleware.SizeLimit(cfg.MaxParamsSize))
	}
	if cfg.RateLimit > 0 {
		mw = append(mw, middleware.RateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	return mw
}

func newTransport(cfg config.ServerConfig, factory engine.Factory, logger *slog.Logger) transport.Transport {
	opts := []transport.Option{
		transport.WithLogger(logger),
		transport.WithBodyLimit(cfg.BodyLimit),
		transport.WithPipeCapacity(cfg.PipeCapacity),
		transport.WithReadTimeout(cfg.ReadTimeout),
		transport.WithWriteTimeout(cfg.WriteTimeout),
		transport.WithShutdownTimeout(cfg.ShutdownTimeout),
	}
	if cfg.EndpointPrefix != "" {
		opts = append(opts, transport.WithEndpointPrefix(cfg.EndpointPrefix))
	}
	if cfg.DetachedEngines {
		opts = append(opts, transport.WithDetachedEngines())
	}
	if cfg.SubmitRate > 0 {
		opts = append(opts, transport.WithSubmitRateLimit(cfg.SubmitRate, cfg.SubmitBurst))
	}
	if len(cfg.CORSOrigins) > 0 {
		opts = append(opts, transport.WithCORSOrigins(cfg.CORSOrigins...))
	}

	switch cfg.Transport {
	case "stdio":
		return transport.NewStdio(factory, opts...)
	case "websocket":
		if cfg.Path != transport.DefaultPath {
			opts = append(opts, transport.WithPath(cfg.Path))
		}
		return transport.NewWebSocket(cfg.Addr, factory, opts...)
	default:
		opts = append(opts, transport.WithPath(cfg.Path))
		return transport.NewSSE(cfg.Addr, factory, opts...)
	}
}

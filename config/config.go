// Package config loads bridge settings from an optional TOML file and the
// environment. Environment variables override the file, which overrides
// the defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeshaw/envdecode"
)

// FileEnv names the environment variable pointing at a TOML config file.
const FileEnv = "BRIDGE_CONFIG"

// Config is the complete bridge configuration.
type Config struct {
	Server ServerConfig `toml:"server"`
	Log    LogConfig    `toml:"log"`
	Engine EngineConfig `toml:"engine"`
	Docs   DocsConfig   `toml:"docs"`
	Cache  CacheConfig  `toml:"cache"`
}

// ServerConfig selects and tunes the transport.
type ServerConfig struct {
	Transport       string        `toml:"transport" env:"BRIDGE_TRANSPORT"`
	Addr            string        `toml:"addr" env:"BRIDGE_ADDR"`
	Path            string        `toml:"path" env:"BRIDGE_PATH"`
	EndpointPrefix  string        `toml:"endpoint_prefix" env:"BRIDGE_ENDPOINT_PREFIX"`
	BodyLimit       int64         `toml:"body_limit" env:"BRIDGE_BODY_LIMIT"`
	PipeCapacity    int           `toml:"pipe_capacity" env:"BRIDGE_PIPE_CAPACITY"`
	ReadTimeout     time.Duration `toml:"read_timeout" env:"BRIDGE_READ_TIMEOUT"`
	WriteTimeout    time.Duration `toml:"write_timeout" env:"BRIDGE_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" env:"BRIDGE_SHUTDOWN_TIMEOUT"`
	DetachedEngines bool          `toml:"detached_engines" env:"BRIDGE_DETACHED_ENGINES"`
	SubmitRate      int           `toml:"submit_rate" env:"BRIDGE_SUBMIT_RATE"`
	SubmitBurst     int           `toml:"submit_burst" env:"BRIDGE_SUBMIT_BURST"`
	CORSOrigins     []string      `toml:"cors_origins" env:"BRIDGE_CORS_ORIGINS"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `toml:"level" env:"BRIDGE_LOG_LEVEL"`
	Format string `toml:"format" env:"BRIDGE_LOG_FORMAT"`
}

// EngineConfig tunes the per-session engine middleware.
type EngineConfig struct {
	RequestTimeout time.Duration `toml:"request_timeout" env:"BRIDGE_REQUEST_TIMEOUT"`
	RateLimit      int           `toml:"rate_limit" env:"BRIDGE_ENGINE_RATE_LIMIT"`
	RateBurst      int           `toml:"rate_burst" env:"BRIDGE_ENGINE_RATE_BURST"`
	MaxParamsSize  int64         `toml:"max_params_size" env:"BRIDGE_MAX_PARAMS_SIZE"`
}

// DocsConfig points the documentation engine at its upstreams.
type DocsConfig struct {
	DocsBaseURL     string        `toml:"docs_base_url" env:"BRIDGE_DOCS_BASE_URL"`
	RegistryBaseURL string        `toml:"registry_base_url" env:"BRIDGE_REGISTRY_BASE_URL"`
	HTTPTimeout     time.Duration `toml:"http_timeout" env:"BRIDGE_HTTP_TIMEOUT"`
	UserAgent       string        `toml:"user_agent" env:"BRIDGE_USER_AGENT"`
}

// CacheConfig selects the documentation cache backend.
type CacheConfig struct {
	Backend   string        `toml:"backend" env:"BRIDGE_CACHE_BACKEND"`
	RedisAddr string        `toml:"redis_addr" env:"BRIDGE_REDIS_ADDR"`
	KeyPrefix string        `toml:"key_prefix" env:"BRIDGE_CACHE_KEY_PREFIX"`
	TTL       time.Duration `toml:"ttl" env:"BRIDGE_CACHE_TTL"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Transport:       "sse",
			Addr:            "127.0.0.1:8080",
			Path:            "/sse",
			BodyLimit:       4 << 20,
			PipeCapacity:    4096,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Engine: EngineConfig{
			RequestTimeout: 30 * time.Second,
			MaxParamsSize:  1 << 20,
		},
		Docs: DocsConfig{
			DocsBaseURL:     "https://docs.rs",
			RegistryBaseURL: "https://crates.io",
			HTTPTimeout:     15 * time.Second,
			UserAgent:       "mcp-bridge (https://github.com/felixgeelhaar/mcp-bridge)",
		},
		Cache: CacheConfig{
			Backend:   "memory",
			RedisAddr: "localhost:6379",
			KeyPrefix: "mcp-bridge:docs:",
			TTL:       time.Hour,
		},
	}
}

// Load builds the configuration from defaults, the TOML file at path (or
// the file named by BRIDGE_CONFIG when path is empty) and the environment,
// then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(FileEnv)
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Server.Transport {
	case "sse", "websocket", "stdio":
	default:
		add("server.transport: unknown transport %q (expected sse, websocket or stdio)", c.Server.Transport)
	}
	if c.Server.Transport != "stdio" && c.Server.Addr == "" {
		add("server.addr: required for %s", c.Server.Transport)
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		add("server.path: must start with /, got %q", c.Server.Path)
	}
	if c.Server.BodyLimit <= 0 {
		add("server.body_limit: must be positive")
	}
	if c.Server.PipeCapacity <= 0 {
		add("server.pipe_capacity: must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		add("server.shutdown_timeout: must be positive")
	}
	if c.Server.SubmitRate < 0 || c.Server.SubmitBurst < 0 {
		add("server.submit_rate: must not be negative")
	}
	if c.Server.SubmitRate > 0 && c.Server.SubmitBurst == 0 {
		c.Server.SubmitBurst = c.Server.SubmitRate
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		add("log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		add("log.format: unknown format %q (expected text or json)", c.Log.Format)
	}

	if c.Engine.RateLimit < 0 || c.Engine.RateBurst < 0 {
		add("engine.rate_limit: must not be negative")
	}
	if c.Engine.RateLimit > 0 && c.Engine.RateBurst == 0 {
		c.Engine.RateBurst = c.Engine.RateLimit
	}

	for name, raw := range map[string]string{
		"docs.docs_base_url":     c.Docs.DocsBaseURL,
		"docs.registry_base_url": c.Docs.RegistryBaseURL,
	} {
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			add("%s: invalid URL %q", name, raw)
		}
	}
	if c.Docs.HTTPTimeout <= 0 {
		add("docs.http_timeout: must be positive")
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			add("cache.redis_addr: required for the redis backend")
		}
	default:
		add("cache.backend: unknown backend %q (expected memory or redis)", c.Cache.Backend)
	}
	if c.Cache.TTL < 0 {
		add("cache.ttl: must not be negative")
	}

	return errors.Join(errs...)
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(l.Level))
	return level, err
}

// NewLogger builds the process logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, _ := l.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

package transport

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// CORSConfig controls cross-origin access to the bridge.
type CORSConfig struct {
	// AllowOrigins lists permitted origins. A single "*" permits any.
	AllowOrigins []string

	// AllowHeaders lists permitted request headers.
	AllowHeaders []string

	// AllowCredentials sets Access-Control-Allow-Credentials.
	AllowCredentials bool

	// MaxAge is how long, in seconds, a preflight result may be cached.
	MaxAge int
}

// DefaultCORSConfig permits any origin.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{"Content-Type", "Last-Event-ID", requestIDHeader},
		MaxAge:       86400,
	}
}

// WithCORS enables CORS handling on the bridge's HTTP handler.
func WithCORS(cfg CORSConfig) Option {
	return func(c *config) {
		c.cors = &cfg
	}
}

// WithCORSOrigins enables CORS for the given origins with default settings
// otherwise.
func WithCORSOrigins(origins ...string) Option {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = origins
	return WithCORS(cfg)
}

// CORSHandler answers preflight requests and decorates responses to allowed
// origins. The endpoint event's session id and the request id header are
// exposed to browser clients.
func CORSHandler(cfg CORSConfig, next http.Handler) http.Handler {
	if len(cfg.AllowHeaders) == 0 {
		cfg.AllowHeaders = DefaultCORSConfig().AllowHeaders
	}
	anyOrigin := slices.Contains(cfg.AllowOrigins, "*")
	methods := strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodOptions}, ", ")
	headers := strings.Join(cfg.AllowHeaders, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := ""
		switch {
		case origin == "":
		case anyOrigin && !cfg.AllowCredentials:
			allowed = "*"
		case anyOrigin || slices.Contains(cfg.AllowOrigins, origin):
			allowed = origin
		}

		if allowed == "" {
			if r.Method == http.MethodOptions && origin != "" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", allowed)
		if allowed != "*" {
			h.Add("Vary", "Origin")
		}
		if cfg.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)
			if cfg.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		h.Set("Access-Control-Expose-Headers", requestIDHeader)
		next.ServeHTTP(w, r)
	})
}

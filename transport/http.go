package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/elnormous/contenttype"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/mcp-bridge/codec"
	"github.com/felixgeelhaar/mcp-bridge/engine"
)

var eventStreamMediaTypes = []contenttype.MediaType{contenttype.NewMediaType("text/event-stream")}

// SSE bridges HTTP clients to session engines. A client opens an event
// stream with GET, learns its session endpoint from the first event and
// submits messages to it with POST. Engine output arrives on the stream.
type SSE struct {
	addr string
	cfg  *config
	hub  *hub

	shutdown *ShutdownManager

	mu         sync.RWMutex
	listenAddr string
}

// NewSSE creates an SSE bridge listening on addr that runs one engine from
// factory per stream connection.
func NewSSE(addr string, factory engine.Factory, opts ...Option) *SSE {
	cfg := newConfig(opts)
	t := &SSE{
		addr: addr,
		cfg:  cfg,
		hub:  newHub("sse", factory, cfg),
	}
	t.shutdown = NewShutdownManager(ShutdownConfig{
		Timeout:      cfg.shutdownTimeout,
		DrainDelay:   cfg.drainDelay,
		OnDrainStart: t.hub.cancelAll,
	})
	return t
}

// Addr returns the configured address.
func (t *SSE) Addr() string {
	return t.addr
}

// ListenAddr returns the address the server is listening on once Serve has
// started.
func (t *SSE) ListenAddr() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.listenAddr
}

// Sessions returns the number of live sessions.
func (t *SSE) Sessions() int {
	return t.hub.Sessions()
}

// Serve listens on the configured address and serves the bridge until ctx
// is cancelled, then drains and shuts down.
func (t *SSE) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	t.mu.Lock()
	t.listenAddr = ln.Addr().String()
	t.mu.Unlock()

	t.cfg.logger.Info("sse.listen", slog.String("addr", t.listenAddr), slog.String("path", t.cfg.path))
	return serveHTTP(ctx, ln, t.Handler(), t.cfg, t.shutdown, t.hub)
}

// Handler returns the bridge's HTTP handler.
func (t *SSE) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /health", healthHandler(t.shutdown, t.hub))
	mux.HandleFunc("GET "+t.cfg.path, t.handleConnect)
	mux.HandleFunc("POST "+t.cfg.path, t.handleSubmit)

	var h http.Handler = mux
	if t.cfg.cors != nil {
		h = CORSHandler(*t.cfg.cors, h)
	}
	return withRequestID(h)
}

// healthHandler reports liveness and the number of live sessions. It
// answers 503 while draining.
func healthHandler(sm *ShutdownManager, h *hub) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status, code := "ok", http.StatusOK
		if sm.IsDraining() {
			status, code = "draining", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   status,
			"sessions": h.Sessions(),
		})
	})
}

func (t *SSE) handleConnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := t.cfg.logger.With(slog.String("request_id", w.Header().Get(requestIDHeader)))

	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		http.Error(w, "client must accept text/event-stream", http.StatusNotAcceptable)
		return
	}
	if t.shutdown.IsDraining() {
		writeError(w, ErrDraining)
		return
	}

	rc := http.NewResponseController(w)
	// The stream outlives any server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	sess, pair, err := t.hub.open(ctx)
	if err != nil {
		log.Error("sse.connect.fail", slog.String("err", err.Error()))
		writeError(w, err)
		return
	}
	log = log.With(slog.String("session_id", sess.ID()))
	log.Info("sse.connect")

	gone := make(chan struct{})
	defer func() {
		close(gone)
		t.hub.abandon(sess, pair)
		log.Info("sse.disconnect")
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	endpoint := t.cfg.endpointPrefix + "?" + SessionIDParam + "=" + sess.ID()
	if err := writeEvent(w, rc, "endpoint", endpoint); err != nil {
		return
	}

	frames := relay(pair.Outbound, gone)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if f.err != nil {
				if errors.Is(f.err, io.EOF) {
					return
				}
				if errors.Is(f.err, ErrDecode) {
					log.Warn("sse.frame.invalid", slog.String("err", f.err.Error()))
					_ = writeEvent(w, rc, "error", f.err.Error())
				}
				return
			}
			// An event stream parser treats CR as a line break, so the
			// frame could not arrive intact.
			if bytes.IndexByte(f.frame, '\r') >= 0 {
				err := fmt.Errorf("%w: carriage return in frame", ErrDecode)
				log.Warn("sse.frame.invalid", slog.String("err", err.Error()))
				_ = writeEvent(w, rc, "error", err.Error())
				return
			}
			if err := writeEvent(w, rc, "message", string(f.frame)); err != nil {
				log.Debug("sse.write.fail", slog.String("err", err.Error()))
				return
			}
			t.hub.metrics.relayed(ctx, t.hub.leg)
		}
	}
}

func writeEvent(w io.Writer, rc *http.ResponseController, event, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return rc.Flush()
}

type relayed struct {
	frame []byte
	err   error
}

// relay decodes frames from out until it fails. A decode failure is
// reported as an error wrapping ErrDecode. Once gone is closed, relay
// stops delivering.
func relay(out io.Reader, gone <-chan struct{}) <-chan relayed {
	ch := make(chan relayed)
	go func() {
		defer close(ch)
		frames := codec.NewReader(out)
		for {
			frame, err := frames.Next()
			switch {
			case errors.Is(err, codec.ErrTrailingBytes):
				err = fmt.Errorf("%w: %w", ErrDecode, err)
			case err == nil && !utf8.Valid(frame):
				err = fmt.Errorf("%w: invalid UTF-8", ErrDecode)
			}
			select {
			case ch <- relayed{frame: frame, err: err}:
			case <-gone:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return ch
}

func (t *SSE) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if code := t.submit(w, r); code != 0 {
		t.hub.metrics.submitted(r.Context(), code)
	}
}

func (t *SSE) submit(w http.ResponseWriter, r *http.Request) int {
	ctx := r.Context()
	id := r.URL.Query().Get(SessionIDParam)
	log := t.cfg.logger.With(
		slog.String("request_id", w.Header().Get(requestIDHeader)),
		slog.String("session_id", id),
	)

	if id == "" {
		return writeError(w, fmt.Errorf("%w: missing %s", ErrBadRequest, SessionIDParam))
	}
	sess, err := t.hub.registry.Get(id)
	if err != nil {
		log.Debug("submit.unknown_session")
		return writeError(w, err)
	}
	if t.cfg.submitLimiter != nil && !t.cfg.submitLimiter.Allow(ctx, id) {
		log.Warn("submit.rate_limited")
		return writeError(w, ErrRateLimited)
	}
	if r.ContentLength > t.cfg.bodyLimit {
		log.Warn("submit.too_large", slog.Int64("content_length", r.ContentLength))
		return writeError(w, ErrPayloadTooLarge)
	}
	if !t.shutdown.TrackRequest() {
		return writeError(w, ErrDraining)
	}
	defer t.shutdown.CompleteRequest()

	inbound, release, err := sess.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return 0
		}
		return writeError(w, err)
	}
	defer release()

	if err := forward(inbound, r.Body, t.cfg.bodyLimit); err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			log.Error("submit.write.fail", slog.String("err", err.Error()))
		} else {
			log.Warn("submit.fail", slog.String("err", err.Error()))
		}
		return writeError(w, err)
	}

	w.WriteHeader(http.StatusAccepted)
	return http.StatusAccepted
}

// forward copies body into the session's inbound pipe followed by the frame
// delimiter. Chunks already forwarded when the limit is crossed stay in the
// pipe.
func forward(inbound io.Writer, body io.Reader, limit int64) error {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, err := body.Read(buf)
		if n > 0 {
			total += int64(n)
			if total > limit {
				return ErrPayloadTooLarge
			}
			if _, werr := inbound.Write(buf[:n]); werr != nil {
				return fmt.Errorf("%w: %w", ErrInternalWrite, werr)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: read body: %w", ErrBadRequest, err)
		}
	}
	if _, err := inbound.Write([]byte{codec.Delimiter}); err != nil {
		return fmt.Errorf("%w: %w", ErrInternalWrite, err)
	}
	return nil
}

const requestIDHeader = "X-Request-ID"

// withRequestID echoes the client's X-Request-ID or assigns a new one.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func newSubmitLimiter(rate, burst int) limiter {
	return ratelimit.New(&ratelimit.Config{
		Rate:     rate,
		Burst:    burst,
		Interval: time.Second,
	})
}

// serveHTTP runs handler on ln until ctx ends, then drains through sm,
// waits for engines and shuts the server down.
func serveHTTP(ctx context.Context, ln net.Listener, handler http.Handler, cfg *config, sm *ShutdownManager, h *hub) error {
	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  cfg.readTimeout,
		WriteTimeout: cfg.writeTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.shutdownTimeout)
	defer cancel()

	cfg.logger.Info("server.drain", slog.Int("sessions", h.Sessions()))
	if err := sm.Shutdown(shutdownCtx); err != nil {
		cfg.logger.Warn("server.drain.timeout", slog.Int64("in_flight", sm.InFlightRequests()))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
	}
	if err := h.wait(shutdownCtx); err != nil {
		cfg.logger.Warn("server.engines.timeout", slog.Int("sessions", h.Sessions()))
	}
	cfg.logger.Info("server.stopped")
	return ctx.Err()
}

var _ Transport = (*SSE)(nil)

package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/felixgeelhaar/mcp-bridge/engine"
	"github.com/felixgeelhaar/mcp-bridge/session"
)

// DefaultWebSocketPath is where the WebSocket transport accepts upgrades.
const DefaultWebSocketPath = "/ws"

// WebSocket bridges WebSocket connections to session engines. Each
// connection is one session: every text message received is one client
// frame and every engine frame is sent back as one text message.
type WebSocket struct {
	addr     string
	cfg      *config
	hub      *hub
	upgrader websocket.Upgrader
	shutdown *ShutdownManager

	mu         sync.RWMutex
	listenAddr string
}

// WithCheckOrigin sets the origin check for WebSocket upgrades. By default
// any origin is accepted.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(c *config) {
		c.checkOrigin = fn
	}
}

// NewWebSocket creates a WebSocket transport listening on addr.
func NewWebSocket(addr string, factory engine.Factory, opts ...Option) *WebSocket {
	cfg := newConfig(append([]Option{WithPath(DefaultWebSocketPath)}, opts...))
	if cfg.checkOrigin == nil {
		cfg.checkOrigin = func(*http.Request) bool { return true }
	}
	ws := &WebSocket{
		addr: addr,
		cfg:  cfg,
		hub:  newHub("websocket", factory, cfg),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     cfg.checkOrigin,
		},
	}
	ws.shutdown = NewShutdownManager(ShutdownConfig{
		Timeout:      cfg.shutdownTimeout,
		DrainDelay:   cfg.drainDelay,
		OnDrainStart: ws.hub.cancelAll,
	})
	return ws
}

// Addr returns the configured address.
func (ws *WebSocket) Addr() string {
	return ws.addr
}

// ListenAddr returns the address the server is listening on once Serve has
// started.
func (ws *WebSocket) ListenAddr() string {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.listenAddr
}

// Sessions returns the number of live sessions.
func (ws *WebSocket) Sessions() int {
	return ws.hub.Sessions()
}

// Serve listens and serves WebSocket sessions until ctx is cancelled.
func (ws *WebSocket) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", ws.addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	ws.mu.Lock()
	ws.listenAddr = ln.Addr().String()
	ws.mu.Unlock()

	ws.cfg.logger.Info("websocket.listen", slog.String("addr", ws.listenAddr), slog.String("path", ws.cfg.path))
	return serveHTTP(ctx, ln, ws.Handler(), ws.cfg, ws.shutdown, ws.hub)
}

// Handler returns the transport's HTTP handler.
func (ws *WebSocket) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /health", healthHandler(ws.shutdown, ws.hub))
	mux.HandleFunc("GET "+ws.cfg.path, ws.handleConnection)
	return withRequestID(mux)
}

func (ws *WebSocket) handleConnection(w http.ResponseWriter, r *http.Request) {
	if ws.shutdown.IsDraining() {
		writeError(w, ErrDraining)
		return
	}

	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		return
	}
	defer conn.Close()
	conn.SetReadLimit(ws.cfg.bodyLimit)

	sess, pair, err := ws.hub.open(r.Context())
	if err != nil {
		ws.cfg.logger.Error("websocket.connect.fail", slog.String("err", err.Error()))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, ""))
		return
	}
	log := ws.cfg.logger.With(slog.String("session_id", sess.ID()))
	log.Info("websocket.connect")

	gone := make(chan struct{})
	written := make(chan struct{})
	go func() {
		defer close(written)
		ws.writeLoop(conn, sess, relay(pair.Outbound, gone), log)
	}()

	err = ws.readLoop(conn, sess)
	close(gone)
	ws.hub.abandon(sess, pair)
	_ = conn.Close()
	<-written

	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		log.Debug("websocket.read.fail", slog.String("err", err.Error()))
	}
	log.Info("websocket.disconnect")
}

// readLoop forwards each text message to the session as one frame until
// the connection fails or the session ends.
func (ws *WebSocket) readLoop(conn *websocket.Conn, sess *session.Session) error {
	if ws.cfg.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(ws.cfg.readTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(ws.cfg.readTimeout))
		})
	}

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if ws.cfg.readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(ws.cfg.readTimeout))
		}
		if kind != websocket.TextMessage {
			continue
		}

		inbound, release, err := sess.Acquire(sess.Context())
		if err != nil {
			return err
		}
		err = forward(inbound, bytes.NewReader(bytes.TrimSuffix(msg, []byte{'\n'})), ws.cfg.bodyLimit)
		release()
		if err != nil {
			return err
		}
	}
}

// writeLoop sends engine frames as text messages and pings the peer while
// idle. It closes the connection when the engine's output ends.
func (ws *WebSocket) writeLoop(conn *websocket.Conn, sess *session.Session, frames <-chan relayed, log *slog.Logger) {
	var ping <-chan time.Time
	if ws.cfg.readTimeout > 0 {
		t := time.NewTicker(ws.cfg.readTimeout * 9 / 10)
		defer t.Stop()
		ping = t.C
	}

	closeWith := func(code int, text string) {
		_ = ws.write(conn, websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
		_ = conn.Close()
	}

	for {
		select {
		case <-sess.Done():
			closeWith(websocket.CloseGoingAway, "session closed")
			return
		case <-ping:
			if err := ws.write(conn, websocket.PingMessage, nil); err != nil {
				return
			}
		case f, ok := <-frames:
			if !ok {
				return
			}
			if f.err != nil {
				if errors.Is(f.err, ErrDecode) {
					log.Warn("websocket.frame.invalid", slog.String("err", f.err.Error()))
					closeWith(websocket.CloseInvalidFramePayloadData, f.err.Error())
					return
				}
				closeWith(websocket.CloseNormalClosure, "")
				return
			}
			if err := ws.write(conn, websocket.TextMessage, f.frame); err != nil {
				return
			}
			ws.hub.metrics.relayed(context.Background(), ws.hub.leg)
		}
	}
}

func (ws *WebSocket) write(conn *websocket.Conn, kind int, data []byte) error {
	if ws.cfg.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(ws.cfg.writeTimeout))
	}
	return conn.WriteMessage(kind, data)
}

var _ Transport = (*WebSocket)(nil)

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/felixgeelhaar/mcp-bridge/engine"
	"github.com/felixgeelhaar/mcp-bridge/pipe"
	"github.com/felixgeelhaar/mcp-bridge/protocol"
	"github.com/felixgeelhaar/mcp-bridge/session"
)

// hub owns the sessions of one network transport: it allocates their pipes,
// runs their engines and tears them down.
type hub struct {
	cfg      *config
	leg      string
	factory  engine.Factory
	registry *session.Registry
	metrics  *metrics
	log      *slog.Logger

	engines sync.WaitGroup
}

func newHub(leg string, factory engine.Factory, cfg *config) *hub {
	return &hub{
		cfg:      cfg,
		leg:      leg,
		factory:  factory,
		registry: session.NewRegistry(),
		metrics:  newMetrics(cfg.meterProvider),
		log:      cfg.logger.With(slog.String("transport", leg)),
	}
}

// open creates a session bound to ctx, registers it and starts its engine.
// The caller owns pair.Outbound and must call abandon when its client goes.
func (h *hub) open(ctx context.Context) (*session.Session, *pipe.Pair, error) {
	id, err := session.NewID()
	if err != nil {
		return nil, nil, err
	}

	parent := ctx
	if h.cfg.detached {
		parent = context.WithoutCancel(ctx)
	}
	parent = protocol.ContextWithSessionID(parent, id)

	pair := pipe.NewPair(h.cfg.pipeCapacity)
	sess := session.New(parent, id, pair.Inbound)
	if err := h.registry.Insert(sess); err != nil {
		sess.Cancel()
		_ = pair.Close()
		return nil, nil, err
	}
	// A cancelled session's engine sees end of stream once it has consumed
	// what was already submitted.
	context.AfterFunc(sess.Context(), func() {
		_ = pair.Inbound.CloseWithError(session.ErrSessionClosed)
	})

	h.metrics.sessionOpened(ctx, h.leg)
	h.engines.Add(1)
	go h.run(sess, pair)
	return sess, pair, nil
}

func (h *hub) run(sess *session.Session, pair *pipe.Pair) {
	defer h.engines.Done()
	log := h.log.With(slog.String("session_id", sess.ID()))

	err := h.runEngine(sess.Context(), pair.Engine)

	// Unregister first so submits racing with shutdown get 404, not a
	// write to a dead pipe.
	h.registry.Remove(sess.ID())
	_ = pair.Close()
	h.metrics.sessionClosed(context.Background(), h.leg)

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.ErrClosedPipe) &&
		!errors.Is(err, session.ErrSessionClosed) {
		h.metrics.engineFailed(context.Background(), h.leg)
		log.Warn("session.engine.fail", slog.String("err", fmt.Errorf("%w: %w", ErrEngineFailure, err).Error()))
		return
	}
	log.Debug("session.engine.exit")
}

func (h *hub) runEngine(ctx context.Context, stream io.ReadWriter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.factory().Run(ctx, stream)
}

// abandon is called once the client of sess is gone. Unless engines are
// detached, the engine is cancelled and both pipes are closed so that it
// observes end of stream. A detached engine keeps running with its output
// discarded until it finishes or the session is cancelled.
func (h *hub) abandon(sess *session.Session, pair *pipe.Pair) {
	if h.cfg.detached && sess.Context().Err() == nil {
		go func() {
			_, _ = io.Copy(io.Discard, pair.Outbound)
			sess.Cancel()
		}()
		return
	}
	sess.Cancel()
	_ = pair.Inbound.CloseWithError(session.ErrSessionClosed)
	_ = pair.Outbound.CloseWithError(session.ErrSessionClosed)
}

// cancelAll cancels every live session.
func (h *hub) cancelAll() {
	h.registry.Range(func(s *session.Session) bool {
		s.Cancel()
		return true
	})
}

// wait blocks until every engine has exited or ctx ends.
func (h *hub) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.engines.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sessions returns the number of live sessions.
func (h *hub) Sessions() int {
	return h.registry.Len()
}

package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/felixgeelhaar/mcp-bridge/engine"
	"github.com/felixgeelhaar/mcp-bridge/pipe"
	"github.com/felixgeelhaar/mcp-bridge/protocol"
)

// Stdio runs a single engine directly over the process's stdin and stdout.
// No sessions or HTTP are involved; the engine sees the same stream shape
// it gets behind the bridge.
type Stdio struct {
	factory engine.Factory
	cfg     *config
}

// NewStdio creates a stdio transport for one engine from factory.
func NewStdio(factory engine.Factory, opts ...Option) *Stdio {
	return &Stdio{factory: factory, cfg: newConfig(opts)}
}

// Addr returns "stdio".
func (s *Stdio) Addr() string {
	return "stdio"
}

// Serve runs the engine until stdin ends, the engine fails or ctx is
// cancelled. A read blocked on stdin cannot be interrupted, so on
// cancellation Serve returns without waiting for the engine.
func (s *Stdio) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(protocol.ContextWithSessionID(ctx, "stdio"))
	defer cancel()

	stream := pipe.Join(s.cfg.in, s.cfg.out)
	done := make(chan error, 1)
	go func() {
		done <- s.factory().Run(ctx, stream)
	}()

	s.cfg.logger.Info("stdio.start")
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, io.EOF) {
			s.cfg.logger.Error("stdio.engine.fail", slog.String("err", err.Error()))
			return errors.Join(ErrEngineFailure, err)
		}
		s.cfg.logger.Info("stdio.eof")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Transport = (*Stdio)(nil)

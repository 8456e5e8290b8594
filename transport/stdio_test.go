package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/mcp-bridge/engine"
	"github.com/felixgeelhaar/mcp-bridge/protocol"
)

func TestStdio(t *testing.T) {
	t.Run("runs the engine until stdin ends", func(t *testing.T) {
		var out bytes.Buffer
		s := NewStdio(func() engine.Engine {
			return engine.NewJSONRPC(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
				return protocol.NewResponse(req.ID, protocol.SessionIDFromContext(ctx)), nil
			})
		}, WithStdin(strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n")), WithStdout(&out))

		if err := s.Serve(context.Background()); err != nil {
			t.Fatalf("Serve: %v", err)
		}
		if got := out.String(); got != `{"jsonrpc":"2.0","id":1,"result":"stdio"}`+"\n" {
			t.Errorf("stdout = %q", got)
		}
		if s.Addr() != "stdio" {
			t.Errorf("Addr() = %q", s.Addr())
		}
	})

	t.Run("engine failure is reported", func(t *testing.T) {
		s := NewStdio(func() engine.Engine {
			return engine.EngineFunc(func(ctx context.Context, stream io.ReadWriter) error {
				return errors.New("boom")
			})
		}, WithStdin(strings.NewReader("")), WithStdout(io.Discard))

		err := s.Serve(context.Background())
		if !errors.Is(err, ErrEngineFailure) {
			t.Errorf("Serve = %v, want ErrEngineFailure", err)
		}
	})

	t.Run("returns on cancellation", func(t *testing.T) {
		in, _ := io.Pipe()
		s := NewStdio(func() engine.Engine { return engine.NewJSONRPC(nil) },
			WithStdin(in), WithStdout(io.Discard))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- s.Serve(ctx) }()
		cancel()

		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Serve = %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Serve did not return")
		}
	})
}

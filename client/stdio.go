package client

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/felixgeelhaar/mcp-bridge/codec"
	"github.com/felixgeelhaar/mcp-bridge/protocol"
)

// WithStderr sends a subprocess's stderr to w. By default it is discarded.
func WithStderr(w io.Writer) TransportOption {
	return func(o *transportOptions) {
		o.stderr = w
	}
}

// StdioTransport drives an engine running as a subprocess, such as
// mcp-bridge with the stdio transport, over its stdin and stdout.
type StdioTransport struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	d     *dispatcher
	done  chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	waitErr   error
}

// NewStdioTransport starts command and attaches to its stdio.
func NewStdioTransport(command string, args []string, opts ...TransportOption) (*StdioTransport, error) {
	o := newTransportOptions(opts)
	cmd := exec.Command(command, args...)
	cmd.Stderr = o.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start command: %w", err)
	}

	t := &StdioTransport{
		cmd:   cmd,
		stdin: stdin,
		d:     newDispatcher(o.notify),
		done:  make(chan struct{}),
	}
	go t.readLoop(stdout)
	return t, nil
}

func (t *StdioTransport) readLoop(stdout io.Reader) {
	defer close(t.done)
	frames := codec.NewReader(stdout)
	for {
		frame, err := frames.Next()
		if err != nil {
			t.d.fail(fmt.Errorf("%w: %w", ErrClosed, err))
			return
		}
		t.d.deliver(frame)
	}
}

func (t *StdioTransport) write(_ context.Context, frame []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := (codec.LineCodec{}).Encode(t.stdin, frame); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

// Send writes req to the subprocess and waits for its response.
func (t *StdioTransport) Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	return t.d.roundTrip(ctx, req, t.write)
}

// Notify writes a notification to the subprocess.
func (t *StdioTransport) Notify(ctx context.Context, method string, params any) error {
	data, err := encodeNotification(method, params)
	if err != nil {
		return err
	}
	return t.write(ctx, data)
}

// Close closes the subprocess's stdin and waits for it to exit. An engine
// that ends cleanly at EOF makes Close return nil.
func (t *StdioTransport) Close() error {
	t.closeOnce.Do(func() {
		_ = t.stdin.Close()
		<-t.done
		t.d.fail(ErrClosed)
		t.waitErr = t.cmd.Wait()
	})
	return t.waitErr
}

var _ Transport = (*StdioTransport)(nil)

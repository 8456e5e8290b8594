package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/felixgeelhaar/mcp-bridge/codec"
	"github.com/felixgeelhaar/mcp-bridge/protocol"
)

var (
	// ErrUnexpectedStatus is returned when the bridge answers with a status
	// the transport does not expect.
	ErrUnexpectedStatus = errors.New("client: unexpected status")

	// ErrNoEndpoint is returned by DialSSE when the stream does not start
	// with an endpoint event.
	ErrNoEndpoint = errors.New("client: stream did not announce an endpoint")

	// ErrStreamError is returned to pending calls after the bridge sends an
	// error event.
	ErrStreamError = errors.New("client: bridge reported a stream error")
)

// TransportOption configures a transport.
type TransportOption func(*transportOptions)

type transportOptions struct {
	http   *http.Client
	notify NotificationHandler
	stderr io.Writer
}

// WithHTTPClient sets the HTTP client used by DialSSE.
func WithHTTPClient(hc *http.Client) TransportOption {
	return func(o *transportOptions) {
		o.http = hc
	}
}

// WithNotificationHandler installs a handler for server notifications.
func WithNotificationHandler(h NotificationHandler) TransportOption {
	return func(o *transportOptions) {
		o.notify = h
	}
}

func newTransportOptions(opts []TransportOption) transportOptions {
	o := transportOptions{http: http.DefaultClient}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// SSETransport is one session on a bridge's SSE+POST leg. Server frames
// arrive as message events on the stream; requests are POSTed to the
// session endpoint announced by the first event.
type SSETransport struct {
	http     *http.Client
	endpoint string
	body     io.ReadCloser
	cancel   context.CancelFunc
	d        *dispatcher
	done     chan struct{}

	closeOnce sync.Once
}

type event struct {
	name string
	data string
}

// DialSSE opens the event stream at rawURL and waits for the session
// endpoint. ctx bounds only the dial; the stream stays open until Close.
func DialSSE(ctx context.Context, rawURL string, opts ...TransportOption) (*SSETransport, error) {
	o := newTransportOptions(opts)
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := o.http.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("connect: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: connect returned %s", ErrUnexpectedStatus, resp.Status)
	}

	events := codec.NewReader(resp.Body)
	first, err := nextEvent(events)
	if err != nil || first.name != "endpoint" {
		resp.Body.Close()
		cancel()
		if err == nil {
			err = fmt.Errorf("first event %q", first.name)
		}
		return nil, fmt.Errorf("%w: %w", ErrNoEndpoint, err)
	}
	ref, err := url.Parse(first.data)
	if err != nil {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrNoEndpoint, err)
	}

	t := &SSETransport{
		http:     o.http,
		endpoint: base.ResolveReference(ref).String(),
		body:     resp.Body,
		cancel:   cancel,
		d:        newDispatcher(o.notify),
		done:     make(chan struct{}),
	}
	go t.readLoop(events)
	return t, nil
}

// Endpoint returns the session's POST URL.
func (t *SSETransport) Endpoint() string {
	return t.endpoint
}

// Done is closed when the event stream ends.
func (t *SSETransport) Done() <-chan struct{} {
	return t.done
}

func (t *SSETransport) readLoop(events *codec.Reader) {
	defer close(t.done)
	for {
		ev, err := nextEvent(events)
		if err != nil {
			t.d.fail(fmt.Errorf("%w: %w", ErrClosed, err))
			return
		}
		switch ev.name {
		case "message", "":
			t.d.deliver([]byte(ev.data))
		case "error":
			t.d.fail(fmt.Errorf("%w: %s", ErrStreamError, ev.data))
			return
		}
	}
}

// nextEvent reads lines up to the blank line ending one event. Comment
// lines and unknown fields are skipped.
func nextEvent(lines *codec.Reader) (event, error) {
	var ev event
	var data []string
	seen := false
	for {
		line, err := lines.Next()
		if err != nil {
			return event{}, err
		}
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) == 0 {
			if !seen {
				continue
			}
			ev.data = strings.Join(data, "\n")
			return ev, nil
		}
		if line[0] == ':' {
			continue
		}
		field, value, _ := strings.Cut(string(line), ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.name = value
			seen = true
		case "data":
			data = append(data, value)
			seen = true
		}
	}
}

// Send POSTs req to the session endpoint and waits for its response on the
// stream.
func (t *SSETransport) Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	return t.d.roundTrip(ctx, req, t.post)
}

// Notify POSTs a notification. No response is expected.
func (t *SSETransport) Notify(ctx context.Context, method string, params any) error {
	data, err := encodeNotification(method, params)
	if err != nil {
		return err
	}
	return t.post(ctx, data)
}

// post submits one frame. The bridge appends the delimiter.
func (t *SSETransport) post(ctx context.Context, frame []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(frame))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: submit returned %s: %s", ErrUnexpectedStatus, resp.Status, bytes.TrimSpace(msg))
	}
	return nil
}

// Close ends the event stream, which ends the session on the bridge.
func (t *SSETransport) Close() error {
	t.closeOnce.Do(func() {
		t.cancel()
		_ = t.body.Close()
		<-t.done
		t.d.fail(ErrClosed)
	})
	return nil
}

var _ Transport = (*SSETransport)(nil)

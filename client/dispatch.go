package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/felixgeelhaar/mcp-bridge/protocol"
)

// ErrClosed is returned by Send once the transport is closed.
var ErrClosed = errors.New("client: transport closed")

// NotificationHandler receives server-initiated notifications such as
// notifications/progress. It runs on the transport's read goroutine.
type NotificationHandler func(method string, params json.RawMessage)

// notifier is implemented by transports that can send notifications.
type notifier interface {
	Notify(ctx context.Context, method string, params any) error
}

// dispatcher matches response frames to waiting callers by request id.
type dispatcher struct {
	mu      sync.Mutex
	waiting map[string]chan *protocol.Response
	err     error
	notify  NotificationHandler
}

func newDispatcher(notify NotificationHandler) *dispatcher {
	return &dispatcher{waiting: make(map[string]chan *protocol.Response), notify: notify}
}

func (d *dispatcher) register(id json.RawMessage) (<-chan *protocol.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	if _, dup := d.waiting[string(id)]; dup {
		return nil, errors.New("client: duplicate request id " + string(id))
	}
	ch := make(chan *protocol.Response, 1)
	d.waiting[string(id)] = ch
	return ch, nil
}

func (d *dispatcher) forget(id json.RawMessage) {
	d.mu.Lock()
	delete(d.waiting, string(id))
	d.mu.Unlock()
}

// deliver routes one frame. Frames that are neither a known response nor a
// notification are dropped.
func (d *dispatcher) deliver(frame []byte) {
	var msg struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
		Result json.RawMessage `json:"result"`
		Error  *protocol.Error `json:"error"`
	}
	if err := json.Unmarshal(frame, &msg); err != nil {
		return
	}
	if msg.Method != "" {
		if d.notify != nil {
			d.notify(msg.Method, msg.Params)
		}
		return
	}

	resp := &protocol.Response{JSONRPC: protocol.JSONRPCVersion, ID: msg.ID, Error: msg.Error}
	if msg.Result != nil {
		resp.Result = msg.Result
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.waiting[string(msg.ID)]; ok {
		ch <- resp
		delete(d.waiting, string(msg.ID))
	}
}

// fail wakes every waiting caller with err. Later registrations fail too.
func (d *dispatcher) fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err == nil {
		d.err = err
	}
	for id, ch := range d.waiting {
		close(ch)
		delete(d.waiting, id)
	}
}

func (d *dispatcher) failure() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err == nil {
		return ErrClosed
	}
	return d.err
}

// roundTrip registers req, hands its encoding to write and waits for the
// response.
func (d *dispatcher) roundTrip(ctx context.Context, req *protocol.Request, write func(context.Context, []byte) error) (*protocol.Response, error) {
	ch, err := d.register(req.ID)
	if err != nil {
		return nil, err
	}
	defer d.forget(req.ID)

	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if err := write(ctx, data); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return nil, d.failure()
		}
		return resp, nil
	}
}

func encodeNotification(method string, params any) ([]byte, error) {
	n, err := protocol.NewNotification(method, params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(n)
}

package docs

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/felixgeelhaar/mcp-bridge/engine"
	"github.com/felixgeelhaar/mcp-bridge/protocol"
)

// progress sends notifications/progress for one tool call. It is a no-op
// when the caller supplied no progress token or the stream cannot carry
// notifications.
type progress struct {
	token    json.RawMessage
	notifier engine.Notifier

	mu   sync.Mutex
	last float64
}

func newProgress(ctx context.Context, token json.RawMessage) *progress {
	return &progress{token: token, notifier: engine.NotifierFromContext(ctx)}
}

// report sends progress out of total. Values that do not increase are
// bumped so clients always see a monotonic sequence.
func (p *progress) report(value, total float64, message string) error {
	if len(p.token) == 0 || p.notifier == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if value <= p.last {
		value = p.last + 0.1
	}
	p.last = value

	params := map[string]any{
		"progressToken": p.token,
		"progress":      value,
		"total":         total,
	}
	if message != "" {
		params["message"] = message
	}
	return p.notifier.Notify(protocol.MethodProgress, params)
}

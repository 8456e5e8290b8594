package middleware

import (
	"context"
	"time"

	"github.com/felixgeelhaar/mcp-bridge/protocol"
)

// Timeout returns middleware that bounds each request by d. Handlers must
// honor ctx for the deadline to take effect.
func Timeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, req)
		}
	}
}

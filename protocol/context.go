package protocol

import "context"

type sessionIDKey struct{}

// ContextWithSessionID tags ctx with the id of the bridge session a request
// arrived on.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// SessionIDFromContext returns the session id, or "" outside a session
// (for example on the stdio transport).
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey{}).(string)
	return id
}

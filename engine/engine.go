// Package engine defines the message engine a bridge session drives, and a
// JSON-RPC implementation of it.
package engine

import (
	"context"
	"io"
)

// Engine consumes client frames from stream and writes newline-terminated
// response frames back to it. Run returns nil once the read side of stream
// reaches end of stream, or an error if processing fails. Engines must not
// care whether stream is an in-process pipe pair or a process's stdio.
type Engine interface {
	Run(ctx context.Context, stream io.ReadWriter) error
}

// EngineFunc adapts an ordinary function to Engine.
type EngineFunc func(ctx context.Context, stream io.ReadWriter) error

// Run calls f(ctx, stream).
func (f EngineFunc) Run(ctx context.Context, stream io.ReadWriter) error {
	return f(ctx, stream)
}

// Factory returns a fresh engine for each new session.
type Factory func() Engine

// Package session tracks the live sessions of the bridge.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"
)

// NewID returns a fresh 128-bit random identifier as 32 lowercase hex digits.
func NewID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Session is one stream connection's identity and the write handle of its
// inbound pipe.
type Session struct {
	id      string
	created time.Time

	inbound io.Writer
	lock    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a session writing client frames to inbound. The returned
// session's Context is derived from parent and ends when Cancel is called.
func New(parent context.Context, id string, inbound io.Writer) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		id:      id,
		created: time.Now(),
		inbound: inbound,
		lock:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time {
	return s.created
}

// Context returns the context bounding the session's engine.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Cancel ends the session's context. It is safe to call more than once.
func (s *Session) Cancel() {
	s.cancel()
}

// Done is closed once the session is cancelled.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Acquire takes exclusive use of the inbound write handle for one complete
// frame transfer. The returned release func must be called exactly once.
// Acquire gives up when ctx or the session ends first.
func (s *Session) Acquire(ctx context.Context) (io.Writer, func(), error) {
	if s.ctx.Err() != nil {
		return nil, nil, ErrSessionClosed
	}
	select {
	case s.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case <-s.ctx.Done():
		return nil, nil, ErrSessionClosed
	}
	var once sync.Once
	release := func() {
		once.Do(func() { <-s.lock })
	}
	return s.inbound, release, nil
}

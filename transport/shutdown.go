package transport

import (
	"context"
	"sync/atomic"
	"time"
)

// ShutdownConfig configures how a bridge drains.
type ShutdownConfig struct {
	// Timeout bounds the wait for in-flight submits. Default: 10 seconds.
	Timeout time.Duration

	// DrainDelay is waited before draining starts, giving load balancers
	// time to stop routing new connections here.
	DrainDelay time.Duration

	// OnDrainStart runs once new connections are being refused. Bridges use
	// it to cancel their sessions.
	OnDrainStart func()

	// OnShutdownComplete receives the drain result.
	OnShutdownComplete func(err error)
}

// ShutdownManager tracks in-flight submits and refuses new work once
// draining has begun.
type ShutdownManager struct {
	cfg      ShutdownConfig
	started  atomic.Bool
	draining atomic.Bool
	inFlight atomic.Int64
	done     chan struct{}
}

// NewShutdownManager creates a manager with cfg.
func NewShutdownManager(cfg ShutdownConfig) *ShutdownManager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &ShutdownManager{cfg: cfg, done: make(chan struct{})}
}

// WithShutdownTimeout bounds how long Serve waits for submits and engines
// after its context is cancelled.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *config) {
		c.shutdownTimeout = d
	}
}

// WithDrainDelay delays draining after shutdown begins.
func WithDrainDelay(d time.Duration) Option {
	return func(c *config) {
		c.drainDelay = d
	}
}

// IsDraining reports whether new work is being refused.
func (m *ShutdownManager) IsDraining() bool {
	return m.draining.Load()
}

// InFlightRequests returns the number of tracked requests.
func (m *ShutdownManager) InFlightRequests() int64 {
	return m.inFlight.Load()
}

// TrackRequest records the start of a request. It returns false while
// draining, in which case the request must be refused and CompleteRequest
// must not be called.
func (m *ShutdownManager) TrackRequest() bool {
	if m.draining.Load() {
		return false
	}
	m.inFlight.Add(1)
	return true
}

// CompleteRequest records the end of a tracked request.
func (m *ShutdownManager) CompleteRequest() {
	m.inFlight.Add(-1)
}

// Done is closed once Shutdown has returned.
func (m *ShutdownManager) Done() <-chan struct{} {
	return m.done
}

// Shutdown starts draining and waits for tracked requests to finish, for
// the configured timeout or for ctx, whichever ends first. Calling it more
// than once is a no-op returning nil.
func (m *ShutdownManager) Shutdown(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return nil
	}
	if m.cfg.DrainDelay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(m.cfg.DrainDelay):
		}
	}
	m.draining.Store(true)
	if m.cfg.OnDrainStart != nil {
		m.cfg.OnDrainStart()
	}

	err := m.waitIdle(ctx)
	close(m.done)
	if m.cfg.OnShutdownComplete != nil {
		m.cfg.OnShutdownComplete(err)
	}
	return err
}

func (m *ShutdownManager) waitIdle(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for m.inFlight.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}

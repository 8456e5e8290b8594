// Package pipe provides bounded in-process byte pipes and a duplex stream
// built from them.
//
// Unlike io.Pipe, a pipe created by New buffers up to its capacity, so a
// writer only blocks once the buffer is full and a reader only blocks while
// the buffer is empty and the write side is still open.
package pipe

import (
	"io"
	"sync"
)

// DefaultCapacity is the buffer size used for session pipes.
const DefaultCapacity = 4096

type pipe struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf  []byte
	head int
	size int

	werr error // set when the write side closes; surfaced after draining
	rerr error // set when the read side closes; fails writers
}

// New returns the two ends of a bounded pipe holding at most capacity bytes.
func New(capacity int) (*Reader, *Writer) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	p := &pipe{buf: make([]byte, capacity)}
	p.cond = sync.NewCond(&p.mu)
	return &Reader{p: p}, &Writer{p: p}
}

func (p *pipe) read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rerr != nil {
		return 0, io.ErrClosedPipe
	}
	for p.size == 0 {
		if p.rerr != nil {
			return 0, io.ErrClosedPipe
		}
		if p.werr != nil {
			return 0, p.werr
		}
		p.cond.Wait()
	}

	n := 0
	for n < len(b) && p.size > 0 {
		end := p.head + p.size
		if end > len(p.buf) {
			end = len(p.buf)
		}
		c := copy(b[n:], p.buf[p.head:end])
		n += c
		p.head = (p.head + c) % len(p.buf)
		p.size -= c
	}
	if p.size == 0 {
		p.head = 0
	}
	p.cond.Broadcast()
	return n, nil
}

func (p *pipe) write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for n < len(b) {
		if p.rerr != nil {
			return n, p.rerr
		}
		if p.werr != nil {
			return n, io.ErrClosedPipe
		}
		if p.size == len(p.buf) {
			p.cond.Wait()
			continue
		}
		tail := (p.head + p.size) % len(p.buf)
		end := len(p.buf)
		if tail < p.head {
			end = p.head
		}
		c := copy(p.buf[tail:end], b[n:])
		n += c
		p.size += c
		p.cond.Broadcast()
	}
	return n, nil
}

func (p *pipe) closeWrite(err error) {
	if err == nil {
		err = io.EOF
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.werr == nil {
		p.werr = err
	}
	p.cond.Broadcast()
}

func (p *pipe) closeRead(err error) {
	if err == nil {
		err = io.ErrClosedPipe
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rerr == nil {
		p.rerr = err
	}
	p.cond.Broadcast()
}

func (p *pipe) buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// Reader is the read half of a bounded pipe.
type Reader struct {
	p *pipe
}

// Read reads buffered bytes, blocking while the pipe is empty and the write
// side is open. After the write side closes, buffered bytes are still
// returned before the close error (io.EOF for a plain Close).
func (r *Reader) Read(b []byte) (int, error) {
	return r.p.read(b)
}

// Close closes the read side. Blocked and future writes fail with
// io.ErrClosedPipe.
func (r *Reader) Close() error {
	return r.CloseWithError(nil)
}

// CloseWithError closes the read side; writers receive err.
func (r *Reader) CloseWithError(err error) error {
	r.p.closeRead(err)
	return nil
}

// Writer is the write half of a bounded pipe.
type Writer struct {
	p *pipe
}

// Write copies b into the pipe, blocking whenever the buffer is full until
// the reader drains it. It fails only once either side is closed.
func (w *Writer) Write(b []byte) (int, error) {
	return w.p.write(b)
}

// Close closes the write side. The reader sees io.EOF after draining.
func (w *Writer) Close() error {
	return w.CloseWithError(nil)
}

// CloseWithError closes the write side; the reader receives err after
// draining buffered bytes.
func (w *Writer) CloseWithError(err error) error {
	w.p.closeWrite(err)
	return nil
}

// Buffered reports the number of bytes waiting to be read.
func (w *Writer) Buffered() int {
	return w.p.buffered()
}

package pipe

import (
	"errors"
	"io"
)

// Duplex joins a read side and a write side into one bidirectional stream.
// An engine given a Duplex cannot tell whether it is backed by in-process
// pipes or by a process's stdin and stdout.
type Duplex struct {
	r io.Reader
	w io.Writer
}

var _ io.ReadWriteCloser = (*Duplex)(nil)

// NewDuplex returns a Duplex reading from r and writing to w.
func NewDuplex(r io.Reader, w io.Writer) *Duplex {
	return &Duplex{r: r, w: w}
}

// Join is an alias of NewDuplex for adapting existing process streams.
func Join(r io.Reader, w io.Writer) *Duplex {
	return NewDuplex(r, w)
}

// Read reads from the read side.
func (d *Duplex) Read(p []byte) (int, error) {
	return d.r.Read(p)
}

// Write writes to the write side.
func (d *Duplex) Write(p []byte) (int, error) {
	return d.w.Write(p)
}

// CloseRead closes the read side if it is closable.
func (d *Duplex) CloseRead() error {
	if c, ok := d.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// CloseWrite closes the write side if it is closable.
func (d *Duplex) CloseWrite() error {
	if c, ok := d.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Close closes both sides.
func (d *Duplex) Close() error {
	return errors.Join(d.CloseRead(), d.CloseWrite())
}

// Pair holds both bounded pipes of one session, split into the end handed to
// the engine and the ends kept by the transport.
type Pair struct {
	// Engine is handed to the message engine: it reads client frames and
	// writes server frames.
	Engine *Duplex

	// Inbound accepts client frames on behalf of the transport.
	Inbound *Writer

	// Outbound yields server frames to the transport.
	Outbound *Reader
}

// NewPair allocates the client-to-server and server-to-client pipes for one
// session, each holding at most capacity bytes.
func NewPair(capacity int) *Pair {
	c2sR, c2sW := New(capacity)
	s2cR, s2cW := New(capacity)
	return &Pair{
		Engine:   NewDuplex(c2sR, s2cW),
		Inbound:  c2sW,
		Outbound: s2cR,
	}
}

// Close tears down the engine side: pending inbound writes fail and the
// outbound reader sees io.EOF once drained. Outbound stays open so a relay
// can still deliver frames the engine wrote before exiting.
func (p *Pair) Close() error {
	return errors.Join(p.Engine.Close(), p.Inbound.Close())
}

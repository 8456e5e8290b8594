package codec

import (
	"bytes"
	"errors"
	"io"
)

// ErrTrailingBytes is returned by Reader.Next when the stream ends in the
// middle of a frame.
var ErrTrailingBytes = errors.New("codec: bytes remaining on stream")

const readChunk = 4096

// Reader yields frames from an underlying io.Reader one at a time.
type Reader struct {
	src   io.Reader
	buf   bytes.Buffer
	codec LineCodec
	chunk []byte
	err   error
}

// NewReader returns a Reader that decodes frames from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		src:   r,
		chunk: make([]byte, readChunk),
	}
}

// Next returns the next frame. It blocks until a full frame is buffered or
// the source fails. A clean end of stream returns io.EOF; an end of stream
// that leaves an undelimited suffix returns ErrTrailingBytes.
func (r *Reader) Next() ([]byte, error) {
	for {
		if frame, ok := r.codec.Decode(&r.buf); ok {
			return frame, nil
		}
		if r.err != nil {
			return nil, r.err
		}

		n, err := r.src.Read(r.chunk)
		if n > 0 {
			r.buf.Write(r.chunk[:n])
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			if r.buf.Len() > 0 {
				r.err = ErrTrailingBytes
			} else {
				r.err = io.EOF
			}
			continue
		}
		r.err = err
	}
}

// Buffered reports how many undecoded bytes are held.
func (r *Reader) Buffered() int {
	return r.buf.Len()
}

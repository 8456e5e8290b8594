// Package codec splits byte streams into newline-delimited frames.
package codec

import (
	"bytes"
	"io"
)

// Delimiter terminates every frame on the wire.
const Delimiter = '\n'

// LineCodec decodes and encodes newline-delimited frames.
// It holds no state; the caller owns the accumulating buffer.
type LineCodec struct{}

// Decode removes the first complete frame from buf and returns it without
// its delimiter. If buf holds no delimiter, ok is false and buf is left
// untouched so later input can complete the frame.
//
// Decode applies no size limit and no trimming beyond the delimiter.
func (LineCodec) Decode(buf *bytes.Buffer) (frame []byte, ok bool) {
	i := bytes.IndexByte(buf.Bytes(), Delimiter)
	if i < 0 {
		return nil, false
	}
	frame = make([]byte, i)
	copy(frame, buf.Next(i+1))
	return frame, true
}

// Encode writes frame followed by the delimiter in a single Write call.
func (LineCodec) Encode(w io.Writer, frame []byte) error {
	out := make([]byte, len(frame)+1)
	copy(out, frame)
	out[len(frame)] = Delimiter
	_, err := w.Write(out)
	return err
}

package sse

import (
	"errors"
	"io"

	"github.com/papercomputeco/veneer/pkg/llm"
)

// TeeReader decodes events from a source io.Reader while writing every raw
// byte verbatim to a destination io.Writer.
//
// ┌──────────────────┐
// │ source io.Reader │
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐   ┌───────────────────────┐
// │ TeeReader.Next() │──▶│ destination io.Writer │
// └──────────────────┘   └───────────────────────┘
// │
// ▼
// ┌──────────────────┐
// │   StreamEvent    │
// └──────────────────┘
//
// Chunks are forwarded as read, including any bytes after the [DONE]
// sentinel, so the downstream client sees the exact upstream stream.
type TeeReader struct {
	src  io.Reader
	dest io.Writer
	dec  *Decoder

	buf     []byte
	pending []llm.StreamEvent
	eof     bool
	written int64
}

// NewTeeReader returns a TeeReader over src that copies to dest.
// The dest writer typically backs an io.Pipe connected to the downstream HTTP
// response.
func NewTeeReader(src io.Reader, dest io.Writer, opts ...DecoderOption) *TeeReader {
	return &TeeReader{
		src:  src,
		dest: dest,
		dec:  NewDecoder(opts...),
		buf:  make([]byte, readBufferSize),
	}
}

// Next returns the next decoded event, blocking on the source as needed.
// Next returns nil, nil when the source is exhausted.
func (r *TeeReader) Next() (*llm.StreamEvent, error) {
	for len(r.pending) == 0 {
		if r.eof {
			return nil, nil
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			w, werr := r.dest.Write(r.buf[:n])
			r.written += int64(w)
			if werr != nil {
				return nil, werr
			}
			r.pending = append(r.pending, r.dec.Feed(r.buf[:n])...)
		}

		if errors.Is(err, io.EOF) {
			r.eof = true
			r.pending = append(r.pending, r.dec.Close()...)
			continue
		}
		if err != nil {
			return nil, err
		}
	}

	ev := r.pending[0]
	r.pending = r.pending[1:]
	return &ev, nil
}

// Written returns the number of bytes forwarded to the destination so far.
func (r *TeeReader) Written() int64 {
	return r.written
}

package sse

import (
	"io"

	"github.com/Harsha-Reddy21/AI-Onboarding/agent"
)

// DefaultChunkSize is the read size used by Reader.
const DefaultChunkSize = 32 * 1024

// Reader pulls frames from an io.Reader one chunk at a time.
type Reader struct {
	r     io.Reader
	dec   *Decoder
	chunk []byte
	queue []agent.Frame
	err   error
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, dec: NewDecoder(), chunk: make([]byte, DefaultChunkSize)}
}

// Decoder exposes the underlying decoder for diagnostics.
func (r *Reader) Decoder() *Decoder { return r.dec }

// Next returns the next frame. At the end of the stream it returns the
// transport's error, io.EOF for a clean end.
func (r *Reader) Next() (agent.Frame, error) {
	for len(r.queue) == 0 {
		if r.err != nil {
			return agent.Frame{}, r.err
		}
		n, err := r.r.Read(r.chunk)
		if n > 0 {
			r.queue = append(r.queue, r.dec.Feed(r.chunk[:n])...)
		}
		if err != nil {
			r.queue = append(r.queue, r.dec.Flush()...)
			r.err = err
		}
	}

	f := r.queue[0]
	r.queue[0] = agent.Frame{}
	r.queue = r.queue[1:]
	return f, nil
}

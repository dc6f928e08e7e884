package decode

// Decoder is a pull-style byte source: Read consumes zero or more bytes
// from upstream and produces zero or more decoded bytes, without
// blocking. A call that finds nothing ready yet returns (nil, false,
// nil) — the empty, non-EOF result spec calls "retry later". End of
// stream is reported by eof, never by a zero-length read alone.
type Decoder interface {
	Read(max int) (p []byte, eof bool, err error)
}

// rawFeed is the bottom of every pipeline: a Decoder that is fed
// directly with bytes the scheduler has already read off the socket,
// rather than pulling from any upstream itself. This is what spec means
// by "the decoder never reads from upstream itself — its caller
// supplies new bytes on each invocation", applied literally to the one
// decoder that sits closest to the wire.
type rawFeed struct {
	buf []byte
	eof bool
}

// Feed appends newly-arrived raw socket bytes.
func (r *rawFeed) Feed(p []byte) {
	r.buf = append(r.buf, p...)
}

// SetEOF marks the upstream source exhausted; Read reports eof once the
// buffered bytes are drained.
func (r *rawFeed) SetEOF() {
	r.eof = true
}

func (r *rawFeed) Read(max int) (p []byte, eof bool, err error) {
	n := min(max, len(r.buf))
	p, r.buf = r.buf[:n:n], r.buf[n:]
	return p, r.eof && len(r.buf) == 0, nil
}

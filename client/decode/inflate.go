package decode

import (
	"compress/flate"
	"compress/gzip"
	"errors"
	"io"
	"sync"
)

// ErrInflate is the sentinel wrapped when the underlying gzip/flate
// stream is malformed.
var ErrInflate = errors.New("decode: inflate error")

// Format selects which compress/* reader Inflate wraps.
type Format uint8

const (
	FormatGzip Format = iota
	FormatDeflate
)

// Inflate decodes gzip or raw-deflate content encoding. compress/gzip and
// compress/flate are built around a blocking io.Reader contract: a read
// that returns a transient "no data yet" error is cached as permanent by
// the decompressor, exactly like crypto/tls's handshake (see
// SPEC_FULL.md §4.3). Inflate works around this the same way: the actual
// decompression runs on a dedicated goroutine reading from an io.Pipe,
// and Read/pump below only ever touch a mutex-guarded output buffer —
// the goroutine is the only thing that ever calls into compress/gzip or
// compress/flate.
type Inflate struct {
	upstream Decoder
	pw       *io.PipeWriter
	upEOF    bool

	mu  sync.Mutex
	out []byte
	eof bool
	err error
}

// NewInflate wraps upstream, decoding it as format.
func NewInflate(upstream Decoder, format Format) *Inflate {
	pr, pw := io.Pipe()
	d := &Inflate{upstream: upstream, pw: pw}
	go d.run(pr, format)
	return d
}

func (d *Inflate) run(pr *io.PipeReader, format Format) {
	var zr io.ReadCloser
	switch format {
	case FormatGzip:
		gz, err := gzip.NewReader(pr)
		if err != nil {
			d.fail(err)
			return
		}
		zr = gz
	case FormatDeflate:
		zr = flate.NewReader(pr)
	}
	defer zr.Close()

	buf := make([]byte, 32*1024)
	for {
		n, err := zr.Read(buf)
		if n > 0 {
			d.appendOut(buf[:n])
		}
		if err != nil {
			if err == io.EOF {
				d.markEOF()
			} else {
				d.fail(err)
			}
			return
		}
	}
}

func (d *Inflate) appendOut(p []byte) {
	d.mu.Lock()
	d.out = append(d.out, p...)
	d.mu.Unlock()
}

func (d *Inflate) markEOF() {
	d.mu.Lock()
	d.eof = true
	d.mu.Unlock()
}

func (d *Inflate) fail(err error) {
	d.mu.Lock()
	d.err = &protocolLikeError{err: err}
	d.eof = true
	d.mu.Unlock()
}

func (d *Inflate) Read(max int) (p []byte, eof bool, err error) {
	if pumpErr := d.pump(); pumpErr != nil {
		return nil, false, pumpErr
	}

	d.mu.Lock()
	n := min(max, len(d.out))
	p = append([]byte(nil), d.out[:n]...)
	d.out = d.out[n:]
	eof = d.eof && len(d.out) == 0
	runErr := d.err
	d.mu.Unlock()

	if runErr != nil {
		return p, false, runErr
	}
	return p, eof, nil
}

// pump forwards whatever upstream currently has ready into the pipe the
// background goroutine is decompressing from, closing the pipe once
// upstream reports end-of-stream so the goroutine's Read eventually sees
// io.EOF instead of hanging forever.
func (d *Inflate) pump() error {
	if d.upEOF {
		return nil
	}
	chunk, upstreamEOF, err := d.upstream.Read(1 << 20)
	if err != nil {
		return err
	}
	if len(chunk) > 0 {
		if _, werr := d.pw.Write(chunk); werr != nil {
			return werr
		}
	}
	if upstreamEOF {
		d.upEOF = true
		_ = d.pw.Close()
	}
	return nil
}

// Close abandons the background decompression goroutine, unblocking it
// if it is waiting on the pipe. Safe to call more than once.
func (d *Inflate) Close() error {
	return d.pw.CloseWithError(io.ErrClosedPipe)
}

type protocolLikeError struct{ err error }

func (e *protocolLikeError) Error() string { return "decode: " + e.err.Error() }
func (e *protocolLikeError) Unwrap() error { return ErrInflate }

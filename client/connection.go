package client

import (
	"time"

	"evhttp/client/decode"
	"evhttp/client/netpoll"
	"evhttp/client/wire"
)

// rawConn is the narrow Read/Write/Close surface both a plain
// [netpoll.Socket] and a [netpoll.TLSUpgrade] satisfy; connection talks
// to whichever one is active without caring which.
type rawConn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// connection is the scheduler's private bookkeeping for one Request's
// socket: the raw transport, the accumulating header buffer, the
// decoder chain once headers are parsed, and the pending write queue.
type connection struct {
	sock        *netpoll.Socket
	tls         *netpoll.TLSUpgrade
	established bool
	dialStarted time.Time

	headerBuf []byte // raw bytes read so far that haven't yet resolved into a full header block

	writeBuf   []byte // header/body bytes not yet fully handed to the kernel
	uploadDone bool

	pipeline *decode.Pipeline
	bodyBuf  []byte // decoded bytes accumulated since the last BodyChunkAvailable drain
}

func (c *connection) rw() rawConn {
	if c.tls != nil {
		return c.tls
	}
	return c.sock
}

// close releases every resource this connection holds. Safe to call
// more than once.
func (c *connection) close() {
	if c.pipeline != nil {
		c.pipeline.Close()
	}
	if c.tls != nil {
		_ = c.tls.Close()
	} else if c.sock != nil {
		_ = c.sock.Close()
	}
}

// tryParseHeaders attempts to split headerBuf into a status line and
// header block. ok is false until the terminating "\r\n\r\n" has
// arrived. Any bytes already read past the header block are returned
// as leftover, so they can be fed straight into the body pipeline.
func (c *connection) tryParseHeaders() (status wire.StatusLine, headers wire.Headers, leftover []byte, ok bool, err error) {
	idx := indexDoubleCRLF(c.headerBuf)
	if idx < 0 {
		return wire.StatusLine{}, nil, nil, false, nil
	}
	status, headers, err = wire.Parse(c.headerBuf[:idx+4])
	if err != nil {
		return wire.StatusLine{}, nil, nil, false, err
	}
	leftover = c.headerBuf[idx+4:]
	return status, headers, leftover, true, nil
}

func indexDoubleCRLF(b []byte) int {
	for i := 0; i+3 < len(b); i++ {
		if b[i] == '\r' && b[i+1] == '\n' && b[i+2] == '\r' && b[i+3] == '\n' {
			return i
		}
	}
	return -1
}

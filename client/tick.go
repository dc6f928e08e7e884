package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"evhttp/client/decode"
	"evhttp/client/netpoll"
	"evhttp/client/wire"
)

const headerReadChunk = 4 << 10
const bodyReadChunk = 8 << 10

// activeRequests returns the union of every non-terminal, non-Enqueued
// request plus the first K Enqueued ones, K = concurrency - |active|,
// admitting Enqueued requests in order without reordering later ones.
func (c *Client) activeRequests() []*Request {
	var active []*Request
	for _, r := range c.requests {
		if r.State != StateEnqueued && r.State != StateFinished && r.State != StateFailed {
			active = append(active, r)
		}
	}

	k := c.opts.Concurrency - len(active)
	for _, r := range c.requests {
		if k <= 0 {
			break
		}
		if r.State != StateEnqueued {
			continue
		}
		if c.opts.throttle != nil && !c.opts.throttle.Allow() {
			continue
		}
		active = append(active, r)
		k--
	}
	return active
}

// tick performs one event_loop_tick pass: each of the seven batches
// runs over only the requests that were in its matching state when the
// pass began. It reports whether any request was active at all.
func (c *Client) tick() bool {
	active := c.activeRequests()
	if len(active) == 0 {
		return false
	}

	byState := make(map[RequestState][]*Request)
	for _, r := range active {
		byState[r.State] = append(byState[r.State], r)
	}

	c.batchOpenSockets(byState[StateEnqueued])
	c.batchAdvanceTLS(byState[StateWillEnableCrypto])
	c.batchWriteHeaders(byState[StateWillSendHeaders])
	c.batchSendBody(byState[StateWillSendBody])
	c.batchReceiveHeaders(byState[StateReceivingHeaders])
	c.batchReceiveBody(byState[StateReceivingBody])
	c.batchFinalize(byState[StateReceived])

	return true
}

func (c *Client) batchOpenSockets(reqs []*Request) {
	for _, r := range reqs {
		switch r.URL.Scheme {
		case "http", "https":
		default:
			c.failReq(r, ErrInvalidScheme, fmt.Errorf("unsupported scheme %q", r.URL.Scheme))
			continue
		}

		host := r.URL.Hostname()
		port := r.URL.Port()
		if port == "" {
			if r.URL.Scheme == "https" {
				port = "443"
			} else {
				port = "80"
			}
		}

		sock, err := netpoll.Dial("tcp", net.JoinHostPort(host, port))
		if err != nil {
			c.failReq(r, ErrConnect, err)
			continue
		}

		c.conns[r.ID] = &connection{sock: sock, dialStarted: time.Now()}
		if r.URL.Scheme == "https" {
			r.State = StateWillEnableCrypto
		} else {
			r.State = StateWillSendHeaders
		}
	}
}

// pollWritable reports which of reqs may attempt a write right now.
// A request whose connection has completed a TLS upgrade is always
// reported ready: TLSUpgrade.Write never blocks the caller, it hands
// bytes to the handshake goroutine's buffer, so the raw fd's poll bits
// (owned by that goroutine) are not a meaningful gate for it. Plain
// sockets are gated on an actual poll of their fd.
func (c *Client) pollWritable(reqs []*Request) map[int64]bool {
	return c.pollRaw(reqs, true)
}

func (c *Client) pollReadable(reqs []*Request) map[int64]bool {
	return c.pollRaw(reqs, false)
}

func (c *Client) pollRaw(reqs []*Request, forWrite bool) map[int64]bool {
	if len(reqs) == 0 {
		return nil
	}

	var plain []*Request
	set := make(map[int64]bool, len(reqs))
	for _, r := range reqs {
		if c.conns[r.ID].tls != nil {
			set[r.ID] = true
		} else {
			plain = append(plain, r)
		}
	}
	if len(plain) == 0 {
		return set
	}

	interests := make([]netpoll.Interest, len(plain))
	for i, r := range plain {
		interests[i] = netpoll.Interest{FD: c.conns[r.ID].sock.FD(), UserData: uintptr(r.ID), Writable: forWrite, Readable: !forWrite}
	}
	ready, err := c.poller.Wait(interests)
	if err != nil {
		for _, r := range plain {
			c.failReq(r, ErrReadiness, err)
		}
		return set
	}
	for _, rdy := range ready {
		if (forWrite && rdy.Writable) || (!forWrite && rdy.Readable) || rdy.Hup || rdy.Err {
			set[int64(rdy.UserData)] = true
		}
	}
	return set
}

// ensureEstablished confirms the raw connect finished for every req
// whose connection is not yet established, failing it with ConnectError
// on a socket error or dial timeout. It returns the requests from reqs
// whose connection is established, in their original order.
func (c *Client) ensureEstablished(reqs []*Request) []*Request {
	var unestablished []*Request
	for _, r := range reqs {
		if !c.conns[r.ID].established {
			unestablished = append(unestablished, r)
		}
	}

	if len(unestablished) > 0 {
		readySet := c.pollWritable(unestablished)
		for _, r := range unestablished {
			conn := c.conns[r.ID]
			if conn == nil || conn.established {
				continue // failed by pollWritable's readiness-error path
			}
			if !readySet[r.ID] {
				if time.Since(conn.dialStarted) > c.opts.DialTimeout {
					c.failReq(r, ErrConnect, errors.New("dial timeout"))
				}
				continue
			}
			if err := conn.sock.Established(); err != nil {
				c.failReq(r, ErrConnect, err)
				continue
			}
			conn.established = true
		}
	}

	var out []*Request
	for _, r := range reqs {
		if conn := c.conns[r.ID]; conn != nil && conn.established {
			out = append(out, r)
		}
	}
	return out
}

func (c *Client) batchAdvanceTLS(reqs []*Request) {
	var needUpgrade []*Request
	var midHandshake []*Request
	for _, r := range reqs {
		if c.conns[r.ID].tls == nil {
			needUpgrade = append(needUpgrade, r)
		} else {
			midHandshake = append(midHandshake, r)
		}
	}

	for _, r := range c.ensureEstablished(needUpgrade) {
		conn := c.conns[r.ID]
		tlsUp, err := netpoll.Upgrade(conn.sock, r.URL.Hostname(), c.opts.InsecureSkipVerify)
		if err != nil {
			c.failReq(r, ErrTLS, err)
			continue
		}
		conn.tls = tlsUp
	}

	for _, r := range midHandshake {
		conn := c.conns[r.ID]
		done, err := conn.tls.HandshakeDone()
		if !done {
			continue
		}
		if err != nil {
			c.failReq(r, ErrTLS, err)
			continue
		}
		r.State = StateWillSendHeaders
	}
}

func (c *Client) batchWriteHeaders(reqs []*Request) {
	established := c.ensureEstablished(reqs)
	if len(established) == 0 {
		return
	}

	readySet := c.pollWritable(established)

	for _, r := range established {
		if !readySet[r.ID] || c.conns[r.ID] == nil {
			continue
		}
		conn := c.conns[r.ID]
		if len(conn.writeBuf) == 0 {
			conn.writeBuf = wire.Serialize(wire.RequestLine{
				Method:      r.Method,
				Path:        r.URL.Path,
				Query:       r.URL.RawQuery,
				HTTPVersion: r.HTTPVersion,
				Host:        r.URL.Host,
				UserAgent:   "evhttp/0.1",
				Headers:     flattenHeader(r.Header),
			})
		}

		n, werr := conn.rw().Write(conn.writeBuf)
		conn.writeBuf = conn.writeBuf[n:]
		if werr != nil && !errors.Is(werr, netpoll.ErrWouldBlock) {
			c.failReq(r, ErrWrite, werr)
			continue
		}
		if len(conn.writeBuf) == 0 {
			if r.Body != nil {
				r.State = StateWillSendBody
			} else {
				r.State = StateReceivingHeaders
			}
		}
	}
}

func (c *Client) batchSendBody(reqs []*Request) {
	readySet := c.pollWritable(reqs)

	for _, r := range reqs {
		if !readySet[r.ID] || c.conns[r.ID] == nil {
			continue
		}
		conn := c.conns[r.ID]

		if len(conn.writeBuf) == 0 {
			buf := make([]byte, bodyReadChunk)
			n, rerr := r.Body.Read(buf)
			if n > 0 {
				conn.writeBuf = buf[:n]
			}
			if rerr != nil {
				if errors.Is(rerr, io.EOF) {
					conn.uploadDone = true
				} else {
					c.failReq(r, ErrUploadRead, rerr)
					continue
				}
			}
		}

		if len(conn.writeBuf) > 0 {
			n, werr := conn.rw().Write(conn.writeBuf)
			conn.writeBuf = conn.writeBuf[n:]
			if werr != nil && !errors.Is(werr, netpoll.ErrWouldBlock) {
				c.failReq(r, ErrWrite, werr)
				continue
			}
		}

		if conn.uploadDone && len(conn.writeBuf) == 0 {
			r.State = StateReceivingHeaders
		}
	}
}

func (c *Client) batchReceiveHeaders(reqs []*Request) {
	readySet := c.pollReadable(reqs)

	for _, r := range reqs {
		if !readySet[r.ID] || c.conns[r.ID] == nil {
			continue
		}
		conn := c.conns[r.ID]

		buf := make([]byte, headerReadChunk)
		n, rerr := conn.rw().Read(buf)
		if rerr != nil && !errors.Is(rerr, netpoll.ErrWouldBlock) {
			c.failReq(r, ErrProtocol, fmt.Errorf("connection closed while receiving headers: %w", rerr))
			continue
		}
		if n == 0 && rerr == nil {
			c.failReq(r, ErrProtocol, errors.New("connection closed before headers completed"))
			continue
		}
		conn.headerBuf = append(conn.headerBuf, buf[:n]...)
		if n > 0 && r.Response == nil {
			r.Response = &Response{ContentLength: -1}
		}

		status, headers, leftover, ok, perr := conn.tryParseHeaders()
		if perr != nil {
			c.failReq(r, ErrProtocol, perr)
			continue
		}
		if !ok {
			continue
		}

		header := http.Header{}
		for k, v := range headers {
			header.Set(k, v)
		}

		contentLength := int64(-1)
		if cl, ok := headers.Get("content-length"); ok {
			if n, perr := strconv.ParseInt(cl, 10, 64); perr == nil {
				contentLength = n
			}
		}

		r.Response.Proto = status.Proto
		r.Response.StatusCode = status.StatusCode
		r.Response.Status = status.Reason
		r.Response.Header = header
		r.Response.ContentLength = contentLength

		pipeline, berr := decode.Build(headers["transfer-encoding"], headers["content-encoding"])
		if berr != nil {
			c.failReq(r, ErrUnsupportedEncode, berr)
			continue
		}
		conn.pipeline = pipeline
		conn.pipeline.Feed(leftover)

		if status.StatusCode >= 300 && status.StatusCode < 400 {
			r.State = StateReceived
		} else {
			r.State = StateReceivingBody
			c.setEvent(r.ID, EventGotHeaders)
		}
	}
}

func (c *Client) batchReceiveBody(reqs []*Request) {
	readySet := c.pollReadable(reqs)

	for _, r := range reqs {
		conn := c.conns[r.ID]
		if conn == nil {
			continue
		}

		if readySet[r.ID] {
			buf := make([]byte, bodyReadChunk)
			n, rerr := conn.rw().Read(buf)
			if rerr != nil && !errors.Is(rerr, netpoll.ErrWouldBlock) {
				c.failReq(r, ErrProtocol, fmt.Errorf("connection closed while receiving body: %w", rerr))
				continue
			}
			if n > 0 {
				conn.pipeline.Feed(buf[:n])
			} else if rerr == nil {
				conn.pipeline.SetEOF()
			}
		}

		decoded, eof, derr := conn.pipeline.Read(bodyReadChunk)
		if derr != nil {
			c.failReq(r, ErrProtocol, derr)
			continue
		}
		if len(decoded) > 0 {
			conn.bodyBuf = append(conn.bodyBuf, decoded...)
			r.Response.BytesReceived += int64(len(decoded))
			c.setEvent(r.ID, EventBodyChunkAvailable)
		}
		if eof {
			r.State = StateReceived
		}
	}
}

func (c *Client) batchFinalize(reqs []*Request) {
	for _, r := range reqs {
		redirected := false

		if r.Response.StatusCode >= 300 && r.Response.StatusCode < 400 {
			if loc := r.Response.Header.Get("Location"); loc != "" {
				if r.HopCount() >= c.opts.MaxRedirects {
					c.failReq(r, ErrTooManyRedirects, fmt.Errorf("redirect chain exceeded %d hops", c.opts.MaxRedirects))
					continue
				}

				nextURL, uerr := resolveRedirectURL(r.URL, loc)
				if uerr != nil {
					c.failReq(r, ErrInvalidRedirect, uerr)
					continue
				}

				child, nerr := NewRequest(r.Method, nextURL.String(), withRedirectedFrom(r))
				if nerr != nil {
					c.failReq(r, ErrInvalidRedirect, nerr)
					continue
				}

				r.RedirectedTo = child
				if err := c.Enqueue(child); err != nil {
					c.failReq(r, ErrInvalidRedirect, err)
					continue
				}
				redirected = true
				c.setEvent(r.ID, EventRedirect)
			}
		}

		if conn := c.conns[r.ID]; conn != nil {
			conn.close()
			delete(c.conns, r.ID)
		}
		r.State = StateFinished
		r.Finished = time.Now()
		if r.span != nil {
			r.span.End()
		}

		if !redirected {
			c.setEvent(r.ID, EventFinished)
		}
	}
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

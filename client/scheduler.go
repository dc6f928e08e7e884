package client

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"evhttp/client/netpoll"
)

// Client is the scheduler and event loop: it admits Enqueued requests
// up to a concurrency cap, multiplexes their sockets on a single
// goroutine, drives each one's state machine, and surfaces progress as
// a stream of discrete events.
//
// A Client is not safe for concurrent use from multiple goroutines —
// it is, by design, meant to be driven from one.
type Client struct {
	opts   *options
	poller *netpoll.Poller

	nextID   int64
	requests []*Request
	conns    map[int64]*connection
	events   map[int64]*eventBits

	cursorValid bool
	cursorKind  EventKind
	cursorReq   *Request
	cursorChunk []byte
}

type eventBits [numEventKinds]bool

// Build constructs a Client. Defaults: concurrency 10, max 3 redirects.
func Build(opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if err := validateStruct(o); err != nil {
		return nil, err
	}

	return &Client{
		opts:   o,
		poller: netpoll.NewPoller(int(o.PollTimeout.Milliseconds())),
		conns:  make(map[int64]*connection),
		events: make(map[int64]*eventBits),
	}, nil
}

// NewRequest builds a Request targeting rawURL. method defaults to GET;
// http_version defaults to "1.1". The Request is not yet owned by any
// Client until passed to [Client.Enqueue].
func NewRequest(method, rawURL string, opts ...RequestOption) (*Request, error) {
	ro := defaultRequestOpts()
	for _, opt := range opts {
		if err := opt(ro); err != nil {
			return nil, err
		}
	}
	if err := validateStruct(ro); err != nil {
		return nil, err
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	if method == "" {
		method = http.MethodGet
	}

	return &Request{
		URL:            u,
		Method:         strings.ToUpper(method),
		HTTPVersion:    ro.HTTPVersion,
		Header:         ro.header,
		Body:           ro.body,
		RedirectedFrom: ro.redirectedFrom,
		State:          StateEnqueued,
	}, nil
}

// Enqueue appends reqs to the scheduler's owned request list and
// returns immediately; it never touches the network.
func (c *Client) Enqueue(reqs ...*Request) error {
	if c == nil {
		return ErrNilClient
	}
	if len(reqs) == 0 {
		return ErrNoRequests
	}

	for _, r := range reqs {
		c.nextID++
		r.ID = c.nextID
		r.State = StateEnqueued
		r.Started = time.Now()

		_, span := c.opts.tracer.Start(context.Background(), "evhttp.request")
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.url", r.URL.String()),
		)
		r.span = span
		r.traceID = span.SpanContext().TraceID().String()
		if !span.SpanContext().TraceID().IsValid() {
			r.traceID = uuid.New().String()
		}

		c.requests = append(c.requests, r)
		c.events[r.ID] = &eventBits{}
	}
	return nil
}

// AwaitNextEvent blocks cooperatively — ticking the event loop, never
// the network — until the next matching event is ready or there is no
// more work. When query is non-empty, it and every request reachable
// via RedirectedTo from it are the only requests considered.
func (c *Client) AwaitNextEvent(ctx context.Context, query ...*Request) bool {
	targets := c.expandQuery(query)

	for {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return false
			default:
			}
		}

		if r, k, ok := c.nextPendingEvent(targets); ok {
			c.cursorValid = true
			c.cursorKind = k
			c.cursorReq = r
			if k == EventBodyChunkAvailable {
				conn := c.conns[r.ID]
				c.cursorChunk = conn.bodyBuf
				conn.bodyBuf = nil
			} else {
				c.cursorChunk = nil
			}
			c.clearEvent(r.ID, k)
			return true
		}

		if !c.tick() {
			return false
		}
	}
}

// Event returns the event kind from the most recent AwaitNextEvent call.
func (c *Client) Event() (EventKind, bool) {
	if !c.cursorValid {
		return 0, false
	}
	return c.cursorKind, true
}

// Request returns the request the most recent event belongs to.
func (c *Client) Request() (*Request, bool) {
	if !c.cursorValid {
		return nil, false
	}
	return c.cursorReq, true
}

// BodyChunk returns the decoded bytes carried by the most recent
// BodyChunkAvailable event. It returns false for any other event kind.
func (c *Client) BodyChunk() ([]byte, bool) {
	if !c.cursorValid || c.cursorKind != EventBodyChunkAvailable {
		return nil, false
	}
	return c.cursorChunk, true
}

func (c *Client) expandQuery(query []*Request) map[int64]bool {
	if len(query) == 0 {
		return nil
	}
	set := make(map[int64]bool)
	var addChain func(r *Request)
	addChain = func(r *Request) {
		if r == nil || set[r.ID] {
			return
		}
		set[r.ID] = true
		addChain(r.RedirectedTo)
	}
	for _, r := range query {
		addChain(r)
	}
	return set
}

// nextPendingEvent scans requests oldest-first, checking each one's
// bits in the fixed priority order GotHeaders, BodyChunkAvailable,
// Redirect, Failed, Finished.
func (c *Client) nextPendingEvent(targets map[int64]bool) (*Request, EventKind, bool) {
	for _, r := range c.requests {
		if targets != nil && !targets[r.ID] {
			continue
		}
		bits := c.events[r.ID]
		if bits == nil {
			continue
		}
		for k := 0; k < numEventKinds; k++ {
			if bits[k] {
				return r, EventKind(k), true
			}
		}
	}
	return nil, 0, false
}

func (c *Client) setEvent(id int64, k EventKind) {
	if b := c.events[id]; b != nil {
		b[k] = true
	}
}

func (c *Client) clearEvent(id int64, k EventKind) {
	if b := c.events[id]; b != nil {
		b[k] = false
	}
}

// failReq terminates r with a RequestError, closing and releasing its
// connection, and sets its Failed bit.
func (c *Client) failReq(r *Request, kind ErrorKind, err error) {
	r.Err = fail(kind, err)
	r.State = StateFailed
	if conn := c.conns[r.ID]; conn != nil {
		conn.close()
		delete(c.conns, r.ID)
	}
	if c.opts.logger != nil {
		c.opts.logger.Debug("evhttp: request failed", "id", r.ID, "kind", kind, "err", err)
	}
	if r.span != nil {
		r.span.RecordError(err)
		r.span.End()
	}
	c.setEvent(r.ID, EventFailed)
}

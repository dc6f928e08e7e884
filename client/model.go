package client

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// RequestState is where a Request sits in its lifecycle, from admission
// through termination. The zero value is StateEnqueued.
type RequestState uint8

const (
	StateEnqueued RequestState = iota
	StateWillEnableCrypto
	StateWillSendHeaders
	StateWillSendBody
	StateReceivingHeaders
	StateReceivingBody
	StateReceived
	StateFinished
	StateFailed
)

func (s RequestState) String() string {
	switch s {
	case StateEnqueued:
		return "Enqueued"
	case StateWillEnableCrypto:
		return "WillEnableCrypto"
	case StateWillSendHeaders:
		return "WillSendHeaders"
	case StateWillSendBody:
		return "WillSendBody"
	case StateReceivingHeaders:
		return "ReceivingHeaders"
	case StateReceivingBody:
		return "ReceivingBody"
	case StateReceived:
		return "Received"
	case StateFinished:
		return "Finished"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("RequestState(%d)", s)
	}
}

// EventKind is one of the closed set of events a Request can emit.
// AwaitNextEvent checks kinds in this declaration order.
type EventKind uint8

const (
	EventGotHeaders EventKind = iota
	EventBodyChunkAvailable
	EventRedirect
	EventFailed
	EventFinished

	numEventKinds = int(EventFinished) + 1
)

func (k EventKind) String() string {
	switch k {
	case EventGotHeaders:
		return "GotHeaders"
	case EventBodyChunkAvailable:
		return "BodyChunkAvailable"
	case EventRedirect:
		return "Redirect"
	case EventFailed:
		return "Failed"
	case EventFinished:
		return "Finished"
	default:
		return fmt.Sprintf("EventKind(%d)", k)
	}
}

// ErrorKind classifies why a Request transitioned to StateFailed.
type ErrorKind string

const (
	ErrInvalidScheme     ErrorKind = "InvalidScheme"
	ErrConnect           ErrorKind = "ConnectError"
	ErrTLS               ErrorKind = "TlsError"
	ErrWrite             ErrorKind = "WriteError"
	ErrUploadRead        ErrorKind = "UploadReadError"
	ErrProtocol          ErrorKind = "ProtocolError"
	ErrUnsupportedEncode ErrorKind = "UnsupportedEncoding"
	ErrTooManyRedirects  ErrorKind = "TooManyRedirects"
	ErrInvalidRedirect   ErrorKind = "InvalidRedirectUrl"
	ErrReadiness         ErrorKind = "ReadinessError"
)

// RequestError is the single failure record a Request carries once it
// reaches StateFailed.
type RequestError struct {
	Kind ErrorKind
	Err  error
}

func (e *RequestError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

func fail(kind ErrorKind, err error) *RequestError {
	return &RequestError{Kind: kind, Err: err}
}

// Response is allocated the moment the first byte of a reply arrives;
// its status and header fields are filled in once the full header block
// has been parsed.
type Response struct {
	Proto         string
	StatusCode    int
	Status        string
	Header        http.Header
	BytesReceived int64
	ContentLength int64 // -1 when the server did not declare one
}

// Request is one HTTP exchange, from enqueue through Finished or Failed.
// The scheduler is the only thing that mutates a Request after Enqueue;
// callers only read it between AwaitNextEvent calls.
type Request struct {
	ID          int64
	URL         *url.URL
	Method      string
	HTTPVersion string
	Header      http.Header
	Body        io.Reader

	RedirectedFrom *Request
	RedirectedTo   *Request

	State    RequestState
	Err      *RequestError
	Response *Response

	Started  time.Time
	Finished time.Time

	traceID string
	span    trace.Span
}

// TraceID returns the ID assigned when this request was enqueued: the
// OpenTelemetry trace ID of its span, or a random UUID when that span has
// no valid trace ID (as with the default no-op tracer). It is "" before
// the request is enqueued.
func (r *Request) TraceID() string { return r.traceID }

// HopCount is the length of the RedirectedFrom chain back to the
// original caller-created request.
func (r *Request) HopCount() int {
	n := 0
	for cur := r.RedirectedFrom; cur != nil; cur = cur.RedirectedFrom {
		n++
	}
	return n
}

var (
	// ErrNilClient is returned by operations invoked on a nil *Client.
	ErrNilClient = errors.New("evhttp: nil client")
	// ErrNoRequests is returned by Enqueue when called with zero requests.
	ErrNoRequests = errors.New("evhttp: no requests supplied")
)

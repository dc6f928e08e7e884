package client

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"evhttp/client/throttle"
)

// Option is a functional option for [Build].
type Option func(*options) error

type options struct {
	Concurrency        int           `json:"concurrency" validate:"min=1"`
	MaxRedirects       int           `json:"max_redirects" validate:"min=0"`
	DialTimeout        time.Duration `json:"dial_timeout" validate:"min=0"`
	PollTimeout        time.Duration `json:"poll_timeout" validate:"min=1000000"`
	InsecureSkipVerify bool          `json:"-"`

	logger   *slog.Logger
	tracer   trace.Tracer
	throttle *throttle.Limiter
}

func defaultOptions() *options {
	return &options{
		Concurrency:  10,
		MaxRedirects: 3,
		DialTimeout:  30 * time.Second,
		PollTimeout:  50 * time.Millisecond,
		logger:       slog.Default(),
		tracer:       noop.NewTracerProvider().Tracer("evhttp/client"),
	}
}

// WithConcurrency caps how many requests the scheduler keeps in flight
// (any non-Enqueued, non-terminal state) at once.
func WithConcurrency(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return errors.New("client: concurrency must be at least 1")
		}
		o.Concurrency = n
		return nil
	}
}

// WithMaxRedirects bounds how many hops a redirect chain may take
// before the tail request fails with [ErrTooManyRedirects].
func WithMaxRedirects(n int) Option {
	return func(o *options) error {
		if n < 0 {
			return errors.New("client: max redirects must not be negative")
		}
		o.MaxRedirects = n
		return nil
	}
}

// WithDialTimeout bounds how long an asynchronous connect may remain
// unestablished before the request fails with [ErrConnect].
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.New("client: dial timeout must be positive")
		}
		o.DialTimeout = d
		return nil
	}
}

// WithPollTimeout sets how long each readiness-primitive call may block
// when nothing is ready yet.
func WithPollTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d < time.Millisecond {
			return errors.New("client: poll timeout must be at least 1ms")
		}
		o.PollTimeout = d
		return nil
	}
}

// WithThrottle paces socket admission through limiter instead of
// admitting up to the concurrency cap as fast as sockets free up.
func WithThrottle(limiter *throttle.Limiter) Option {
	return func(o *options) error {
		if limiter == nil {
			return errors.New("client: throttle limiter must not be nil")
		}
		o.throttle = limiter
		return nil
	}
}

// WithLogger injects a custom [slog.Logger].
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return errors.New("client: logger must not be nil")
		}
		o.logger = logger
		return nil
	}
}

// WithTracer injects an OpenTelemetry tracer; spans are started around
// each request's enqueue-through-terminate lifetime.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		if tracer == nil {
			return errors.New("client: tracer must not be nil")
		}
		o.tracer = tracer
		return nil
	}
}

// WithInsecureSkipVerify disables server certificate verification for
// https requests. Intended for tests against a self-signed server.
func WithInsecureSkipVerify() Option {
	return func(o *options) error {
		o.InsecureSkipVerify = true
		return nil
	}
}

// RequestOption is a functional option for [NewRequest].
type RequestOption func(*requestOpts) error

type requestOpts struct {
	HTTPVersion string `json:"http_version" validate:"omitempty,oneof=1.0 1.1"`

	header         http.Header
	body           io.Reader
	redirectedFrom *Request
}

func defaultRequestOpts() *requestOpts {
	return &requestOpts{HTTPVersion: "1.1", header: http.Header{}}
}

// WithHeader sets a request header, overriding any default the wire
// codec would otherwise synthesize on case-insensitive name match.
func WithHeader(name, value string) RequestOption {
	return func(o *requestOpts) error {
		if name == "" {
			return errors.New("client: header name must not be empty")
		}
		o.header.Set(name, value)
		return nil
	}
}

// WithHTTPVersion overrides the default "1.1" request line version tag.
func WithHTTPVersion(version string) RequestOption {
	return func(o *requestOpts) error {
		o.HTTPVersion = version
		return nil
	}
}

// WithBody attaches an upload body stream. Callers supplying a body are
// responsible for its framing headers (Content-Length or
// Transfer-Encoding) via [WithHeader]; the wire codec never synthesizes
// them.
func WithBody(body io.Reader) RequestOption {
	return func(o *requestOpts) error {
		if body == nil {
			return errors.New("client: body must not be nil")
		}
		o.body = body
		return nil
	}
}

func withRedirectedFrom(parent *Request) RequestOption {
	return func(o *requestOpts) error {
		o.redirectedFrom = parent
		return nil
	}
}

// Package evhttp exposes the event-driven HTTP client's scheduler
// builder at the module root, mirroring how the rest of the package
// hierarchy nests under client.
package evhttp

import (
	"evhttp/client"
)

// NewClient instantiates a new [client.Client] with the provided
// options. Defaults: concurrency 10, max 3 redirects.
func NewClient(opts ...client.Option) (*client.Client, error) {
	return client.Build(opts...)
}

// Re-exported so callers driving the event loop don't need a second
// import for the request/event vocabulary.
type (
	Client        = client.Client
	Request       = client.Request
	Response      = client.Response
	RequestState  = client.RequestState
	EventKind     = client.EventKind
	ErrorKind     = client.ErrorKind
	RequestError  = client.RequestError
	Option        = client.Option
	RequestOption = client.RequestOption
)

// Re-exported [EventKind] values; see [client.EventKind].
const (
	EventGotHeaders         = client.EventGotHeaders
	EventBodyChunkAvailable = client.EventBodyChunkAvailable
	EventRedirect           = client.EventRedirect
	EventFailed             = client.EventFailed
	EventFinished           = client.EventFinished
)

// NewRequest builds a [Request]; see [client.NewRequest].
func NewRequest(method, rawURL string, opts ...client.RequestOption) (*Request, error) {
	return client.NewRequest(method, rawURL, opts...)
}

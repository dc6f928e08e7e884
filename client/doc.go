// Package client implements a cooperative, single-threaded,
// event-driven HTTP/1.x client. One [Client] multiplexes many
// requests' sockets with a single poller and drives each one through
// its own state machine; there are no per-request goroutines except
// the ones TLS and gzip/deflate decompression force on us internally.
//
// # Building a Client
//
// Use [Build] with functional options:
//
//	c, err := client.Build(
//		client.WithConcurrency(20),
//		client.WithMaxRedirects(5),
//	)
//
// # Making Requests
//
// Build a [Request] with [NewRequest] and hand it to [Client.Enqueue];
// enqueuing never touches the network:
//
//	req, err := client.NewRequest(http.MethodGet, "https://example.com/")
//	err = c.Enqueue(req)
//
// # Driving the Event Loop
//
// [Client.AwaitNextEvent] ticks the scheduler until the next event is
// ready, or returns false once there is nothing left to do:
//
//	for c.AwaitNextEvent(ctx) {
//		kind, _ := c.Event()
//		r, _ := c.Request()
//		switch kind {
//		case client.EventGotHeaders:
//			fmt.Println(r.Response.StatusCode)
//		case client.EventBodyChunkAvailable:
//			chunk, _ := c.BodyChunk()
//			body = append(body, chunk...)
//		case client.EventRedirect:
//			// r.RedirectedTo now holds the follow-up request
//		case client.EventFailed:
//			fmt.Println(r.Err)
//		case client.EventFinished:
//			// terminal for this hop
//		}
//	}
//
// Passing one or more requests to AwaitNextEvent restricts it to only
// those requests (and anything they redirect to); with no arguments it
// considers every request the Client owns.
package client

package client_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"

	"evhttp/client"
)

func ExampleBuild() {
	c, err := client.Build(
		client.WithConcurrency(5),
		client.WithMaxRedirects(3),
	)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	_ = c
	fmt.Println("client built")
	// Output: client built
}

func ExampleClient_AwaitNextEvent() {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "5")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Hello"))
	}))
	defer ts.Close()

	c, err := client.Build()
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	req, err := client.NewRequest(http.MethodGet, ts.URL)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if err := c.Enqueue(req); err != nil {
		fmt.Println("error:", err)
		return
	}

	var body []byte
	for c.AwaitNextEvent(context.Background(), req) {
		kind, _ := c.Event()
		switch kind {
		case client.EventGotHeaders:
			fmt.Println("status:", req.Response.StatusCode)
		case client.EventBodyChunkAvailable:
			chunk, _ := c.BodyChunk()
			body = append(body, chunk...)
		case client.EventFinished:
			fmt.Println("body:", string(body))
		}
	}
	// Output:
	// status: 200
	// body: Hello
}

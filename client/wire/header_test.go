package wire_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"evhttp/client/wire"
)

func TestSerialize_Defaults(t *testing.T) {
	got := string(wire.Serialize(wire.RequestLine{
		Method:      "GET",
		HTTPVersion: "1.1",
		Host:        "example.com",
		UserAgent:   "evhttp/0.1",
	}))

	want := "GET / HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"User-Agent: evhttp/0.1\r\n" +
		"Accept: */*\r\n" +
		"Accept-Encoding: gzip\r\n" +
		"Accept-Language: en\r\n" +
		"Connection: close\r\n" +
		"\r\n"

	if got != want {
		t.Errorf("Serialize() = %q, want %q", got, want)
	}
}

func TestSerialize_PathAndQuery(t *testing.T) {
	got := string(wire.Serialize(wire.RequestLine{
		Method:      "GET",
		Path:        "/search",
		Query:       "q=go",
		HTTPVersion: "1.1",
		Host:        "example.com",
	}))

	if !strings.HasPrefix(got, "GET /search?q=go HTTP/1.1\r\n") {
		t.Errorf("Serialize() start line wrong: %q", got)
	}
}

func TestSerialize_CaseInsensitiveOverride(t *testing.T) {
	got := string(wire.Serialize(wire.RequestLine{
		Method:      "GET",
		HTTPVersion: "1.1",
		Host:        "example.com",
		Headers: map[string]string{
			"connection":      "keep-alive",
			"ACCEPT-ENCODING": "identity",
			"X-Custom":        "1",
		},
	}))

	if strings.Contains(got, "Connection: close") {
		t.Errorf("override of Connection did not take effect: %q", got)
	}
	if !strings.Contains(got, "connection: keep-alive") {
		t.Errorf("expected caller's casing for overridden header: %q", got)
	}
	if !strings.Contains(got, "ACCEPT-ENCODING: identity") {
		t.Errorf("expected caller's casing preserved: %q", got)
	}
	if !strings.Contains(got, "X-Custom: 1") {
		t.Errorf("expected extra header to be appended: %q", got)
	}
}

func TestSerialize_NoBodyFramingHeadersSynthesized(t *testing.T) {
	got := string(wire.Serialize(wire.RequestLine{Method: "POST", HTTPVersion: "1.1", Host: "x"}))

	if strings.Contains(got, "Content-Length") || strings.Contains(got, "Transfer-Encoding") {
		t.Errorf("Serialize() must not synthesize body-framing headers: %q", got)
	}
}

func TestParse_StatusAndHeaders(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\nLocation: /x\r\n\r\n"

	status, headers, err := wire.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if status.Proto != "HTTP/1.1" || status.StatusCode != 200 || status.Reason != "OK" {
		t.Errorf("Parse() status = %+v", status)
	}

	for _, key := range []string{"location", "Location", "LOCATION"} {
		if v, ok := headers.Get(key); !ok || v != "/x" {
			t.Errorf("headers.Get(%q) = %q, %v; want /x, true", key, v, ok)
		}
	}

	if v, _ := headers.Get("content-length"); v != "5" {
		t.Errorf("content-length = %q, want 5", v)
	}
}

func TestParse_SkipsMalformedHeaderLines(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nnot-a-header-line\r\nX-Ok: yes\r\n\r\n"

	_, headers, err := wire.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if v, ok := headers.Get("x-ok"); !ok || v != "yes" {
		t.Errorf("expected x-ok=yes to survive malformed line, got %q, %v", v, ok)
	}
	if len(headers) != 1 {
		t.Errorf("expected malformed line to be skipped, got %d headers: %v", len(headers), headers)
	}
}

func TestParse_MalformedStatusLine(t *testing.T) {
	if _, _, err := wire.Parse([]byte("garbage\r\n\r\n")); err == nil {
		t.Error("expected error for malformed status line")
	}
}

func TestParse_FullHeaderMap(t *testing.T) {
	raw := "HTTP/1.1 301 Moved Permanently\r\nLocation: /b\r\nContent-Length: 0\r\n\r\n"

	_, headers, err := wire.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := wire.Headers{"location": "/b", "content-length": "0"}
	if diff := cmp.Diff(want, headers); diff != "" {
		t.Errorf("Parse() headers mismatch (-want +got):\n%s", diff)
	}
}

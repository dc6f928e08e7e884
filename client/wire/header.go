package wire

import (
	"fmt"
	"strings"
)

// RequestLine describes everything Serialize needs to produce the bytes
// written to the socket during WillSendHeaders. It deliberately carries no
// behavior of its own — callers (the client package) own the Request type;
// this is just the wire-shape view of one.
type RequestLine struct {
	Method      string
	Path        string // defaults to "/" when empty
	Query       string // appended after '?' when non-empty
	HTTPVersion string // "1.0" or "1.1"
	Host        string // authority, including port if non-default
	UserAgent   string
	Headers     map[string]string // caller-supplied; overrides defaults on case-insensitive name match
}

// defaultHeader is one name/value pair of the header block Serialize emits
// before any caller overrides are applied. Order is preserved on output.
type defaultHeader struct {
	name  string
	value string
}

// Serialize emits the request line and header block for rl, terminated by
// the blank line that ends an HTTP/1.x header section. No body-framing
// headers (Content-Length, Transfer-Encoding) are synthesized; a caller
// uploading a body must supply those via Headers.
func Serialize(rl RequestLine) []byte {
	path := rl.Path
	if path == "" {
		path = "/"
	}
	if rl.Query != "" {
		path += "?" + rl.Query
	}

	defaults := []defaultHeader{
		{"Host", rl.Host},
		{"User-Agent", rl.UserAgent},
		{"Accept", "*/*"},
		{"Accept-Encoding", "gzip"},
		{"Accept-Language", "en"},
		{"Connection", "close"},
	}

	overridden := make(map[string]bool, len(defaults))
	for i, d := range defaults {
		if v, name, ok := lookupCaseInsensitive(rl.Headers, d.name); ok {
			defaults[i].name = name
			defaults[i].value = v
			overridden[strings.ToLower(name)] = true
			overridden[strings.ToLower(d.name)] = true
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s HTTP/%s\r\n", rl.Method, path, rl.HTTPVersion)
	for _, d := range defaults {
		fmt.Fprintf(&b, "%s: %s\r\n", d.name, d.value)
	}
	for name, value := range rl.Headers {
		if overridden[strings.ToLower(name)] {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\r\n", name, value)
	}
	b.WriteString("\r\n")

	return []byte(b.String())
}

// lookupCaseInsensitive finds want in headers ignoring case, returning the
// matched value and the key exactly as the caller spelled it.
func lookupCaseInsensitive(headers map[string]string, want string) (value, key string, ok bool) {
	for k, v := range headers {
		if strings.EqualFold(k, want) {
			return v, k, true
		}
	}
	return "", "", false
}

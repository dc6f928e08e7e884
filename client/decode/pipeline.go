package decode

import (
	"fmt"
	"strings"
)

// Pipeline is the decoder chain for one response body: a rawFeed at the
// bottom, fed socket bytes by the scheduler, topped by whatever chain of
// Chunked/Inflate steps the response's framing and content-coding headers
// call for.
type Pipeline struct {
	feed *rawFeed
	top  Decoder
}

// Build inspects transferEncoding and contentEncoding (both as sent on
// the wire, comma-separated, outermost-last per RFC 7230 §3.3.1) and
// constructs the decoder chain that turns raw socket bytes into a
// decoded body. A Content-Encoding token already consumed by
// Transfer-Encoding is not applied a second time.
func Build(transferEncoding, contentEncoding string) (*Pipeline, error) {
	feed := &rawFeed{}
	var top Decoder = feed

	teTokens := splitTokens(transferEncoding)
	applied := make(map[string]bool, len(teTokens))
	for _, tok := range teTokens {
		switch tok {
		case "chunked":
			top = NewChunked(top)
		case "identity", "":
			// no-op
		case "gzip", "x-gzip":
			top = NewInflate(top, FormatGzip)
		case "deflate":
			top = NewInflate(top, FormatDeflate)
		default:
			return nil, fmt.Errorf("decode: unsupported transfer-encoding token %q", tok)
		}
		applied[tok] = true
	}

	for _, tok := range splitTokens(contentEncoding) {
		if applied[tok] {
			continue
		}
		switch tok {
		case "identity", "":
			// no-op
		case "gzip", "x-gzip":
			top = NewInflate(top, FormatGzip)
		case "deflate":
			top = NewInflate(top, FormatDeflate)
		default:
			return nil, fmt.Errorf("decode: unsupported content-encoding token %q", tok)
		}
	}

	return &Pipeline{feed: feed, top: top}, nil
}

// Feed appends newly-read socket bytes to the bottom of the chain.
func (p *Pipeline) Feed(raw []byte) { p.feed.Feed(raw) }

// SetEOF marks the socket side closed; Read reports eof once every
// buffered byte has worked its way through every stage.
func (p *Pipeline) SetEOF() { p.feed.SetEOF() }

// Read pulls up to max decoded bytes out of the top of the chain.
func (p *Pipeline) Read(max int) (b []byte, eof bool, err error) {
	return p.top.Read(max)
}

// Close releases any background resources (an Inflate stage's
// decompression goroutine) held by the chain. Safe to call even if no
// stage needs it.
func (p *Pipeline) Close() {
	for d := p.top; d != nil; {
		switch v := d.(type) {
		case *Inflate:
			_ = v.Close()
			d = v.upstream
		case *Chunked:
			d = v.upstream
		case *rawFeed:
			d = nil
		default:
			d = nil
		}
	}
}

func splitTokens(header string) []string {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

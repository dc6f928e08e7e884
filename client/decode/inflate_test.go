package decode_test

import (
	"bytes"
	"compress/gzip"
	"testing"
	"time"

	"evhttp/client/decode"
)

func gzipBytes(t *testing.T, plain string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(plain)); err != nil {
		t.Fatalf("gzip.Write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip.Close: %v", err)
	}
	return buf.Bytes()
}

// drainAsync polls a Decoder backed by a background goroutine (Inflate),
// the way the scheduler's tick loop would: repeatedly Read until eof,
// tolerating empty, non-eof results in between.
func drainAsync(t *testing.T, d decode.Decoder) []byte {
	t.Helper()
	var out []byte
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		p, eof, err := d.Read(1 << 16)
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		out = append(out, p...)
		if eof {
			return out
		}
		if len(p) == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	t.Fatal("drainAsync: deadline exceeded waiting for eof")
	return nil
}

func TestInflate_Gzip_WholeBufferAtOnce(t *testing.T) {
	want := "the quick brown fox jumps over the lazy dog"
	raw := gzipBytes(t, want)

	inf := decode.NewInflate(&feedStub{chunks: [][]byte{raw}, eof: true}, decode.FormatGzip)
	defer inf.Close()

	got := drainAsync(t, inf)
	if string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestInflate_Gzip_SplitAcrossFeeds(t *testing.T) {
	want := "split across several reads to prove partial buffers are tolerated"
	raw := gzipBytes(t, want)

	var chunks [][]byte
	for i := 0; i < len(raw); i += 3 {
		end := min(i+3, len(raw))
		chunks = append(chunks, raw[i:end])
	}

	inf := decode.NewInflate(&feedStub{chunks: chunks, eof: true}, decode.FormatGzip)
	defer inf.Close()

	got := drainAsync(t, inf)
	if string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestInflate_CorruptStreamReportsError(t *testing.T) {
	inf := decode.NewInflate(&feedStub{chunks: [][]byte{[]byte("not a gzip stream")}, eof: true}, decode.FormatGzip)
	defer inf.Close()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, _, err := inf.Read(64)
		if err != nil {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("expected an error decoding a corrupt gzip stream")
}

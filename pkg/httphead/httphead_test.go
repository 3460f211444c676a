package httphead

import (
	"bytes"
	"testing"
)

func TestParseHeadOnly(t *testing.T) {
	p := NewParser()
	req := "GET /x HTTP/1.1\r\nHost: orig\r\nUser-Agent: curl\r\n\r\n"
	if err := p.Feed([]byte(req)); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if p.RequestLine() != "GET /x HTTP/1.1" {
		t.Fatalf("request line = %q", p.RequestLine())
	}
	if v, ok := p.Header("host"); !ok || v != "orig" {
		t.Fatalf("Host header = %q, %v", v, ok)
	}
	if len(p.Body()) != 0 {
		t.Fatalf("expected empty body, got %q", p.Body())
	}
}

func TestParseNeedMoreAcrossWrites(t *testing.T) {
	p := NewParser()
	if err := p.Feed([]byte("POST /y HTTP/1.1\r\nHost: a\r\n")); err != ErrNeedMore {
		t.Fatalf("expected NeedMore on partial head, got %v", err)
	}
	if err := p.Feed([]byte("Content-Length: 5\r\n\r\nhel")); err != ErrNeedMore {
		t.Fatalf("expected NeedMore on partial body, got %v", err)
	}
	if err := p.Feed([]byte("lo")); err != nil {
		t.Fatalf("expected complete request, got %v", err)
	}
	if string(p.Body()) != "hello" {
		t.Fatalf("body = %q", p.Body())
	}
}

func TestRewriteIdempotenceModuloHostXFF(t *testing.T) {
	p := NewParser()
	req := "GET /x HTTP/1.1\r\nHost: orig\r\nAccept: */*\r\n\r\n"
	if err := p.Feed([]byte(req)); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	out := Rewrite(p, "backend.internal:8080", "203.0.113.5")
	if !bytes.Contains(out, []byte("GET /x HTTP/1.1\r\n")) {
		t.Fatalf("request line changed: %q", out)
	}
	if !bytes.Contains(out, []byte("Host: backend.internal:8080\r\n")) {
		t.Fatalf("Host not rewritten: %q", out)
	}
	if !bytes.Contains(out, []byte("X-Forwarded-For: 203.0.113.5\r\n")) {
		t.Fatalf("X-Forwarded-For not set: %q", out)
	}
	if !bytes.Contains(out, []byte("Accept: */*\r\n")) {
		t.Fatalf("other header dropped: %q", out)
	}
}

func TestResetAllowsKeepAlive(t *testing.T) {
	p := NewParser()
	first := "GET /a HTTP/1.1\r\nHost: h\r\n\r\n"
	second := "GET /b HTTP/1.1\r\nHost: h\r\n\r\n"
	if err := p.Feed([]byte(first + second)); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if p.RequestLine() != "GET /a HTTP/1.1" {
		t.Fatalf("first request line = %q", p.RequestLine())
	}
	p.Reset()
	if err := p.Feed(nil); err != nil {
		t.Fatalf("Feed after reset: %v", err)
	}
	if p.RequestLine() != "GET /b HTTP/1.1" {
		t.Fatalf("second request line = %q", p.RequestLine())
	}
}

func TestMalformedRequestLineRejected(t *testing.T) {
	p := NewParser()
	if err := p.Feed([]byte("not a request\r\n\r\n")); err == nil || err == ErrNeedMore {
		t.Fatalf("expected parse error, got %v", err)
	}
}

// Package httphead parses an HTTP/1.x request head (request-line + headers)
// off a streaming byte source and rewrites Host/X-Forwarded-For before
// forwarding the request to a Backend.
package httphead

import (
	"bytes"
	"strconv"
	"strings"

	rerr "github.com/rtcplabs/rtcp/pkg/errors"
)

// ErrNeedMore is returned by Feed when the accumulated buffer does not yet
// hold a complete request (head, or head plus declared Content-Length body).
var ErrNeedMore = rerr.NewProtocolError("need more bytes", nil)

// Header is one request header line, order-preserving.
type Header struct {
	Name  string
	Value string
}

// Parser accumulates bytes for a single HTTP/1.x request and exposes its
// parsed parts once complete. Call Reset after consuming a completed
// request to parse the next one on the same keep-alive connection.
type Parser struct {
	buf []byte

	headParsed    bool
	requestLine   string
	headers       []Header
	contentLength int
	haveLength    bool
	headLen       int // bytes consumed by request-line + headers + blank line
}

// NewParser returns an empty Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Feed appends data to the internal buffer and attempts to parse a complete
// request. It returns nil once a full request (head, and body if
// Content-Length was declared) is available, or ErrNeedMore if more bytes
// are required. Any other error is a parse failure; the caller must
// terminate the session per the terminate-on-parse-failure policy.
func (p *Parser) Feed(data []byte) error {
	p.buf = append(p.buf, data...)

	if !p.headParsed {
		if err := p.parseHead(); err != nil {
			return err
		}
	}

	if p.haveLength && len(p.buf)-p.headLen < p.contentLength {
		return ErrNeedMore
	}
	return nil
}

func (p *Parser) parseHead() error {
	end := bytes.Index(p.buf, []byte("\r\n\r\n"))
	if end < 0 {
		return ErrNeedMore
	}
	head := p.buf[:end]
	p.headLen = end + 4

	lineEnd := bytes.Index(head, []byte("\r\n"))
	if lineEnd < 0 {
		p.requestLine = string(head)
		head = nil
	} else {
		p.requestLine = string(head[:lineEnd])
		head = head[lineEnd+2:]
	}
	if !isValidRequestLine(p.requestLine) {
		return rerr.NewProtocolError("malformed request line: "+p.requestLine, nil)
	}

	for len(head) > 0 {
		nl := bytes.Index(head, []byte("\r\n"))
		var line []byte
		if nl < 0 {
			line = head
			head = nil
		} else {
			line = head[:nl]
			head = head[nl+2:]
		}
		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			return rerr.NewProtocolError("malformed header line: "+string(line), nil)
		}
		name := strings.TrimSpace(string(line[:colon]))
		value := strings.TrimSpace(string(line[colon+1:]))
		p.setHeader(name, value)
	}

	if v, ok := p.Header("Content-Length"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return rerr.NewProtocolError("invalid Content-Length: "+v, nil)
		}
		p.contentLength = n
		p.haveLength = true
	}

	p.headParsed = true
	return nil
}

func isValidRequestLine(line string) bool {
	parts := strings.Split(line, " ")
	return len(parts) == 3 && parts[0] != "" && parts[1] != "" && strings.HasPrefix(parts[2], "HTTP/")
}

// setHeader overwrites an existing header of the same name (case-insensitive)
// or appends a new one, preserving first-seen position.
func (p *Parser) setHeader(name, value string) {
	for i := range p.headers {
		if strings.EqualFold(p.headers[i].Name, name) {
			p.headers[i].Value = value
			return
		}
	}
	p.headers = append(p.headers, Header{Name: name, Value: value})
}

// Header returns the value of the named header, case-insensitively.
func (p *Parser) Header(name string) (string, bool) {
	for _, h := range p.headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// RequestLine returns the parsed request line without its terminating CRLF.
func (p *Parser) RequestLine() string {
	return p.requestLine
}

// Headers returns the parsed headers in first-seen order.
func (p *Parser) Headers() []Header {
	return p.headers
}

// Body returns the accumulated body bytes, empty if no Content-Length was
// declared.
func (p *Parser) Body() []byte {
	if !p.haveLength {
		return nil
	}
	return p.buf[p.headLen : p.headLen+p.contentLength]
}

// Reset clears all parsed state so the next request on the same stream can
// be parsed. Any bytes belonging to a subsequent pipelined request are
// preserved.
func (p *Parser) Reset() {
	var leftover []byte
	if p.headParsed {
		consumed := p.headLen
		if p.haveLength {
			consumed += p.contentLength
		}
		if consumed < len(p.buf) {
			leftover = append([]byte{}, p.buf[consumed:]...)
		}
	}
	*p = Parser{buf: leftover}
}

// Rewrite renders the parsed request with Host replaced by configuredHost
// and X-Forwarded-For set to forwardedFor, preserving every other header
// and the body verbatim.
func Rewrite(p *Parser, configuredHost, forwardedFor string) []byte {
	var out bytes.Buffer
	out.WriteString(p.RequestLine())
	out.WriteString("\r\n")

	wroteHost, wroteXFF := false, false
	for _, h := range p.Headers() {
		switch {
		case strings.EqualFold(h.Name, "Host"):
			out.WriteString("Host: ")
			out.WriteString(configuredHost)
			out.WriteString("\r\n")
			wroteHost = true
		case strings.EqualFold(h.Name, "X-Forwarded-For"):
			out.WriteString("X-Forwarded-For: ")
			out.WriteString(forwardedFor)
			out.WriteString("\r\n")
			wroteXFF = true
		default:
			out.WriteString(h.Name)
			out.WriteString(": ")
			out.WriteString(h.Value)
			out.WriteString("\r\n")
		}
	}
	if !wroteHost {
		out.WriteString("Host: ")
		out.WriteString(configuredHost)
		out.WriteString("\r\n")
	}
	if !wroteXFF {
		out.WriteString("X-Forwarded-For: ")
		out.WriteString(forwardedFor)
		out.WriteString("\r\n")
	}
	out.WriteString("\r\n")
	out.Write(p.Body())
	return out.Bytes()
}

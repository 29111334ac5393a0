package request

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/zeljkobekcic/webserver/internal/headers"
)

// chunkReader hands out at most n bytes per Read, like a slow socket.
type chunkReader struct {
	data string
	n    int
	pos  int
}

func (cr *chunkReader) Read(p []byte) (int, error) {
	if cr.pos >= len(cr.data) {
		return 0, io.EOF
	}
	end := cr.pos + cr.n
	if end > len(cr.data) {
		end = len(cr.data)
	}
	n := copy(p, cr.data[cr.pos:end])
	cr.pos += n
	return n, nil
}

func TestRequestLineParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		method  string
		target  string
		version string
	}{
		{
			name:    "GET with version",
			input:   "GET /index.html HTTP/1.0\r\nHost: localhost\r\n\r\n",
			method:  "GET",
			target:  "/index.html",
			version: "1.0",
		},
		{
			name:   "no version",
			input:  "HEAD /a.txt\r\n\r\n",
			method: "HEAD",
			target: "/a.txt",
		},
		{
			name:    "bare LF and extra whitespace",
			input:   "POST    /form   HTTP/1.1\nContent-Length: 3\n\nabc",
			method:  "POST",
			target:  "/form",
			version: "1.1",
		},
		{
			name:    "lowercase method kept verbatim",
			input:   "get / HTTP/1.0\r\n\r\n",
			method:  "get",
			target:  "/",
			version: "1.0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := RequestFromReader(&chunkReader{data: tt.input, n: 3})
			if err != nil {
				t.Fatalf("RequestFromReader() error: %v", err)
			}
			if r.RequestLine.Method != tt.method {
				t.Errorf("Method = %q, want %q", r.RequestLine.Method, tt.method)
			}
			if r.RequestLine.RequestTarget != tt.target {
				t.Errorf("RequestTarget = %q, want %q", r.RequestLine.RequestTarget, tt.target)
			}
			if r.RequestLine.HttpVersion != tt.version {
				t.Errorf("HttpVersion = %q, want %q", r.RequestLine.HttpVersion, tt.version)
			}
		})
	}
}

func TestHeadersParse(t *testing.T) {
	input := "GET / HTTP/1.0\r\n" +
		"Host: localhost:6789\r\n" +
		"Accept: */*\r\n" +
		"this line has no colon\r\n" +
		"USER-AGENT:   test-agent/1.0  \r\n" +
		"\r\n"
	r, err := RequestFromReader(strings.NewReader(input))
	if err != nil {
		t.Fatalf("RequestFromReader() error: %v", err)
	}
	if got := r.UserAgent(); got != "test-agent/1.0" {
		t.Errorf("UserAgent() = %q, want test-agent/1.0", got)
	}
	if got := r.Headers.Get("host"); got != "localhost:6789" {
		t.Errorf("Host = %q", got)
	}
	if r.Headers.Len() != 3 {
		t.Errorf("Headers.Len() = %d, want 3", r.Headers.Len())
	}
}

func TestMissingUserAgentDoesNotBlock(t *testing.T) {
	// No User-Agent and no terminating blank line: EOF ends the header block.
	r, err := RequestFromReader(strings.NewReader("GET /missing HTTP/1.0\r\nHost: x\r\n"))
	if err != nil {
		t.Fatalf("RequestFromReader() error: %v", err)
	}
	if got := r.UserAgent(); got != "" {
		t.Errorf("UserAgent() = %q, want empty", got)
	}
}

func TestBodyLeftUnread(t *testing.T) {
	sr := strings.NewReader("POST /x HTTP/1.0\r\nContent-Length: 5\r\n\r\nhello")
	r, err := RequestFromReader(sr)
	if err != nil {
		t.Fatalf("RequestFromReader() error: %v", err)
	}
	if r.RequestLine.Method != "POST" {
		t.Errorf("Method = %q", r.RequestLine.Method)
	}
}

func TestRequestErrors(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      error
		malformed bool
		partial   bool
	}{
		{"empty input", "", io.EOF, false, false},
		{"single token", "GET\r\n\r\n", ErrMalformedRequestLine, true, false},
		{"blank request line", "\r\n\r\n", ErrMalformedRequestLine, true, false},
		{"line too long", "GET /" + strings.Repeat("a", MaxLineBytes) + " HTTP/1.0\r\n\r\n", ErrLineTooLong, true, false},
		{"header line too long", "POST / HTTP/1.0\r\nX-A: " + strings.Repeat("b", MaxLineBytes) + "\r\n\r\n", ErrLineTooLong, true, true},
		{"too many headers", "POST / HTTP/1.0\r\n" + strings.Repeat("X-A: b\r\n", MaxHeaderLines+1) + "\r\n", ErrHeadersTooLarge, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := RequestFromReader(strings.NewReader(tt.input))
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if IsMalformed(err) != tt.malformed {
				t.Errorf("IsMalformed(%v) = %v, want %v", err, IsMalformed(err), tt.malformed)
			}
			if (r != nil) != tt.partial {
				t.Fatalf("request = %v, want request returned: %v", r, tt.partial)
			}
			if r != nil && r.RequestLine.Method != "POST" {
				t.Errorf("Method = %q, want POST", r.RequestLine.Method)
			}
		})
	}
}

// failingReader returns data and then err instead of EOF.
type failingReader struct {
	data string
	err  error
}

func (fr *failingReader) Read(p []byte) (int, error) {
	if fr.data == "" {
		return 0, fr.err
	}
	n := copy(p, fr.data)
	fr.data = fr.data[n:]
	return n, nil
}

func TestHeaderReadErrorKeepsRequest(t *testing.T) {
	timeout := errors.New("i/o timeout")
	r, err := RequestFromReader(&failingReader{
		data: "HEAD /index.html HTTP/1.0\r\nUser-Agent: slow\r\n",
		err:  timeout,
	})
	if !errors.Is(err, timeout) {
		t.Fatalf("error = %v, want %v", err, timeout)
	}
	if IsMalformed(err) {
		t.Errorf("IsMalformed(%v) = true", err)
	}
	if r == nil {
		t.Fatal("request = nil, want the parsed request line")
	}
	if r.RequestLine.Method != "HEAD" || r.RequestLine.RequestTarget != "/index.html" {
		t.Errorf("RequestLine = %+v", r.RequestLine)
	}
	if got := r.UserAgent(); got != "slow" {
		t.Errorf("UserAgent() = %q, want slow", got)
	}
}

func TestReadRequestStop(t *testing.T) {
	stopAtAgent := func(rl RequestLine, h headers.Headers) bool {
		return rl.Method != "GET" || h.Has("User-Agent")
	}
	tests := []struct {
		name    string
		input   string
		agent   string
		headers int
	}{
		{"GET stops after User-Agent", "GET / HTTP/1.0\r\nHost: a\r\nUser-Agent: ua\r\nAccept: */*\r\n", "ua", 2},
		{"HEAD reads no headers", "HEAD / HTTP/1.0\r\nUser-Agent: ua\r\n\r\n", "", 0},
		{"GET without User-Agent reads to blank line", "GET / HTTP/1.0\r\nHost: a\r\n\r\n", "", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// A reader that fails once the input is spent shows the parser
			// never asked for more than it needed.
			r, err := ReadRequest(&failingReader{data: tt.input, err: errors.New("read past stop")}, stopAtAgent)
			if err != nil {
				t.Fatalf("ReadRequest() error: %v", err)
			}
			if got := r.UserAgent(); got != tt.agent {
				t.Errorf("UserAgent() = %q, want %q", got, tt.agent)
			}
			if r.Headers.Len() != tt.headers {
				t.Errorf("Headers.Len() = %d, want %d", r.Headers.Len(), tt.headers)
			}
		})
	}
}

func TestRepeatedUserAgentFirstWins(t *testing.T) {
	r, err := RequestFromReader(strings.NewReader(
		"GET / HTTP/1.0\r\nUser-Agent: first\r\nAccept: a\r\nUser-Agent: second\r\nAccept: b\r\n\r\n"))
	if err != nil {
		t.Fatal(err)
	}
	if got := r.UserAgent(); got != "first" {
		t.Errorf("UserAgent() = %q, want first", got)
	}
	if got := r.Headers.Get("Accept"); got != "a, b" {
		t.Errorf("Accept = %q, want %q", got, "a, b")
	}
}

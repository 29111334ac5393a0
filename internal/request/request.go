package request

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/zeljkobekcic/webserver/internal/headers"
)

const (
	// MaxLineBytes bounds a single request or header line.
	MaxLineBytes = 8 << 10
	// MaxHeaderLines bounds the number of header lines read after the request line.
	MaxHeaderLines = 100
)

var (
	ErrMalformedRequestLine = errors.New("malformed request line")
	ErrLineTooLong          = errors.New("request line or header too long")
	ErrHeadersTooLarge      = errors.New("too many header lines")
)

// IsMalformed reports whether err means the client sent something we should
// answer with 400 rather than an I/O failure. It only matters when no
// Request came back: a cut-short header block is still answered normally.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedRequestLine) ||
		errors.Is(err, ErrLineTooLong) ||
		errors.Is(err, ErrHeadersTooLarge)
}

// RequestLine is the first line of a request.
type RequestLine struct {
	Method        string
	RequestTarget string
	HttpVersion   string
}

// Request is a single parsed request. It is owned by one connection.
type Request struct {
	RequestLine RequestLine
	Headers     headers.Headers
	RemoteAddr  string
}

// UserAgent returns the User-Agent header value, or "" when absent.
func (r *Request) UserAgent() string {
	return r.Headers.Get("User-Agent")
}

// StopFunc reports whether the fields read so far are enough to answer the
// request. It is called after the request line and after each header field.
type StopFunc func(rl RequestLine, h headers.Headers) bool

// firstWins lists fields where a repeated line is ignored instead of being
// combined with the earlier value.
var firstWins = map[string]bool{
	"host":       true,
	"user-agent": true,
}

// RequestFromReader parses one request line and the header block that
// follows it. The header block ends at a blank line or at EOF. The body, if
// any, is left unread.
func RequestFromReader(reader io.Reader) (*Request, error) {
	return ReadRequest(reader, nil)
}

// ReadRequest is RequestFromReader with an early stop: once stop returns
// true no further header lines are read.
//
// A nil Request means the request line itself could not be read or parsed.
// When the request line parsed but the header block was cut short by a read
// error or a limit, ReadRequest returns the Request with the fields read so
// far together with that error, so the caller can still answer it.
func ReadRequest(reader io.Reader, stop StopFunc) (*Request, error) {
	br, ok := reader.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(reader)
	}

	line, err := readLine(br)
	if err != nil {
		return nil, fmt.Errorf("reading request line: %w", err)
	}
	rl, err := parseRequestLine(line)
	if err != nil {
		return nil, err
	}

	req := &Request{
		RequestLine: rl,
		Headers:     headers.NewHeaders(),
	}
	if err := readHeaders(br, req, stop); err != nil {
		return req, err
	}
	return req, nil
}

func parseRequestLine(line string) (RequestLine, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return RequestLine{}, fmt.Errorf("%w: %q", ErrMalformedRequestLine, line)
	}
	rl := RequestLine{
		Method:        fields[0],
		RequestTarget: fields[1],
	}
	if len(fields) > 2 {
		rl.HttpVersion = strings.TrimPrefix(fields[2], "HTTP/")
	}
	return rl, nil
}

func readHeaders(br *bufio.Reader, req *Request, stop StopFunc) error {
	h := &req.Headers
	for n := 1; ; n++ {
		if stop != nil && stop(req.RequestLine, *h) {
			return nil
		}
		line, err := readLine(br)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading headers: %w", err)
		}
		if line == "" {
			return nil
		}
		if n > MaxHeaderLines {
			return ErrHeadersTooLarge
		}
		name, value, ok := headers.ParseLine(line)
		if !ok {
			continue
		}
		if firstWins[strings.ToLower(name)] && h.Has(name) {
			continue
		}
		h.Set(name, value)
	}
}

// readLine reads one CRLF or LF terminated line without its terminator.
func readLine(br *bufio.Reader) (string, error) {
	var line []byte
	for {
		l, more, err := br.ReadLine()
		if err != nil {
			return "", err
		}
		if len(line)+len(l) > MaxLineBytes {
			return "", ErrLineTooLong
		}
		line = append(line, l...)
		if !more {
			return string(line), nil
		}
	}
}

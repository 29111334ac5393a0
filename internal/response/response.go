package response

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/zeljkobekcic/webserver/internal/headers"
)

// StatusCode represents an HTTP status code
type StatusCode int

// HTTP status codes we support
const (
	StatusOK             StatusCode = 200
	StatusBadRequest     StatusCode = 400
	StatusNotFound       StatusCode = 404
	StatusNotImplemented StatusCode = 501
)

// Protocol is the version token written on every status line.
const Protocol = "HTTP/1.0"

// ChunkSize is the buffer size used when copying a file body to the client.
const ChunkSize = 1024

const (
	localDateLayout = "Mon, 02 Jan 2006 15:04:05"
	gmtDateLayout   = "Mon, 02 Jan 2006 15:04:05 GMT"
)

// ReasonPhrase returns the reason phrase for a status code.
func ReasonPhrase(statusCode StatusCode) string {
	switch statusCode {
	case StatusOK:
		return "OK"
	case StatusBadRequest:
		return "Bad Request"
	case StatusNotFound:
		return "Not Found"
	case StatusNotImplemented:
		return "Not Implemented"
	default:
		return ""
	}
}

// FormatDate renders t for the Date header. By default the server's local
// zone is used without a zone suffix; gmt switches to the RFC 7231 form.
func FormatDate(t time.Time, gmt bool) string {
	if gmt {
		return t.UTC().Format(gmtDateLayout)
	}
	return t.Local().Format(localDateLayout)
}

// WriteStatusLine writes the HTTP status line to the writer
func WriteStatusLine(w io.Writer, statusCode StatusCode) error {
	statusLine := fmt.Sprintf("%s %d %s\r\n", Protocol, int(statusCode), ReasonPhrase(statusCode))
	_, err := io.WriteString(w, statusLine)
	return err
}

// GetDefaultHeaders returns the Date, Content-Type and Content-Length
// headers in the order every response uses.
func GetDefaultHeaders(date, contentType string, contentLen int64) headers.Headers {
	h := headers.NewHeaders()
	h.Set("Date", date)
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.FormatInt(contentLen, 10))
	return h
}

// WriteHeaders writes HTTP headers to the writer followed by the blank line
// that separates them from the body.
func WriteHeaders(w io.Writer, h headers.Headers) error {
	if _, err := h.WriteTo(w); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

// writerState tracks the state of the response writer
type writerState int

const (
	stateStart writerState = iota
	stateStatusWritten
	stateHeadersWritten
	stateBodyWritten
	stateClosed
)

// Writer writes exactly one response: status line, headers, optional body.
// Output is buffered until Close.
type Writer struct {
	bufw    *bufio.Writer
	counter *countingWriter
	state   writerState
	status  StatusCode
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// NewWriter creates a new response writer
func NewWriter(w io.Writer) *Writer {
	cw := &countingWriter{w: w}
	return &Writer{
		bufw:    bufio.NewWriterSize(cw, 4<<10),
		counter: cw,
		state:   stateStart,
	}
}

// Status returns the status written so far, or 0.
func (w *Writer) Status() StatusCode {
	return w.status
}

// Written returns the number of bytes that reached the underlying writer.
func (w *Writer) Written() int64 {
	return w.counter.n
}

// WriteStatusLine writes the HTTP status line
func (w *Writer) WriteStatusLine(statusCode StatusCode) error {
	if w.state != stateStart {
		return fmt.Errorf("status line must be written first")
	}

	err := WriteStatusLine(w.bufw, statusCode)
	if err == nil {
		w.state = stateStatusWritten
		w.status = statusCode
	}
	return err
}

// WriteHeaders writes the HTTP headers
func (w *Writer) WriteHeaders(h headers.Headers) error {
	if w.state != stateStatusWritten {
		return fmt.Errorf("headers must be written after status line and before body")
	}

	err := WriteHeaders(w.bufw, h)
	if err == nil {
		w.state = stateHeadersWritten
	}
	return err
}

// WriteBody writes the response body
func (w *Writer) WriteBody(p []byte) (int, error) {
	if w.state != stateHeadersWritten {
		return 0, fmt.Errorf("body must be written after headers")
	}

	n, err := w.bufw.Write(p)
	if err == nil {
		w.state = stateBodyWritten
	}
	return n, err
}

// CopyBody streams r to the client in ChunkSize pieces until EOF. Bytes are
// passed through untouched.
func (w *Writer) CopyBody(r io.Reader) (int64, error) {
	if w.state != stateHeadersWritten {
		return 0, fmt.Errorf("body must be written after headers")
	}

	buf := make([]byte, ChunkSize)
	var total int64
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			m, werr := w.bufw.Write(buf[:n])
			total += int64(m)
			if werr != nil {
				return total, werr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return total, rerr
		}
	}
	w.state = stateBodyWritten
	return total, nil
}

// Close flushes buffered output. It does not close the underlying writer.
func (w *Writer) Close() error {
	if w.state == stateClosed {
		return nil
	}
	w.state = stateClosed
	return w.bufw.Flush()
}

package response

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestWriterFullResponse(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	body := "<html></html>"
	if err := w.WriteStatusLine(StatusNotFound); err != nil {
		t.Fatalf("WriteStatusLine() error: %v", err)
	}
	if err := w.WriteHeaders(GetDefaultHeaders("Mon, 02 Jan 2006 15:04:05", "text/html", int64(len(body)))); err != nil {
		t.Fatalf("WriteHeaders() error: %v", err)
	}
	if _, err := w.WriteBody([]byte(body)); err != nil {
		t.Fatalf("WriteBody() error: %v", err)
	}

	if buf.Len() != 0 {
		t.Errorf("output reached the connection before Close: %q", buf.String())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	want := "HTTP/1.0 404 Not Found\r\n" +
		"Date: Mon, 02 Jan 2006 15:04:05\r\n" +
		"Content-Type: text/html\r\n" +
		"Content-Length: 13\r\n" +
		"\r\n" +
		body
	if buf.String() != want {
		t.Errorf("response = %q, want %q", buf.String(), want)
	}
	if w.Written() != int64(len(want)) {
		t.Errorf("Written() = %d, want %d", w.Written(), len(want))
	}
	if w.Status() != StatusNotFound {
		t.Errorf("Status() = %d, want 404", w.Status())
	}
}

func TestWriterOrdering(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	if err := w.WriteHeaders(GetDefaultHeaders("d", "t", 0)); err == nil {
		t.Error("WriteHeaders before status line succeeded")
	}
	if _, err := w.WriteBody([]byte("x")); err == nil {
		t.Error("WriteBody before headers succeeded")
	}
	if err := w.WriteStatusLine(StatusOK); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteStatusLine(StatusOK); err == nil {
		t.Error("second WriteStatusLine succeeded")
	}
}

func TestCopyBodyBinarySafe(t *testing.T) {
	data := make([]byte, ChunkSize*3+17)
	for i := range data {
		data[i] = byte(i % 256)
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteStatusLine(StatusOK); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteHeaders(GetDefaultHeaders("d", "application/octet-stream", int64(len(data)))); err != nil {
		t.Fatal(err)
	}
	n, err := w.CopyBody(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("CopyBody() error: %v", err)
	}
	if n != int64(len(data)) {
		t.Errorf("CopyBody() = %d, want %d", n, len(data))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	_, got, ok := strings.Cut(buf.String(), "\r\n\r\n")
	if !ok {
		t.Fatal("no header terminator")
	}
	if !bytes.Equal([]byte(got), data) {
		t.Error("body bytes differ from source")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestCopyBodyReadError(t *testing.T) {
	w := NewWriter(&bytes.Buffer{})
	_ = w.WriteStatusLine(StatusOK)
	_ = w.WriteHeaders(GetDefaultHeaders("d", "t", 1))
	if _, err := w.CopyBody(failingReader{}); err == nil {
		t.Error("CopyBody() error = nil, want read error")
	}
}

func TestFormatDate(t *testing.T) {
	ts := time.Date(2016, time.November, 3, 14, 5, 9, 0, time.UTC)

	if got := FormatDate(ts, true); got != "Thu, 03 Nov 2016 14:05:09 GMT" {
		t.Errorf("FormatDate(gmt) = %q", got)
	}
	want := ts.Local().Format("Mon, 02 Jan 2006 15:04:05")
	if got := FormatDate(ts, false); got != want {
		t.Errorf("FormatDate(local) = %q, want %q", got, want)
	}
}

func TestReasonPhrase(t *testing.T) {
	tests := map[StatusCode]string{
		StatusOK:             "OK",
		StatusBadRequest:     "Bad Request",
		StatusNotFound:       "Not Found",
		StatusNotImplemented: "Not Implemented",
		StatusCode(418):      "",
	}
	for code, want := range tests {
		if got := ReasonPhrase(code); got != want {
			t.Errorf("ReasonPhrase(%d) = %q, want %q", code, got, want)
		}
	}
}

package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/zeljkobekcic/webserver/internal/request"
	"github.com/zeljkobekcic/webserver/internal/response"
)

const (
	// drainTimeout and maxDrainBytes bound how long and how much unread
	// client input is discarded before the socket is closed, so the close
	// does not reset a response the client has not read yet.
	drainTimeout  = 250 * time.Millisecond
	maxDrainBytes = 256 << 10
)

// Result describes one finished connection.
type Result struct {
	ConnID     string
	RemoteAddr string
	Method     string
	Target     string
	UserAgent  string
	Status     int
	Bytes      int64
	Start      time.Time
	Duration   time.Duration
	// Err joins every failure seen on the connection, including close
	// failures during teardown. Nil on a clean exchange.
	Err error
}

// ConnError is a failure on a single connection. Op is one of "read",
// "write", "close" or "panic".
type ConnError struct {
	ConnID string
	Op     string
	Err    error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("conn %s: %s: %v", e.ConnID, e.Op, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }

type closer struct {
	name  string
	close func() error
}

// handle processes a single connection
func (s *Server) handle(conn net.Conn) {
	res := Result{
		ConnID:     uuid.NewString(),
		RemoteAddr: conn.RemoteAddr().String(),
		Start:      time.Now(),
	}
	log := s.logger.With("conn_id", res.ConnID, "remote", res.RemoteAddr)
	log.Debug("connection accepted")

	reader := bufio.NewReaderSize(conn, 4<<10)
	writer := response.NewWriter(conn)

	var errs []error
	defer func() {
		if p := recover(); p != nil {
			log.Error("handler panicked", "panic", p)
			errs = append(errs, &ConnError{ConnID: res.ConnID, Op: "panic", Err: fmt.Errorf("%v", p)})
		}
		if err := s.teardown(log, res.ConnID,
			closer{"writer", func() error { return closeWriter(conn, writer) }},
			closer{"reader", func() error { return drainReader(conn, reader) }},
			closer{"socket", conn.Close},
		); err != nil {
			errs = append(errs, err)
		}

		res.Status = int(writer.Status())
		res.Bytes = writer.Written()
		res.Duration = time.Since(res.Start)
		res.Err = errors.Join(errs...)
		log.Info("request served",
			"method", res.Method,
			"target", res.Target,
			"status", res.Status,
			"bytes", res.Bytes,
			"duration", res.Duration,
		)
		if s.cfg.OnResult != nil {
			s.cfg.OnResult(res)
		}
	}()

	if s.cfg.ReadTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			log.Warn("setting read deadline", "error", err)
		}
	}

	// Parse the request from the connection
	req, err := request.ReadRequest(reader, s.headersDone())
	if req == nil {
		if !request.IsMalformed(err) {
			log.Warn("reading request", "error", err)
			errs = append(errs, &ConnError{ConnID: res.ConnID, Op: "read", Err: err})
			return
		}
		log.Info("malformed request", "error", err)
		s.setWriteDeadline(conn, log)
		if err := s.writeBadRequest(writer); err != nil {
			log.Warn("writing response", "error", err)
			errs = append(errs, &ConnError{ConnID: res.ConnID, Op: "write", Err: err})
		}
		return
	}

	if err != nil {
		log.Info("header block cut short", "error", err)
	}

	req.RemoteAddr = res.RemoteAddr
	res.Method = req.RequestLine.Method
	res.Target = req.RequestLine.RequestTarget
	res.UserAgent = req.UserAgent()
	log.Debug("request parsed", "method", res.Method, "target", res.Target, "version", req.RequestLine.HttpVersion)

	s.setWriteDeadline(conn, log)
	if err := s.handler.ServeRequest(writer, req); err != nil {
		log.Warn("writing response", "error", err)
		errs = append(errs, &ConnError{ConnID: res.ConnID, Op: "write", Err: err})
	}
}

func (s *Server) headersDone() request.StopFunc {
	if h, ok := s.handler.(headerStopper); ok {
		return h.HeadersDone
	}
	return nil
}

func (s *Server) setWriteDeadline(conn net.Conn, log *slog.Logger) {
	if s.cfg.WriteTimeout <= 0 {
		return
	}
	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		log.Warn("setting write deadline", "error", err)
	}
}

// writeBadRequest answers a request that could not be parsed, through the
// handler when it knows how.
func (s *Server) writeBadRequest(w *response.Writer) error {
	if h, ok := s.handler.(badRequestWriter); ok {
		return h.WriteBadRequest(w)
	}
	body := "Bad Request\n"
	if err := w.WriteStatusLine(response.StatusBadRequest); err != nil {
		return err
	}
	h := response.GetDefaultHeaders(response.FormatDate(time.Now(), false), "text/plain", int64(len(body)))
	if err := w.WriteHeaders(h); err != nil {
		return err
	}
	_, err := w.WriteBody([]byte(body))
	return err
}

// teardown runs every closer once, in order, whatever the others return.
// Failures are logged one by one and returned joined.
func (s *Server) teardown(log *slog.Logger, connID string, closers ...closer) error {
	var errs []error
	for _, c := range closers {
		if err := c.close(); err != nil {
			log.Warn("closing "+c.name, "error", err)
			errs = append(errs, &ConnError{ConnID: connID, Op: "close", Err: fmt.Errorf("%s: %w", c.name, err)})
		}
	}
	return errors.Join(errs...)
}

// closeWriter flushes the response and half-closes the write side so the
// client sees EOF straight away.
func closeWriter(conn net.Conn, w *response.Writer) error {
	if err := w.Close(); err != nil {
		return err
	}
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}

// drainReader discards input the request parser left behind, such as a POST
// body.
func drainReader(conn net.Conn, r *bufio.Reader) error {
	if err := conn.SetReadDeadline(time.Now().Add(drainTimeout)); err != nil {
		return err
	}
	_, err := io.CopyN(io.Discard, r, maxDrainBytes)
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded) {
		return nil
	}
	return err
}

package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeljkobekcic/webserver/internal/headers"
	"github.com/zeljkobekcic/webserver/internal/request"
	"github.com/zeljkobekcic/webserver/internal/response"
)

// Handler answers one parsed request.
type Handler interface {
	ServeRequest(w *response.Writer, req *request.Request) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(w *response.Writer, req *request.Request) error

func (f HandlerFunc) ServeRequest(w *response.Writer, req *request.Request) error {
	return f(w, req)
}

// badRequestWriter is implemented by handlers that render their own 400
// response for requests that could not be parsed.
type badRequestWriter interface {
	WriteBadRequest(w *response.Writer) error
}

// headerStopper is implemented by handlers that need only some of the
// header block. Reading stops as soon as HeadersDone returns true.
type headerStopper interface {
	HeadersDone(rl request.RequestLine, h headers.Headers) bool
}

// Config controls the acceptor.
type Config struct {
	// Port is the TCP port Serve binds on all interfaces.
	Port int
	// MaxConns caps concurrently handled connections. Further clients wait
	// in the listen backlog. Zero or less means no cap.
	MaxConns int
	// ReadTimeout bounds reading the request line and headers. A request
	// whose line arrived in time is answered with the headers read so far.
	ReadTimeout time.Duration
	// WriteTimeout bounds writing the response.
	WriteTimeout time.Duration
	Logger       *slog.Logger
	// OnResult, if set, is called once per connection after teardown.
	OnResult func(Result)
}

// BindError is returned by Serve when the port cannot be bound.
type BindError struct {
	Port int
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to listen on port %d: %v", e.Port, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// Server represents an HTTP server
type Server struct {
	listener net.Listener
	handler  Handler
	cfg      Config
	logger   *slog.Logger
	slots    chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
	quit      chan struct{}
	done      chan struct{}
	conns     sync.WaitGroup
}

// Serve creates a new server and starts listening on the given port
func Serve(cfg Config, handler Handler) (*Server, error) {
	addr := fmt.Sprintf(":%d", cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &BindError{Port: cfg.Port, Err: err}
	}
	return NewServer(listener, cfg, handler), nil
}

// NewServer starts accepting on an already bound listener.
func NewServer(listener net.Listener, cfg Config, handler Handler) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		listener: listener,
		handler:  handler,
		cfg:      cfg,
		logger:   logger,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if cfg.MaxConns > 0 {
		s.slots = make(chan struct{}, cfg.MaxConns)
	}

	// Start listening in a background goroutine
	go s.listen()

	return s
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close stops accepting connections and waits for the accept loop to exit.
// Connections already being handled run to completion; see Wait.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.quit)
		err = s.listener.Close()
		<-s.done
	})
	return err
}

// Wait blocks until every accepted connection has been torn down.
func (s *Server) Wait() {
	s.conns.Wait()
}

func (s *Server) acquire() bool {
	if s.slots == nil {
		return true
	}
	select {
	case s.slots <- struct{}{}:
		return true
	case <-s.quit:
		return false
	}
}

func (s *Server) release() {
	if s.slots != nil {
		<-s.slots
	}
}

// listen accepts incoming connections and handles them
func (s *Server) listen() {
	defer close(s.done)

	var backoff time.Duration
	for {
		if !s.acquire() {
			return
		}
		conn, err := s.listener.Accept()
		if err != nil {
			s.release()
			// If server is closed, ignore connection errors
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			s.logger.Error("accept failed", "error", err, "retry_in", backoff)
			select {
			case <-time.After(backoff):
			case <-s.quit:
				return
			}
			continue
		}
		backoff = 0

		// Handle each connection in a separate goroutine
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			defer s.release()
			s.handle(conn)
		}()
	}
}

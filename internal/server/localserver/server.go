package localserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
)

// Server accepts gateway connections on a Unix domain socket and
// serves newline-delimited JSON requests against a Handler.
type Server struct {
	path    string
	handler *Handler
	logger  *slog.Logger

	listener net.Listener
	running  atomic.Bool
	wg       sync.WaitGroup
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// New creates a local server on the given socket path.
func New(socketPath string, handler *Handler, opts ...ServerOption) *Server {
	s := &Server{
		path:    socketPath,
		handler: handler,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListenAndServe starts accepting connections. A stale socket file
// from a previous run is removed first.
func (s *Server) ListenAndServe() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}

	var err error
	s.listener, err = net.Listen("unix", s.path)
	if err != nil {
		return err
	}

	s.running.Store(true)

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// Shutdown stops accepting connections and drains active ones until
// the context expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)

	var closeErr error
	if s.listener != nil {
		closeErr = s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleConnection serves one gateway connection: a stream of request
// lines, each answered with exactly one response line.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	ctx := context.Background()
	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		resp := new(Response)
		if err := json.Unmarshal(line, &req); err != nil {
			resp.Error = "malformed request: " + err.Error()
		} else {
			resp = s.handler.Execute(ctx, &req)
		}

		if err := encoder.Encode(resp); err != nil {
			s.logger.Warn("local server write failed", "error", err)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Debug("local server read ended", "error", err)
	}
}

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/internet-of-plants/libiop/internal/logging"
)

// shutdownGrace is how long Stop waits for in-flight handlers.
const shutdownGrace = 2 * time.Second

// HTTPServer is the net/http-backed Server. Start returns once the
// listener is bound; serving happens in the background.
type HTTPServer struct {
	srv      *http.Server
	listener net.Listener
}

// NewHTTPServer creates an idle server.
func NewHTTPServer() *HTTPServer {
	return &HTTPServer{}
}

// Start binds addr and begins serving handler.
func (s *HTTPServer) Start(addr string, handler http.Handler) error {
	if s.srv != nil {
		return errors.New("transport: server already started")
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: listening on %s: %w", addr, err)
	}
	s.listener = listener
	s.srv = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("HTTP server stopped unexpectedly", zap.Error(err))
		}
	}()
	logging.Info("HTTP listener started", zap.String("addr", listener.Addr().String()))
	return nil
}

// Addr reports the bound address, useful when addr was ":0".
func (s *HTTPServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the listener down, waiting briefly for in-flight handlers.
func (s *HTTPServer) Stop() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	err := s.srv.Shutdown(ctx)
	s.srv = nil
	s.listener = nil
	if err != nil {
		return fmt.Errorf("transport: shutting down server: %w", err)
	}
	logging.Info("HTTP listener stopped")
	return nil
}

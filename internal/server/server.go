package server

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"url-rewrite/internal/common/logging"
)

// Server is the HTTP listener of the service
type Server struct {
	srv     *http.Server
	tlsCert string
	tlsKey  string
	logger  logging.Logger
	errCh   chan error
}

func New(handler http.Handler, port, tlsCert, tlsKey string, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Server{
		srv: &http.Server{
			Addr:              ":" + port,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		tlsCert: tlsCert,
		tlsKey:  tlsKey,
		logger:  logger.WithFields(logging.Component("server")),
		errCh:   make(chan error, 1),
	}
}

// Start listens in the background. A listener failure is delivered on Err.
func (s *Server) Start() error {
	serve := s.srv.ListenAndServe
	if s.tlsCert != "" && s.tlsKey != "" {
		s.srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		serve = func() error { return s.srv.ListenAndServeTLS(s.tlsCert, s.tlsKey) }
	}

	go func() {
		if err := serve(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server stopped", err)
			s.errCh <- err
		}
	}()

	s.logger.Info("HTTP server listening",
		logging.Field{"addr", s.srv.Addr},
		logging.Field{"tls", s.tlsCert != ""},
	)
	return nil
}

// Err delivers the error that stopped the listener
func (s *Server) Err() <-chan error { return s.errCh }

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

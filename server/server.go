// Package server serves the upload page and the JSON API.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nvr-ai/leafscan/config"
	"github.com/nvr-ai/leafscan/diagnosis"
	"github.com/nvr-ai/leafscan/images"
	"github.com/nvr-ai/leafscan/knowledge"
	"github.com/pkg/errors"
)

// Args represents the arguments for creating a Server.
type Args struct {
	Server    config.ServerConfig
	Defaults  diagnosis.Options
	Service   *diagnosis.Service
	Knowledge *knowledge.Store
	Logger    *slog.Logger
	Version   string
}

// Server is the leafscan HTTP server.
type Server struct {
	cfg       config.ServerConfig
	defaults  diagnosis.Options
	service   *diagnosis.Service
	knowledge *knowledge.Store
	templates *TemplateSet
	logger    *slog.Logger
	version   string
	handler   http.Handler
}

// New builds a Server and its routes.
func New(args Args) (*Server, error) {
	if args.Service == nil {
		return nil, errors.New("server requires a diagnosis service")
	}
	if args.Logger == nil {
		args.Logger = slog.Default()
	}

	templates, err := NewTemplateSet(indexTemplate)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       args.Server,
		defaults:  args.Defaults,
		service:   args.Service,
		knowledge: args.Knowledge,
		templates: templates,
		logger:    args.Logger.With("system", "http"),
		version:   args.Version,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /diagnose", s.handleDiagnosePage)
	mux.HandleFunc("POST /api/diagnose", s.handleDiagnoseAPI)
	mux.HandleFunc("GET /api/classes", s.handleClasses)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.handler = chain(mux, WithRequestID(), Logger(s.logger))
	return s, nil
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured address and serves until ctx is cancelled,
// then shuts down gracefully within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.cfg.Addr())
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeoutDuration(),
		WriteTimeout: s.cfg.WriteTimeoutDuration(),
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	timeout := s.cfg.ShutdownTimeoutDuration()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "server shutdown")
	}
	s.logger.Info("server shutdown complete")
	return nil
}

func acceptAttr() string {
	return strings.Join(images.Extensions, ",")
}

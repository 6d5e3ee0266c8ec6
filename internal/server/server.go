package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"zepdf/internal/artifacts"
	"zepdf/internal/config"
	"zepdf/internal/formats"
	"zepdf/internal/logging"
	"zepdf/internal/pipeline"
)

// Converter executes conversion plans and PDF page operations. Satisfied by
// *pipeline.Pipeline; narrowed to an interface so handler tests can stub
// execution.
type Converter interface {
	Execute(ctx context.Context, plan formats.Plan, input *artifacts.Artifact, opts pipeline.Options, dest *artifacts.Scope) (*pipeline.Result, error)
	SplitPDF(ctx context.Context, input *artifacts.Artifact, pageRange string, dest *artifacts.Scope) (*pipeline.Result, error)
	MergePDFs(ctx context.Context, inputs []*artifacts.Artifact, dest *artifacts.Scope) (*pipeline.Result, error)
}

// Server exposes the conversion API over HTTP.
type Server struct {
	cfg       *config.Config
	logger    *slog.Logger
	resolver  *formats.Resolver
	converter Converter

	listener net.Listener
	server   *http.Server
}

// New wires the API routes and returns a server bound to the configured
// address (listening starts in Start).
func New(cfg *config.Config, logger *slog.Logger, resolver *formats.Resolver, converter Converter) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		resolver:  resolver,
		converter: converter,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Get("/api/health", s.handleHealth)
	r.Get("/api/formats", s.handleFormats)
	r.Post("/api/convert", s.handleConvert)
	r.Post("/api/split", s.handleSplit)
	r.Post("/api/merge", s.handleMerge)

	s.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		// Conversions block on the office engine; allow a full stage
		// timeout plus streaming slack before cutting the response off.
		WriteTimeout: cfg.OfficeTimeout() + cfg.RasterTimeout() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving and shuts down when ctx is done.
func (s *Server) Start(ctx context.Context) error {
	bind := strings.TrimSpace(s.cfg.Paths.APIBind)
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound listen address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

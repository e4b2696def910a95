// Package server exposes the recruiting operations and the PDF combiner
// over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/ashby-resumes/pkg/metrics"
	"github.com/Sternrassler/ashby-resumes/pkg/pdfbatch"
	"github.com/Sternrassler/ashby-resumes/pkg/recruiting"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds server configuration.
type Config struct {
	// Passkey gates /api/* when set.
	Passkey string

	// MaxUploadBytes limits the combine-pdfs upload.
	MaxUploadBytes int64

	// Version is reported by /api/version.
	Version string
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		MaxUploadBytes: 100 << 20,
		Version:        "dev",
	}
}

// Server routes HTTP requests to the recruiting service and the assembler.
type Server struct {
	svc       *recruiting.Service
	assembler *pdfbatch.Assembler
	redis     *redis.Client
	config    Config
	logger    zerolog.Logger
	mux       *http.ServeMux
}

// New creates a server. redisClient is optional and only checked by /ready.
func New(svc *recruiting.Service, assembler *pdfbatch.Assembler, redisClient *redis.Client, cfg Config) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultConfig().MaxUploadBytes
	}
	if assembler == nil {
		assembler = pdfbatch.NewAssembler()
	}

	s := &Server{
		svc:       svc,
		assembler: assembler,
		redis:     redisClient,
		config:    cfg,
		logger:    log.With().Str("component", "server").Logger(),
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.Handle("GET /metrics", metrics.Handler())

	api := func(pattern string, h http.HandlerFunc) {
		s.mux.Handle(pattern, requirePasskey(s.config.Passkey, h))
	}
	api("GET /api/version", s.handleVersion)
	api("GET /api/jobs", s.handleJobs)
	api("GET /api/jobs/{jobID}/stages", s.handleStages)
	api("GET /api/candidates", s.handleCandidates)
	api("GET /api/download-resume/{handle}", s.handleDownloadResume)
	api("POST /api/download-bulk", s.handleDownloadBulk)
	api("POST /api/combine-pdfs", s.handleCombinePDFs)
}

// Handler returns the root handler with request logging applied.
func (s *Server) Handler() http.Handler {
	return logRequests(s.logger, s.mux)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

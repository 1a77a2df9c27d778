package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"listing-radar/internal/config"
)

// Server is the dashboard and ingest HTTP server.
type Server struct {
	router *gin.Engine
	srv    *http.Server
	logger zerolog.Logger
}

// NewServer builds the router and registers every route on h.
func NewServer(cfg config.APIConfig, h *Handlers, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "api").Logger()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	s := &Server{
		router: router,
		srv: &http.Server{
			Addr:         cfg.Addr,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger,
	}
	s.setupRoutes(h)
	return s
}

func (s *Server) setupRoutes(h *Handlers) {
	s.router.GET("/healthz", h.Health)
	if h.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/listings", h.ListListings)
		v1.GET("/listings/:id", h.GetListing)
		v1.DELETE("/listings/:id", h.DeactivateListing)
		v1.GET("/pulse", h.Pulse)
		v1.GET("/alerts", h.RecentAlerts)
		v1.POST("/observations", h.SubmitObservation)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("api server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("api server stopped")
	return ctx.Err()
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		evt := logger.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			evt = logger.Error()
		}
		evt.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}

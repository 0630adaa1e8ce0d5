// Package server exposes the conversation runner over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gisa-chat/server/internal/agent/graph"
	"github.com/gisa-chat/server/internal/agent/graph/conversations"
	"github.com/gisa-chat/server/internal/metrics"
	logx "github.com/gisa-chat/server/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

type Config struct {
	Addr        string
	TurnTimeout time.Duration
}

type Server struct {
	config   Config
	runner   graph.Runner
	recorder *conversations.Recorder
	metrics  *metrics.Metrics
	router   *gin.Engine
}

// New builds the router. recorder and metrics may be nil; their routes
// are then not mounted.
func New(cfg Config, runner graph.Runner, recorder *conversations.Recorder, m *metrics.Metrics) *Server {
	s := &Server{
		config:   cfg,
		runner:   runner,
		recorder: recorder,
		metrics:  m,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())

	router.GET("/health", s.health)
	router.POST("/webhooks/rest/webhook", s.chat)
	router.POST("/chat/stream", s.chatStream)

	if s.recorder != nil {
		router.GET("/history/:sender", s.history)
		router.DELETE("/history/:sender", s.forget)
	}
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	return router
}

// Handler returns the HTTP handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logx.Info().Str("addr", s.config.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logx.Info().Msg("HTTP server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

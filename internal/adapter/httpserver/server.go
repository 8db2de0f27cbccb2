package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/streamrelay/internal/domain"
	"github.com/pscheid92/streamrelay/internal/platform/config"
	apperrors "github.com/pscheid92/streamrelay/internal/platform/errors"
)

type Server struct {
	echo   *echo.Echo
	config *config.Config

	streams      domain.StreamService
	sessionStore sessions.Store
	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, streams domain.StreamService, healthChecks []HealthCheck) (*Server, error) {
	sessionStore, err := newSessionStore(cfg)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		streams:      streams,
		sessionStore: sessionStore,
		healthChecks: healthChecks,
		startTime:    time.Now(),
	}
	e.HTTPErrorHandler = srv.handleHTTPError

	srv.registerRoutes()

	return srv, nil
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP exposes the full middleware chain, mostly for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// handleHTTPError renders errors raised by echo itself (unknown routes, wrong methods,
// middleware rejections) in the same shape as handler errors.
func (s *Server) handleHTTPError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) {
		_ = HandleError(c, err)
		return
	}

	message := http.StatusText(httpErr.Code)
	if msg, ok := httpErr.Message.(string); ok && msg != "" {
		message = msg
	}
	structuredErr := apperrors.FromHTTPStatus(httpErr.Code, message)
	structuredErr.Cause = httpErr.Internal
	if err := c.JSON(httpErr.Code, structuredErr.ToResponse()); err != nil {
		slog.Error("Failed to write error response", "error", err)
	}
}

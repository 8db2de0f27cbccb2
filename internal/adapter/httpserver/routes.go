package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pscheid92/streamrelay/internal/metrics"
	"github.com/pscheid92/streamrelay/internal/platform/correlation"
)

func (s *Server) registerRoutes() {
	s.echo.Use(correlationMiddleware)
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(metrics.Middleware())
	s.echo.Use(ErrorHandlingMiddleware())
	// Without configured origins the API stays same-origin only.
	if len(s.config.AllowedOrigins()) > 0 {
		s.echo.Use(s.setupCORSMiddleware())
	}
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            63072000, // 2 years; only sent over HTTPS
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
	}))

	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	s.registerHealthRoutes()
	s.registerStreamRoutes()
}

func (s *Server) registerStreamRoutes() {
	api := s.echo.Group("/api", newRateLimiter(s.config.RateLimit, s.config.RateBurst))
	api.GET("/channels/:login", s.handleGetChannel)
	api.GET("/search", s.handleSearchChannels)
	api.GET("/followed", s.handleGetFollowedStreams, s.requireAccount)
}

func (s *Server) setupCORSMiddleware() echo.MiddlewareFunc {
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     s.config.AllowedOrigins(),
		AllowMethods:     []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, correlation.Header},
		ExposeHeaders:    []string{correlation.Header},
		AllowCredentials: true,
		MaxAge:           600,
	})
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}

package httpserver

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/streamrelay/internal/domain"
	"github.com/pscheid92/streamrelay/internal/platform/config"
	"github.com/pscheid92/streamrelay/internal/platform/correlation"
	apperrors "github.com/pscheid92/streamrelay/internal/platform/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationMiddleware_ReusesInboundID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(correlation.Header, "req-abc_123")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen string
	err := correlationMiddleware(func(c echo.Context) error {
		seen, _ = correlation.ID(c.Request().Context())
		return nil
	})(c)

	require.NoError(t, err)
	assert.Equal(t, "req-abc_123", seen)
	assert.Equal(t, "req-abc_123", rec.Header().Get(correlation.Header))
}

func TestCorrelationMiddleware_ReplacesUnsafeID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(correlation.Header, "bad id\twith tabs")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen string
	err := correlationMiddleware(func(c echo.Context) error {
		seen, _ = correlation.ID(c.Request().Context())
		return nil
	})(c)

	require.NoError(t, err)
	assert.NotEqual(t, "bad id\twith tabs", seen)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(correlation.Header))
}

func TestErrorHandlingMiddleware_RendersStructuredError(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	err := ErrorHandlingMiddleware()(func(echo.Context) error {
		return apperrors.NotFoundError("channel not found").WithField("login", "ghost")
	})(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"channel not found","type":"not_found","context":{"login":"ghost"}}`, rec.Body.String())
}

func TestErrorHandlingMiddleware_PlainErrorIsInternal(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	err := ErrorHandlingMiddleware()(func(echo.Context) error {
		return errors.New("database exploded")
	})(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "database exploded")
}

func TestErrorHandlingMiddleware_PassesThroughHTTPError(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	err := ErrorHandlingMiddleware()(func(echo.Context) error {
		return echo.ErrMethodNotAllowed
	})(c)

	assert.ErrorIs(t, err, echo.ErrMethodNotAllowed)
}

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		err      error
		wantType apperrors.ErrorType
	}{
		{domain.ErrNotFound, apperrors.TypeNotFound},
		{domain.ErrInvalidRefreshToken, apperrors.TypeUnauthorized},
		{domain.ErrMissingRefreshToken, apperrors.TypeUnauthorized},
		{&domain.UpstreamError{Endpoint: "users", StatusCode: 500}, apperrors.TypeExternal},
		{errors.New("other"), apperrors.TypeInternal},
	}

	for _, tt := range tests {
		got := mapServiceError(tt.err, "failed")
		assert.Equal(t, tt.wantType, got.Type, tt.err.Error())
		assert.ErrorIs(t, got, tt.err)
	}
}

func TestUnknownRoute_StructuredNotFound(t *testing.T) {
	srv := newTestServer(t, &mockStreamService{})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec)["type"])
}

func TestServer_SetsSecurityAndCorrelationHeaders(t *testing.T) {
	srv := newTestServer(t, &mockStreamService{})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get(correlation.Header))
}

func TestServer_CORSOnlyForConfiguredOrigins(t *testing.T) {
	srv := newTestServer(t, &mockStreamService{}, withConfig(func(cfg *config.Config) {
		cfg.CORSAllowedOrigins = "https://app.example.com"
	}))

	allowed := httptest.NewRequest(http.MethodOptions, "/api/search?query=x", nil)
	allowed.Header.Set("Origin", "https://app.example.com")
	allowed.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := serve(srv, allowed)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	denied := httptest.NewRequest(http.MethodOptions, "/api/search?query=x", nil)
	denied.Header.Set("Origin", "https://evil.example.com")
	denied.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec = serve(srv, denied)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/streamrelay/internal/platform/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthOK(_ context.Context) error { return nil }

func healthErr(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}

func decodeReport(t *testing.T, rec *httptest.ResponseRecorder) healthReport {
	t.Helper()
	var report healthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	return report
}

func TestHandleStartup(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/startup", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	srv := newTestServer(t, &mockStreamService{},
		withHealthChecks(
			HealthCheck{Name: "postgres", Check: healthOK},
			HealthCheck{Name: "redis", Optional: true, Check: healthOK},
		),
	)

	err := srv.handleStartup(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	report := decodeReport(t, rec)
	assert.Equal(t, statusReady, report.Status)
	require.Len(t, report.Checks, 2)
	assert.Equal(t, "postgres", report.Checks[0].Name)
	assert.Equal(t, "redis", report.Checks[1].Name)
	assert.Equal(t, statusReady, report.Checks[1].Status)
}

func TestHandleReadiness_PostgresDown(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	srv := newTestServer(t, &mockStreamService{},
		withHealthChecks(
			HealthCheck{Name: "postgres", Check: healthErr("connection refused")},
			HealthCheck{Name: "redis", Optional: true, Check: healthOK},
		),
	)

	err := srv.handleReadiness(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	report := decodeReport(t, rec)
	assert.Equal(t, statusUnhealthy, report.Status)
	require.Len(t, report.Checks, 2)
	assert.Equal(t, "postgres", report.Checks[0].Name)
	assert.Equal(t, statusUnhealthy, report.Checks[0].Status)
	assert.Equal(t, "connection refused", report.Checks[0].Error)
	assert.Equal(t, statusReady, report.Checks[1].Status)
}

func TestHandleReadiness_RedisDownIsDegraded(t *testing.T) {
	srv := newTestServer(t, &mockStreamService{},
		withHealthChecks(
			HealthCheck{Name: "postgres", Check: healthOK},
			HealthCheck{Name: "redis", Optional: true, Check: healthErr("dial tcp: connection refused")},
		),
	)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	report := decodeReport(t, rec)
	assert.Equal(t, statusDegraded, report.Status)
	assert.Equal(t, statusUnhealthy, report.Checks[1].Status)
	assert.Equal(t, "dial tcp: connection refused", report.Checks[1].Error)
}

func TestHandleReadiness_BothDownIsUnhealthy(t *testing.T) {
	srv := newTestServer(t, &mockStreamService{},
		withHealthChecks(
			HealthCheck{Name: "redis", Optional: true, Check: healthErr("down")},
			HealthCheck{Name: "postgres", Check: healthErr("down")},
		),
	)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, statusUnhealthy, decodeReport(t, rec).Status)
}

func TestHandleReadiness_ChecksRunConcurrently(t *testing.T) {
	release := make(chan struct{})
	waitForOther := func(ctx context.Context) error {
		select {
		case release <- struct{}{}:
			return nil
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	srv := newTestServer(t, &mockStreamService{},
		withHealthChecks(
			HealthCheck{Name: "postgres", Check: waitForOther},
			HealthCheck{Name: "redis", Optional: true, Check: waitForOther},
		),
	)

	start := time.Now()
	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Less(t, time.Since(start), readinessProbeTimeout)
}

func TestHandleReadiness_NoChecks(t *testing.T) {
	srv := newTestServer(t, &mockStreamService{})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","checks":[]}`, rec.Body.String())
}

func TestHandleLiveness(t *testing.T) {
	srv := newTestServer(t, &mockStreamService{},
		withHealthChecks(HealthCheck{Name: "postgres", Check: healthErr("down")}),
	)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, version.Get().Version, body["version"])
	assert.Contains(t, body, "uptime")
}

func TestHandleVersion(t *testing.T) {
	srv := newTestServer(t, &mockStreamService{})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var info version.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, version.Get().Version, info.Version)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &mockStreamService{})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pscheid92/streamrelay/internal/domain"
	"github.com/pscheid92/streamrelay/internal/platform/config"
	"github.com/stretchr/testify/require"
)

type mockStreamService struct {
	getChannelFn     func(ctx context.Context, login string) (*domain.Streamer, error)
	searchChannelsFn func(ctx context.Context, query string) ([]domain.Streamer, error)
	getFollowedFn    func(ctx context.Context, accountID string) ([]domain.Streamer, error)
}

func (m *mockStreamService) GetChannel(ctx context.Context, login string) (*domain.Streamer, error) {
	if m.getChannelFn != nil {
		return m.getChannelFn(ctx, login)
	}
	return nil, errors.New("not implemented")
}

func (m *mockStreamService) SearchChannels(ctx context.Context, query string) ([]domain.Streamer, error) {
	if m.searchChannelsFn != nil {
		return m.searchChannelsFn(ctx, query)
	}
	return nil, errors.New("not implemented")
}

func (m *mockStreamService) GetFollowedStreamsForAccount(ctx context.Context, accountID string) ([]domain.Streamer, error) {
	if m.getFollowedFn != nil {
		return m.getFollowedFn(ctx, accountID)
	}
	return nil, errors.New("not implemented")
}

type testServerOption func(*testServerOptions)

type testServerOptions struct {
	healthChecks []HealthCheck
	configure    func(*config.Config)
}

func withHealthChecks(checks ...HealthCheck) testServerOption {
	return func(o *testServerOptions) { o.healthChecks = checks }
}

func withConfig(fn func(*config.Config)) testServerOption {
	return func(o *testServerOptions) { o.configure = fn }
}

func newTestConfig() *config.Config {
	return &config.Config{
		AppEnv:        "test",
		Port:          "0",
		SessionSecret: "test-session-secret-with-enough-entropy",
		SessionName:   "streamrelay-session",
		RateLimit:     1000,
		RateBurst:     1000,
	}
}

func newTestServer(t *testing.T, streams domain.StreamService, opts ...testServerOption) *Server {
	t.Helper()

	var o testServerOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg := newTestConfig()
	if o.configure != nil {
		o.configure(cfg)
	}

	srv, err := NewServer(cfg, streams, o.healthChecks)
	require.NoError(t, err)
	return srv
}

// sessionCookie returns a cookie the server accepts as a logged-in session for accountID.
func sessionCookie(t *testing.T, srv *Server, accountID string) *http.Cookie {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	session, err := srv.sessionStore.New(req, srv.config.SessionName)
	require.NoError(t, err)
	session.Values[sessionKeyAccountID] = accountID
	require.NoError(t, session.Save(req, rec))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

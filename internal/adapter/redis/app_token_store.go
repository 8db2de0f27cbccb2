package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/streamrelay/internal/domain"
	"github.com/pscheid92/streamrelay/internal/metrics"
	"github.com/pscheid92/streamrelay/internal/twitch"
	goredis "github.com/redis/go-redis/v9"
)

const (
	appTokenKey            = "streamrelay:app_token"
	invalidateTimeout      = 2 * time.Second
	minSharedTokenLifetime = time.Second
)

// Deletes the shared token only while it still carries the given access token.
var invalidateScript = goredis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return 0
end
local cred = cjson.decode(raw)
if cred['access_token'] == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// SharedAppTokenSource lets replicas reuse one application token through Redis.
// Any Redis failure degrades to requesting a token from the upstream directly.
type SharedAppTokenSource struct {
	rdb      *goredis.Client
	upstream twitch.AppTokenSource
	clock    clockwork.Clock
}

var (
	_ twitch.AppTokenSource      = (*SharedAppTokenSource)(nil)
	_ twitch.AppTokenInvalidator = (*SharedAppTokenSource)(nil)
)

func NewSharedAppTokenSource(rdb *goredis.Client, upstream twitch.AppTokenSource, clock clockwork.Clock) *SharedAppTokenSource {
	return &SharedAppTokenSource{rdb: rdb, upstream: upstream, clock: clock}
}

func (s *SharedAppTokenSource) RequestAppToken(ctx context.Context) (*domain.AppCredential, error) {
	cred, err := s.load(ctx)
	switch {
	case err != nil:
		metrics.SharedAppTokenLookupsTotal.WithLabelValues("error").Inc()
		slog.Warn("Shared app token lookup failed, requesting from upstream", "error", err)
	case cred != nil:
		metrics.SharedAppTokenLookupsTotal.WithLabelValues("hit").Inc()
		return cred, nil
	default:
		metrics.SharedAppTokenLookupsTotal.WithLabelValues("miss").Inc()
	}

	fresh, err := s.upstream.RequestAppToken(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.store(ctx, fresh); err != nil {
		slog.Warn("Failed to share app token", "error", err)
	}
	return fresh, nil
}

// InvalidateAppToken removes the shared token if it is still accessToken.
func (s *SharedAppTokenSource) InvalidateAppToken(accessToken string) {
	ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
	defer cancel()

	if err := invalidateScript.Run(ctx, s.rdb, []string{appTokenKey}, accessToken).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		slog.Warn("Failed to invalidate shared app token", "error", err)
	}
}

// load returns nil without error when no usable token is shared.
func (s *SharedAppTokenSource) load(ctx context.Context) (*domain.AppCredential, error) {
	raw, err := s.rdb.Get(ctx, appTokenKey).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read shared app token: %w", err)
	}

	var cred domain.AppCredential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return nil, fmt.Errorf("failed to decode shared app token: %w", err)
	}
	if !cred.UsableAt(s.clock.Now(), twitch.AppTokenExpiryBuffer) {
		return nil, nil
	}
	return &cred, nil
}

func (s *SharedAppTokenSource) store(ctx context.Context, cred *domain.AppCredential) error {
	lifetime := min(cred.TTL, twitch.MaxAppTokenCacheDuration) - s.clock.Since(cred.IssuedAt) - twitch.AppTokenExpiryBuffer
	if lifetime < minSharedTokenLifetime {
		return nil
	}

	raw, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to encode app token: %w", err)
	}
	if err := s.rdb.Set(ctx, appTokenKey, raw, lifetime).Err(); err != nil {
		return fmt.Errorf("failed to write shared app token: %w", err)
	}
	return nil
}

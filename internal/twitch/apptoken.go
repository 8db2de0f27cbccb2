package twitch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/streamrelay/internal/domain"
	"github.com/pscheid92/streamrelay/internal/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	// AppTokenExpiryBuffer is the minimum remaining validity of a token handed out by the cache.
	AppTokenExpiryBuffer = 60 * time.Second
	// MaxAppTokenCacheDuration caps the TTL reported by the upstream.
	MaxAppTokenCacheDuration = 24 * time.Hour

	appTokenTimeout = 15 * time.Second
	appTokenKey     = "app_token"
)

// AppTokenSource issues a fresh application credential.
type AppTokenSource interface {
	RequestAppToken(ctx context.Context) (*domain.AppCredential, error)
}

// AppTokenInvalidator is implemented by sources that keep their own copy of the token.
type AppTokenInvalidator interface {
	InvalidateAppToken(accessToken string)
}

// AppTokenCache holds the process-wide application credential.
// Concurrent callers that find it missing or expiring share one upstream refresh.
type AppTokenCache struct {
	mu     sync.RWMutex
	cred   *domain.AppCredential
	source AppTokenSource
	clock  clockwork.Clock
	group  singleflight.Group
}

func NewAppTokenCache(source AppTokenSource, clock clockwork.Clock) *AppTokenCache {
	return &AppTokenCache{
		source: source,
		clock:  clock,
	}
}

// GetAppToken returns a credential with at least AppTokenExpiryBuffer of validity left,
// requesting a new one from the source when needed.
func (c *AppTokenCache) GetAppToken(ctx context.Context) (*domain.AppCredential, error) {
	if cred := c.current(); cred != nil {
		return cred, nil
	}

	// The refresh is shared, so it must not die with the first caller's request.
	ch := c.group.DoChan(appTokenKey, func() (any, error) {
		if cred := c.current(); cred != nil {
			return cred, nil
		}

		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), appTokenTimeout)
		defer cancel()

		cred, err := c.source.RequestAppToken(refreshCtx)
		if err != nil {
			metrics.AppTokenRefreshesTotal.WithLabelValues("error").Inc()
			return nil, err
		}

		stored := *cred
		if stored.TTL > MaxAppTokenCacheDuration {
			stored.TTL = MaxAppTokenCacheDuration
		}
		if !stored.UsableAt(c.clock.Now(), AppTokenExpiryBuffer) {
			metrics.AppTokenRefreshesTotal.WithLabelValues("error").Inc()
			return nil, &domain.UpstreamError{Endpoint: "token_app", Message: fmt.Sprintf("token lifetime %s is shorter than the expiry buffer", stored.TTL)}
		}

		c.mu.Lock()
		c.cred = &stored
		c.mu.Unlock()

		metrics.AppTokenRefreshesTotal.WithLabelValues("success").Inc()
		slog.Debug("App token refreshed", "expires_at", stored.ExpiresAt())
		return &stored, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("failed to get app access token: %w", res.Err)
		}
		return res.Val.(*domain.AppCredential), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for app access token: %w", ctx.Err())
	}
}

// Invalidate drops the cached credential so the next GetAppToken fetches a new one.
// Only the given token is dropped; a credential that already replaced it is kept.
func (c *AppTokenCache) Invalidate(accessToken string) {
	c.mu.Lock()
	if c.cred != nil && c.cred.AccessToken == accessToken {
		c.cred = nil
	}
	c.mu.Unlock()

	if inv, ok := c.source.(AppTokenInvalidator); ok {
		inv.InvalidateAppToken(accessToken)
	}
}

func (c *AppTokenCache) current() *domain.AppCredential {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cred == nil || !c.cred.UsableAt(c.clock.Now(), AppTokenExpiryBuffer) {
		return nil
	}
	return c.cred
}

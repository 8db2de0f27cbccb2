package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pscheid92/streamrelay/internal/domain"
	"github.com/pscheid92/streamrelay/internal/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	// maxAuthRetries bounds how often a user-context call is retried after a token refresh.
	maxAuthRetries = 1

	userTokenRefreshTimeout = 15 * time.Second
)

// UserTokenRefresher exchanges a refresh token for a new credential pair.
type UserTokenRefresher interface {
	RefreshUserToken(ctx context.Context, refreshToken string) (*domain.UserCredential, error)
}

// TokenRefresher renews stored user credentials after the upstream rejects an access token.
type TokenRefresher struct {
	credentials domain.CredentialStore
	upstream    UserTokenRefresher
	group       singleflight.Group
}

func NewTokenRefresher(credentials domain.CredentialStore, upstream UserTokenRefresher) *TokenRefresher {
	return &TokenRefresher{
		credentials: credentials,
		upstream:    upstream,
	}
}

// Refresh returns a new access token for accountID and persists the new pair.
// staleToken is the token the upstream just rejected. If the store already holds a
// different access token, a concurrent refresh has won and its token is returned as is.
// The upstream rotates the refresh token, so once started the refresh and its write must
// finish even if the caller that started it goes away.
func (r *TokenRefresher) Refresh(ctx context.Context, accountID, staleToken string) (string, error) {
	ch := r.group.DoChan(accountID, func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), userTokenRefreshTimeout)
		defer cancel()
		return r.refresh(refreshCtx, accountID, staleToken)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for token refresh: %w", ctx.Err())
	}
}

func (r *TokenRefresher) refresh(ctx context.Context, accountID, staleToken string) (string, error) {
	stored, err := r.credentials.FindCredential(ctx, accountID)
	if errors.Is(err, domain.ErrCredentialNotFound) {
		metrics.UserTokenRefreshesTotal.WithLabelValues("missing").Inc()
		return "", fmt.Errorf("account %s: %w", accountID, domain.ErrMissingRefreshToken)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load credential: %w", err)
	}

	if stored.AccessToken != "" && stored.AccessToken != staleToken {
		return stored.AccessToken, nil
	}
	if stored.RefreshToken == "" {
		metrics.UserTokenRefreshesTotal.WithLabelValues("missing").Inc()
		return "", fmt.Errorf("account %s: %w", accountID, domain.ErrMissingRefreshToken)
	}

	fresh, err := r.upstream.RefreshUserToken(ctx, stored.RefreshToken)
	switch {
	case errors.Is(err, domain.ErrInvalidRefreshToken):
		metrics.UserTokenRefreshesTotal.WithLabelValues("invalid").Inc()
		slog.Warn("Refresh token rejected, account must re-authorize", "account_id", accountID)
		return "", err
	case err != nil:
		metrics.UserTokenRefreshesTotal.WithLabelValues("error").Inc()
		return "", asUpstreamError("token_refresh", err)
	}

	fresh.AccountID = accountID
	if err := r.credentials.UpdateCredential(ctx, accountID, *fresh); err != nil {
		metrics.UserTokenRefreshesTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to persist refreshed credential: %w", err)
	}

	metrics.UserTokenRefreshesTotal.WithLabelValues("success").Inc()
	slog.Info("User token refreshed", "account_id", accountID, "expires_at", fresh.ExpiresAt)
	return fresh.AccessToken, nil
}

// withUserToken runs op with token and, when the upstream answers with domain.ErrUnauthorized,
// refreshes the account's credential and runs op again. A rejection after the refresh is
// reported as an upstream failure.
func withUserToken[T any](ctx context.Context, r *TokenRefresher, endpoint, accountID, token string, op func(ctx context.Context, token string) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		result, err := op(ctx, token)
		if !errors.Is(err, domain.ErrUnauthorized) {
			return result, err
		}
		if attempt >= maxAuthRetries {
			return zero, &domain.UpstreamError{
				Endpoint:   endpoint,
				StatusCode: http.StatusUnauthorized,
				Message:    "unauthorized after token refresh",
			}
		}

		token, err = r.Refresh(ctx, accountID, token)
		if err != nil {
			return zero, err
		}
	}
}

func asUpstreamError(endpoint string, err error) error {
	if errors.Is(err, domain.ErrUpstream) {
		return err
	}
	return &domain.UpstreamError{Endpoint: endpoint, Err: err}
}

package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pscheid92/streamrelay/internal/domain"
	"github.com/pscheid92/streamrelay/internal/metrics"
)

// RefreshUserToken exchanges a refresh token for a new access/refresh pair.
// A 400 means the refresh token is no longer valid and is reported as domain.ErrInvalidRefreshToken.
// The returned credential has no AccountID; the caller owns that association.
func (c *Client) RefreshUserToken(ctx context.Context, refreshToken string) (*domain.UserCredential, error) {
	data := url.Values{}
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	result, err := c.postToken(ctx, "token_refresh", data)
	if isStatus(err, http.StatusBadRequest) {
		return nil, fmt.Errorf("refresh user token: %w", domain.ErrInvalidRefreshToken)
	}
	if err != nil {
		return nil, err
	}

	// Storing a new access token next to a stale refresh token would break the next refresh.
	if result.AccessToken == "" || result.RefreshToken == "" {
		return nil, &domain.UpstreamError{Endpoint: "token_refresh", Message: "response is missing access_token or refresh_token"}
	}

	return &domain.UserCredential{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    c.clock.Now().Add(time.Duration(result.ExpiresIn) * time.Second),
	}, nil
}

// RequestAppToken obtains an application access token with the client-credentials grant.
func (c *Client) RequestAppToken(ctx context.Context) (*domain.AppCredential, error) {
	data := url.Values{}
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)
	data.Set("grant_type", "client_credentials")

	result, err := c.postToken(ctx, "token_app", data)
	if err != nil {
		return nil, err
	}
	if result.AccessToken == "" {
		return nil, &domain.UpstreamError{Endpoint: "token_app", Message: "response is missing access_token"}
	}

	return &domain.AppCredential{
		AccessToken: result.AccessToken,
		TokenType:   result.TokenType,
		IssuedAt:    c.clock.Now(),
		TTL:         time.Duration(result.ExpiresIn) * time.Second,
	}, nil
}

func (c *Client) postToken(ctx context.Context, endpoint string, data url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.oauthURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, &domain.UpstreamError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(endpoint, req)
	if err != nil {
		return nil, err
	}

	var result tokenResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &domain.UpstreamError{Endpoint: endpoint, Err: fmt.Errorf("failed to decode token response: %w", err)}
	}
	return &result, nil
}

// do executes req and returns the body of a 2xx response. Any other outcome is an *domain.UpstreamError.
func (c *Client) do(endpoint string, req *http.Request) ([]byte, error) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := c.clock.Now()
	resp, err := c.httpClient.Do(req)
	metrics.UpstreamRequestDuration.WithLabelValues(endpoint).Observe(c.clock.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, &domain.UpstreamError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.UpstreamError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.UpstreamError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    truncate(strings.TrimSpace(string(body)), maxErrorMessageBytes),
		}
	}
	return body, nil
}

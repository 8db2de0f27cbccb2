package twitch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/nicklaw5/helix/v2"
	"github.com/pscheid92/streamrelay/internal/domain"
	"github.com/pscheid92/streamrelay/internal/metrics"
)

const (
	DefaultAPIURL   = "https://api.twitch.tv/helix"
	DefaultOAuthURL = "https://id.twitch.tv/oauth2/token"

	defaultHTTPTimeout   = 10 * time.Second
	searchResultLimit    = 10
	maxErrorMessageBytes = 512
)

// Client talks to the Helix REST API and the OAuth token endpoint.
// It holds no token state; every call receives the token it should use.
type Client struct {
	httpClient   *http.Client
	clientID     string
	clientSecret string
	apiURL       string
	oauthURL     string // OAuth token endpoint URL (configurable for testing)
	userAgent    string
	clock        clockwork.Clock
}

type Option func(*Client)

func WithAPIURL(u string) Option {
	return func(c *Client) { c.apiURL = strings.TrimRight(u, "/") }
}

func WithOAuthURL(u string) Option {
	return func(c *Client) { c.oauthURL = u }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient = &http.Client{Timeout: d} }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

func NewClient(clientID, clientSecret string, opts ...Option) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: defaultHTTPTimeout},
		clientID:     clientID,
		clientSecret: clientSecret,
		apiURL:       DefaultAPIURL,
		oauthURL:     DefaultOAuthURL,
		clock:        clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchUser looks a user up by login name. Returns (nil, nil) when no such user exists.
func (c *Client) FetchUser(ctx context.Context, login, token string) (*User, error) {
	return c.fetchUser(ctx, &helix.UsersParams{Logins: []string{login}}, token)
}

// FetchUserByID looks a user up by id. Returns (nil, nil) when no such user exists.
func (c *Client) FetchUserByID(ctx context.Context, userID, token string) (*User, error) {
	return c.fetchUser(ctx, &helix.UsersParams{IDs: []string{userID}}, token)
}

func (c *Client) fetchUser(ctx context.Context, params *helix.UsersParams, token string) (*User, error) {
	var users []helix.User
	err := c.get(ctx, "users", appAuth(token), func(hc *helix.Client) (*helix.ResponseCommon, error) {
		resp, err := hc.GetUsers(params)
		if err != nil || resp == nil {
			return nil, err
		}
		users = resp.Data.Users
		return &resp.ResponseCommon, nil
	})
	if err != nil || len(users) == 0 {
		return nil, err
	}
	u := users[0]
	return &User{ID: u.ID, Login: u.Login, DisplayName: u.DisplayName, ProfileImageURL: u.ProfileImageURL}, nil
}

// FetchStream returns the active stream of a user, or (nil, nil) when the channel is offline.
func (c *Client) FetchStream(ctx context.Context, userID, token string) (*Stream, error) {
	var streams []helix.Stream
	err := c.get(ctx, "streams", appAuth(token), func(hc *helix.Client) (*helix.ResponseCommon, error) {
		resp, err := hc.GetStreams(&helix.StreamsParams{UserIDs: []string{userID}})
		if err != nil || resp == nil {
			return nil, err
		}
		streams = resp.Data.Streams
		return &resp.ResponseCommon, nil
	})
	if err != nil || len(streams) == 0 {
		return nil, err
	}
	s := streams[0]
	return &Stream{
		ID:          s.ID,
		UserID:      s.UserID,
		UserLogin:   s.UserLogin,
		UserName:    s.UserName,
		GameName:    s.GameName,
		Type:        s.Type,
		Title:       s.Title,
		ViewerCount: s.ViewerCount,
	}, nil
}

// FetchChannel returns channel metadata, or (nil, nil) when the upstream knows no such channel.
func (c *Client) FetchChannel(ctx context.Context, userID, token string) (*Channel, error) {
	var channels []helix.ChannelInformation
	err := c.get(ctx, "channels", appAuth(token), func(hc *helix.Client) (*helix.ResponseCommon, error) {
		resp, err := hc.GetChannelInformation(&helix.GetChannelInformationParams{BroadcasterIDs: []string{userID}})
		if err != nil || resp == nil {
			return nil, err
		}
		channels = resp.Data.Channels
		return &resp.ResponseCommon, nil
	})
	if err != nil || len(channels) == 0 {
		return nil, err
	}
	ch := channels[0]
	return &Channel{
		BroadcasterID:   ch.BroadcasterID,
		BroadcasterName: ch.BroadcasterName,
		GameName:        ch.GameName,
		Title:           ch.Title,
	}, nil
}

// SearchChannels runs a live-only channel search capped at ten results.
func (c *Client) SearchChannels(ctx context.Context, query, token string) ([]SearchResult, error) {
	var channels []helix.Channel
	err := c.get(ctx, "search_channels", appAuth(token), func(hc *helix.Client) (*helix.ResponseCommon, error) {
		resp, err := hc.SearchChannels(&helix.SearchChannelsParams{
			Channel:  query,
			LiveOnly: true,
			First:    searchResultLimit,
		})
		if err != nil || resp == nil {
			return nil, err
		}
		channels = resp.Data.Channels
		return &resp.ResponseCommon, nil
	})
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(channels))
	for _, ch := range channels {
		results = append(results, SearchResult{
			ID:               ch.ID,
			BroadcasterLogin: ch.BroadcasterLogin,
			DisplayName:      ch.DisplayName,
			GameName:         ch.GameName,
			IsLive:           ch.IsLive,
			ThumbnailURL:     ch.ThumbnailURL,
			Title:            ch.Title,
		})
	}
	return results, nil
}

// FetchFollowedStreams lists the live channels an account follows using that account's token.
// A 401 is reported as domain.ErrUnauthorized so callers can refresh the user token.
func (c *Client) FetchFollowedStreams(ctx context.Context, accountID, token string) ([]FollowedStream, error) {
	var streams []helix.Stream
	err := c.get(ctx, "followed_streams", helix.Options{UserAccessToken: token}, func(hc *helix.Client) (*helix.ResponseCommon, error) {
		resp, err := hc.GetFollowedStream(&helix.FollowedStreamsParams{UserID: accountID})
		if err != nil || resp == nil {
			return nil, err
		}
		streams = resp.Data.Streams
		return &resp.ResponseCommon, nil
	})
	if isStatus(err, http.StatusUnauthorized) {
		return nil, fmt.Errorf("followed streams for %s: %w", accountID, domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}

	followed := make([]FollowedStream, 0, len(streams))
	for _, s := range streams {
		followed = append(followed, FollowedStream{
			ID:          s.ID,
			UserID:      s.UserID,
			UserLogin:   s.UserLogin,
			UserName:    s.UserName,
			GameName:    s.GameName,
			Title:       s.Title,
			ViewerCount: s.ViewerCount,
		})
	}
	return followed, nil
}

func appAuth(token string) helix.Options {
	return helix.Options{AppAccessToken: token}
}

// get runs one Helix request on a client built for this call, so a token never outlives the
// call it was passed to. Any non-2xx status or transport failure is an *domain.UpstreamError.
func (c *Client) get(ctx context.Context, endpoint string, opts helix.Options, request func(*helix.Client) (*helix.ResponseCommon, error)) error {
	transport := &meteredTransport{ctx: ctx, endpoint: endpoint, client: c}
	opts.ClientID = c.clientID
	opts.UserAgent = c.userAgent
	opts.APIBaseURL = c.apiURL
	opts.HTTPClient = transport

	hc, err := helix.NewClient(&opts)
	if err != nil {
		return &domain.UpstreamError{Endpoint: endpoint, Err: err}
	}

	resp, err := request(hc)

	status := transport.status
	if resp != nil && resp.StatusCode != 0 {
		status = resp.StatusCode
	}
	if status != 0 && (status < 200 || status > 299) {
		return &domain.UpstreamError{Endpoint: endpoint, StatusCode: status, Message: errorMessage(resp)}
	}
	if transport.err != nil {
		err = transport.err
	}
	if err != nil {
		return &domain.UpstreamError{Endpoint: endpoint, StatusCode: status, Err: err}
	}
	return nil
}

// meteredTransport binds a Helix request to the caller's context and records upstream metrics.
type meteredTransport struct {
	ctx      context.Context
	endpoint string
	client   *Client

	status int
	err    error
}

func (t *meteredTransport) Do(req *http.Request) (*http.Response, error) {
	start := t.client.clock.Now()
	resp, err := t.client.httpClient.Do(req.WithContext(t.ctx))
	metrics.UpstreamRequestDuration.WithLabelValues(t.endpoint).Observe(t.client.clock.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(t.endpoint, "error").Inc()
		t.err = err
		return nil, err
	}

	metrics.UpstreamRequestsTotal.WithLabelValues(t.endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	t.status = resp.StatusCode
	return resp, nil
}

func errorMessage(resp *helix.ResponseCommon) string {
	if resp == nil {
		return ""
	}
	msg := resp.ErrorMessage
	if msg == "" {
		msg = resp.Error
	}
	return truncate(strings.TrimSpace(msg), maxErrorMessageBytes)
}

func isStatus(err error, status int) bool {
	var upstreamErr *domain.UpstreamError
	return errors.As(err, &upstreamErr) && upstreamErr.StatusCode == status
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/pscheid92/streamrelay/internal/domain"
	"github.com/pscheid92/streamrelay/internal/twitch"
	"golang.org/x/sync/errgroup"
)

// Upstream is the subset of the streaming platform API the aggregator reads from.
type Upstream interface {
	FetchUser(ctx context.Context, login, token string) (*twitch.User, error)
	FetchUserByID(ctx context.Context, userID, token string) (*twitch.User, error)
	FetchStream(ctx context.Context, userID, token string) (*twitch.Stream, error)
	FetchChannel(ctx context.Context, userID, token string) (*twitch.Channel, error)
	SearchChannels(ctx context.Context, query, token string) ([]twitch.SearchResult, error)
	FetchFollowedStreams(ctx context.Context, accountID, token string) ([]twitch.FollowedStream, error)
}

// AppTokenProvider hands out the shared application credential.
type AppTokenProvider interface {
	GetAppToken(ctx context.Context) (*domain.AppCredential, error)
	Invalidate(accessToken string)
}

// StreamService merges upstream records into domain.Streamer values.
type StreamService struct {
	upstream    Upstream
	appTokens   AppTokenProvider
	credentials domain.CredentialStore
	refresher   *TokenRefresher
}

func NewStreamService(upstream Upstream, appTokens AppTokenProvider, credentials domain.CredentialStore, refresher *TokenRefresher) *StreamService {
	return &StreamService{
		upstream:    upstream,
		appTokens:   appTokens,
		credentials: credentials,
		refresher:   refresher,
	}
}

// GetChannel returns the streamer behind login. Live stream data wins over channel metadata;
// without either the channel is reported as domain.ErrNotFound.
func (s *StreamService) GetChannel(ctx context.Context, login string) (*domain.Streamer, error) {
	token, err := s.appToken(ctx)
	if err != nil {
		return nil, err
	}

	user, err := s.upstream.FetchUser(ctx, login, token)
	if err != nil {
		return nil, s.appCallFailed(token, fmt.Errorf("fetch user %s: %w", login, err))
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", login, domain.ErrNotFound)
	}

	stream, err := s.upstream.FetchStream(ctx, user.ID, token)
	if err != nil {
		return nil, s.appCallFailed(token, fmt.Errorf("fetch stream %s: %w", login, err))
	}
	if stream != nil {
		streamer := newStreamer(user)
		streamer.Title = stream.Title
		streamer.GameName = stream.GameName
		streamer.Viewers = stream.ViewerCount
		streamer.IsLive = stream.Type == twitch.StreamTypeLive
		return &streamer, nil
	}

	channel, err := s.upstream.FetchChannel(ctx, user.ID, token)
	if err != nil {
		return nil, s.appCallFailed(token, fmt.Errorf("fetch channel %s: %w", login, err))
	}
	if channel == nil {
		return nil, fmt.Errorf("channel %s: %w", login, domain.ErrNotFound)
	}

	streamer := newStreamer(user)
	streamer.Title = channel.Title
	streamer.GameName = channel.GameName
	return &streamer, nil
}

// SearchChannels searches live channels and enriches every hit with its stream data.
// The result is ordered by viewer count, highest first.
func (s *StreamService) SearchChannels(ctx context.Context, query string) ([]domain.Streamer, error) {
	token, err := s.appToken(ctx)
	if err != nil {
		return nil, err
	}

	results, err := s.upstream.SearchChannels(ctx, query, token)
	if err != nil {
		return nil, s.appCallFailed(token, fmt.Errorf("search channels: %w", err))
	}

	streamers := make([]domain.Streamer, len(results))
	g, gctx := errgroup.WithContext(ctx)
	for i, result := range results {
		g.Go(func() error {
			stream, err := s.upstream.FetchStream(gctx, result.ID, token)
			if err != nil {
				return fmt.Errorf("fetch stream %s: %w", result.BroadcasterLogin, err)
			}
			streamers[i] = streamerFromSearch(result, stream)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, s.appCallFailed(token, err)
	}

	slices.SortStableFunc(streamers, func(a, b domain.Streamer) int {
		return cmp.Compare(b.Viewers, a.Viewers)
	})
	return streamers, nil
}

// GetFollowedStreams lists the live channels accountID follows. userToken is refreshed once
// if the upstream rejects it. Profile images are looked up with the application credential.
func (s *StreamService) GetFollowedStreams(ctx context.Context, accountID, userToken string) ([]domain.Streamer, error) {
	followed, err := withUserToken(ctx, s.refresher, "followed_streams", accountID, userToken,
		func(ctx context.Context, token string) ([]twitch.FollowedStream, error) {
			return s.upstream.FetchFollowedStreams(ctx, accountID, token)
		})
	if err != nil {
		return nil, err
	}
	if len(followed) == 0 {
		return []domain.Streamer{}, nil
	}

	token, err := s.appToken(ctx)
	if err != nil {
		return nil, err
	}

	streamers := make([]domain.Streamer, len(followed))
	g, gctx := errgroup.WithContext(ctx)
	for i, stream := range followed {
		g.Go(func() error {
			user, err := s.upstream.FetchUserByID(gctx, stream.UserID, token)
			if err != nil {
				return fmt.Errorf("fetch profile %s: %w", stream.UserLogin, err)
			}
			streamers[i] = streamerFromFollowed(stream, user)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, s.appCallFailed(token, err)
	}
	return streamers, nil
}

// GetFollowedStreamsForAccount is GetFollowedStreams with the access token loaded from the store.
func (s *StreamService) GetFollowedStreamsForAccount(ctx context.Context, accountID string) ([]domain.Streamer, error) {
	cred, err := s.credentials.FindCredential(ctx, accountID)
	if errors.Is(err, domain.ErrCredentialNotFound) {
		return nil, fmt.Errorf("account %s: %w", accountID, domain.ErrMissingRefreshToken)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	return s.GetFollowedStreams(ctx, accountID, cred.AccessToken)
}

func (s *StreamService) appToken(ctx context.Context) (string, error) {
	cred, err := s.appTokens.GetAppToken(ctx)
	if err != nil {
		return "", asUpstreamError("token_app", err)
	}
	return cred.AccessToken, nil
}

// appCallFailed drops the app credential when the upstream rejected it; the next request fetches a new one.
func (s *StreamService) appCallFailed(token string, err error) error {
	var upstreamErr *domain.UpstreamError
	if errors.As(err, &upstreamErr) && upstreamErr.StatusCode == http.StatusUnauthorized {
		slog.Warn("App token rejected by upstream, invalidating", "endpoint", upstreamErr.Endpoint)
		s.appTokens.Invalidate(token)
	}
	return err
}

func newStreamer(user *twitch.User) domain.Streamer {
	return domain.Streamer{
		ChannelID:       user.ID,
		DisplayName:     user.DisplayName,
		LoginName:       user.Login,
		ProfileImageURL: user.ProfileImageURL,
	}
}

func streamerFromSearch(result twitch.SearchResult, stream *twitch.Stream) domain.Streamer {
	streamer := domain.Streamer{
		ChannelID:       result.ID,
		DisplayName:     result.DisplayName,
		LoginName:       result.BroadcasterLogin,
		ProfileImageURL: result.ThumbnailURL,
		GameName:        result.GameName,
	}
	if stream != nil {
		streamer.Title = stream.Title
		streamer.Viewers = stream.ViewerCount
		streamer.IsLive = true
	}
	return streamer
}

func streamerFromFollowed(stream twitch.FollowedStream, user *twitch.User) domain.Streamer {
	streamer := domain.Streamer{
		ChannelID:   stream.UserID,
		DisplayName: stream.UserName,
		LoginName:   stream.UserLogin,
		Title:       stream.Title,
		GameName:    stream.GameName,
		Viewers:     stream.ViewerCount,
		IsLive:      true,
	}
	if user != nil {
		streamer.ProfileImageURL = user.ProfileImageURL
	}
	return streamer
}

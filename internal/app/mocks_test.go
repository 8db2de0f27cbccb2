package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/pscheid92/streamrelay/internal/domain"
	"github.com/pscheid92/streamrelay/internal/twitch"
)

// --- Mock implementations ---

type mockUpstream struct {
	fetchUserFn            func(ctx context.Context, login, token string) (*twitch.User, error)
	fetchUserByIDFn        func(ctx context.Context, userID, token string) (*twitch.User, error)
	fetchStreamFn          func(ctx context.Context, userID, token string) (*twitch.Stream, error)
	fetchChannelFn         func(ctx context.Context, userID, token string) (*twitch.Channel, error)
	searchChannelsFn       func(ctx context.Context, query, token string) ([]twitch.SearchResult, error)
	fetchFollowedStreamsFn func(ctx context.Context, accountID, token string) ([]twitch.FollowedStream, error)
	refreshUserTokenFn     func(ctx context.Context, refreshToken string) (*domain.UserCredential, error)
}

func (m *mockUpstream) FetchUser(ctx context.Context, login, token string) (*twitch.User, error) {
	if m.fetchUserFn != nil {
		return m.fetchUserFn(ctx, login, token)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockUpstream) FetchUserByID(ctx context.Context, userID, token string) (*twitch.User, error) {
	if m.fetchUserByIDFn != nil {
		return m.fetchUserByIDFn(ctx, userID, token)
	}
	return nil, nil
}

func (m *mockUpstream) FetchStream(ctx context.Context, userID, token string) (*twitch.Stream, error) {
	if m.fetchStreamFn != nil {
		return m.fetchStreamFn(ctx, userID, token)
	}
	return nil, nil
}

func (m *mockUpstream) FetchChannel(ctx context.Context, userID, token string) (*twitch.Channel, error) {
	if m.fetchChannelFn != nil {
		return m.fetchChannelFn(ctx, userID, token)
	}
	return nil, nil
}

func (m *mockUpstream) SearchChannels(ctx context.Context, query, token string) ([]twitch.SearchResult, error) {
	if m.searchChannelsFn != nil {
		return m.searchChannelsFn(ctx, query, token)
	}
	return nil, nil
}

func (m *mockUpstream) FetchFollowedStreams(ctx context.Context, accountID, token string) ([]twitch.FollowedStream, error) {
	if m.fetchFollowedStreamsFn != nil {
		return m.fetchFollowedStreamsFn(ctx, accountID, token)
	}
	return nil, nil
}

func (m *mockUpstream) RefreshUserToken(ctx context.Context, refreshToken string) (*domain.UserCredential, error) {
	if m.refreshUserTokenFn != nil {
		return m.refreshUserTokenFn(ctx, refreshToken)
	}
	return nil, fmt.Errorf("not implemented")
}

type mockAppTokens struct {
	mu          sync.Mutex
	token       string
	err         error
	invalidated []string
}

func (m *mockAppTokens) GetAppToken(_ context.Context) (*domain.AppCredential, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.AppCredential{AccessToken: m.token}, nil
}

func (m *mockAppTokens) Invalidate(accessToken string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, accessToken)
}

// memoryCredentialStore keeps credentials in a map and records every update in order.
type memoryCredentialStore struct {
	mu        sync.Mutex
	creds     map[string]domain.UserCredential
	updates   []domain.UserCredential
	findErr   error
	updateErr error
	// honorContext makes writes fail on a cancelled context, like a real database.
	honorContext bool
}

func newMemoryCredentialStore(creds ...domain.UserCredential) *memoryCredentialStore {
	s := &memoryCredentialStore{creds: make(map[string]domain.UserCredential)}
	for _, c := range creds {
		s.creds[c.AccountID] = c
	}
	return s
}

func (s *memoryCredentialStore) FindCredential(_ context.Context, accountID string) (*domain.UserCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	c, ok := s.creds[accountID]
	if !ok {
		return nil, domain.ErrCredentialNotFound
	}
	return &c, nil
}

func (s *memoryCredentialStore) UpdateCredential(ctx context.Context, accountID string, cred domain.UserCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.honorContext && ctx.Err() != nil {
		return ctx.Err()
	}
	if s.updateErr != nil {
		return s.updateErr
	}
	s.creds[accountID] = cred
	s.updates = append(s.updates, cred)
	return nil
}

func (s *memoryCredentialStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

func (s *memoryCredentialStore) get(accountID string) domain.UserCredential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds[accountID]
}

func newTestService(upstream *mockUpstream, appTokens *mockAppTokens, store *memoryCredentialStore) *StreamService {
	return NewStreamService(upstream, appTokens, store, NewTokenRefresher(store, upstream))
}

package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AppCredential is an application access token obtained through the client-credentials grant.
// Values are immutable once issued; a refresh replaces the whole credential.
type AppCredential struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	IssuedAt    time.Time     `json:"issued_at"`
	TTL         time.Duration `json:"ttl"`
}

// ExpiresAt is the instant the upstream stops accepting the token.
func (c *AppCredential) ExpiresAt() time.Time {
	return c.IssuedAt.Add(c.TTL)
}

// UsableAt reports whether the credential still has more than margin of validity left at now.
func (c *AppCredential) UsableAt(now time.Time, margin time.Duration) bool {
	return now.Before(c.ExpiresAt().Add(-margin))
}

// UserCredential is the access/refresh token pair of one linked platform account.
type UserCredential struct {
	AccountID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// CredentialStore reads and replaces linked-account credentials, keyed by the platform account id.
type CredentialStore interface {
	// FindCredential returns ErrCredentialNotFound when the account is not linked.
	FindCredential(ctx context.Context, accountID string) (*UserCredential, error)
	// UpdateCredential replaces access token, refresh token and expiry in one write.
	UpdateCredential(ctx context.Context, accountID string, cred UserCredential) error
}

// AccountLinker stores the first credential of an account. The login flow calls it after the
// OAuth code exchange; afterwards the account is only touched through CredentialStore.
type AccountLinker interface {
	// LinkAccount inserts or replaces the credential of cred.AccountID and returns its row id.
	LinkAccount(ctx context.Context, cred UserCredential) (uuid.UUID, error)
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/streamrelay/internal/crypto"
	"github.com/pscheid92/streamrelay/internal/domain"
)

// CredentialRepo stores linked-account tokens, encrypted with the configured cipher.
type CredentialRepo struct {
	pool   *pgxpool.Pool
	cipher crypto.TokenCipher
}

var (
	_ domain.CredentialStore = (*CredentialRepo)(nil)
	_ domain.AccountLinker   = (*CredentialRepo)(nil)
)

func NewCredentialRepo(pool *pgxpool.Pool, cipher crypto.TokenCipher) *CredentialRepo {
	return &CredentialRepo{pool: pool, cipher: cipher}
}

const findCredentialSQL = `
SELECT access_token, refresh_token, token_expiry
FROM linked_accounts
WHERE twitch_account_id = $1`

func (r *CredentialRepo) FindCredential(ctx context.Context, accountID string) (*domain.UserCredential, error) {
	var sealedAccess, sealedRefresh string
	var expiry time.Time

	err := r.pool.QueryRow(ctx, findCredentialSQL, accountID).Scan(&sealedAccess, &sealedRefresh, &expiry)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query credential: %w", err)
	}

	accessToken, err := r.cipher.Open(accountID, sealedAccess)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	refreshToken, err := r.cipher.Open(accountID, sealedRefresh)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	return &domain.UserCredential{
		AccountID:    accountID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiry.UTC(),
	}, nil
}

const updateCredentialSQL = `
UPDATE linked_accounts
SET access_token = $2, refresh_token = $3, token_expiry = $4, updated_at = NOW()
WHERE twitch_account_id = $1`

func (r *CredentialRepo) UpdateCredential(ctx context.Context, accountID string, cred domain.UserCredential) error {
	sealedAccess, sealedRefresh, err := r.seal(accountID, cred)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, updateCredentialSQL, accountID, sealedAccess, sealedRefresh, cred.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCredentialNotFound
	}
	return nil
}

const linkAccountSQL = `
INSERT INTO linked_accounts (id, twitch_account_id, access_token, refresh_token, token_expiry)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (twitch_account_id) DO UPDATE
SET access_token = EXCLUDED.access_token,
    refresh_token = EXCLUDED.refresh_token,
    token_expiry = EXCLUDED.token_expiry,
    updated_at = NOW()
RETURNING id`

// LinkAccount is the account-linking hook for the login flow: it inserts or replaces the
// credential of an account and returns its row id. Re-linking keeps the original id.
func (r *CredentialRepo) LinkAccount(ctx context.Context, cred domain.UserCredential) (uuid.UUID, error) {
	sealedAccess, sealedRefresh, err := r.seal(cred.AccountID, cred)
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err = r.pool.QueryRow(ctx, linkAccountSQL, uuid.New(), cred.AccountID, sealedAccess, sealedRefresh, cred.ExpiresAt).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to link account: %w", err)
	}
	return id, nil
}

func (r *CredentialRepo) seal(accountID string, cred domain.UserCredential) (access, refresh string, err error) {
	access, err = r.cipher.Seal(accountID, cred.AccessToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refresh, err = r.cipher.Seal(accountID, cred.RefreshToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	return access, refresh, nil
}

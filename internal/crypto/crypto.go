package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const sealedPrefix = "v1:"

var ErrNotSealed = errors.New("value is not encrypted")

// TokenCipher encrypts and decrypts tokens for one account.
type TokenCipher interface {
	Seal(accountID, plaintext string) (string, error)
	Open(accountID, sealed string) (string, error)
}

// New returns an AES-256-GCM cipher for a 64-character hex key, or a Plaintext
// cipher when hexKey is empty.
func New(hexKey string) (TokenCipher, error) {
	if hexKey == "" {
		slog.Warn("TOKEN_ENCRYPTION_KEY not set, storing tokens in plaintext")
		return Plaintext{}, nil
	}
	return NewAESGCM(hexKey)
}

// Plaintext stores tokens unencrypted (development and tests).
type Plaintext struct{}

func (Plaintext) Seal(_, plaintext string) (string, error) { return plaintext, nil }
func (Plaintext) Open(_, sealed string) (string, error)    { return sealed, nil }

type AESGCM struct {
	gcm cipher.AEAD
}

func NewAESGCM(hexKey string) (*AESGCM, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AESGCM{gcm: gcm}, nil
}

// Seal returns "v1:" + hex(nonce || ciphertext || tag). The account id is authenticated, not stored.
func (c *AESGCM) Seal(accountID, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := c.gcm.Seal(nonce, nonce, []byte(plaintext), []byte(accountID))
	return sealedPrefix + hex.EncodeToString(out), nil
}

func (c *AESGCM) Open(accountID, sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	encoded, ok := strings.CutPrefix(sealed, sealedPrefix)
	if !ok {
		return "", ErrNotSealed
	}

	buffer, err := hex.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode hex: %w", err)
	}

	nonceSize := c.gcm.NonceSize()
	if len(buffer) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, cipherBytes := buffer[:nonceSize], buffer[nonceSize:]
	plainBytes, err := c.gcm.Open(nil, nonce, cipherBytes, []byte(accountID))
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plainBytes), nil
}

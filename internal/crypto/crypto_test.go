package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 64 hex chars = 32 bytes = valid AES-256 key
const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestNew_EmptyKeyIsPlaintext(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)
	assert.IsType(t, Plaintext{}, c)
}

func TestNewAESGCM_InvalidKeys(t *testing.T) {
	tests := []struct {
		name   string
		hexKey string
	}{
		{"invalid hex", "zzzz"},
		{"too short (31 bytes)", testKey[:62]},
		{"too long (33 bytes)", testKey + "00"},
		{"AES-128 key", testKey[:32]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewAESGCM(tt.hexKey)
			assert.Error(t, err)
			assert.Nil(t, c)
		})
	}
}

func TestSealOpen_Roundtrip(t *testing.T) {
	c, err := New(testKey)
	require.NoError(t, err)

	sealed, err := c.Seal("12345", "user-access-token")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "v1:"))
	assert.NotContains(t, sealed, "user-access-token")

	opened, err := c.Open("12345", sealed)
	require.NoError(t, err)
	assert.Equal(t, "user-access-token", opened)
}

func TestSeal_UniqueNonces(t *testing.T) {
	c, err := NewAESGCM(testKey)
	require.NoError(t, err)

	a, err := c.Seal("12345", "same")
	require.NoError(t, err)
	b, err := c.Seal("12345", "same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestOpen_BoundToAccount(t *testing.T) {
	c, err := NewAESGCM(testKey)
	require.NoError(t, err)

	sealed, err := c.Seal("12345", "refresh-token")
	require.NoError(t, err)

	_, err = c.Open("67890", sealed)
	assert.Error(t, err)
}

func TestOpen_WrongKey(t *testing.T) {
	c1, err := NewAESGCM(testKey)
	require.NoError(t, err)
	c2, err := NewAESGCM(strings.Repeat("ab", 32))
	require.NoError(t, err)

	sealed, err := c1.Seal("12345", "token")
	require.NoError(t, err)

	_, err = c2.Open("12345", sealed)
	assert.Error(t, err)
}

func TestOpen_Malformed(t *testing.T) {
	c, err := NewAESGCM(testKey)
	require.NoError(t, err)

	_, err = c.Open("12345", "plain-token")
	assert.ErrorIs(t, err, ErrNotSealed)

	_, err = c.Open("12345", "v1:not-hex")
	assert.Error(t, err)

	_, err = c.Open("12345", "v1:00ff")
	assert.Error(t, err)
}

func TestEmptyValues(t *testing.T) {
	c, err := NewAESGCM(testKey)
	require.NoError(t, err)

	sealed, err := c.Seal("12345", "")
	require.NoError(t, err)
	assert.Empty(t, sealed)

	opened, err := c.Open("12345", "")
	require.NoError(t, err)
	assert.Empty(t, opened)
}

func TestPlaintext_PassThrough(t *testing.T) {
	var c TokenCipher = Plaintext{}

	sealed, err := c.Seal("12345", "token")
	require.NoError(t, err)
	assert.Equal(t, "token", sealed)

	opened, err := c.Open("12345", sealed)
	require.NoError(t, err)
	assert.Equal(t, "token", opened)
}

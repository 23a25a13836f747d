package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	signer := NewSigner("test-secret", 24*time.Hour)

	raw, err := signer.Sign("user-123")
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	claims, err := signer.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID)

	remaining := time.Until(claims.ExpiresAt.Time)
	assert.Greater(t, remaining, 23*time.Hour)
	assert.LessOrEqual(t, remaining, 24*time.Hour)
}

func TestVerifyWrongSecret(t *testing.T) {
	signer := NewSigner("secret-a", time.Hour)
	other := NewSigner("secret-b", time.Hour)

	raw, err := signer.Sign("user-123")
	require.NoError(t, err)

	_, err = other.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyExpiredToken(t *testing.T) {
	signer := NewSigner("test-secret", -time.Minute)

	raw, err := signer.Sign("user-123")
	require.NoError(t, err)

	_, err = signer.Verify(raw)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyGarbage(t *testing.T) {
	signer := NewSigner("test-secret", time.Hour)

	for _, raw := range []string{"", "garbage", "a.b.c"} {
		_, err := signer.Verify(raw)
		assert.Error(t, err, "token %q should not verify", raw)
	}
}

func TestNewSignerDefaultTTL(t *testing.T) {
	signer := NewSigner("test-secret", 0)
	assert.Equal(t, 24*time.Hour, signer.TTL())
}

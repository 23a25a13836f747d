package hashing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	h := NewHasher(DefaultParams)

	encoded, err := h.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$"))

	ok, err := h.VerifyPassword("correct horse battery staple", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.VerifyPassword("wrong password", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPasswordUniqueSalts(t *testing.T) {
	h := NewHasher(DefaultParams)

	first, err := h.HashPassword("pw1")
	require.NoError(t, err)
	second, err := h.HashPassword("pw1")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)

	for _, encoded := range []string{first, second} {
		ok, err := h.VerifyPassword("pw1", encoded)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestVerifyPasswordRejectsMalformedHash(t *testing.T) {
	h := NewHasher(DefaultParams)

	cases := []string{
		"",
		"not-a-hash",
		"$argon2i$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=2$!!!$aGFzaA",
	}

	for _, encoded := range cases {
		_, err := h.VerifyPassword("pw", encoded)
		assert.Error(t, err, "hash %q should be rejected", encoded)
	}
}

func TestNewHasherZeroParamsFallsBack(t *testing.T) {
	h := NewHasher(Argon2Params{})

	encoded, err := h.HashPassword("pw")
	require.NoError(t, err)

	ok, err := h.VerifyPassword("pw", encoded)
	require.NoError(t, err)
	assert.True(t, ok)
}

package encryption

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus-auth/internal/config"
)

func newLocalManager() *Manager {
	return NewManager(&config.Config{}, nil)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := newLocalManager()

	data, err := m.EncryptField(ctx, "a@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, "a@x.com", data.EncryptedValue)
	assert.Equal(t, "v1", data.Version)

	plain, err := m.DecryptField(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", plain)
}

func TestEncryptProducesFreshCiphertext(t *testing.T) {
	ctx := context.Background()
	m := newLocalManager()

	a, err := m.EncryptField(ctx, "a@x.com")
	require.NoError(t, err)
	b, err := m.EncryptField(ctx, "a@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, a.EncryptedValue, b.EncryptedValue)
}

func TestPackedRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := newLocalManager()

	packed, err := m.EncryptToString(ctx, "a@x.com")
	require.NoError(t, err)

	// a fresh manager has a cold key cache and must still decrypt
	plain, err := newLocalManager().DecryptFromString(ctx, packed)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", plain)
}

func TestEnvelopeDEKIsRawKeySize(t *testing.T) {
	ctx := context.Background()
	m := newLocalManager()

	data, err := m.EncryptField(ctx, "a@x.com")
	require.NoError(t, err)

	// the stored DEK must decode to a usable AES-256 key, not to another
	// layer of encoding
	dek, err := base64.StdEncoding.DecodeString(data.EncryptedDEK)
	require.NoError(t, err)
	assert.Len(t, dek, 32)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	m := newLocalManager()

	_, err := m.DecryptFromString(ctx, "not json")
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = m.DecryptField(ctx, &EncryptedData{EncryptedValue: "!!", EncryptedDEK: "!!"})
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestTamperedCiphertextFails(t *testing.T) {
	ctx := context.Background()
	m := newLocalManager()

	data, err := m.EncryptField(ctx, "a@x.com")
	require.NoError(t, err)
	data.EncryptedValue = "AAAA" + data.EncryptedValue[4:]

	_, err = m.DecryptField(ctx, data)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

package store

import (
	"context"
	"testing"
	"time"

	"campus-auth/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func boolPtr(b bool) *bool { return &b }

func TestMemoryCreateAndFind(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	err := m.Create(ctx, &model.UserCredential{
		Email:        "a@x.com",
		Username:     "alice",
		PasswordHash: "hash1",
	})
	require.NoError(t, err)

	rec, err := m.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "alice", rec.Username)
	assert.False(t, rec.Verified)

	_, err = m.FindByEmail(ctx, "missing@x.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCreateDuplicateFails(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Create(ctx, &model.UserCredential{Email: "a@x.com"}))
	assert.Error(t, m.Create(ctx, &model.UserCredential{Email: "a@x.com"}))
	assert.Equal(t, 1, m.Len())
}

func TestMemoryEmailsAreCaseSensitive(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Create(ctx, &model.UserCredential{Email: "A@x.com"}))

	_, err := m.FindByEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUpdateByEmail(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	expiry := time.Now().Add(10 * time.Minute).UTC()
	require.NoError(t, m.Create(ctx, &model.UserCredential{
		Email:     "a@x.com",
		Username:  "alice",
		OTP:       strPtr("111111"),
		OTPExpiry: timePtr(expiry),
	}))

	// overwrite username and OTP pair
	newExpiry := expiry.Add(5 * time.Minute)
	err := m.UpdateByEmail(ctx, "a@x.com", UserUpdate{
		Username:  strPtr("alice2"),
		OTP:       strPtr("222222"),
		OTPExpiry: timePtr(newExpiry),
	})
	require.NoError(t, err)

	rec, err := m.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "alice2", rec.Username)
	require.NotNil(t, rec.OTP)
	assert.Equal(t, "222222", *rec.OTP)
	require.NotNil(t, rec.OTPExpiry)
	assert.True(t, rec.OTPExpiry.Equal(newExpiry))

	// clearing drops code and expiry together
	err = m.UpdateByEmail(ctx, "a@x.com", UserUpdate{
		Verified: boolPtr(true),
		ClearOTP: true,
	})
	require.NoError(t, err)

	rec, err = m.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, rec.Verified)
	assert.Nil(t, rec.OTP)
	assert.Nil(t, rec.OTPExpiry)
}

func TestMemoryUpdateMissingRecord(t *testing.T) {
	m := NewMemory()
	err := m.UpdateByEmail(context.Background(), "missing@x.com", UserUpdate{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryFindReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Create(ctx, &model.UserCredential{Email: "a@x.com", Username: "alice"}))

	rec, err := m.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	rec.Username = "mutated"

	again, err := m.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", again.Username)
}

func TestMemoryFindCopiesOTPPointers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	expiry := time.Now().Add(10 * time.Minute).UTC()
	require.NoError(t, m.Create(ctx, &model.UserCredential{
		Email:     "a@x.com",
		OTP:       strPtr("111111"),
		OTPExpiry: timePtr(expiry),
	}))

	rec, err := m.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	*rec.OTP = "999999"
	*rec.OTPExpiry = expiry.Add(time.Hour)

	again, err := m.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "111111", *again.OTP)
	assert.True(t, again.OTPExpiry.Equal(expiry))
}

package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateOTP(t *testing.T) {
	for i := 0; i < 50; i++ {
		otp, err := GenerateOTP(6)
		require.NoError(t, err)
		assert.Len(t, otp, 6)
		assert.Regexp(t, `^[0-9]{6}$`, otp)
	}
}

func TestGenerateOTPLengths(t *testing.T) {
	for _, n := range []int{4, 6, 8} {
		otp, err := GenerateOTP(n)
		require.NoError(t, err)
		assert.Len(t, otp, n)
	}
}

func TestGenerateOTPDefaultsBadLength(t *testing.T) {
	for _, n := range []int{0, -1} {
		otp, err := GenerateOTP(n)
		require.NoError(t, err)
		assert.Len(t, otp, 6)
	}
}

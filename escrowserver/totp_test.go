package escrowserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVerifyTOTPCodeAcceptsCurrentWindow(t *testing.T) {
	secret, err := generateTOTPSecret()
	require.NoError(t, err)

	now := time.Now()
	code, err := totpCodeAt(secret, now)
	require.NoError(t, err)
	require.True(t, verifyTOTPCode(secret, code, now))
}

func TestVerifyTOTPCodeRejectsWrongCode(t *testing.T) {
	secret, err := generateTOTPSecret()
	require.NoError(t, err)
	require.False(t, verifyTOTPCode(secret, "000000", time.Now()))
}

func TestVerifyTOTPCodeToleratesClockSkewWithinWindow(t *testing.T) {
	secret, err := generateTOTPSecret()
	require.NoError(t, err)

	now := time.Now()
	past := now.Add(-totpPeriod * time.Second)
	code, err := totpCodeAt(secret, past)
	require.NoError(t, err)
	require.True(t, verifyTOTPCode(secret, code, now))
}

func TestVerifyTOTPCodeRejectsBeyondWindow(t *testing.T) {
	secret, err := generateTOTPSecret()
	require.NoError(t, err)

	now := time.Now()
	farPast := now.Add(-10 * totpPeriod * time.Second)
	code, err := totpCodeAt(secret, farPast)
	require.NoError(t, err)
	require.False(t, verifyTOTPCode(secret, code, now))
}

func TestValidTOTPCodeRejectsNonDigits(t *testing.T) {
	require.False(t, validTOTPCode("12a456"))
	require.False(t, validTOTPCode("12345"))
	require.True(t, validTOTPCode("123456"))
}

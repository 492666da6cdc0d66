package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	SetJWTSecret("test-secret")

	token, exp, err := GenerateToken("admin-1", "ops", "super_admin", time.Hour)
	require.NoError(t, err)
	assert.Greater(t, exp, time.Now().Unix())

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", claims.AdminID)
	assert.Equal(t, "super_admin", claims.Role)

	SetJWTSecret("other-secret")
	_, err = ValidateToken(token)
	assert.Error(t, err)
}

func TestCommandIDsAreTimeOrdered(t *testing.T) {
	a, err := NewCommandID()
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	b, err := NewCommandID()
	require.NoError(t, err)

	assert.Len(t, a, 36)
	assert.True(t, strings.Compare(a, b) < 0)
}

func TestPayloadFingerprintSeparatesParts(t *testing.T) {
	assert.NotEqual(t, PayloadFingerprint("ab", "c"), PayloadFingerprint("a", "bc"))
	assert.Equal(t, PayloadFingerprint("x", "y"), PayloadFingerprint("x", "y"))
}

func TestDBTimeFormatting(t *testing.T) {
	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.FixedZone("KST", 9*3600))
	assert.Equal(t, "2024-03-01 00:30:00", FormatDateTimeForDB(ts))
	assert.Equal(t, "", FormatDateTimeForDB(time.Time{}))

	parsed, err := ParseDBDate("2024-03-01 00:30:00")
	require.NoError(t, err)
	assert.True(t, parsed.Equal(ts))

	_, err = ParseDeviceTime("01/03/2024")
	assert.Error(t, err)
}

func TestValidateTokenRejectsForeignIssuer(t *testing.T) {
	SetJWTSecret("test-secret")
	claims := Claims{
		AdminID: "admin-1",
		Role:    "operator",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = ValidateToken(signed)
	assert.Error(t, err)
}

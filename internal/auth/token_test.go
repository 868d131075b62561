package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestVerifyTokenAcceptsValidToken(t *testing.T) {
	v := NewVerifier("secret")
	claims := Claims{
		UserID: "user-1",
		Roles:  []string{"editor"},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := signToken(t, "secret", claims)

	got, err := v.VerifyToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", got.UserID)
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	v := NewVerifier("secret")
	token := signToken(t, "other-secret", Claims{UserID: "user-1"})

	_, err := v.VerifyToken(token)
	require.Error(t, err)
}

func TestVerifyTokenRejectsExpiredToken(t *testing.T) {
	v := NewVerifier("secret")
	claims := Claims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token := signToken(t, "secret", claims)

	_, err := v.VerifyToken(token)
	require.Error(t, err)
}

func TestHashAndValidateRefreshToken(t *testing.T) {
	hash, err := HashRefreshToken("refresh-token-value")
	require.NoError(t, err)
	require.NoError(t, ValidateRefreshToken("refresh-token-value", hash))
	require.Error(t, ValidateRefreshToken("wrong-token", hash))
}

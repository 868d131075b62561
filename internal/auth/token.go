// Package auth is the token verification boundary: it checks JWTs
// presented by already-authenticated clients and hashes refresh
// tokens at rest. Issuing access tokens, logging users in, and
// password hashing are explicitly out of this core's scope; those
// live in whatever upstream identity service mints the JWT this
// package verifies.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/refmd-collab/docserver/internal/apperr"
)

// Claims is the JWT payload this core expects from the issuing
// identity service.
type Claims struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// Verifier checks bearer tokens against a shared HMAC secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier for the given HS256 secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// VerifyToken parses and validates tokenString, returning its claims.
// Expiry, signature, and signing-method checks all flow through
// apperr.Unauthorized so the REST and gateway layers can react
// uniformly regardless of which check failed.
func (v *Verifier) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Unauthorized, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, apperr.New(apperr.Unauthorized, "invalid token")
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return nil, apperr.New(apperr.Unauthorized, "token expired")
	}
	return claims, nil
}

// HashRefreshToken hashes a refresh token for storage in
// persistence.RefreshToken.TokenHash, so a stolen database dump
// doesn't hand out usable tokens.
func HashRefreshToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, err)
	}
	return string(hash), nil
}

// ValidateRefreshToken compares a presented refresh token against its
// stored hash.
func ValidateRefreshToken(token, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
		return apperr.Wrap(apperr.Unauthorized, err)
	}
	return nil
}

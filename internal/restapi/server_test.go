package restapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/refmd-collab/docserver/internal/auth"
)

func TestHealthEndpointNeedsNoAuth(t *testing.T) {
	e := New(Deps{Verifier: auth.NewVerifier("secret")})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectedEndpointRejectsMissingToken(t *testing.T) {
	e := New(Deps{Verifier: auth.NewVerifier("secret")})

	req := httptest.NewRequest(http.MethodGet, "/git/status", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

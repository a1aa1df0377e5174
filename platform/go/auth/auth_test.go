package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"

	"github.com/clearledger/taxflow/platform/go/auth/devtoken"
)

func TestDefaultCredentialExtractor(t *testing.T) {
	creds, err := DefaultCredentialExtractor(map[string]interface{}{
		"uid":       "user-123",
		"email":     "user@example.com",
		"companyId": "7b9dfe0a-85ea-4334-9b0f-8d1f5a6f2b11",
		"isAdmin":   true,
	})
	require.NoError(t, err)
	require.Equal(t, "user-123", creds.Id)
	require.Equal(t, "user@example.com", creds.Email)
	require.True(t, creds.IsAdmin)
	require.NotNil(t, creds.CompanyID)
	require.Equal(t, "7b9dfe0a-85ea-4334-9b0f-8d1f5a6f2b11", *creds.CompanyID)

	creds, err = DefaultCredentialExtractor(map[string]interface{}{"sub": "s-1"})
	require.NoError(t, err)
	require.Equal(t, "s-1", creds.Id)
	require.Nil(t, creds.CompanyID)

	_, err = DefaultCredentialExtractor(nil)
	require.Error(t, err)
}

func TestHMACTokenVerifier(t *testing.T) {
	secret := []byte("test-shared-secret")

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":       "user-1",
		"companyId": "company-1",
		"exp":       time.Now().Add(time.Hour).Unix(),
	}).SignedString(secret)
	require.NoError(t, err)

	verify := HMACTokenVerifier(secret)
	claims, err := verify(t.Context(), signed)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims["sub"])

	_, err = verify(t.Context(), signed+"tampered")
	require.Error(t, err)

	wrongKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = verify(t.Context(), wrongKey)
	require.Error(t, err)
}

func TestJWTMiddlewareSetsCredentials(t *testing.T) {
	token, err := devtoken.BuildUnsignedToken(devtoken.Params{
		UserID:    "user-1",
		Email:     "user@example.com",
		CompanyID: "company-1",
	}, time.Now().UTC())
	require.NoError(t, err)

	var seen *UserCredentials
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	handler := JWT(UnsignedTokenVerifier(), nil)(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	require.Equal(t, "user-1", seen.Id)
	require.NotNil(t, seen.CompanyID)
	require.Equal(t, "company-1", *seen.CompanyID)
}

func TestJWTMiddlewarePassesThroughWithoutToken(t *testing.T) {
	var called bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, ok := UserFromContext(r.Context())
		require.False(t, ok)
	})

	handler := JWT(UnsignedTokenVerifier(), nil)(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.True(t, called)
}

func TestJWTMiddlewareRejectsInvalidToken(t *testing.T) {
	handler := JWT(HMACTokenVerifier([]byte("secret")), nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run for an invalid token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
}

package utils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/raushankrgupta/nima-backend/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withSecret(t *testing.T, secret string) {
	t.Helper()
	prev := config.JWTSecret
	config.JWTSecret = secret
	t.Cleanup(func() { config.JWTSecret = prev })
}

func TestToken_RoundTrip(t *testing.T) {
	withSecret(t, "test-secret")

	token, err := GenerateToken("64b7f0c2a1b2c3d4e5f60718")
	require.NoError(t, err)

	userID, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "64b7f0c2a1b2c3d4e5f60718", userID)
}

func TestToken_Rejects(t *testing.T) {
	withSecret(t, "test-secret")

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	signed, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = ValidateToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u1"})
	signed, err = forged.SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = ValidateToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ValidateToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestToken_MissingSecret(t *testing.T) {
	withSecret(t, "")
	_, err := GenerateToken("u1")
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)

	assert.True(t, CheckPassword(hash, "hunter22"))
	assert.False(t, CheckPassword(hash, "hunter23"))
	assert.False(t, CheckPassword("", "hunter22"))
}

func TestFetchURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		assert.Contains(t, r.UserAgent(), "Mozilla")
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png"))
	}))
	defer srv.Close()

	data, contentType, err := FetchURL(context.Background(), srv.URL+"/a.png")
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
	assert.Equal(t, "image/png", contentType)

	_, _, err = FetchURL(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)
}

func TestResolveShortenedURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/s", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/product/42", http.StatusFound)
	})
	mux.HandleFunc("/product/42", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resolved, err := ResolveShortenedURL(context.Background(), srv.URL+"/s")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/product/42", resolved)
}

func TestIsAbsoluteURL(t *testing.T) {
	assert.True(t, IsAbsoluteURL("https://x.test/a"))
	assert.False(t, IsAbsoluteURL("looks/u1/a.png"))
}

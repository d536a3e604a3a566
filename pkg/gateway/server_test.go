package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternalAPIRoutes_NoDuplicateMethodPathPairs(t *testing.T) {
	seen := make(map[string]bool)
	for _, r := range internalAPIRoutes {
		key := r.method + " " + r.path
		assert.False(t, seen[key], "duplicate route %s", key)
		seen[key] = true
		assert.NotEmpty(t, r.op)
	}
}

func TestHealthHandler_ReturnsOK(t *testing.T) {
	s := NewServer(Config{JWTSecret: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestServer_AuthRequiredRouteRejectsWithoutCredentials(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	s := NewServer(Config{
		JWTSecret: "secret",
		Upstreams: []Upstream{{Prefix: "/tool", Target: up.URL, AuthRequired: true}},
	})

	req := httptest.NewRequest(http.MethodGet, "/tool/", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_AuthRequiredRouteAcceptsValidBearerAndMintsCookie(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	s := NewServer(Config{
		JWTSecret: "secret",
		Upstreams: []Upstream{{Prefix: "/tool", Target: up.URL, AuthRequired: true}},
	})

	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		SessionID: "sess-1",
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte("secret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/tool/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "fluxrelay_session", cookies[0].Name)
}

func TestServer_InternalAPIRejectsNonLocalhost(t *testing.T) {
	s := NewServer(Config{JWTSecret: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/api/repos", nil)
	req.RemoteAddr = "203.0.113.1:1234"
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServer_InternalAPIWithoutBridgeReturnsServiceUnavailable(t *testing.T) {
	s := NewServer(Config{JWTSecret: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/api/repos", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_InvalidUpstreamTargetDisablesRouteWithoutPanicking(t *testing.T) {
	assert.NotPanics(t, func() {
		NewServer(Config{
			JWTSecret: "secret",
			Upstreams: []Upstream{{Prefix: "/bad", Target: "://not-a-url"}},
		})
	})
}

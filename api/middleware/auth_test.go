package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/soundmint-backend/internal/chain"
	pkgAuth "github.com/angelmondragon/soundmint-backend/pkg/auth"
	"github.com/angelmondragon/soundmint-backend/pkg/config"
)

const testWallet = "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01"

func testJWT() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "soundmint", ExpirationMinutes: 60}
}

func mintTestToken(t *testing.T, roles ...string) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(testJWT(), time.Now(), pkgAuth.AccessTokenPayload{Address: testWallet, Roles: roles})
	require.NoError(t, err)
	return token
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestAuthRejectsMissingToken(t *testing.T) {
	resp := httptest.NewRecorder()
	Auth(testJWT(), nil)(okHandler()).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	Auth(testJWT(), nil)(okHandler()).ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAuthSeedsAccountAndRoles(t *testing.T) {
	var account chain.Address
	var isArtist bool
	handler := Auth(testJWT(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account = AccountFromContext(r.Context())
		isArtist = HasRole(r.Context(), "ARTIST_ROLE")
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mintTestToken(t, "ARTIST_ROLE"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, chain.Address("0xabcdef0123456789abcdef0123456789abcdef01"), account)
	assert.True(t, isArtist)
}

func TestAuthAcceptsQueryTokenOnlyForEventStreams(t *testing.T) {
	token := mintTestToken(t)

	resp := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/publish/sessions/abc/events?access_token="+token, nil)
	Auth(testJWT(), nil)(okHandler()).ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/publish/sessions/abc?access_token="+token, nil)
	Auth(testJWT(), nil)(okHandler()).ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole("ADMIN_ROLE", nil)(okHandler())

	resp := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(resp, req.WithContext(WithAccount(req.Context(), "0x1", "ARTIST_ROLE")))
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req.WithContext(WithAccount(req.Context(), "0x1", "ADMIN_ROLE")))
	assert.Equal(t, http.StatusOK, resp.Code)
}

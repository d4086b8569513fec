package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/soundmint-backend/pkg/config"
)

const testAddress = "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01"

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "soundmint", ExpirationMinutes: 30}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		Address: testAddress,
		Roles:   []string{"ARTIST_ROLE"},
	})
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", claims.Address)
	assert.Equal(t, claims.Address, claims.Subject)
	assert.True(t, claims.HasRole("ARTIST_ROLE"))
	assert.False(t, claims.HasRole("ADMIN_ROLE"))
	assert.Equal(t, cfg.Issuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestMintRejectsBadAddress(t *testing.T) {
	_, err := MintAccessToken(testJWTConfig(), time.Now(), AccessTokenPayload{Address: "0x123"})
	require.Error(t, err)
}

func TestParseRejectsExpiredAndWrongIssuer(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), AccessTokenPayload{Address: testAddress})
	require.NoError(t, err)
	_, err = ParseAccessToken(cfg, token)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)

	fresh, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{Address: testAddress})
	require.NoError(t, err)
	other := cfg
	other.Issuer = "someone-else"
	_, err = ParseAccessToken(other, fresh)
	require.Error(t, err)
}

func TestNilClaimsHasNoRoles(t *testing.T) {
	var claims *AccessTokenClaims
	assert.False(t, claims.HasRole("ARTIST_ROLE"))
}

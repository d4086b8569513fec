package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	Address string
	Roles   []string
	JTI     string
}

// AccessTokenClaims represents the typed JWT issued to wallet holders. Address
// and Subject both hold the lowercase wallet address.
type AccessTokenClaims struct {
	Address string   `json:"address"`
	Roles   []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// HasRole reports whether the token grants role.
func (c *AccessTokenClaims) HasRole(role string) bool {
	if c == nil {
		return false
	}
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

package controllers

import (
	"net/http"
	"time"

	"github.com/angelmondragon/soundmint-backend/api/responses"
	"github.com/angelmondragon/soundmint-backend/api/validators"
	pkgAuth "github.com/angelmondragon/soundmint-backend/pkg/auth"
	"github.com/angelmondragon/soundmint-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/soundmint-backend/pkg/errors"
	"github.com/angelmondragon/soundmint-backend/pkg/logger"
)

type devTokenRequest struct {
	Address string   `json:"address" validate:"required,eth_addr"`
	Roles   []string `json:"roles" validate:"max=8,dive,required,max=64"`
}

type devTokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// DevToken mints an access token for any wallet. It is only routed outside
// production so local clients can exercise the publish flow.
func DevToken(cfg config.JWTConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload devTokenRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		now := time.Now().UTC()
		token, err := pkgAuth.MintAccessToken(cfg, now, pkgAuth.AccessTokenPayload{
			Address: payload.Address,
			Roles:   payload.Roles,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "mint token"))
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, devTokenResponse{
			AccessToken: token,
			ExpiresAt:   now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute),
		})
	}
}

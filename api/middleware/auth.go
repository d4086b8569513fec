package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/soundmint-backend/api/responses"
	"github.com/angelmondragon/soundmint-backend/internal/chain"
	pkgAuth "github.com/angelmondragon/soundmint-backend/pkg/auth"
	"github.com/angelmondragon/soundmint-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/soundmint-backend/pkg/errors"
	"github.com/angelmondragon/soundmint-backend/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the
// wallet address and roles it carries. Event streams may pass the token as
// the access_token query parameter since EventSource cannot set headers.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if claims.ID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing token id"))
				return
			}

			account := chain.Address(strings.ToLower(claims.Address))
			ctx := WithAccount(r.Context(), account, claims.Roles...)
			if logg != nil {
				ctx = logg.WithAccount(ctx, account.String())
				ctx = logg.WithField(ctx, "roles", claims.Roles)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" && r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/events") {
		return strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return raw
}

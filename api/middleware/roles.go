package middleware

import (
	"net/http"

	"github.com/angelmondragon/soundmint-backend/api/responses"
	pkgerrors "github.com/angelmondragon/soundmint-backend/pkg/errors"
	"github.com/angelmondragon/soundmint-backend/pkg/logger"
)

// RequireRole rejects requests whose token does not grant role. The chain
// remains the authority for publishing; this only keeps other callers off
// the endpoints.
func RequireRole(role string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !HasRole(r.Context(), role) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, role+" required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package controllers

import (
	"net/http"

	"github.com/angelmondragon/soundmint-backend/api/middleware"
	"github.com/angelmondragon/soundmint-backend/api/responses"
	"github.com/angelmondragon/soundmint-backend/internal/publish"
	pkgerrors "github.com/angelmondragon/soundmint-backend/pkg/errors"
	"github.com/angelmondragon/soundmint-backend/pkg/logger"
)

// PublishDiagnostics reports whether the marketplace contract exposes the
// publish entry points and whether the caller holds the publisher role.
func PublishDiagnostics(wallets publish.WalletSource, role string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if wallets == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "chain unavailable"))
			return
		}
		account := middleware.AccountFromContext(r.Context())
		if account == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "account context missing"))
			return
		}
		report, err := publish.Diagnose(r.Context(), wallets.Wallet(account), role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !report.Healthy() && logg != nil {
			logg.Warn(logg.WithField(r.Context(), "problems", report.Problems), "contract diagnostics found problems")
		}
		responses.WriteSuccess(w, report)
	}
}

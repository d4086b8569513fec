package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/soundmint-backend/api/responses"
	"github.com/angelmondragon/soundmint-backend/api/validators"
	"github.com/angelmondragon/soundmint-backend/internal/deployments"
	pkgerrors "github.com/angelmondragon/soundmint-backend/pkg/errors"
	"github.com/angelmondragon/soundmint-backend/pkg/logger"
	"github.com/angelmondragon/soundmint-backend/pkg/pagination"
)

// AdminIncompleteDeployments lists deploy attempts that never finalized,
// newest first. Collections already created by them are flagged orphaned.
func AdminIncompleteDeployments(svc deployments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deployments service unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListIncomplete(r.Context(), pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteList(w, page.Items, len(page.Items), page.NextCursor)
	}
}

package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/soundmint-backend/api/responses"
	"github.com/angelmondragon/soundmint-backend/api/validators"
	"github.com/angelmondragon/soundmint-backend/internal/catalog"
	"github.com/angelmondragon/soundmint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/soundmint-backend/pkg/errors"
	"github.com/angelmondragon/soundmint-backend/pkg/logger"
	"github.com/angelmondragon/soundmint-backend/pkg/pagination"
)

// PublicCatalog lists editions from the latest snapshot. Editions without
// audio are never listed. Only purchasable editions are listed unless the
// caller passes available=false.
func PublicCatalog(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}

		filter, err := parseCatalogFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListCatalog(r.Context(), filter, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=15")
		responses.WriteList(w, result.Editions, result.Total, result.NextCursor)
	}
}

func parseCatalogFilter(r *http.Request) (catalog.Filter, error) {
	filter := catalog.Filter{HasAudio: true}
	var err error
	if filter.Available, err = validators.ParseQueryBoolDefault(r, "available", true); err != nil {
		return filter, err
	}
	if filter.CollectionID, err = validators.ParseQueryUint(r, "collection_id"); err != nil {
		return filter, err
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("tier")); raw != "" {
		tier, parseErr := enums.ParseTier(raw)
		if parseErr != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid tier").WithDetails(map[string]any{"field": "tier"})
		}
		filter.Tier = &tier
	}
	filter.Artist = validators.SanitizeString(r.URL.Query().Get("artist"), 120)
	return filter, nil
}

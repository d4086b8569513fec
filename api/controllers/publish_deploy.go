package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/soundmint-backend/api/middleware"
	"github.com/angelmondragon/soundmint-backend/api/responses"
	"github.com/angelmondragon/soundmint-backend/internal/publish"
	"github.com/angelmondragon/soundmint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/soundmint-backend/pkg/errors"
	"github.com/angelmondragon/soundmint-backend/pkg/logger"
)

type deployResult struct {
	snap publish.Snapshot
	err  error
}

// DeployPublishSession starts the deploy saga. Rejections raised before the
// first transaction (wrong stage, missing role, incomplete draft) are
// returned synchronously. Once a step is under way the request returns 202
// and the saga keeps running detached from the request; clients follow it
// on the events stream.
func DeployPublishSession(sessions PublishSessions, logg *logger.Logger) http.HandlerFunc {
	return withSession(sessions, logg, func(w http.ResponseWriter, r *http.Request, ctrl *publish.Controller) {
		runDeploy(w, r, logg, ctrl, ctrl.Deploy)
	})
}

// ResumePublishSession rebuilds a failed deploy from its checkpoint into a
// new session and continues the saga there.
func ResumePublishSession(sessions PublishSessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessions == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "publish service unavailable"))
			return
		}
		account := middleware.AccountFromContext(r.Context())
		if account == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "account context missing"))
			return
		}
		ctrl, err := sessions.Resume(r.Context(), strings.TrimSpace(chi.URLParam(r, "id")), account)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithSessionID(ctx, ctrl.ID())
		}
		runDeploy(w, r.WithContext(ctx), logg, ctrl, ctrl.Deploy)
	}
}

func runDeploy(w http.ResponseWriter, r *http.Request, logg *logger.Logger, ctrl *publish.Controller, deploy func(context.Context) (publish.Snapshot, error)) {
	updates, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()
	// The first delivery is the state before the call.
	<-updates

	done := make(chan deployResult, 1)
	go func() {
		snap, err := deploy(context.WithoutCancel(r.Context()))
		done <- deployResult{snap: snap, err: err}
	}()

	for {
		select {
		case res := <-done:
			if res.err != nil {
				responses.WriteError(r.Context(), logg, w, res.err)
				return
			}
			responses.WriteSuccess(w, res.snap)
			return
		case snap, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if snap.DeployStep != enums.DeployStepNone && !snap.Terminal() {
				responses.WriteSuccessStatus(w, http.StatusAccepted, snap)
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

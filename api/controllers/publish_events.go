package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/angelmondragon/soundmint-backend/api/responses"
	"github.com/angelmondragon/soundmint-backend/internal/publish"
	pkgerrors "github.com/angelmondragon/soundmint-backend/pkg/errors"
	"github.com/angelmondragon/soundmint-backend/pkg/logger"
)

const eventsKeepAlive = 15 * time.Second

// PublishSessionEvents streams snapshots as server-sent events. The stream
// starts with the current snapshot and ends after Complete or Error.
func PublishSessionEvents(sessions PublishSessions, logg *logger.Logger) http.HandlerFunc {
	return withSession(sessions, logg, func(w http.ResponseWriter, r *http.Request, ctrl *publish.Controller) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		updates, unsubscribe := ctrl.Subscribe()
		defer unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ticker := time.NewTicker(eventsKeepAlive)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case snap, ok := <-updates:
				if !ok {
					return
				}
				if err := writeEvent(w, "snapshot", snap); err != nil {
					if logg != nil {
						logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "publish events write failed")
					}
					return
				}
				flusher.Flush()
				if snap.Terminal() {
					return
				}
			}
		}
	})
}

func writeEvent(w http.ResponseWriter, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

package controllers

import (
	"context"
	"errors"
	"io"
	"math/big"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/soundmint-backend/api/middleware"
	"github.com/angelmondragon/soundmint-backend/api/responses"
	"github.com/angelmondragon/soundmint-backend/api/validators"
	"github.com/angelmondragon/soundmint-backend/internal/chain"
	"github.com/angelmondragon/soundmint-backend/internal/publish"
	"github.com/angelmondragon/soundmint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/soundmint-backend/pkg/errors"
	"github.com/angelmondragon/soundmint-backend/pkg/logger"
	"github.com/angelmondragon/soundmint-backend/pkg/storage"
)

// PublishSessions is the session registry as seen by the HTTP layer.
type PublishSessions interface {
	Create(ctx context.Context, account chain.Address) (*publish.Controller, error)
	Get(id string, account chain.Address) (*publish.Controller, error)
	Resume(ctx context.Context, sessionID string, account chain.Address) (*publish.Controller, error)
}

// UploadLimits bounds multipart uploads before they are staged to disk.
type UploadLimits struct {
	TempDir       string
	MaxAudioBytes int64
	MaxCoverBytes int64
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, ctrl *publish.Controller)

// withSession resolves the {id} session owned by the caller.
func withSession(sessions PublishSessions, logg *logger.Logger, next sessionHandler) http.HandlerFunc {
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
		id := strings.TrimSpace(chi.URLParam(r, "id"))
		ctrl, err := sessions.Get(id, account)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithSessionID(ctx, id)
		}
		next(w, r.WithContext(ctx), ctrl)
	}
}

// CreatePublishSession opens a session for the caller's wallet.
func CreatePublishSession(sessions PublishSessions, logg *logger.Logger) http.HandlerFunc {
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
		ctrl, err := sessions.Create(r.Context(), account)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, ctrl.Snapshot())
	}
}

// GetPublishSession returns the current snapshot.
func GetPublishSession(sessions PublishSessions, logg *logger.Logger) http.HandlerFunc {
	return withSession(sessions, logg, func(w http.ResponseWriter, r *http.Request, ctrl *publish.Controller) {
		responses.WriteSuccess(w, sessionView{Snapshot: ctrl.Snapshot(), Draft: ctrl.Draft()})
	})
}

type sessionView struct {
	publish.Snapshot
	Draft publish.Draft `json:"draft"`
}

// metadataRequest is validated by the controller so field errors carry the
// same paths as StartPublish.
type metadataRequest struct {
	Metadata publish.Metadata     `json:"metadata" validate:"-"`
	Tracks   []publish.TrackInput `json:"tracks" validate:"-"`
}

// SubmitPublishMetadata validates album metadata and any extra tracks.
func SubmitPublishMetadata(sessions PublishSessions, logg *logger.Logger) http.HandlerFunc {
	return withSession(sessions, logg, func(w http.ResponseWriter, r *http.Request, ctrl *publish.Controller) {
		var payload metadataRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeSnapshot(w, r, logg)(ctrl.SubmitMetadata(r.Context(), payload.Metadata, payload.Tracks...))
	})
}

// UploadPublishAudio stages the multipart "file" part and stores it. An
// empty body retries the file staged by the previous attempt.
func UploadPublishAudio(sessions PublishSessions, limits UploadLimits, logg *logger.Logger) http.HandlerFunc {
	return withSession(sessions, logg, func(w http.ResponseWriter, r *http.Request, ctrl *publish.Controller) {
		file, err := stageUpload(r, limits.TempDir, limits.MaxAudioBytes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		snap, err := ctrl.UploadAudio(r.Context(), file)
		releaseRejected(file, err)
		writeSnapshot(w, r, logg)(snap, err)
	})
}

// UploadPublishCover mirrors UploadPublishAudio for the cover art.
func UploadPublishCover(sessions PublishSessions, limits UploadLimits, logg *logger.Logger) http.HandlerFunc {
	return withSession(sessions, logg, func(w http.ResponseWriter, r *http.Request, ctrl *publish.Controller) {
		file, err := stageUpload(r, limits.TempDir, limits.MaxCoverBytes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		snap, err := ctrl.UploadCoverArt(r.Context(), file)
		releaseRejected(file, err)
		writeSnapshot(w, r, logg)(snap, err)
	})
}

type tierRequest struct {
	Tier      string `json:"tier" validate:"required,oneof=bronze silver gold platinum"`
	Enabled   bool   `json:"enabled"`
	Price     string `json:"price_wei" validate:"omitempty,numeric"`
	MaxSupply uint64 `json:"max_supply"`
}

type tiersRequest struct {
	Tiers []tierRequest `json:"tiers" validate:"required,min=1,max=4,dive"`
}

func (p tiersRequest) toInputs() ([]publish.TierInput, error) {
	inputs := make([]publish.TierInput, 0, len(p.Tiers))
	invalid := map[string]string{}
	for i, t := range p.Tiers {
		tier, err := enums.ParseTier(t.Tier)
		if err != nil {
			invalid[tierField(i, "tier")] = "is invalid"
			continue
		}
		input := publish.TierInput{Tier: tier, Enabled: t.Enabled, MaxSupply: t.MaxSupply}
		if raw := strings.TrimSpace(t.Price); raw != "" {
			price, ok := new(big.Int).SetString(raw, 10)
			if !ok {
				invalid[tierField(i, "price_wei")] = "must be an integer amount of wei"
				continue
			}
			input.Price = price
		}
		inputs = append(inputs, input)
	}
	if len(invalid) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(invalid)
	}
	return inputs, nil
}

func tierField(index int, field string) string {
	return "tiers[" + strconv.Itoa(index) + "]." + field
}

// ConfigurePublishTiers replaces the staged tier set.
func ConfigurePublishTiers(sessions PublishSessions, logg *logger.Logger) http.HandlerFunc {
	return withSession(sessions, logg, func(w http.ResponseWriter, r *http.Request, ctrl *publish.Controller) {
		var payload tiersRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		inputs, err := payload.toInputs()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeSnapshot(w, r, logg)(ctrl.ConfigureTiers(r.Context(), inputs))
	})
}

// CancelPublishSession discards the draft, or stops a running deploy at the
// next step boundary.
func CancelPublishSession(sessions PublishSessions, logg *logger.Logger) http.HandlerFunc {
	return withSession(sessions, logg, func(w http.ResponseWriter, r *http.Request, ctrl *publish.Controller) {
		writeSnapshot(w, r, logg)(ctrl.Cancel(r.Context()))
	})
}

func writeSnapshot(w http.ResponseWriter, r *http.Request, logg *logger.Logger) func(publish.Snapshot, error) {
	return func(snap publish.Snapshot, err error) {
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snap)
	}
}

// releaseRejected frees a staged file the controller refused to take, which
// happens when the session is in the wrong stage or busy.
func releaseRejected(file *storage.File, err error) {
	if file != nil && pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		_ = file.Release()
	}
}

// stageUpload streams the "file" part to a temp file. It returns nil when
// the request carries no body so the controller retries the staged file.
func stageUpload(r *http.Request, dir string, maxBytes int64) (*storage.File, error) {
	if r.ContentLength == 0 {
		return nil, nil
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "multipart/form-data body required").
			WithDetails(map[string]string{"file": "is required"})
	}
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body")
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "no file selected").
				WithDetails(map[string]string{"file": "is required"})
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body")
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		return stagePart(part, dir, maxBytes)
	}
}

func stagePart(part *multipart.Part, dir string, maxBytes int64) (*storage.File, error) {
	defer part.Close()
	name := validators.SanitizeString(part.FileName(), 255)
	if name == "" {
		name = "upload"
	}
	file, err := storage.StageReader(part, name, dir, maxBytes)
	if err != nil {
		if storage.IsValidation(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "file rejected").
				WithDetails(map[string]string{"file": err.Error(), "next_action": publish.ActionReselectFile})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "stage upload")
	}
	return file, nil
}

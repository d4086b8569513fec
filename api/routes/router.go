package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/soundmint-backend/api/controllers"
	"github.com/angelmondragon/soundmint-backend/api/middleware"
	"github.com/angelmondragon/soundmint-backend/internal/catalog"
	"github.com/angelmondragon/soundmint-backend/internal/deployments"
	"github.com/angelmondragon/soundmint-backend/internal/publish"
	"github.com/angelmondragon/soundmint-backend/pkg/config"
	"github.com/angelmondragon/soundmint-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/soundmint-backend/pkg/redis"
)

// RequestStore backs idempotency replay and rate limiting.
type RequestStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(policy, subject string) string
}

type Params struct {
	Config      *config.Config
	Logger      *logger.Logger
	Pingers     map[string]controllers.Pinger
	Store       RequestStore
	Gatherer    prometheus.Gatherer
	Catalog     catalog.Service
	Sessions    controllers.PublishSessions
	Wallets     publish.WalletSource
	Deployments deployments.Service
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var idempotencyStore pkgredis.IdempotencyStore
	if p.Store != nil {
		idempotencyStore = p.Store
	}
	uploadPolicy := middleware.NewRateLimitPolicy("upload", cfg.RateLimit.UploadWindow, cfg.RateLimit.UploadLimit)
	deployPolicy := middleware.NewRateLimitPolicy("deploy", cfg.RateLimit.DeployWindow, cfg.RateLimit.DeployLimit)
	uploadLimit := middleware.RateLimit(uploadPolicy, rateStore(p.Store), logg)
	deployLimit := middleware.RateLimit(deployPolicy, rateStore(p.Store), logg)
	deployOnce := middleware.Idempotency(idempotencyStore, middleware.CriticalIdempotencyTTL, logg)

	limits := controllers.UploadLimits{
		TempDir:       cfg.Storage.TempDir,
		MaxAudioBytes: int64(cfg.Storage.MaxAudioMB) << 20,
		MaxCoverBytes: int64(cfg.Storage.MaxCoverMB) << 20,
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Pingers))
	})

	if p.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/catalog", controllers.PublicCatalog(p.Catalog, logg))
	})

	if !cfg.App.IsProd() {
		r.Post("/api/dev/token", controllers.DevToken(cfg.JWT, logg))
	}

	r.Route("/api/v1/publish", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Get("/diagnostics", controllers.PublishDiagnostics(p.Wallets, cfg.Chain.PublisherRole, logg))

		r.Route("/sessions", func(r chi.Router) {
			r.Use(middleware.RequireRole(cfg.Chain.PublisherRole, logg))
			r.Post("/", controllers.CreatePublishSession(p.Sessions, logg))
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", controllers.GetPublishSession(p.Sessions, logg))
				r.Get("/events", controllers.PublishSessionEvents(p.Sessions, logg))
				r.Post("/metadata", controllers.SubmitPublishMetadata(p.Sessions, logg))
				r.With(uploadLimit).Post("/audio", controllers.UploadPublishAudio(p.Sessions, limits, logg))
				r.With(uploadLimit).Post("/cover", controllers.UploadPublishCover(p.Sessions, limits, logg))
				r.Post("/tiers", controllers.ConfigurePublishTiers(p.Sessions, logg))
				r.With(deployLimit, deployOnce).Post("/deploy", controllers.DeployPublishSession(p.Sessions, logg))
				r.Post("/cancel", controllers.CancelPublishSession(p.Sessions, logg))
				r.With(deployLimit, deployOnce).Post("/resume", controllers.ResumePublishSession(p.Sessions, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(cfg.Chain.AdminRole, logg))
		r.Get("/deployments/incomplete", controllers.AdminIncompleteDeployments(p.Deployments, logg))
	})

	return r
}

func rateStore(store RequestStore) middleware.RateLimiterStore {
	if store == nil {
		return nil
	}
	return store
}

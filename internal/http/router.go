package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hector-minka/collections-bridge/internal/config"
	"github.com/hector-minka/collections-bridge/internal/http/handler"
	"github.com/hector-minka/collections-bridge/internal/http/middleware"
)

// NewRouter assembles the API surface: two webhook ingestion endpoints, the
// collection read API, and the health probes.
func NewRouter(cfg *config.Config, collections *handler.CollectionsHandler, health *handler.HealthHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	r.Route("/api/v1/collections", func(r chi.Router) {
		r.Post("/webhooks/anchor-created", collections.AnchorCreatedWebhook)
		r.Post("/webhooks/rtp-fulfillment", collections.RTPFulfillmentWebhook)

		r.Get("/merchant-txid/{merchantTxId}", collections.GetByMerchantTxID)
		r.Get("/anchor/{anchorHandle}", collections.GetByAnchorHandle)
		r.Get("/intent/{intentHandle}", collections.GetByIntentHandle)
		r.Get("/", collections.List)
	})

	r.Get("/health/liveness", health.Liveness)
	r.Get("/health/readiness", health.Readiness)

	return r
}

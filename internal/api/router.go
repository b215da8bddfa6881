package api

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/fathomly/resolver-engine/internal/api/handlers"
	"github.com/fathomly/resolver-engine/internal/api/middleware"
	"github.com/fathomly/resolver-engine/internal/config"
	"github.com/fathomly/resolver-engine/pkg/contracts"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the HTTP router with all API routes. authChain may be
// nil, in which case every request is anonymous.
func NewRouter(cfg *config.Config, h *handlers.Handlers, authChain contracts.AuthProviderChain) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)

	// Pluggable auth middleware: walks the registered provider chain
	// (API key, service account, and anything else registered onto it)
	// and stores the resulting Identity in context.
	if authChain != nil {
		authMW := middleware.NewAuthMiddleware(authChain)
		r.Use(authMW.Handler)
	}

	// CORS — configurable via RESOLVER_CORS_ORIGINS env var. Wildcard
	// origins force AllowCredentials off per the Fetch spec.
	corsOrigins := parseCORSOrigins()
	isWildcard := len(corsOrigins) == 1 && corsOrigins[0] == "*"
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id", "X-API-Key", "X-Service-Token"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: !isWildcard,
		MaxAge:           300,
	}))

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	r.Route("/api/v1", func(r chi.Router) {
		// Resolution
		r.Post("/solve", h.Solve)

		// Calibrator
		r.Route("/calibration", func(r chi.Router) {
			r.Post("/", h.RecordCalibration)
			r.Get("/statistics", h.CalibrationStatistics)
			r.Get("/adjustment", h.CalibrationAdjustment)
		})

		// Shared Knowledge Store
		r.Route("/discoveries", func(r chi.Router) {
			r.Get("/", h.QueryDiscoveries)
			r.Post("/", h.InsertDiscovery)
			r.Get("/statistics", h.KnowledgeStatistics)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetDiscovery)
				r.Post("/reference", h.IncrementDiscoveryReferences)
				r.Post("/validate", h.MarkDiscoveryValidated)
			})
		})

		// Pattern Index
		r.Route("/patterns", func(r chi.Router) {
			r.Post("/search", h.SearchPatterns)
			r.Post("/", h.AddPattern)
			r.Post("/rebuild", h.RebuildPatterns)
			r.Get("/statistics", h.PatternStatistics)
			r.Route("/{id}", func(r chi.Router) {
				r.Post("/usage", h.RecordPatternUsage)
			})
		})
	})

	return r
}

// parseCORSOrigins reads allowed CORS origins from the environment.
// Default: wildcard (open access, credentials disabled).
func parseCORSOrigins() []string {
	originsEnv := os.Getenv("RESOLVER_CORS_ORIGINS")
	if originsEnv == "" {
		return []string{"*"}
	}

	var origins []string
	for _, o := range strings.Split(originsEnv, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "resolver-engine",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "resolver-engine",
		})
	}
}

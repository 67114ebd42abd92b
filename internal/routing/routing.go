package routing

import (
	"net/http"

	"cpmboard/internal/handlers"
	"cpmboard/internal/middleware"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config holds the configuration needed for setting up routes
type Config struct {
	Handlers        *handlers.Handler
	AdminSecretPath string
	SecureCookies   bool
	TracingEnabled  bool
	Logger          zerolog.Logger
}

// SetupRouter creates and configures the HTTP router with all routes and middleware
func SetupRouter(cfg Config) http.Handler {
	h := cfg.Handlers
	mux := http.NewServeMux()

	// Public listing API
	mux.HandleFunc("GET /api/listings", h.HandleListListings)
	mux.HandleFunc("POST /api/listings", h.HandleCreateListing)
	mux.HandleFunc("GET /api/listings/{id}", h.HandleGetListing)
	mux.HandleFunc("PUT /api/listings/{id}", h.HandleEditListing)
	mux.HandleFunc("DELETE /api/listings/{id}", h.HandleDeleteListing)
	mux.HandleFunc("POST /api/listings/{id}/stats", h.HandleListingStats)
	mux.HandleFunc("POST /api/listings/{id}/report", h.HandleReportListing)

	// Hidden-URL admin surface. Entry mints a session; the API routes
	// 404 without one.
	mux.HandleFunc("GET /"+cfg.AdminSecretPath, h.HandleAdminEnter)
	mux.HandleFunc("POST /api/admin/listings/{id}/visibility", h.RequireAdminSession(h.HandleAdminSetVisibility))
	mux.HandleFunc("POST /api/admin/listings/{id}/delete", h.RequireAdminSession(h.HandleAdminDeleteListing))
	mux.HandleFunc("GET /api/admin/reports", h.RequireAdminSession(h.HandleAdminListReports))
	mux.HandleFunc("GET /api/admin/stats", h.RequireAdminSession(h.HandleAdminStats))

	// Operational endpoints
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", h.HandleHealthz)

	// Apply middleware in order (outermost first, innermost last)
	var handler http.Handler = mux

	// 1. Device identity (innermost - handlers see the minted cookie)
	handler = middleware.DeviceIdentityMiddleware(cfg.SecureCookies)(handler)

	// 2. Rate limiting on creates and reports
	rateLimitConfig := middleware.NewDefaultRateLimitConfig()
	handler = middleware.RateLimitMiddleware(rateLimitConfig)(handler)

	// 3. Request logging + HTTP metrics (outermost)
	handler = middleware.LoggingMiddleware(cfg.Logger)(handler)

	if cfg.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server")
	}

	return handler
}

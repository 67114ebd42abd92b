package handlers

import (
	"encoding/json"
	"net/http"

	"cpmboard/internal/listing"
	"cpmboard/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
)

// HandleAdminEnter handles GET on the secret admin path. It mints a new
// admin session, sets the session cookie, and returns the admin payload.
// The path itself is the only secret; there is no further login step.
func (h *Handler) HandleAdminEnter(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Create(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to create admin session")
		writeError(w, http.StatusInternalServerError, "internal", "Something went wrong.")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     AdminCookieName,
		Value:    sess.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(h.sessions.TTL().Seconds()),
	})

	metrics.AdminSessionsCreatedTotal.Inc()
	log.Info().Time("expires_at", sess.ExpiresAt).Msg("admin session created")

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"expiresAt": sess.ExpiresAt,
	})
}

// RequireAdminSession wraps an admin handler with session validation. A
// missing, unknown, or expired token yields a bare 404 so the admin surface
// never confirms its own existence.
func (h *Handler) RequireAdminSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(AdminCookieName)
		if err != nil || !h.sessions.Validate(r.Context(), c.Value) {
			http.NotFound(w, r)
			return
		}
		next(w, r)
	}
}

// visibilityRequest is the body for the admin visibility override.
type visibilityRequest struct {
	Hidden bool `json:"hidden"`
}

// HandleAdminSetVisibility handles POST /api/admin/listings/{id}/visibility
func (h *Handler) HandleAdminSetVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON")
		return
	}

	view, err := h.engine.AdminSetVisibility(r.Context(), r.PathValue("id"), req.Hidden)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listing": view})
}

// HandleAdminDeleteListing handles POST /api/admin/listings/{id}/delete
func (h *Handler) HandleAdminDeleteListing(w http.ResponseWriter, r *http.Request) {
	removed, err := h.engine.AdminDelete(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "not_found", "Listing not found.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// HandleAdminListReports handles GET /api/admin/reports, returning the
// report ledger newest first so a moderator can see what triggered a hide.
func (h *Handler) HandleAdminListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.engine.ListReports(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list reports")
		writeError(w, http.StatusInternalServerError, "internal", "Something went wrong.")
		return
	}
	if reports == nil {
		reports = []listing.Report{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

// HandleAdminStats handles GET /api/admin/stats, exposing the operational
// counters the prometheus registry already tracks.
func (h *Handler) HandleAdminStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"listingsCreated": counterValue(metrics.ListingsCreatedTotal),
		"listingsDeleted": counterValue(metrics.ListingsDeletedTotal),
		"reports":         counterValue(metrics.ReportsTotal),
		"autoHides":       counterValue(metrics.AutoHidesTotal),
		"adminSessions":   counterValue(metrics.AdminSessionsCreatedTotal),
	})
}

// counterValue reads the current value of a prometheus counter.
func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

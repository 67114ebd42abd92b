// Package handlers is the HTTP boundary over the moderation engine. It
// extracts caller identity (device cookie, admin session cookie), decodes
// request bodies, and maps engine error kinds to status codes. It performs
// no moderation logic of its own.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"cpmboard/internal/listing"
	"cpmboard/internal/middleware"
	"cpmboard/internal/moderation"
	"cpmboard/internal/session"

	"github.com/rs/zerolog/log"
)

// AdminCookieName is the cookie carrying the admin session token.
const AdminCookieName = "cpm_admin_session"

// Config holds handler configuration options
type Config struct {
	// SecureCookies sets the Secure flag on issued cookies.
	// Should be true in production (HTTPS), false for local development (HTTP)
	SecureCookies bool
}

// Handler contains all HTTP handler methods and their dependencies.
// Dependencies are injected via the constructor for better testability.
type Handler struct {
	engine   *moderation.Engine
	sessions *session.Manager
	config   Config
}

// NewHandler creates a Handler with all dependencies injected.
func NewHandler(engine *moderation.Engine, sessions *session.Manager, cfg Config) *Handler {
	return &Handler{
		engine:   engine,
		sessions: sessions,
		config:   cfg,
	}
}

// errorResponse is the JSON error body shared by every endpoint. Code
// distinguishes error kinds that map to the same HTTP status.
type errorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Status: "error", Code: code, Message: message})
}

// writeEngineError maps engine error kinds to client-facing responses.
func writeEngineError(w http.ResponseWriter, err error) {
	var ve *listing.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, "validation", "Required field is missing or empty: "+ve.Field)
	case errors.Is(err, listing.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Listing not found.")
	case errors.Is(err, listing.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "You can only modify your own listings.")
	case errors.Is(err, listing.ErrInvalidPin):
		writeError(w, http.StatusForbidden, "invalid_pin", "Incorrect PIN.")
	case errors.Is(err, listing.ErrGone):
		writeError(w, http.StatusGone, "gone", "Listing is hidden.")
	default:
		log.Error().Err(err).Msg("unexpected engine error")
		writeError(w, http.StatusInternalServerError, "internal", "Something went wrong.")
	}
}

// caller builds the moderation caller context from the request. The PIN, if
// any, comes from the X-Listing-Pin header; body-carried PINs are merged by
// the individual handlers.
func caller(r *http.Request) moderation.Caller {
	return moderation.Caller{
		DeviceID: middleware.DeviceIDFromRequest(r),
		PIN:      r.Header.Get("X-Listing-Pin"),
	}
}

// HandleHealthz reports process liveness.
func (h *Handler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

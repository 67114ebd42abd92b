package handlers

import (
	"encoding/json"
	"net/http"

	"cpmboard/internal/listing"

	"github.com/rs/zerolog/log"
)

// createRequest is the JSON body for creating a listing. The PIN arrives in
// plaintext and is digested server-side; it is never stored as supplied.
type createRequest struct {
	CarName  string `json:"carName"`
	Price    string `json:"price"`
	ImageURL string `json:"imageUrl"`
	Contact  string `json:"contact"`
	Pin      string `json:"pin"`
}

// editRequest is the JSON body for editing a listing. Absent fields keep
// their previous value. Pin authorizes against the stored digest; NewPin,
// when present, rotates it (empty string clears the PIN).
type editRequest struct {
	CarName  *string `json:"carName"`
	Price    *string `json:"price"`
	ImageURL *string `json:"imageUrl"`
	Contact  *string `json:"contact"`
	Pin      string  `json:"pin"`
	NewPin   *string `json:"newPin"`
}

// statsRequest carries engagement deltas, each in {-1, 0, +1}.
type statsRequest struct {
	ViewsDelta     int `json:"viewsDelta"`
	LikesDelta     int `json:"likesDelta"`
	FavoritesDelta int `json:"favoritesDelta"`
}

// reportRequest carries an optional free-text reason.
type reportRequest struct {
	Reason string `json:"reason"`
}

// HandleListListings handles GET /api/listings
func (h *Handler) HandleListListings(w http.ResponseWriter, r *http.Request) {
	views, err := h.engine.List(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if views == nil {
		views = []listing.View{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": views})
}

// HandleGetListing handles GET /api/listings/{id}
func (h *Handler) HandleGetListing(w http.ResponseWriter, r *http.Request) {
	view, err := h.engine.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listing": view})
}

// HandleCreateListing handles POST /api/listings
func (h *Handler) HandleCreateListing(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON")
		return
	}

	fields := listing.Fields{
		CarName:  &req.CarName,
		Price:    &req.Price,
		ImageURL: &req.ImageURL,
		Contact:  &req.Contact,
	}
	view, err := h.engine.Create(r.Context(), fields, req.Pin, caller(r).DeviceID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"listing": view})
}

// HandleEditListing handles PUT /api/listings/{id}
func (h *Handler) HandleEditListing(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON")
		return
	}

	c := caller(r)
	if req.Pin != "" {
		c.PIN = req.Pin
	}

	fields := listing.Fields{
		CarName:  req.CarName,
		Price:    req.Price,
		ImageURL: req.ImageURL,
		Contact:  req.Contact,
	}
	view, err := h.engine.Edit(r.Context(), r.PathValue("id"), fields, req.NewPin, c)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listing": view})
}

// HandleDeleteListing handles DELETE /api/listings/{id}
func (h *Handler) HandleDeleteListing(w http.ResponseWriter, r *http.Request) {
	c := caller(r)
	if c.PIN == "" {
		c.PIN = r.URL.Query().Get("pin")
	}

	removed, err := h.engine.Delete(r.Context(), r.PathValue("id"), c)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": removed})
}

// HandleListingStats handles POST /api/listings/{id}/stats. Each non-zero
// delta is applied as its own engagement operation; the response carries
// the listing state after the last one.
func (h *Handler) HandleListingStats(w http.ResponseWriter, r *http.Request) {
	var req statsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON")
		return
	}

	id := r.PathValue("id")
	deviceID := caller(r).DeviceID

	deltas := []struct {
		kind  listing.EngagementKind
		delta int
	}{
		{listing.EngagementView, req.ViewsDelta},
		{listing.EngagementLike, req.LikesDelta},
		{listing.EngagementFavorite, req.FavoritesDelta},
	}

	var view listing.View
	applied := false
	for _, d := range deltas {
		if d.delta == 0 {
			continue
		}
		if d.delta != 1 && d.delta != -1 {
			writeError(w, http.StatusBadRequest, "bad_request", "Deltas must be +1 or -1.")
			return
		}
		v, err := h.engine.RecordEngagement(r.Context(), id, d.kind, d.delta, deviceID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		view = v
		applied = true
	}

	if !applied {
		v, err := h.engine.Get(r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		view = v
	}

	writeJSON(w, http.StatusOK, map[string]any{"listing": view})
}

// HandleReportListing handles POST /api/listings/{id}/report
func (h *Handler) HandleReportListing(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if r.Body != nil {
		// A missing or empty body is fine; the reason is optional.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			req.Reason = ""
		}
	}

	deviceID := caller(r).DeviceID
	view, err := h.engine.Report(r.Context(), r.PathValue("id"), deviceID, req.Reason)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	log.Info().Str("listing_id", view.ID).Str("device_id", deviceID).Msg("report accepted")
	writeJSON(w, http.StatusOK, map[string]any{"listing": view})
}

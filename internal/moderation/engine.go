// Package moderation implements the listing moderation and ownership state
// machine: who may mutate a listing, how its statistics move under
// concurrent engagement, when reports hide it, and what administrators may
// override.
package moderation

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"cpmboard/internal/listing"
	"cpmboard/internal/metrics"
	"cpmboard/internal/tracing"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// ReportThreshold is the number of reports at which a listing is
	// automatically hidden.
	ReportThreshold = 3

	// MaxReportReasonLength is the maximum length of a report reason.
	MaxReportReasonLength = 500
)

// Caller identifies the device issuing an intent. DeviceID may be empty
// for anonymous callers; PIN is only consulted for PIN-gated listings.
type Caller struct {
	DeviceID string
	PIN      string
}

// Engine applies listing intents against the store. It is stateless across
// calls; atomicity of each read-modify-write comes from the store's
// serialized-write contract.
type Engine struct {
	store       listing.Store
	engagements listing.EngagementLedger
	reports     listing.ReportLedger
}

// NewEngine creates a moderation engine over the given store and ledgers.
func NewEngine(store listing.Store, engagements listing.EngagementLedger, reports listing.ReportLedger) *Engine {
	return &Engine{
		store:       store,
		engagements: engagements,
		reports:     reports,
	}
}

// List returns the public views of all listings, newest first. Hidden
// listings are included; clients filter on the hidden flag.
func (e *Engine) List(ctx context.Context) ([]listing.View, error) {
	all, err := e.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	views := make([]listing.View, 0, len(all))
	for i := range all {
		views = append(views, all[i].PublicView())
	}
	return views, nil
}

// Get returns the public view of a single listing.
func (e *Engine) Get(ctx context.Context, id string) (listing.View, error) {
	l, err := e.store.GetByID(ctx, id)
	if err != nil {
		return listing.View{}, err
	}
	return l.PublicView(), nil
}

// Create validates the supplied fields and inserts a new listing owned by
// the calling device. A supplied PIN is stored only as a digest. New
// listings are always visible with zeroed stats.
func (e *Engine) Create(ctx context.Context, fields listing.Fields, pin string, deviceID string) (listing.View, error) {
	ctx, span := tracing.EngineSpan(ctx, "create", "")
	defer span.End()

	if err := fields.ValidateForCreate(); err != nil {
		tracing.EndWithError(span, err)
		return listing.View{}, err
	}

	now := time.Now().UTC()
	l := listing.Listing{
		ID:        uuid.NewString(),
		OwnerID:   deviceID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	fields.ApplyTo(&l)
	if strings.TrimSpace(pin) != "" {
		l.PinHash = HashPin(pin)
	}

	if err := e.store.Insert(ctx, l); err != nil {
		tracing.EndWithError(span, err)
		return listing.View{}, fmt.Errorf("insert listing: %w", err)
	}

	metrics.ListingsCreatedTotal.Inc()
	log.Info().
		Str("listing_id", l.ID).
		Str("owner_id", l.OwnerID).
		Bool("has_pin", l.HasPin()).
		Msg("listing created")

	return l.PublicView(), nil
}

// Edit applies a partial update to a listing. Only the calling device may
// edit a listing it owns, and a PIN-gated listing additionally requires a
// matching PIN. Omitted fields keep their previous value; a non-nil newPIN
// rotates the stored digest (empty string clears it).
func (e *Engine) Edit(ctx context.Context, id string, fields listing.Fields, newPIN *string, caller Caller) (listing.View, error) {
	ctx, span := tracing.EngineSpan(ctx, "edit", id)
	defer span.End()

	updated, err := e.store.Update(ctx, id, func(l *listing.Listing) error {
		if err := authorize(l, caller.DeviceID, caller.PIN); err != nil {
			return err
		}
		fields.ApplyTo(l)
		if newPIN != nil {
			if strings.TrimSpace(*newPIN) == "" {
				l.PinHash = ""
			} else {
				l.PinHash = HashPin(*newPIN)
			}
		}
		l.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		tracing.EndWithError(span, err)
		return listing.View{}, err
	}

	log.Info().Str("listing_id", id).Str("device_id", caller.DeviceID).Msg("listing edited")
	return updated.PublicView(), nil
}

// Delete removes a listing under the same ownership/PIN gate as Edit and
// cascades: report records and engagement ledger entries referencing the
// listing are removed so no auxiliary ledger keeps orphaned references.
func (e *Engine) Delete(ctx context.Context, id string, caller Caller) (bool, error) {
	ctx, span := tracing.EngineSpan(ctx, "delete", id)
	defer span.End()

	l, err := e.store.GetByID(ctx, id)
	if err != nil {
		tracing.EndWithError(span, err)
		return false, err
	}
	if err := authorize(l, caller.DeviceID, caller.PIN); err != nil {
		tracing.EndWithError(span, err)
		return false, err
	}

	removed, err := e.remove(ctx, id)
	if err != nil {
		tracing.EndWithError(span, err)
		return false, err
	}
	if removed {
		log.Info().Str("listing_id", id).Str("device_id", caller.DeviceID).Msg("listing deleted by owner")
	}
	return removed, nil
}

// RecordEngagement applies a view/like/favorite delta on behalf of a
// device. There is no ownership check. The per-device ledger makes repeated
// calls idempotent: a +1 for a kind the device already has, or a -1 for one
// it does not, is a no-op returning the current listing. Counters clamp at
// zero. Engagement is rejected with ErrGone while the listing is hidden.
func (e *Engine) RecordEngagement(ctx context.Context, id string, kind listing.EngagementKind, delta int, deviceID string) (listing.View, error) {
	ctx, span := tracing.EngineSpan(ctx, "engagement", id)
	defer span.End()

	if !kind.Valid() {
		return listing.View{}, &listing.ValidationError{Field: "kind"}
	}
	if delta != 1 && delta != -1 {
		return listing.View{}, &listing.ValidationError{Field: "delta"}
	}

	// Views only ever count once per device; a view cannot be taken back.
	if kind == listing.EngagementView && delta < 0 {
		current, err := e.store.GetByID(ctx, id)
		if err != nil {
			tracing.EndWithError(span, err)
			return listing.View{}, err
		}
		if current.Hidden {
			tracing.EndWithError(span, listing.ErrGone)
			return listing.View{}, listing.ErrGone
		}
		return current.PublicView(), nil
	}

	var updated *listing.Listing
	var applied bool
	var err error

	if deviceID == "" {
		// No device identity to key a ledger mark: bare deltas are
		// trusted, protected only by the hidden check and the zero clamp.
		updated, err = e.store.Update(ctx, id, func(l *listing.Listing) error {
			if l.Hidden {
				return listing.ErrGone
			}
			applyDelta(&l.Stats, kind, delta)
			return nil
		})
		applied = err == nil
	} else {
		// The ledger consultation and the counter update share one write
		// transaction; concurrent duplicates from the same device cannot
		// both pass the mark check.
		updated, applied, err = e.engagements.Apply(ctx, id, deviceID, kind, delta > 0,
			func(l *listing.Listing, active bool) (bool, error) {
				if l.Hidden {
					return false, listing.ErrGone
				}
				if (delta > 0) == active {
					return false, nil
				}
				applyDelta(&l.Stats, kind, delta)
				return true, nil
			})
	}
	if err != nil {
		tracing.EndWithError(span, err)
		return listing.View{}, err
	}

	if applied {
		op := "add"
		if delta < 0 {
			op = "remove"
		}
		metrics.EngagementOpsTotal.WithLabelValues(string(kind), op).Inc()
	}

	return updated.PublicView(), nil
}

// Report records a report against a listing, incrementing its report count
// by exactly one. A device that has already reported the listing gets the
// current state back unchanged. Reaching ReportThreshold hides the listing
// as a monotonic one-way transition; only an explicit admin action can make
// it visible again.
func (e *Engine) Report(ctx context.Context, id string, deviceID, reason string) (listing.View, error) {
	ctx, span := tracing.EngineSpan(ctx, "report", id)
	defer span.End()

	reason = truncateReason(strings.TrimSpace(reason))

	record := listing.Report{
		ID:        uuid.NewString(),
		ListingID: id,
		DeviceID:  deviceID,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}

	// The duplicate check, the counter increment, and the record insert
	// share one write transaction; concurrent reports from the same device
	// count once.
	autoHidden := false
	updated, filed, err := e.reports.File(ctx, record, func(l *listing.Listing, reported bool) (bool, error) {
		if l.Hidden {
			return false, listing.ErrGone
		}
		if deviceID != "" && reported {
			return false, nil
		}
		l.Stats.Reports++
		if l.Stats.Reports >= ReportThreshold {
			l.Hidden = true
			autoHidden = true
		}
		return true, nil
	})
	if err != nil {
		tracing.EndWithError(span, err)
		return listing.View{}, err
	}
	if !filed {
		return updated.PublicView(), nil
	}

	metrics.ReportsTotal.Inc()
	log.Info().
		Str("listing_id", id).
		Str("device_id", deviceID).
		Int("reports", updated.Stats.Reports).
		Msg("listing reported")

	if autoHidden {
		metrics.AutoHidesTotal.Inc()
		log.Warn().
			Str("listing_id", id).
			Int("reports", updated.Stats.Reports).
			Msg("report threshold reached, listing hidden")
	}

	return updated.PublicView(), nil
}

// truncateReason caps a report reason at MaxReportReasonLength bytes,
// backing up to a rune boundary so the stored string stays valid UTF-8.
func truncateReason(reason string) string {
	if len(reason) <= MaxReportReasonLength {
		return reason
	}
	cut := MaxReportReasonLength
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}

// AdminSetVisibility sets the hidden flag to the exact requested value,
// overriding the automatic threshold rule until further reports re-trigger
// it. It performs no ownership or PIN check; the caller must already hold a
// valid admin session, verified by the HTTP boundary.
func (e *Engine) AdminSetVisibility(ctx context.Context, id string, hidden bool) (listing.View, error) {
	ctx, span := tracing.EngineSpan(ctx, "admin_visibility", id)
	defer span.End()

	updated, err := e.store.Update(ctx, id, func(l *listing.Listing) error {
		l.Hidden = hidden
		return nil
	})
	if err != nil {
		tracing.EndWithError(span, err)
		return listing.View{}, err
	}

	metrics.AdminActionsTotal.WithLabelValues("set_visibility").Inc()
	log.Info().Str("listing_id", id).Bool("hidden", hidden).Msg("admin changed listing visibility")
	return updated.PublicView(), nil
}

// AdminDelete removes a listing unconditionally, bypassing ownership and
// PIN, with the same cascading cleanup as Delete. Returns false with no
// side effects when the id does not exist.
func (e *Engine) AdminDelete(ctx context.Context, id string) (bool, error) {
	ctx, span := tracing.EngineSpan(ctx, "admin_delete", id)
	defer span.End()

	removed, err := e.remove(ctx, id)
	if err != nil {
		tracing.EndWithError(span, err)
		return false, err
	}
	if removed {
		metrics.AdminActionsTotal.WithLabelValues("delete").Inc()
		log.Info().Str("listing_id", id).Msg("admin deleted listing")
	}
	return removed, nil
}

// ListReports returns all report records, newest first, for the admin
// review surface.
func (e *Engine) ListReports(ctx context.Context) ([]listing.Report, error) {
	return e.reports.ListAll(ctx)
}

// remove deletes the record and cleans up dependent ledger entries.
func (e *Engine) remove(ctx context.Context, id string) (bool, error) {
	removed, err := e.store.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete listing: %w", err)
	}
	if !removed {
		return false, nil
	}
	if err := e.reports.DeleteForListing(ctx, id); err != nil {
		return true, fmt.Errorf("cascade report ledger: %w", err)
	}
	if err := e.engagements.DeleteForListing(ctx, id); err != nil {
		return true, fmt.Errorf("cascade engagement ledger: %w", err)
	}
	metrics.ListingsDeletedTotal.Inc()
	return true, nil
}

// applyDelta adjusts one counter, clamping at zero.
func applyDelta(s *listing.Stats, kind listing.EngagementKind, delta int) {
	var c *int
	switch kind {
	case listing.EngagementView:
		c = &s.Views
	case listing.EngagementLike:
		c = &s.Likes
	case listing.EngagementFavorite:
		c = &s.Favorites
	default:
		return
	}
	*c += delta
	if *c < 0 {
		*c = 0
	}
}

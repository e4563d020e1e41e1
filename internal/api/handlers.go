package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/mailtrace/internal/pkg/httputil"
	"github.com/ignite/mailtrace/internal/service/suppression"
	"github.com/ignite/mailtrace/internal/service/tracking"
)

// Handlers bundles the HTTP handlers and their dependencies.
type Handlers struct {
	verifier  Verifier
	confirmer Confirmer
	processor Processor
	tracker   *tracking.Service
	supps     *suppression.Service
}

// NewHandlers creates the handler set.
func NewHandlers(verifier Verifier, confirmer Confirmer, processor Processor, tracker *tracking.Service, supps *suppression.Service) *Handlers {
	return &Handlers{
		verifier:  verifier,
		confirmer: confirmer,
		processor: processor,
		tracker:   tracker,
		supps:     supps,
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httputil.BadRequest(w, "Invalid JSON")
		return false
	}
	return true
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

// HandleListSuppressions returns suppression entries with optional
// kind/reason/search filters and pagination.
func (h *Handlers) HandleListSuppressions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	entries, total, err := h.supps.List(r.Context(), suppression.ListFilter{
		Kind:   q.Get("kind"),
		Reason: q.Get("reason"),
		Search: q.Get("search"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"suppressions": entries,
		"total":        total,
	})
}

// HandleSuppressionStats returns aggregate suppression counts.
func (h *Handlers) HandleSuppressionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.supps.GetStats(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, stats)
}

// HandleCheckSuppression reports whether a single address is suppressed.
func (h *Handlers) HandleCheckSuppression(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		httputil.BadRequest(w, "email query parameter is required")
		return
	}
	blocked, err := h.supps.Suppressed(r.Context(), email)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"email": email, "suppressed": blocked})
}

// HandleFilterSendable returns the subset of the posted recipients that
// is safe to send to.
func (h *Handlers) HandleFilterSendable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Recipients []string `json:"recipients"`
	}
	if !decode(w, r, &req) {
		return
	}
	sendable, err := h.supps.FilterSendable(r.Context(), req.Recipients)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if sendable == nil {
		sendable = []string{}
	}
	httputil.OK(w, map[string]any{"sendable": sendable})
}

// HandleRemoveSuppression deletes all suppressions for an address.
func (h *Handlers) HandleRemoveSuppression(w http.ResponseWriter, r *http.Request) {
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil || email == "" {
		httputil.BadRequest(w, "invalid email")
		return
	}
	if err := h.supps.Remove(r.Context(), email); err != nil {
		if errors.Is(err, suppression.ErrNotFound) {
			httputil.NotFound(w, "suppression not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

// HandleEmailTimeline returns the event history and derived status for
// one send attempt. Unknown IDs are a 404, not an empty timeline.
func (h *Handlers) HandleEmailTimeline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.tracker.Get(r.Context(), id); err != nil {
		if errors.Is(err, tracking.ErrNotFound) {
			httputil.NotFound(w, "email not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	events, err := h.tracker.Timeline(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	status, err := h.tracker.Status(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"events": events,
		"status": status,
	})
}

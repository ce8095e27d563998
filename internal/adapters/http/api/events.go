// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/orbitfall/combatwatch/internal/domain/model"
)

// EventsHandler serves the buffered event feed and intervention commands.
type EventsHandler struct {
	deps Dependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps Dependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

type eventsResponse struct {
	Events      []model.CombatEvent `json:"events"`
	LastUpdated string              `json:"last_updated,omitempty"`
	Degraded    bool                `json:"degraded"`
}

// HandleEvents handles GET /events requests. Events come back newest-first;
// an optional limit trims the tail.
func (h *EventsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_events"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	events := h.deps.Events()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		if limit < len(events) {
			events = events[:limit]
		}
	}

	resp := eventsResponse{
		Events:   events,
		Degraded: h.deps.Degraded(),
	}
	if t := h.deps.LastUpdated(); !t.IsZero() {
		resp.LastUpdated = t.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// interventionRequest mirrors the body of POST /events/{id}/intervene.
type interventionRequest struct {
	Action string `json:"action"`
}

// HandleIntervene handles POST /events/{id}/intervene requests.
func (h *EventsHandler) HandleIntervene(w http.ResponseWriter, r *http.Request) {
	const op = "api.intervene"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	// Path shape: /events/{id}/intervene
	rest := strings.TrimPrefix(r.URL.Path, "/events/")
	eventID, verb, ok := strings.Cut(rest, "/")
	if !ok || verb != "intervene" || eventID == "" {
		http.NotFound(w, r)
		return
	}

	var req interventionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	action := model.InterventionAction(req.Action)
	if err := h.deps.DispatchIntervention(r.Context(), eventID, action); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "acknowledged",
		"event_id": eventID,
		"action":   req.Action,
	})
}

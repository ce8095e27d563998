// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/orbitfall/combatwatch/internal/adapters/authority"
	"github.com/orbitfall/combatwatch/internal/dispatch"
	"github.com/orbitfall/combatwatch/internal/domain/dispute"
	"github.com/orbitfall/combatwatch/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the reconciliation controller.
type Dependencies interface {
	Events() []model.CombatEvent
	Stats() (model.StatsSnapshot, bool)
	Rankings() []model.CombatRanking
	Disputes(status model.DisputeStatus) []model.CombatDispute
	DisputeCounts() map[model.DisputeStatus]int
	FileDispute(ctx context.Context, eventID, reporterID, reason string) (model.CombatDispute, error)
	ResolveDispute(ctx context.Context, id string, outcome model.DisputeStatus) error
	DispatchIntervention(ctx context.Context, eventID string, action model.InterventionAction) error
	LastUpdated() time.Time
	Degraded() bool
	Status() map[string]interface{}
}

// Server wires HTTP routes for the admin-facing monitor API.
type Server struct {
	healthHandler    *HealthHandler
	eventsHandler    *EventsHandler
	statsHandler     *StatsHandler
	disputesHandler  *DisputesHandler
	dashboardHandler *DashboardHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		eventsHandler:    NewEventsHandler(deps),
		statsHandler:     NewStatsHandler(deps),
		disputesHandler:  NewDisputesHandler(deps),
		dashboardHandler: NewDashboardHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/events", MetricsMiddleware(s.eventsHandler.HandleEvents, "events"))
	mux.HandleFunc("/events/", MetricsMiddleware(s.eventsHandler.HandleIntervene, "intervene"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/rankings", MetricsMiddleware(s.statsHandler.HandleRankings, "rankings"))
	mux.HandleFunc("/disputes", MetricsMiddleware(s.disputesHandler.HandleDisputes, "disputes"))
	mux.HandleFunc("/disputes/counts", MetricsMiddleware(s.disputesHandler.HandleCounts, "dispute_counts"))
	mux.HandleFunc("/disputes/", MetricsMiddleware(s.disputesHandler.HandleResolution, "dispute_resolution"))
	mux.HandleFunc("/dashboard-summary", MetricsMiddleware(s.dashboardHandler.HandleSummary, "dashboard_summary"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError maps the failure taxonomy onto HTTP statuses: conflicts
// reject the new action, authority rejections surface verbatim, transient
// trouble reads as a bad gateway so the UI offers a manual retry.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispatch.ErrInFlight), errors.Is(err, dispute.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, authority.ErrRejected):
		writeError(w, http.StatusUnprocessableEntity, "rejected", err)
	case errors.Is(err, authority.ErrUnavailable):
		writeError(w, http.StatusBadGateway, "authority_unavailable", err)
	case errors.Is(err, dispute.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, dispatch.ErrInvalidAction), errors.Is(err, dispatch.ErrInvalidTarget),
		errors.Is(err, dispute.ErrMalformed):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err)
	}
}

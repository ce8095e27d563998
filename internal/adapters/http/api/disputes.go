// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/orbitfall/combatwatch/internal/domain/model"
)

// DisputesHandler serves the dispute workflow surface.
type DisputesHandler struct {
	deps Dependencies
}

// NewDisputesHandler creates a new disputes handler.
func NewDisputesHandler(deps Dependencies) *DisputesHandler {
	return &DisputesHandler{deps: deps}
}

// fileDisputeRequest mirrors the body of POST /disputes.
type fileDisputeRequest struct {
	EventID    string `json:"event_id"`
	ReporterID string `json:"reporter_id"`
	Reason     string `json:"reason"`
}

func (req fileDisputeRequest) validate() error {
	switch {
	case strings.TrimSpace(req.EventID) == "":
		return NewKind("api.file_dispute", ErrBadRequest)
	case strings.TrimSpace(req.ReporterID) == "":
		return NewKind("api.file_dispute", ErrBadRequest)
	}
	return nil
}

// HandleDisputes handles GET /disputes (list, filterable by status) and
// POST /disputes (file a new dispute).
func (h *DisputesHandler) HandleDisputes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.file(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *DisputesHandler) list(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_disputes"

	status := model.DisputeStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"disputes": h.deps.Disputes(status),
	})
}

func (h *DisputesHandler) file(w http.ResponseWriter, r *http.Request) {
	const op = "api.file_dispute"

	var req fileDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	d, err := h.deps.FileDispute(r.Context(), req.EventID, req.ReporterID, req.Reason)
	if err != nil {
		// The pending entry may exist locally even when the upstream
		// creation failed; return it alongside the failure signal.
		if d.ID != "" {
			writeJSON(w, http.StatusAccepted, map[string]any{
				"dispute": d,
				"warning": err.Error(),
			})
			return
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"dispute": d})
}

// HandleCounts handles GET /disputes/counts requests, backing the pending
// disputes badge.
func (h *DisputesHandler) HandleCounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	counts := h.deps.DisputeCounts()
	writeJSON(w, http.StatusOK, map[string]int{
		"pending":  counts[model.DisputePending],
		"resolved": counts[model.DisputeResolved],
		"rejected": counts[model.DisputeRejected],
	})
}

// resolutionRequest mirrors the body of POST /disputes/{id}/resolution.
type resolutionRequest struct {
	Outcome string `json:"outcome"`
}

// HandleResolution handles POST /disputes/{id}/resolution requests.
func (h *DisputesHandler) HandleResolution(w http.ResponseWriter, r *http.Request) {
	const op = "api.resolve_dispute"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	// Path shape: /disputes/{id}/resolution
	rest := strings.TrimPrefix(r.URL.Path, "/disputes/")
	disputeID, verb, ok := strings.Cut(rest, "/")
	if !ok || verb != "resolution" || disputeID == "" {
		http.NotFound(w, r)
		return
	}

	var req resolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	outcome := model.DisputeStatus(req.Outcome)
	if err := h.deps.ResolveDispute(r.Context(), disputeID, outcome); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"dispute_id": disputeID,
		"status":     req.Outcome,
	})
}

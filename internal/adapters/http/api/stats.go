// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
	"time"
)

// StatsHandler serves the authoritative aggregate snapshot and rankings.
type StatsHandler struct {
	deps Dependencies
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(deps Dependencies) *StatsHandler {
	return &StatsHandler{deps: deps}
}

// HandleStats handles GET /stats requests. Before the first snapshot
// arrives the aggregate is genuinely unavailable, not empty.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_stats"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	snap, ok := h.deps.Stats()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "unavailable", NewKind(op, ErrUnavailable))
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Sequence int64  `json:"sequence"`
		TakenAt  string `json:"taken_at"`
		Stats    any    `json:"stats"`
		Degraded bool   `json:"degraded"`
	}{
		Sequence: snap.Sequence,
		TakenAt:  snap.TakenAt.Format(time.RFC3339),
		Stats:    snap.Stats,
		Degraded: h.deps.Degraded(),
	})
}

// HandleRankings handles GET /rankings requests.
func (h *StatsHandler) HandleRankings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rankings": h.deps.Rankings(),
	})
}

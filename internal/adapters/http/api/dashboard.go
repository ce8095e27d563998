// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
	"time"

	"github.com/orbitfall/combatwatch/internal/domain/model"
)

// recentEventsLimit caps the feed excerpt on the dashboard summary.
const recentEventsLimit = 5

// DashboardHandler serves the combined dashboard summary.
type DashboardHandler struct {
	deps Dependencies
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(deps Dependencies) *DashboardHandler {
	return &DashboardHandler{deps: deps}
}

// HandleSummary handles GET /dashboard-summary requests. It combines the
// monitor's key reads into one payload for the admin overview page.
func (h *DashboardHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	events := h.deps.Events()
	byCategory := map[model.CombatCategory]int{}
	disputed := 0
	for _, ev := range events {
		byCategory[ev.Category]++
		if ev.Disputed {
			disputed++
		}
	}

	recent := events
	if len(recent) > recentEventsLimit {
		recent = recent[:recentEventsLimit]
	}

	counts := h.deps.DisputeCounts()

	summary := map[string]any{
		"events": map[string]any{
			"buffered":    len(events),
			"by_category": byCategory,
			"disputed":    disputed,
		},
		"disputes": map[string]int{
			"pending":  counts[model.DisputePending],
			"resolved": counts[model.DisputeResolved],
			"rejected": counts[model.DisputeRejected],
		},
		"recent_events": recent,
		"degraded":      h.deps.Degraded(),
		"monitor":       h.deps.Status(),
	}

	if snap, ok := h.deps.Stats(); ok {
		summary["stats"] = snap.Stats
		summary["stats_sequence"] = snap.Sequence
	}
	if t := h.deps.LastUpdated(); !t.IsZero() {
		summary["last_updated"] = t.Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, summary)
}

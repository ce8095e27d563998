// Package dispute tracks the workflow state of user-filed combat disputes.
//
// A dispute enters pending optimistically when filed and its status is
// authority-owned from then on. Status transitions are monotonic:
// pending -> resolved or pending -> rejected, confirmed by the authority.
package dispute

import (
	"sort"
	"sync"

	"github.com/orbitfall/combatwatch/internal/domain/model"
	"github.com/orbitfall/combatwatch/pkg/metrics"
)

// Tracker holds disputes by id and enforces the workflow state machine.
type Tracker struct {
	mu       sync.RWMutex
	disputes map[string]model.CombatDispute
}

// NewTracker creates an empty dispute tracker.
func NewTracker() *Tracker {
	return &Tracker{
		disputes: make(map[string]model.CombatDispute),
	}
}

// Add inserts a dispute, defaulting its status to pending. A duplicate id
// updates details in place only while the held copy is still pending;
// duplicate push notifications for a finalized dispute change nothing.
func (t *Tracker) Add(d model.CombatDispute) error {
	if d.ID == "" || d.EventID == "" {
		return ErrMalformed
	}
	if d.Status == "" {
		d.Status = model.DisputePending
	}
	if !d.Status.Valid() {
		return ErrMalformed
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if held, ok := t.disputes[d.ID]; ok {
		if held.Status.Final() {
			return nil
		}
		// Arrivals never regress a pending dispute we already hold.
		if d.Status == model.DisputePending {
			d.Status = held.Status
		}
	} else {
		metrics.RecordDisputeFiled()
	}
	t.disputes[d.ID] = d
	return nil
}

// ApplyResolution moves a pending dispute to a final status.
//
// Only pending -> resolved|rejected is legal. Resolving an already
// finalized dispute returns ErrConflict with status unchanged, which keeps
// duplicate push notifications from double-processing. Unknown ids return
// ErrNotFound.
func (t *Tracker) ApplyResolution(id string, outcome model.DisputeStatus) error {
	if !outcome.Final() {
		return ErrMalformed
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	held, ok := t.disputes[id]
	if !ok {
		return ErrNotFound
	}
	if held.Status != model.DisputePending {
		return ErrConflict
	}

	held.Status = outcome
	t.disputes[id] = held
	metrics.RecordDisputeResolved(string(outcome))
	return nil
}

// Replace applies a wholesale dispute list from a poll cycle. A locally
// known finalized status never regresses to pending, regardless of what
// the poll returned; the authority catches up on its own schedule.
func (t *Tracker) Replace(list []model.CombatDispute) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := make(map[string]model.CombatDispute, len(list))
	for _, d := range list {
		if d.ID == "" || d.EventID == "" {
			continue
		}
		if d.Status == "" || !d.Status.Valid() {
			d.Status = model.DisputePending
		}
		if held, ok := t.disputes[d.ID]; ok && held.Status.Final() && d.Status == model.DisputePending {
			d.Status = held.Status
		}
		next[d.ID] = d
	}
	t.disputes = next
}

// Get returns a dispute by id.
func (t *Tracker) Get(id string) (model.CombatDispute, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	d, ok := t.disputes[id]
	return d, ok
}

// List returns disputes filtered by status, newest-first. An empty status
// returns everything.
func (t *Tracker) List(status model.DisputeStatus) []model.CombatDispute {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]model.CombatDispute, 0, len(t.disputes))
	for _, d := range t.disputes {
		if status != "" && d.Status != status {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Counts returns the number of disputes per status, used for the pending
// badge in the admin UI.
func (t *Tracker) Counts() map[model.DisputeStatus]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	counts := map[model.DisputeStatus]int{
		model.DisputePending:  0,
		model.DisputeResolved: 0,
		model.DisputeRejected: 0,
	}
	for _, d := range t.disputes {
		counts[d.Status]++
	}
	return counts
}

// Len returns the total number of tracked disputes.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.disputes)
}

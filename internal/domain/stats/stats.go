// Package stats holds the latest authoritative aggregate snapshot.
//
// The aggregator computes nothing itself; it is a last-writer-wins register
// keyed by the authority's monotonically increasing sequence number. Local
// arithmetic over the bounded event window would double-count against the
// authority's lifetime totals, so snapshots are taken whole or not at all.
package stats

import (
	"sort"
	"sync"

	"github.com/orbitfall/combatwatch/internal/domain/model"
	"github.com/orbitfall/combatwatch/pkg/metrics"
)

// Aggregator is a last-writer-wins register over stats snapshots.
type Aggregator struct {
	mu      sync.RWMutex
	current model.StatsSnapshot
	held    bool
}

// New creates an empty aggregator. Current reports unavailable until the
// first snapshot is accepted.
func New() *Aggregator {
	return &Aggregator{}
}

// Apply replaces the held snapshot when snap carries a newer sequence.
//
// A stale snapshot (sequence at or below the held one) is discarded and
// reported as ErrStale; callers treat it as a non-fatal signal and keep
// going. Snapshots with no sequence and no timestamp are malformed.
func (a *Aggregator) Apply(snap model.StatsSnapshot) error {
	if snap.Sequence == 0 && snap.TakenAt.IsZero() {
		return ErrMalformed
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.held && snap.Sequence <= a.current.Sequence {
		metrics.RecordSnapshotStale()
		return ErrStale
	}

	rankRankings(snap.Rankings)
	a.current = snap
	a.held = true
	metrics.RecordSnapshotApplied()
	metrics.UpdateSnapshotSequence(snap.Sequence)
	return nil
}

// Current returns the latest accepted snapshot. The second return value is
// false before the first snapshot arrives.
func (a *Aggregator) Current() (model.StatsSnapshot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.held {
		return model.StatsSnapshot{}, false
	}
	snap := a.current
	snap.Rankings = append([]model.CombatRanking(nil), a.current.Rankings...)
	return snap, true
}

// Rankings returns the ranking rows of the held snapshot, rank-ordered.
func (a *Aggregator) Rankings() []model.CombatRanking {
	snap, ok := a.Current()
	if !ok {
		return nil
	}
	return snap.Rankings
}

// rankRankings assigns rank positions by descending total damage wherever
// the authority left them unset. Explicit ranks are kept as delivered.
func rankRankings(rows []model.CombatRanking) {
	assigned := false
	for i := range rows {
		if rows[i].Rank != 0 {
			assigned = true
			break
		}
	}
	if assigned {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Rank < rows[j].Rank })
		return
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].TotalDamage != rows[j].TotalDamage {
			return rows[i].TotalDamage > rows[j].TotalDamage
		}
		return rows[i].ParticipantID < rows[j].ParticipantID
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
}

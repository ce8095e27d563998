// Package buffer holds the bounded, ordered window of recent combat events.
//
// The buffer dedupes by event id and keeps entries ordered newest-first.
// It is not a source of truth for lifetime totals; it is the recent window
// shown to operators while authoritative snapshots carry the aggregates.
package buffer

import (
	"sort"
	"sync"

	"github.com/orbitfall/combatwatch/internal/domain/model"
	"github.com/orbitfall/combatwatch/pkg/metrics"
)

// defaultCapacity bounds the in-memory window when no option is given.
const defaultCapacity = 100

// Buffer is a bounded collection of recent combat events, ordered
// newest-first with deterministic tie-breaking on id.
type Buffer struct {
	mu       sync.RWMutex
	events   []model.CombatEvent
	index    map[string]int // event id -> position in events
	capacity int
}

// New creates a buffer with configuration options.
func New(opts ...Option) *Buffer {
	b := &Buffer{
		capacity: defaultCapacity,
	}

	for _, opt := range opts {
		opt(b)
	}

	b.events = make([]model.CombatEvent, 0, b.capacity)
	b.index = make(map[string]int, b.capacity)
	return b
}

// Ingest inserts or updates an event by id.
//
// A duplicate arrival with the same or an older timestamp is a no-op.
// A newer arrival for a known id updates the entry in place and restores
// ordering. Returns true when the buffer changed. Malformed events
// (missing id or zero timestamp) are rejected without touching state.
func (b *Buffer) Ingest(ev model.CombatEvent) (bool, error) {
	if err := validate(ev); err != nil {
		metrics.RecordEventMalformed()
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if pos, ok := b.index[ev.ID]; ok {
		if !ev.Timestamp.After(b.events[pos].Timestamp) {
			metrics.RecordEventDuplicate()
			return false, nil
		}
		b.events[pos] = ev
		b.resort()
		metrics.UpdateBufferSize(len(b.events))
		return true, nil
	}

	b.events = append(b.events, ev)
	b.resort()
	b.prune()
	metrics.RecordEventIngested()
	metrics.UpdateBufferSize(len(b.events))
	return true, nil
}

// IngestBatch applies a poll result to the buffer. Malformed records are
// skipped and counted; they never abort the rest of the batch. The buffer
// is never replaced wholesale, since the push channel may hold events the
// poll has not caught up to.
func (b *Buffer) IngestBatch(events []model.CombatEvent) (applied, rejected int) {
	for i := range events {
		changed, err := b.Ingest(events[i])
		switch {
		case err != nil:
			rejected++
		case changed:
			applied++
		}
	}
	return applied, rejected
}

// MarkDisputed flags a buffered event as disputed. Unknown ids are ignored;
// the authority's copy is reconciled on the next poll either way.
func (b *Buffer) MarkDisputed(eventID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos, ok := b.index[eventID]
	if !ok {
		return false
	}
	b.events[pos].Disputed = true
	return true
}

// Snapshot returns a copy of the buffered events, newest-first.
func (b *Buffer) Snapshot() []model.CombatEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]model.CombatEvent, len(b.events))
	copy(out, b.events)
	return out
}

// Contains reports whether an event id is currently buffered.
func (b *Buffer) Contains(eventID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.index[eventID]
	return ok
}

// Len returns the current number of buffered events.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.events)
}

// Capacity returns the configured bound.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// resort restores newest-first ordering and rebuilds the id index.
// Ties on timestamp order by id ascending so ordering is deterministic.
// Must be called with b.mu held.
func (b *Buffer) resort() {
	sort.SliceStable(b.events, func(i, j int) bool {
		if !b.events[i].Timestamp.Equal(b.events[j].Timestamp) {
			return b.events[i].Timestamp.After(b.events[j].Timestamp)
		}
		return b.events[i].ID < b.events[j].ID
	})
	b.reindex()
}

// prune evicts oldest-timestamp-first entries beyond capacity.
// Must be called with b.mu held.
func (b *Buffer) prune() {
	if len(b.events) <= b.capacity {
		return
	}
	for _, ev := range b.events[b.capacity:] {
		delete(b.index, ev.ID)
		metrics.RecordEventEvicted()
	}
	b.events = b.events[:b.capacity]
}

// reindex rebuilds the id -> position map. Must be called with b.mu held.
func (b *Buffer) reindex() {
	for i := range b.events {
		b.index[b.events[i].ID] = i
	}
}

func validate(ev model.CombatEvent) error {
	if ev.ID == "" {
		return ErrMalformed
	}
	if ev.Timestamp.IsZero() {
		return ErrMalformed
	}
	return nil
}

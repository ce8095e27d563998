// Package model contains domain models passed between layers.
package model

import "time"

// CombatCategory classifies an encounter.
type CombatCategory string

// Combat categories reported by the game authority.
const (
	CategoryPlayerVsPlayer CombatCategory = "player_vs_player"
	CategoryPlayerVsNPC    CombatCategory = "player_vs_npc"
	CategoryFleetBattle    CombatCategory = "fleet_battle"
)

// CombatEvent is an immutable record of one encounter. Events are created
// by the game authority and only observed here; the Disputed flag is the
// single field that may be set locally (on a filed dispute) and must later
// agree with the authority's value.
type CombatEvent struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Category  CombatCategory `json:"category"`
	Attacker  string         `json:"attacker"`
	Defender  string         `json:"defender"`
	Winner    string         `json:"winner,omitempty"` // empty while undecided
	Damage    float64        `json:"damage"`
	Sector    string         `json:"sector"`
	Disputed  bool           `json:"disputed"`
}

// CombatStats is the authority's aggregate view. It is received whole and
// never derived locally from buffered events.
type CombatStats struct {
	TotalBattles    int     `json:"total_battles"`
	Battles24h      int     `json:"battles_24h"`
	TotalDamage     float64 `json:"total_damage"`
	ShipsDestroyed  int     `json:"ships_destroyed"`
	AvgBattleLength float64 `json:"avg_battle_length_seconds"`
	HotspotSector   string  `json:"hotspot_sector"`
	MostActive      string  `json:"most_active_participant"`
}

// CombatRanking is one per-participant row of the authority's ranking table.
type CombatRanking struct {
	ParticipantID string  `json:"participant_id"`
	Kills         int     `json:"kills"`
	Deaths        int     `json:"deaths"`
	KDRatio       float64 `json:"kd_ratio"`
	TotalDamage   float64 `json:"total_damage"`
	WinRate       float64 `json:"win_rate"`
	Faction       string  `json:"faction,omitempty"`
	Rank          int     `json:"rank,omitempty"` // 0 means unranked by the authority
}

// StatsSnapshot bundles stats and rankings under one authoritative sequence
// number. Rankings deliberately share the stats' freshness; they arrive from
// the same endpoint and have no independent versioning.
type StatsSnapshot struct {
	Sequence int64           `json:"sequence"`
	TakenAt  time.Time       `json:"taken_at"`
	Stats    CombatStats     `json:"stats"`
	Rankings []CombatRanking `json:"rankings,omitempty"`
}

// DisputeStatus is the workflow state of a combat dispute.
type DisputeStatus string

// Dispute workflow states. Transitions are pending -> resolved and
// pending -> rejected only.
const (
	DisputePending  DisputeStatus = "pending"
	DisputeResolved DisputeStatus = "resolved"
	DisputeRejected DisputeStatus = "rejected"
)

// Final reports whether the status admits no further transition.
func (s DisputeStatus) Final() bool {
	return s == DisputeResolved || s == DisputeRejected
}

// Valid reports whether s is a known workflow state.
func (s DisputeStatus) Valid() bool {
	return s == DisputePending || s.Final()
}

// CombatDispute is a user-filed complaint about a combat event. The status
// field is authority-owned after the optimistic pending insert.
type CombatDispute struct {
	ID         string        `json:"id"`
	EventID    string        `json:"event_id"`
	ReporterID string        `json:"reporter_id"`
	Reason     string        `json:"reason"`
	Status     DisputeStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
}

// InterventionAction is an administrative command against an in-flight event.
type InterventionAction string

// Supported intervention actions.
const (
	InterventionPause   InterventionAction = "pause"
	InterventionEnd     InterventionAction = "end"
	InterventionReset   InterventionAction = "reset"
	InterventionRestore InterventionAction = "restore"
)

// Valid reports whether a is a supported action.
func (a InterventionAction) Valid() bool {
	switch a {
	case InterventionPause, InterventionEnd, InterventionReset, InterventionRestore:
		return true
	}
	return false
}

// InterventionCommand is the transient request sent to the authority. It is
// never persisted; it exists only for one dispatch-and-acknowledge cycle.
type InterventionCommand struct {
	EventID string             `json:"event_id"`
	Action  InterventionAction `json:"action"`
}

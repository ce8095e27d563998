// Package authsim is a stand-in combat authority for local development
// and integration tests. It serves the poll endpoints, accepts commands,
// and pushes events over a WebSocket stream.
package authsim

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/orbitfall/combatwatch/internal/domain/model"
)

// Generation ranges for simulated encounters.
const (
	damageMin   = 50.0
	damageRange = 4950.0
	sectorCount = 12
	pilotCount  = 20
)

var categories = []model.CombatCategory{ //nolint:gochecknoglobals // fixed generation table
	model.CategoryPlayerVsPlayer,
	model.CategoryPlayerVsNPC,
	model.CategoryFleetBattle,
}

// randomInt returns a random int in [0, n) using crypto/rand.
func randomInt(n int64) int64 {
	v, _ := rand.Int(rand.Reader, big.NewInt(n))
	return v.Int64()
}

// randomFloat returns a random float64 between 0.0 and 1.0.
func randomFloat() float64 {
	const divisor = 1000000
	n, _ := rand.Int(rand.Reader, big.NewInt(divisor))
	return float64(n.Int64()) / float64(divisor)
}

func randomPilot() string {
	return fmt.Sprintf("pilot-%03d", randomInt(pilotCount)+1)
}

func randomSector() string {
	return fmt.Sprintf("sector-%d", randomInt(sectorCount)+1)
}

// GenerateEvent produces one plausible combat event.
func GenerateEvent() model.CombatEvent {
	attacker := randomPilot()
	defender := randomPilot()
	for defender == attacker {
		defender = randomPilot()
	}

	ev := model.CombatEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Category:  categories[randomInt(int64(len(categories)))],
		Attacker:  attacker,
		Defender:  defender,
		Damage:    damageMin + randomFloat()*damageRange,
		Sector:    randomSector(),
	}
	// Roughly two thirds of encounters are decided.
	switch randomInt(3) {
	case 0:
		ev.Winner = attacker
	case 1:
		ev.Winner = defender
	}
	return ev
}

// GenerateStats produces an aggregate snapshot consistent in shape, not in
// arithmetic; the simulator does not replay history.
func GenerateStats(seq int64, totalBattles int) model.StatsSnapshot {
	rankings := make([]model.CombatRanking, 0, 5)
	for i := 0; i < 5; i++ {
		kills := int(randomInt(40)) + 1
		deaths := int(randomInt(20)) + 1
		rankings = append(rankings, model.CombatRanking{
			ParticipantID: fmt.Sprintf("pilot-%03d", i+1),
			Kills:         kills,
			Deaths:        deaths,
			KDRatio:       float64(kills) / float64(deaths),
			TotalDamage:   randomFloat() * 100000,
			WinRate:       randomFloat(),
		})
	}

	return model.StatsSnapshot{
		Sequence: seq,
		TakenAt:  time.Now().UTC(),
		Stats: model.CombatStats{
			TotalBattles:    totalBattles,
			Battles24h:      int(randomInt(int64(totalBattles + 1))),
			TotalDamage:     randomFloat() * 1e7,
			ShipsDestroyed:  int(randomInt(500)),
			AvgBattleLength: 30 + randomFloat()*270,
			HotspotSector:   randomSector(),
			MostActive:      randomPilot(),
		},
		Rankings: rankings,
	}
}

package game

import (
	"math/rand/v2"
)

type Role string

const (
	RoleMerlin   Role = "Merlin"
	RolePercival Role = "Percival"
	RoleServant  Role = "Loyal Servant of Arthur"
	RoleMordred  Role = "Mordred"
	RoleMorgana  Role = "Morgana"
	RoleOberon   Role = "Oberon"
	RoleMinion   Role = "Minion of Mordred"
)

type Side string

const (
	SideGood Side = "good"
	SideEvil Side = "evil"
)

func (r Role) Side() Side {
	switch r {
	case RoleMordred, RoleMorgana, RoleOberon, RoleMinion:
		return SideEvil
	default:
		return SideGood
	}
}

func (r Role) IsEvil() bool { return r.Side() == SideEvil }
func (r Role) IsGood() bool { return r.Side() == SideGood }

// Config holds the host-selected lobby toggles. Merlin and Mordred are always
// in play; the fields exist so the serialized config matches the client's
// expectations.
type Config struct {
	Merlin          bool  `json:"merlin"`
	Mordred         bool  `json:"mordred"`
	Morgana         bool  `json:"morgana"`
	Percival        bool  `json:"percival"`
	Oberon          bool  `json:"oberon"`
	LadyEnabled     bool  `json:"lady_enabled"`
	LadyAfterRounds []int `json:"lady_after_rounds"`
}

func DefaultConfig() Config {
	return Config{
		Merlin:          true,
		Mordred:         true,
		Morgana:         true,
		Percival:        true,
		Oberon:          false,
		LadyEnabled:     true,
		LadyAfterRounds: []int{2, 3, 4},
	}
}

// EvilCount is the number of evil seats for a table of n players:
// at least 2, and at least a third of the table.
func EvilCount(n int) int {
	c := (n + 2) / 3
	if c < 2 {
		return 2
	}
	return c
}

// BuildDeck returns a shuffled role deck of exactly n roles. Mordred and
// Merlin are always present; Morgana, Percival and Oberon follow cfg; the
// remaining evil seats are Minions of Mordred and the remaining good seats
// Loyal Servants. Callers validate n (5-10) before calling.
func BuildDeck(n int, cfg Config, rng *rand.Rand) []Role {
	numEvil := EvilCount(n)

	evil := []Role{RoleMordred}
	if cfg.Morgana {
		evil = append(evil, RoleMorgana)
	}
	if cfg.Oberon {
		evil = append(evil, RoleOberon)
	}
	for len(evil) < numEvil {
		evil = append(evil, RoleMinion)
	}

	good := []Role{RoleMerlin}
	if cfg.Percival {
		good = append(good, RolePercival)
	}
	for len(good)+len(evil) < n {
		good = append(good, RoleServant)
	}

	deck := append(good, evil...)
	rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
	return deck
}

package game

import (
	"math/rand/v2"
	"testing"
)

func testRNG() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func countRoles(deck []Role) map[Role]int {
	counts := map[Role]int{}
	for _, r := range deck {
		counts[r]++
	}
	return counts
}

func TestEvilCount(t *testing.T) {
	cases := []struct {
		n    int
		want int
	}{
		{5, 2},
		{6, 2},
		{7, 3},
		{8, 3},
		{9, 3},
		{10, 4},
	}
	for _, tc := range cases {
		if got := EvilCount(tc.n); got != tc.want {
			t.Fatalf("EvilCount(%d): got %d, want %d", tc.n, got, tc.want)
		}
	}
}

func TestBuildDeck_SizeAndComposition(t *testing.T) {
	configs := []struct {
		name string
		cfg  Config
	}{
		{"default", DefaultConfig()},
		{"bare", Config{Merlin: true, Mordred: true}},
		{"oberon", func() Config {
			c := DefaultConfig()
			c.Oberon = true
			return c
		}()},
	}

	for _, cc := range configs {
		for n := 5; n <= 10; n++ {
			if cc.cfg.Oberon && n < 7 {
				continue // callers force Oberon off below 7 players
			}
			deck := BuildDeck(n, cc.cfg, testRNG())
			if len(deck) != n {
				t.Fatalf("%s n=%d: deck size %d", cc.name, n, len(deck))
			}
			counts := countRoles(deck)
			evil := 0
			for r, c := range counts {
				if r.IsEvil() {
					evil += c
				}
			}
			if want := EvilCount(n); evil != want {
				t.Fatalf("%s n=%d: evil count %d, want %d", cc.name, n, evil, want)
			}
			if counts[RoleMordred] != 1 {
				t.Fatalf("%s n=%d: Mordred count %d", cc.name, n, counts[RoleMordred])
			}
			if counts[RoleMerlin] != 1 {
				t.Fatalf("%s n=%d: Merlin count %d", cc.name, n, counts[RoleMerlin])
			}
			if cc.cfg.Percival && counts[RolePercival] != 1 {
				t.Fatalf("%s n=%d: Percival count %d", cc.name, n, counts[RolePercival])
			}
		}
	}
}

func TestBuildDeck_SevenPlayersAllOptionalEvil(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Oberon = true

	deck := BuildDeck(7, cfg, testRNG())
	counts := countRoles(deck)

	// Evil seats are exactly Mordred, Morgana and Oberon; no filler minions.
	if counts[RoleMordred] != 1 || counts[RoleMorgana] != 1 || counts[RoleOberon] != 1 {
		t.Fatalf("unexpected evil composition: %v", counts)
	}
	if counts[RoleMinion] != 0 {
		t.Fatalf("expected no minions, got %d", counts[RoleMinion])
	}
	if counts[RoleMerlin] != 1 || counts[RolePercival] != 1 || counts[RoleServant] != 2 {
		t.Fatalf("unexpected good composition: %v", counts)
	}
}

func TestBuildDeck_DeterministicForFixedSource(t *testing.T) {
	a := BuildDeck(8, DefaultConfig(), rand.New(rand.NewPCG(7, 7)))
	b := BuildDeck(8, DefaultConfig(), rand.New(rand.NewPCG(7, 7)))
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("decks diverge at %d: %v vs %v", i, a, b)
		}
	}
}

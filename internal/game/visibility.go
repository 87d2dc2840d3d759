package game

// Seat pairs a player's identity with their dealt role for visibility
// computations. Order follows the session's seating order so info payloads
// list names the same way for everyone.
type Seat struct {
	ID   string
	Name string
	Role Role
}

// Info is the private night-phase payload for a single player. Empty slices
// are omitted on the wire; a player with no special knowledge gets nothing.
type Info struct {
	MerlinKnows   []string
	PercivalKnows []string
	Evil          []string
}

func (i Info) Empty() bool {
	return len(i.MerlinKnows) == 0 && len(i.PercivalKnows) == 0 && len(i.Evil) == 0
}

// InfoFor computes what the viewer may learn about the other seats:
//   - Merlin sees every evil player except Mordred and Oberon.
//   - Evil players other than Oberon see every other evil player, Oberon
//     included. Oberon himself learns nothing.
//   - Percival sees Merlin and Morgana without knowing which is which.
//
// Pure: callers deliver the payload. Re-run per player on reconnect and for
// everyone at game start.
func InfoFor(seats []Seat, viewerID string) Info {
	var viewer *Seat
	for i := range seats {
		if seats[i].ID == viewerID {
			viewer = &seats[i]
			break
		}
	}
	if viewer == nil || viewer.Role == "" {
		return Info{}
	}

	var info Info
	switch {
	case viewer.Role == RoleMerlin:
		for _, s := range seats {
			if s.Role.IsEvil() && s.Role != RoleMordred && s.Role != RoleOberon {
				info.MerlinKnows = append(info.MerlinKnows, s.Name)
			}
		}
	case viewer.Role == RolePercival:
		for _, s := range seats {
			if s.Role == RoleMerlin || s.Role == RoleMorgana {
				info.PercivalKnows = append(info.PercivalKnows, s.Name)
			}
		}
	case viewer.Role.IsEvil() && viewer.Role != RoleOberon:
		for _, s := range seats {
			if s.Role.IsEvil() && s.ID != viewer.ID {
				info.Evil = append(info.Evil, s.Name)
			}
		}
	}
	return info
}

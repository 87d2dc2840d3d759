package session

import (
	"slices"

	"github.com/avalonline/avalon-backend/internal/protocol"
)

// snapshotFor projects the canonical state into one recipient's view. The
// projection is recomputed on every broadcast; there is exactly one source
// of truth and N throwaway views, never N copies.
func (s *Session) snapshotFor(viewerID string) protocol.RoomState {
	players := make([]protocol.PlayerState, 0, len(s.order))
	for _, id := range s.order {
		p := s.players[id]
		ps := protocol.PlayerState{
			UserID: p.UserID,
			Name:   p.Name,
			Ready:  p.Ready,
			Wins:   p.Wins,
		}
		// Everyone's role is public once the game is over; until then a
		// player only ever sees their own.
		if s.phase == PhaseFinished || id == viewerID {
			ps.Role = string(p.Role)
		}
		players = append(players, ps)
	}

	var evilNames []string
	if s.phase == PhaseAssassination {
		for _, id := range s.order {
			if s.players[id].Role.IsEvil() {
				evilNames = append(evilNames, s.players[id].Name)
			}
		}
	}

	return protocol.RoomState{
		RoomID:                s.roomID,
		HostID:                s.hostID,
		Players:               players,
		Phase:                 string(s.phase),
		QuestHistory:          append([]protocol.QuestRecord{}, s.history...),
		CurrentLeader:         s.leaderID,
		ConsecutiveRejections: s.rejections,
		Config:                s.cfg,
		RoundNumber:           s.round,
		GoodWins:              s.goodWins,
		EvilWins:              s.evilWins,
		Subphase:              string(s.subphase),
		CurrentTeam:           append([]string{}, s.team...),
		Votes:                 copyMap(s.votes),
		Winner:                string(s.winner),
		Submissions:           copyMap(s.subs),
		ProposalLeader:        s.proposerID,
		RoundLeaders:          s.roundLeaders(),
		AssassinCandidates:    append([]string{}, s.assassinPool...),
		EvilPlayers:           evilNames,
		AssassinVotes:         copyMap(s.assassinVotes),
		LadyHolder:            s.ladyHolder,
		LadyHistory:           append([]string{}, s.ladyHistory...),
		LadyAfterRounds:       append([]int{}, s.cfg.LadyAfterRounds...),
	}
}

// roundLeaders derives which seat leads each of the five quests: completed
// rounds come from history, the active round from the current leader, and
// future rounds assume the rotation continues unchanged.
func (s *Session) roundLeaders() []string {
	leaders := make([]string, 5)
	if len(s.order) == 0 {
		return leaders
	}

	for _, rec := range s.history {
		if rec.Round >= 1 && rec.Round <= 5 {
			leaders[rec.Round-1] = rec.Leader
		}
	}

	if s.round >= 1 && s.round <= 5 && s.leaderID != "" {
		if p, ok := s.players[s.leaderID]; ok {
			leaders[s.round-1] = p.Name
		}
	}

	idx := slices.Index(s.order, s.leaderID)
	if idx < 0 {
		idx = 0
	}
	current := 0
	if s.round > 0 {
		current = s.round - 1
	}
	for offset := current + 1; offset < 5; offset++ {
		future := s.order[(idx+offset-current)%len(s.order)]
		leaders[offset] = s.players[future].Name
	}
	return leaders
}

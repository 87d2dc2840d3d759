package session

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avalonline/avalon-backend/internal/game"
	"github.com/avalonline/avalon-backend/internal/protocol"
)

func boolPtr(b bool) *bool { return &b }

// startTestGame readies every player and has the host start the game.
func startTestGame(t *testing.T, s *Session) View {
	t.Helper()
	v := inspect(t, s)
	for _, id := range v.Order {
		send(s, id, protocol.ClientMessage{Type: "toggle_ready"})
	}
	send(s, v.HostID, protocol.ClientMessage{Type: "start_game"})
	v = inspect(t, s)
	if v.Phase != PhaseInGame {
		t.Fatalf("game did not start: phase=%s", v.Phase)
	}
	return v
}

// newGameNoLady starts an n-player game with the Lady of the Lake disabled so
// quest-driving helpers never hit the lady subphase.
func newGameNoLady(t *testing.T, n int) (*Session, *stubFeed, *stubStats, View) {
	t.Helper()
	s, feed, stats := newTestSession(t, n, 0)
	send(s, "u1", protocol.ClientMessage{Type: "set_config", LadyEnabled: boolPtr(false)})
	v := startTestGame(t, s)
	return s, feed, stats, v
}

func bySide(v View, side game.Side) []string {
	var out []string
	for _, id := range v.Order {
		if v.Players[id].Role.Side() == side {
			out = append(out, id)
		}
	}
	return out
}

func approveAll(s *Session, v View) {
	for _, id := range v.Order {
		send(s, id, protocol.ClientMessage{Type: "vote_team", Approve: boolPtr(true)})
	}
}

// runQuest proposes team, approves it unanimously and submits one card per
// member. Members absent from cards play success.
func runQuest(t *testing.T, s *Session, team []string, cards map[string]string) View {
	t.Helper()
	v := inspect(t, s)
	require.Equal(t, SubphaseProposal, v.Subphase, "quest must start from a proposal")
	send(s, v.LeaderID, protocol.ClientMessage{Type: "propose_team", Team: team})
	approveAll(s, v)
	for _, id := range team {
		card := cards[id]
		if card == "" {
			card = protocol.CardSuccess
		}
		send(s, id, protocol.ClientMessage{Type: "submit_card", Card: card})
	}
	return inspect(t, s)
}

func TestStartGame_DealsRolesAndSeedsState(t *testing.T) {
	s, _, _ := newTestSession(t, 5, 0)
	v := startTestGame(t, s)

	require.Equal(t, SubphaseProposal, v.Subphase)
	require.Equal(t, 1, v.Round)
	require.Equal(t, v.Order[0], v.LeaderID)
	require.Empty(t, v.History)
	require.False(t, v.StatsRecorded)

	evil := 0
	for _, p := range v.Players {
		require.NotEmpty(t, p.Role)
		if p.Role.IsEvil() {
			evil++
		}
	}
	require.Equal(t, 2, evil)

	// Default config includes the Lady; the token starts at the last seat.
	require.Equal(t, v.Order[4], v.LadyHolder)
	require.Equal(t, []string{v.Order[4]}, v.LadyHistory)
}

func TestStartGame_Preconditions(t *testing.T) {
	t.Run("not host", func(t *testing.T) {
		s, _, _ := newTestSession(t, 5, 0)
		v := inspect(t, s)
		for _, id := range v.Order {
			send(s, id, protocol.ClientMessage{Type: "toggle_ready"})
		}
		send(s, "u2", protocol.ClientMessage{Type: "start_game"})
		require.Equal(t, PhaseLobby, inspect(t, s).Phase)
	})

	t.Run("not all ready", func(t *testing.T) {
		s, _, _ := newTestSession(t, 5, 0)
		send(s, "u1", protocol.ClientMessage{Type: "toggle_ready"})
		send(s, "u1", protocol.ClientMessage{Type: "start_game"})
		require.Equal(t, PhaseLobby, inspect(t, s).Phase)
	})

	t.Run("too few players", func(t *testing.T) {
		s, _, _ := newTestSession(t, 4, 0)
		v := inspect(t, s)
		for _, id := range v.Order {
			send(s, id, protocol.ClientMessage{Type: "toggle_ready"})
		}
		send(s, "u1", protocol.ClientMessage{Type: "start_game"})
		require.Equal(t, PhaseLobby, inspect(t, s).Phase)
	})
}

func TestQuestRound_SuccessAdvances(t *testing.T) {
	s, _, _, v := newGameNoLady(t, 5)
	leaderName := v.Players[v.LeaderID].Name
	team := v.Order[:2]

	v = runQuest(t, s, team, nil)

	require.Equal(t, 1, v.GoodWins)
	require.Equal(t, 0, v.EvilWins)
	require.Equal(t, 2, v.Round)
	require.Equal(t, v.Order[1], v.LeaderID)
	require.Equal(t, SubphaseProposal, v.Subphase)
	require.Empty(t, v.Team)
	require.Empty(t, v.Submissions)

	require.Len(t, v.History, 1)
	rec := v.History[0]
	require.Equal(t, 1, rec.Round)
	require.True(t, rec.Success)
	require.Equal(t, 0, rec.Fails)
	require.Equal(t, leaderName, rec.Leader)
	require.Equal(t, leaderName, rec.Proposer)
	require.Equal(t, v.Players[v.Order[1]].Name, rec.NextLeader)
	require.Len(t, rec.Votes, 5)
	for name, approve := range rec.Votes {
		require.True(t, approve, "vote by %s", name)
	}
}

func TestProposeTeam_Preconditions(t *testing.T) {
	s, _, _, v := newGameNoLady(t, 5)

	var notLeader string
	for _, id := range v.Order {
		if id != v.LeaderID {
			notLeader = id
			break
		}
	}

	send(s, notLeader, protocol.ClientMessage{Type: "propose_team", Team: v.Order[:2]})
	send(s, v.LeaderID, protocol.ClientMessage{Type: "propose_team", Team: v.Order[:3]}) // wrong size
	send(s, v.LeaderID, protocol.ClientMessage{Type: "propose_team", Team: []string{v.Order[0], "ghost"}})
	send(s, v.LeaderID, protocol.ClientMessage{Type: "propose_team", Team: []string{v.Order[0], v.Order[0]}})

	v = inspect(t, s)
	require.Equal(t, SubphaseProposal, v.Subphase)
	require.Empty(t, v.Team)
}

func TestVote_RejectionRotatesLeader(t *testing.T) {
	s, _, _, v := newGameNoLady(t, 5)
	send(s, v.LeaderID, protocol.ClientMessage{Type: "propose_team", Team: v.Order[:2]})
	for _, id := range v.Order {
		send(s, id, protocol.ClientMessage{Type: "vote_team", Approve: boolPtr(false)})
	}

	v2 := inspect(t, s)
	require.Equal(t, 1, v2.Rejections)
	require.Equal(t, v.Order[1], v2.LeaderID)
	require.Equal(t, SubphaseProposal, v2.Subphase)
	require.Equal(t, PhaseInGame, v2.Phase)
}

func TestVote_LastBallotPerPlayerWins(t *testing.T) {
	s, _, _, v := newGameNoLady(t, 5)
	send(s, v.LeaderID, protocol.ClientMessage{Type: "propose_team", Team: v.Order[:2]})

	send(s, v.Order[0], protocol.ClientMessage{Type: "vote_team", Approve: boolPtr(false)})
	send(s, v.Order[0], protocol.ClientMessage{Type: "vote_team", Approve: boolPtr(true)})
	for _, id := range v.Order[1:] {
		send(s, id, protocol.ClientMessage{Type: "vote_team", Approve: boolPtr(true)})
	}

	v2 := inspect(t, s)
	require.Equal(t, SubphaseQuest, v2.Subphase)
	require.Equal(t, 0, v2.Rejections)
}

func TestFiveConsecutiveRejections_EvilWins(t *testing.T) {
	s, _, stats, _ := newGameNoLady(t, 5)

	for i := 0; i < 5; i++ {
		v := inspect(t, s)
		send(s, v.LeaderID, protocol.ClientMessage{Type: "propose_team", Team: v.Order[:2]})
		for _, id := range v.Order {
			send(s, id, protocol.ClientMessage{Type: "vote_team", Approve: boolPtr(false)})
		}
	}

	v := inspect(t, s)
	require.Equal(t, PhaseFinished, v.Phase)
	require.Equal(t, game.SideEvil, v.Winner)
	require.Equal(t, 5, v.Rejections)
	require.True(t, v.StatsRecorded)
	require.Equal(t, 5, stats.count())
}

func TestApprovedQuest_ResetsRejectionCounter(t *testing.T) {
	s, _, _, _ := newGameNoLady(t, 5)

	for i := 0; i < 2; i++ {
		v := inspect(t, s)
		send(s, v.LeaderID, protocol.ClientMessage{Type: "propose_team", Team: v.Order[:2]})
		for _, id := range v.Order {
			send(s, id, protocol.ClientMessage{Type: "vote_team", Approve: boolPtr(false)})
		}
	}
	require.Equal(t, 2, inspect(t, s).Rejections)

	v := inspect(t, s)
	v = runQuest(t, s, v.Order[:2], nil)
	require.Equal(t, 0, v.Rejections)
}

func TestSubmitCard_GoodCannotPlayFail(t *testing.T) {
	s, _, _, v := newGameNoLady(t, 5)
	good := bySide(v, game.SideGood)
	evil := bySide(v, game.SideEvil)
	team := []string{good[0], evil[0]}

	send(s, v.LeaderID, protocol.ClientMessage{Type: "propose_team", Team: team})
	approveAll(s, v)

	send(s, good[0], protocol.ClientMessage{Type: "submit_card", Card: protocol.CardFail})
	require.Empty(t, inspect(t, s).Submissions)

	send(s, good[0], protocol.ClientMessage{Type: "submit_card", Card: protocol.CardSuccess})
	require.Len(t, inspect(t, s).Submissions, 1)

	send(s, evil[0], protocol.ClientMessage{Type: "submit_card", Card: protocol.CardFail})
	v = inspect(t, s)
	require.Equal(t, 1, v.EvilWins)
	require.Equal(t, 1, v.History[0].Fails)
	require.False(t, v.History[0].Success)
}

func TestSubmitCard_Preconditions(t *testing.T) {
	s, _, _, v := newGameNoLady(t, 5)
	team := v.Order[:2]
	send(s, v.LeaderID, protocol.ClientMessage{Type: "propose_team", Team: team})
	approveAll(s, v)

	send(s, v.Order[2], protocol.ClientMessage{Type: "submit_card", Card: protocol.CardSuccess}) // not on team
	send(s, team[0], protocol.ClientMessage{Type: "submit_card", Card: "X"})                     // bogus card
	require.Empty(t, inspect(t, s).Submissions)
}

func TestThreeFailedQuests_EvilWins(t *testing.T) {
	s, _, stats, v := newGameNoLady(t, 5)
	good := bySide(v, game.SideGood)
	evil := bySide(v, game.SideEvil)
	saboteur := map[string]string{evil[0]: protocol.CardFail}

	runQuest(t, s, []string{evil[0], good[0]}, saboteur)
	runQuest(t, s, []string{evil[0], good[0], good[1]}, saboteur)
	v = runQuest(t, s, []string{evil[0], good[0]}, saboteur)

	require.Equal(t, PhaseFinished, v.Phase)
	require.Equal(t, game.SideEvil, v.Winner)
	require.Equal(t, 3, v.EvilWins)
	require.Equal(t, 5, stats.count())
}

// driveToAssassination plays three good-only successful quests.
func driveToAssassination(t *testing.T, s *Session) View {
	t.Helper()
	v := inspect(t, s)
	good := bySide(v, game.SideGood)
	require.Len(t, good, 3)

	runQuest(t, s, good[:2], nil)
	runQuest(t, s, good[:3], nil)
	v = runQuest(t, s, good[:2], nil)

	require.Equal(t, PhaseAssassination, v.Phase)
	require.Equal(t, SubphaseAssassination, v.Subphase)
	return v
}

func TestThreeGoodQuests_OpensAssassination(t *testing.T) {
	s, _, stats, _ := newGameNoLady(t, 5)
	v := driveToAssassination(t, s)

	require.Len(t, v.AssassinPool, 3)
	for _, id := range v.AssassinPool {
		require.True(t, v.Players[id].Role.IsGood())
	}
	// The game is not over until the assassination resolves.
	require.Zero(t, stats.count())
}

func TestAssassination_MerlinGuessWinsForEvil(t *testing.T) {
	s, _, stats, _ := newGameNoLady(t, 5)
	v := driveToAssassination(t, s)
	evil := bySide(v, game.SideEvil)

	var merlin string
	for _, id := range v.Order {
		if v.Players[id].Role == game.RoleMerlin {
			merlin = id
		}
	}
	require.NotEmpty(t, merlin)

	for _, id := range evil {
		send(s, id, protocol.ClientMessage{Type: "assassination_vote", Target: merlin})
	}

	v = inspect(t, s)
	require.Equal(t, PhaseFinished, v.Phase)
	require.Equal(t, game.SideEvil, v.Winner)
	require.Equal(t, 5, stats.count())
}

func TestAssassination_WrongGuessWinsForGood(t *testing.T) {
	s, _, _, _ := newGameNoLady(t, 5)
	v := driveToAssassination(t, s)
	evil := bySide(v, game.SideEvil)

	var decoy string
	for _, id := range v.AssassinPool {
		if v.Players[id].Role != game.RoleMerlin {
			decoy = id
		}
	}
	require.NotEmpty(t, decoy)

	// The legacy message name still routes to the same operation.
	send(s, evil[0], protocol.ClientMessage{Type: "assassin_guess", Target: decoy})
	send(s, evil[1], protocol.ClientMessage{Type: "assassination_vote", Target: decoy})

	v = inspect(t, s)
	require.Equal(t, PhaseFinished, v.Phase)
	require.Equal(t, game.SideGood, v.Winner)
}

func TestAssassination_TieNarrowsPoolAndRevotes(t *testing.T) {
	s, _, _, _ := newGameNoLady(t, 5)
	v := driveToAssassination(t, s)
	evil := bySide(v, game.SideEvil)
	pool := v.AssassinPool

	send(s, evil[0], protocol.ClientMessage{Type: "assassination_vote", Target: pool[0]})
	send(s, evil[1], protocol.ClientMessage{Type: "assassination_vote", Target: pool[1]})

	v = inspect(t, s)
	require.Equal(t, PhaseAssassination, v.Phase, "a split vote must not resolve")
	require.ElementsMatch(t, []string{pool[0], pool[1]}, v.AssassinPool)
	require.Empty(t, v.AssassinVotes)

	// Changing a vote before the tally only counts the final ballot.
	send(s, evil[0], protocol.ClientMessage{Type: "assassination_vote", Target: pool[0]})
	send(s, evil[0], protocol.ClientMessage{Type: "assassination_vote", Target: pool[1]})
	require.Len(t, inspect(t, s).AssassinVotes, 1)

	send(s, evil[1], protocol.ClientMessage{Type: "assassination_vote", Target: pool[1]})
	v = inspect(t, s)
	require.Equal(t, PhaseFinished, v.Phase)
	if v.Players[pool[1]].Role == game.RoleMerlin {
		require.Equal(t, game.SideEvil, v.Winner)
	} else {
		require.Equal(t, game.SideGood, v.Winner)
	}
}

func TestAssassinationVote_Preconditions(t *testing.T) {
	s, _, _, _ := newGameNoLady(t, 5)
	v := driveToAssassination(t, s)
	good := bySide(v, game.SideGood)
	evil := bySide(v, game.SideEvil)

	send(s, good[0], protocol.ClientMessage{Type: "assassination_vote", Target: good[1]}) // good cannot vote
	send(s, evil[0], protocol.ClientMessage{Type: "assassination_vote", Target: evil[1]}) // target outside pool
	require.Empty(t, inspect(t, s).AssassinVotes)
}

func TestLadyOfTheLake_InspectsAndPassesToken(t *testing.T) {
	s, _, _ := newTestSession(t, 5, 0)
	v := startTestGame(t, s)
	require.Equal(t, []int{2, 3, 4}, v.Config.LadyAfterRounds)

	runQuest(t, s, v.Order[:2], nil)
	v = runQuest(t, s, v.Order[:3], nil)
	require.Equal(t, SubphaseLady, v.Subphase)

	holder := v.LadyHolder
	out, _ := attach(t, s, holder, 64)

	// Self-inspection is not a move.
	send(s, holder, protocol.ClientMessage{Type: "lady_choose", Target: holder})
	require.Equal(t, SubphaseLady, inspect(t, s).Subphase)

	target := v.Order[0]
	send(s, holder, protocol.ClientMessage{Type: "lady_choose", Target: target})

	result := recvTyped(t, out, "lady_result", time.Second)
	require.Equal(t, v.Players[target].Name, result["target"])
	require.Equal(t, string(v.Players[target].Role.Side()), result["loyalty"])

	announce := recvTyped(t, out, "lady_inspect", time.Second)
	require.Equal(t, v.Players[holder].Name, announce["inspector"])
	require.Equal(t, v.Players[target].Name, announce["target"])
	_, hasLoyalty := announce["loyalty"]
	require.False(t, hasLoyalty, "the public announcement must not carry loyalty")

	v = inspect(t, s)
	require.Equal(t, target, v.LadyHolder)
	require.Equal(t, []string{holder, target}, v.LadyHistory)
	require.Equal(t, SubphaseProposal, v.Subphase)
	require.Equal(t, 3, v.Round)
}

func TestLadyOfTheLake_CannotRevisitPastHolder(t *testing.T) {
	s, _, _ := newTestSession(t, 5, 0)
	v := startTestGame(t, s)
	first := v.LadyHolder
	good := bySide(v, game.SideGood)
	evil := bySide(v, game.SideEvil)
	saboteur := map[string]string{evil[0]: protocol.CardFail}

	pick := func(history ...string) string {
		for _, id := range v.Order {
			if !slices.Contains(history, id) {
				return id
			}
		}
		t.Fatalf("no eligible lady target")
		return ""
	}

	// One failed quest keeps good at two wins so the game is still running
	// when the lady triggers a second time.
	runQuest(t, s, []string{evil[0], good[0]}, saboteur)
	runQuest(t, s, good[:3], nil)
	require.Equal(t, SubphaseLady, inspect(t, s).Subphase)

	second := pick(first)
	send(s, first, protocol.ClientMessage{Type: "lady_choose", Target: second})
	require.Equal(t, SubphaseProposal, inspect(t, s).Subphase)

	v3 := runQuest(t, s, []string{evil[0], good[0]}, saboteur)
	require.Equal(t, SubphaseLady, v3.Subphase)
	require.Equal(t, second, v3.LadyHolder)

	// The token never returns to a previous holder.
	send(s, second, protocol.ClientMessage{Type: "lady_choose", Target: first})
	require.Equal(t, SubphaseLady, inspect(t, s).Subphase)

	third := pick(first, second)
	send(s, second, protocol.ClientMessage{Type: "lady_choose", Target: third})
	v3 = inspect(t, s)
	require.Equal(t, SubphaseProposal, v3.Subphase)
	require.Equal(t, third, v3.LadyHolder)
	require.Equal(t, []string{first, second, third}, v3.LadyHistory)
}

func TestSetConfig_RulesAndGates(t *testing.T) {
	s, _, _ := newTestSession(t, 5, 0)

	// Oberon needs a seven-player table.
	send(s, "u1", protocol.ClientMessage{Type: "set_config", Oberon: boolPtr(true)})
	require.False(t, inspect(t, s).Config.Oberon)

	// Morgana and Percival only make sense together.
	send(s, "u1", protocol.ClientMessage{Type: "set_config", Morgana: boolPtr(false)})
	v := inspect(t, s)
	require.True(t, v.Config.Morgana)
	require.True(t, v.Config.Percival)

	send(s, "u1", protocol.ClientMessage{Type: "set_config", Morgana: boolPtr(false), Percival: boolPtr(false)})
	v = inspect(t, s)
	require.False(t, v.Config.Morgana)
	require.False(t, v.Config.Percival)

	// Lady rounds are clamped to 1..5, deduplicated and sorted.
	send(s, "u1", protocol.ClientMessage{Type: "set_config", LadyAfterRounds: []int{0, 3, 3, 6, 2}})
	require.Equal(t, []int{2, 3}, inspect(t, s).Config.LadyAfterRounds)

	// Only the host may touch the config.
	send(s, "u2", protocol.ClientMessage{Type: "set_config", LadyEnabled: boolPtr(false)})
	require.True(t, inspect(t, s).Config.LadyEnabled)
}

func TestSetConfig_OberonAllowedAtSeven(t *testing.T) {
	s, _, _ := newTestSession(t, 7, 0)
	send(s, "u1", protocol.ClientMessage{Type: "set_config", Oberon: boolPtr(true)})
	require.True(t, inspect(t, s).Config.Oberon)
}

func TestSetConfig_IgnoredOnceStarted(t *testing.T) {
	s, _, _ := newTestSession(t, 5, 0)
	startTestGame(t, s)
	send(s, "u1", protocol.ClientMessage{Type: "set_config", LadyEnabled: boolPtr(false)})
	require.True(t, inspect(t, s).Config.LadyEnabled)
}

func TestKickMidGame_DropsPendingBallot(t *testing.T) {
	s, _, _, v := newGameNoLady(t, 5)

	var target string
	for _, id := range v.Order {
		if id != v.HostID {
			target = id
			break
		}
	}

	send(s, v.LeaderID, protocol.ClientMessage{Type: "propose_team", Team: v.Order[:2]})
	send(s, target, protocol.ClientMessage{Type: "vote_team", Approve: boolPtr(true)})
	require.Len(t, inspect(t, s).Votes, 1)

	send(s, v.HostID, protocol.ClientMessage{Type: "kick", Target: target})
	v = inspect(t, s)
	require.NotContains(t, v.Players, target)
	require.Empty(t, v.Votes)
	require.Len(t, v.Order, 4)
}

func TestRestartGame_RequiresFinishedAndHost(t *testing.T) {
	s, _, _, _ := newGameNoLady(t, 5)

	send(s, "u1", protocol.ClientMessage{Type: "restart_game"})
	require.Equal(t, PhaseInGame, inspect(t, s).Phase)

	for i := 0; i < 5; i++ {
		v := inspect(t, s)
		send(s, v.LeaderID, protocol.ClientMessage{Type: "propose_team", Team: v.Order[:2]})
		for _, id := range v.Order {
			send(s, id, protocol.ClientMessage{Type: "vote_team", Approve: boolPtr(false)})
		}
	}
	v := inspect(t, s)
	require.Equal(t, PhaseFinished, v.Phase)

	var notHost string
	for _, id := range v.Order {
		if id != v.HostID {
			notHost = id
			break
		}
	}
	send(s, notHost, protocol.ClientMessage{Type: "restart_game"})
	require.Equal(t, PhaseFinished, inspect(t, s).Phase)

	send(s, v.HostID, protocol.ClientMessage{Type: "restart_game"})
	v = inspect(t, s)
	require.Equal(t, PhaseLobby, v.Phase)
	require.Equal(t, SubphaseNone, v.Subphase)
	require.Zero(t, v.Round)
	require.Empty(t, v.Winner)
	require.Empty(t, v.History)
	require.Empty(t, v.LadyHolder)
	require.False(t, v.StatsRecorded)
	for _, p := range v.Players {
		require.Empty(t, p.Role)
		require.False(t, p.Ready)
	}
}

func TestResetLobby_HostAbandonsGame(t *testing.T) {
	s, _, _, v := newGameNoLady(t, 5)
	send(s, v.HostID, protocol.ClientMessage{Type: "reset_lobby"})
	require.Equal(t, PhaseLobby, inspect(t, s).Phase)
}

func TestStats_RecordedOnlyOnce(t *testing.T) {
	s, _, stats, _ := newGameNoLady(t, 5)
	v := driveToAssassination(t, s)
	evil := bySide(v, game.SideEvil)

	for _, id := range evil {
		send(s, id, protocol.ClientMessage{Type: "assassination_vote", Target: v.AssassinPool[0]})
	}
	require.Equal(t, PhaseFinished, inspect(t, s).Phase)
	require.Equal(t, 5, stats.count())

	// Late messages after the game resolves change nothing.
	for _, id := range evil {
		send(s, id, protocol.ClientMessage{Type: "assassination_vote", Target: v.AssassinPool[0]})
	}
	require.Equal(t, 5, stats.count())
}

func TestKick_AssassinCandidateLeavesPool(t *testing.T) {
	s, _, _, _ := newGameNoLady(t, 5)
	v := driveToAssassination(t, s)
	evil := bySide(v, game.SideEvil)

	var victim string
	for _, id := range v.AssassinPool {
		if id != v.HostID {
			victim = id
			break
		}
	}
	require.NotEmpty(t, victim)

	send(s, v.HostID, protocol.ClientMessage{Type: "kick", Target: victim})
	v2 := inspect(t, s)
	require.Equal(t, PhaseAssassination, v2.Phase)
	require.NotContains(t, v2.AssassinPool, victim)
	require.Len(t, v2.AssassinPool, 2)

	// Ballots naming the removed candidate no longer land.
	for _, id := range evil {
		send(s, id, protocol.ClientMessage{Type: "assassination_vote", Target: victim})
	}
	v2 = inspect(t, s)
	require.Equal(t, PhaseAssassination, v2.Phase)
	require.Empty(t, v2.AssassinVotes)

	// A surviving candidate still resolves the game.
	live := v2.AssassinPool[0]
	for _, id := range evil {
		send(s, id, protocol.ClientMessage{Type: "assassination_vote", Target: live})
	}
	v2 = inspect(t, s)
	require.Equal(t, PhaseFinished, v2.Phase)
	if v2.Players[live].Role == game.RoleMerlin {
		require.Equal(t, game.SideEvil, v2.Winner)
	} else {
		require.Equal(t, game.SideGood, v2.Winner)
	}
}

func TestKick_TeamMemberDuringQuestStillResolves(t *testing.T) {
	s, _, _, v := newGameNoLady(t, 5)

	var team []string
	for _, id := range v.Order {
		if id != v.HostID && len(team) < 2 {
			team = append(team, id)
		}
	}
	send(s, v.LeaderID, protocol.ClientMessage{Type: "propose_team", Team: team})
	approveAll(s, v)

	send(s, team[0], protocol.ClientMessage{Type: "submit_card", Card: protocol.CardSuccess})
	require.Len(t, inspect(t, s).Submissions, 1)

	send(s, v.HostID, protocol.ClientMessage{Type: "kick", Target: team[1]})
	v2 := inspect(t, s)
	require.Equal(t, 1, v2.GoodWins)
	require.Equal(t, 2, v2.Round)
	require.Equal(t, SubphaseProposal, v2.Subphase)
	require.Len(t, v2.History, 1)
	require.True(t, v2.History[0].Success)
}

func TestKick_LeaderPassesLeadershipToNextSeat(t *testing.T) {
	s, _, _, v := newGameNoLady(t, 6)

	// Rotate until the leader is someone the host may kick.
	for inspect(t, s).LeaderID == v.HostID {
		vv := inspect(t, s)
		send(s, vv.LeaderID, protocol.ClientMessage{Type: "propose_team", Team: vv.Order[:2]})
		for _, id := range vv.Order {
			send(s, id, protocol.ClientMessage{Type: "vote_team", Approve: boolPtr(false)})
		}
	}

	vv := inspect(t, s)
	leader := vv.LeaderID
	idx := slices.Index(vv.Order, leader)
	expected := vv.Order[(idx+1)%len(vv.Order)]

	send(s, vv.HostID, protocol.ClientMessage{Type: "kick", Target: leader})
	v2 := inspect(t, s)
	require.Equal(t, expected, v2.LeaderID)
	require.Equal(t, SubphaseProposal, v2.Subphase)

	// The inherited seat can actually lead.
	send(s, expected, protocol.ClientMessage{Type: "propose_team", Team: v2.Order[:2]})
	require.Equal(t, SubphaseVoting, inspect(t, s).Subphase)
}

func TestKick_AbsentVoterCompletesTally(t *testing.T) {
	s, _, _, v := newGameNoLady(t, 5)

	var victim string
	for _, id := range v.Order {
		if id != v.HostID {
			victim = id
			break
		}
	}
	var team []string
	for _, id := range v.Order {
		if id != victim && len(team) < 2 {
			team = append(team, id)
		}
	}

	send(s, v.LeaderID, protocol.ClientMessage{Type: "propose_team", Team: team})
	for _, id := range v.Order {
		if id != victim {
			send(s, id, protocol.ClientMessage{Type: "vote_team", Approve: boolPtr(true)})
		}
	}
	require.Equal(t, SubphaseVoting, inspect(t, s).Subphase)

	send(s, v.HostID, protocol.ClientMessage{Type: "kick", Target: victim})
	v2 := inspect(t, s)
	require.Equal(t, SubphaseQuest, v2.Subphase)
	require.Equal(t, 0, v2.Rejections)
}

func TestKick_TeamMemberDuringVotingRestartsProposal(t *testing.T) {
	s, _, _, v := newGameNoLady(t, 5)

	var team []string
	for _, id := range v.Order {
		if id != v.HostID && len(team) < 2 {
			team = append(team, id)
		}
	}
	send(s, v.LeaderID, protocol.ClientMessage{Type: "propose_team", Team: team})
	send(s, team[0], protocol.ClientMessage{Type: "vote_team", Approve: boolPtr(true)})
	send(s, v.HostID, protocol.ClientMessage{Type: "vote_team", Approve: boolPtr(true)})

	send(s, v.HostID, protocol.ClientMessage{Type: "kick", Target: team[0]})
	v2 := inspect(t, s)
	require.Equal(t, SubphaseProposal, v2.Subphase)
	require.Empty(t, v2.Team)
	require.Empty(t, v2.Votes)
}

func TestKick_LadyHolderPassesToken(t *testing.T) {
	s, _, _ := newTestSession(t, 5, 0)
	v := startTestGame(t, s)
	first := v.LadyHolder
	good := bySide(v, game.SideGood)
	evil := bySide(v, game.SideEvil)
	saboteur := map[string]string{evil[0]: protocol.CardFail}

	// One failed quest keeps good below three wins through round three.
	runQuest(t, s, []string{evil[0], good[0]}, saboteur)
	runQuest(t, s, good[:3], nil)
	require.Equal(t, SubphaseLady, inspect(t, s).Subphase)

	// Hand the token to a seat the host is allowed to kick later.
	var target string
	for _, id := range v.Order {
		if id != first && id != v.HostID {
			target = id
			break
		}
	}
	send(s, first, protocol.ClientMessage{Type: "lady_choose", Target: target})
	require.Equal(t, SubphaseProposal, inspect(t, s).Subphase)

	v2 := runQuest(t, s, v.Order[:2], nil)
	require.Equal(t, SubphaseLady, v2.Subphase)
	require.Equal(t, target, v2.LadyHolder)

	send(s, v2.HostID, protocol.ClientMessage{Type: "kick", Target: target})
	v2 = inspect(t, s)
	require.Equal(t, SubphaseLady, v2.Subphase)
	require.NotEmpty(t, v2.LadyHolder)
	require.NotEqual(t, target, v2.LadyHolder)
	require.Contains(t, v2.LadyHistory, v2.LadyHolder)

	// The inherited token still works, and still honors past holders.
	send(s, v2.LadyHolder, protocol.ClientMessage{Type: "lady_choose", Target: first})
	require.Equal(t, SubphaseLady, inspect(t, s).Subphase)

	var fresh string
	for _, id := range v2.Order {
		if id != v2.LadyHolder && !slices.Contains(v2.LadyHistory, id) {
			fresh = id
			break
		}
	}
	require.NotEmpty(t, fresh)
	send(s, v2.LadyHolder, protocol.ClientMessage{Type: "lady_choose", Target: fresh})
	v2 = inspect(t, s)
	require.Equal(t, SubphaseProposal, v2.Subphase)
	require.Equal(t, fresh, v2.LadyHolder)
}

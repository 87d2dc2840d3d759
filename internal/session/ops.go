package session

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/avalonline/avalon-backend/internal/game"
	"github.com/avalonline/avalon-backend/internal/protocol"
)

// dispatch routes one client message to its operation. Unknown types and
// messages from non-members are dropped. Every operation no-ops silently
// when its precondition fails: clients race against server-driven
// transitions, and a stale action is not an error.
func (s *Session) dispatch(userID string, m protocol.ClientMessage) {
	if _, ok := s.players[userID]; !ok {
		return
	}
	switch m.Type {
	case "toggle_ready":
		s.toggleReady(userID)
	case "kick":
		s.kick(userID, m.Target)
	case "start_game":
		s.startGame(userID)
	case "propose_team":
		s.proposeTeam(userID, m.Team)
	case "vote_team":
		s.voteTeam(userID, m.Approve != nil && *m.Approve)
	case "submit_card":
		s.submitCard(userID, m.Card)
	case "assassination_vote", "assassin_guess": // legacy alias
		s.assassinationVote(userID, m.Target)
	case "set_config":
		s.setConfig(userID, m)
	case "restart_game":
		s.restartGame(userID)
	case "reset_lobby":
		s.resetLobby(userID)
	case "lady_choose":
		s.ladyChoose(userID, m.Target)
	}
}

func (s *Session) toggleReady(userID string) {
	p := s.players[userID]
	p.Ready = !p.Ready
	s.broadcastState()
}

func (s *Session) kick(userID, targetID string) {
	if userID != s.hostID || targetID == userID {
		return
	}
	target, ok := s.players[targetID]
	if !ok {
		return
	}
	if c, ok := s.conns[targetID]; ok {
		s.trySend(targetID, c, mustMarshal(protocol.KickedMessage{Type: "kicked", Target: targetID}))
		c.close(protocol.CloseKicked, "kicked by host")
		close(c.out)
		delete(s.conns, targetID)
	}
	// The kicked announcement goes out before removal so it precedes any
	// quest_result the removal may force.
	s.broadcast(mustMarshal(protocol.KickedMessage{Type: "kicked", Target: targetID}))
	s.removePlayer(targetID)
	s.log.Info("player kicked", zap.String("user", target.UserID))
	s.broadcastState()
	s.publishSummary()
}

// removePlayer drops a player together with every piece of open state that
// references them: pending ballots, the proposed team, the assassin pool and
// ballots naming them, leadership and the lady token. Open tallies are then
// re-checked so a removal never leaves a phase waiting on input that can no
// longer arrive.
func (s *Session) removePlayer(userID string) {
	wasOnTeam := slices.Contains(s.team, userID)
	wasLeader := userID == s.leaderID
	wasHolder := userID == s.ladyHolder
	successor := ""
	if i := slices.Index(s.order, userID); i >= 0 && len(s.order) > 1 {
		successor = s.order[(i+1)%len(s.order)]
	}

	delete(s.players, userID)
	delete(s.disconnected, userID)
	delete(s.votes, userID)
	delete(s.subs, userID)
	delete(s.assassinVotes, userID)
	for voter, target := range s.assassinVotes {
		if target == userID {
			delete(s.assassinVotes, voter)
		}
	}
	if i := slices.Index(s.order, userID); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
	if i := slices.Index(s.team, userID); i >= 0 {
		s.team = slices.Delete(s.team, i, i+1)
	}
	if i := slices.Index(s.assassinPool, userID); i >= 0 {
		s.assassinPool = slices.Delete(s.assassinPool, i, i+1)
	}
	if userID == s.hostID && len(s.order) > 0 {
		s.hostID = s.order[0]
	}
	if wasLeader {
		s.leaderID = successor
	}
	if wasHolder {
		s.ladyHolder = s.nextLadyHolder(successor)
		if s.ladyHolder != "" && !slices.Contains(s.ladyHistory, s.ladyHolder) {
			s.ladyHistory = append(s.ladyHistory, s.ladyHolder)
		}
	}
	s.resumeAfterRemoval(wasOnTeam)
}

// nextLadyHolder walks the seating order from candidate looking for a seat
// the token has not visited yet.
func (s *Session) nextLadyHolder(candidate string) string {
	start := slices.Index(s.order, candidate)
	if start < 0 {
		return ""
	}
	for i := 0; i < len(s.order); i++ {
		id := s.order[(start+i)%len(s.order)]
		if !slices.Contains(s.ladyHistory, id) {
			return id
		}
	}
	return ""
}

// resumeAfterRemoval re-checks whatever the current subphase is waiting on.
func (s *Session) resumeAfterRemoval(wasOnTeam bool) {
	if s.phase == PhaseLobby || s.phase == PhaseFinished {
		return
	}
	switch s.subphase {
	case SubphaseVoting:
		if wasOnTeam {
			// The proposal no longer has its approved size; the leader
			// proposes again.
			s.team = nil
			s.votes = map[string]bool{}
			s.proposerID = ""
			s.subphase = SubphaseProposal
			return
		}
		if len(s.votes) >= len(s.players) {
			s.resolveVotes()
		}
	case SubphaseQuest:
		if len(s.team) == 0 {
			s.votes = map[string]bool{}
			s.subphase = SubphaseProposal
			return
		}
		if len(s.subs) >= len(s.team) {
			s.resolveMission()
		}
	case SubphaseLady:
		if s.ladyHolder == "" {
			s.subphase = SubphaseProposal
		}
	case SubphaseAssassination:
		s.resolveAssassination()
	}
}

func (s *Session) allReady() bool {
	if len(s.players) < 5 {
		return false
	}
	for _, p := range s.players {
		if !p.Ready {
			return false
		}
	}
	return true
}

func (s *Session) startGame(userID string) {
	if userID != s.hostID || s.phase != PhaseLobby || !s.allReady() {
		return
	}

	// Seating is randomized exactly once per game; leader rotation and the
	// Lady token both walk this order.
	s.rng.Shuffle(len(s.order), func(i, j int) {
		s.order[i], s.order[j] = s.order[j], s.order[i]
	})
	deck := game.BuildDeck(len(s.order), s.cfg, s.rng)
	for i, id := range s.order {
		s.players[id].Role = deck[i]
	}

	s.phase = PhaseInGame
	s.subphase = SubphaseProposal
	s.leaderID = s.order[0]
	s.proposerID = ""
	s.round = 1
	s.goodWins = 0
	s.evilWins = 0
	s.rejections = 0
	s.team = nil
	s.votes = map[string]bool{}
	s.subs = map[string]string{}
	s.history = nil
	s.winner = ""
	s.assassinPool = nil
	s.assassinVotes = map[string]string{}
	s.statsRecorded = false
	if s.cfg.LadyEnabled {
		s.ladyHolder = s.order[len(s.order)-1]
		s.ladyHistory = []string{s.ladyHolder}
	} else {
		s.ladyHolder = ""
		s.ladyHistory = nil
	}

	for _, id := range s.order {
		s.sendPrivateInfo(id)
	}
	s.publishSummary()
	s.broadcastState()
}

func (s *Session) proposeTeam(userID string, team []string) {
	if s.subphase != SubphaseProposal || s.leaderID != userID {
		return
	}
	required := game.TeamSize(len(s.players), s.round)
	if len(team) != required {
		return
	}
	seen := make(map[string]struct{}, len(team))
	for _, id := range team {
		if _, ok := s.players[id]; !ok {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
	}
	s.team = append([]string(nil), team...)
	s.proposerID = userID
	s.subphase = SubphaseVoting
	s.votes = map[string]bool{}
	s.broadcastState()
}

func (s *Session) voteTeam(userID string, approve bool) {
	if s.subphase != SubphaseVoting {
		return
	}
	s.votes[userID] = approve // last write per player wins
	if len(s.votes) < len(s.players) {
		s.broadcastState()
		return
	}
	s.resolveVotes()
	s.broadcastState()
}

func (s *Session) resolveVotes() {
	if game.MajorityApproved(s.votes) {
		s.subphase = SubphaseQuest
		s.rejections = 0
		s.subs = map[string]string{}
		return
	}
	s.rejections++
	if s.rejections >= 5 {
		s.phase = PhaseFinished
		s.winner = game.SideEvil
		s.recordOutcome()
		s.publishSummary()
		return
	}
	s.rotateLeader()
	s.subphase = SubphaseProposal
}

func (s *Session) submitCard(userID, card string) {
	if s.subphase != SubphaseQuest || !slices.Contains(s.team, userID) {
		return
	}
	if card != protocol.CardSuccess && card != protocol.CardFail {
		return
	}
	// Good roles cannot sabotage. Enforced, not advisory.
	if s.players[userID].Role.IsGood() && card == protocol.CardFail {
		return
	}
	s.subs[userID] = card
	if len(s.subs) < len(s.team) {
		s.broadcastState()
		return
	}
	s.resolveMission()
	s.broadcastState()
}

func (s *Session) resolveMission() {
	fails := 0
	for _, c := range s.subs {
		if c == protocol.CardFail {
			fails++
		}
	}
	success := fails < game.FailThreshold(len(s.players), s.round)
	if success {
		s.goodWins++
	} else {
		s.evilWins++
	}

	entry := protocol.QuestRecord{
		Round:   s.round,
		Team:    s.names(s.team),
		Votes:   s.namedVotes(),
		Fails:   fails,
		Success: success,
	}
	if p, ok := s.players[s.proposerID]; ok {
		entry.Proposer = p.Name
	}
	if p, ok := s.players[s.leaderID]; ok {
		entry.Leader = p.Name
	}

	s.subs = map[string]string{}
	s.team = nil
	s.votes = map[string]bool{}
	s.proposerID = ""

	switch {
	case s.goodWins >= 3:
		s.phase = PhaseAssassination
		s.subphase = SubphaseAssassination
		s.assassinPool = nil
		for _, id := range s.order {
			if s.players[id].Role.IsGood() {
				s.assassinPool = append(s.assassinPool, id)
			}
		}
		s.assassinVotes = map[string]string{}
		s.publishSummary()

	case s.evilWins >= 3:
		s.phase = PhaseFinished
		s.winner = game.SideEvil
		s.recordOutcome()
		s.publishSummary()

	default:
		completed := s.round
		s.round++
		s.rotateLeader()
		if p, ok := s.players[s.leaderID]; ok {
			entry.NextLeader = p.Name
		}
		if s.cfg.LadyEnabled && slices.Contains(s.cfg.LadyAfterRounds, completed) && s.ladyHolder != "" {
			s.subphase = SubphaseLady
		} else {
			s.subphase = SubphaseProposal
		}
	}

	s.history = append(s.history, entry)
	s.broadcast(mustMarshal(protocol.QuestResultMessage{Type: "quest_result", Data: entry}))
}

func (s *Session) assassinationVote(userID, targetID string) {
	if s.phase != PhaseAssassination {
		return
	}
	if !s.players[userID].Role.IsEvil() {
		return
	}
	if !slices.Contains(s.assassinPool, targetID) {
		return
	}
	s.assassinVotes[userID] = targetID // overwrite: latest vote counts
	s.resolveAssassination()
	s.broadcastState()
}

func (s *Session) resolveAssassination() {
	if s.phase != PhaseAssassination {
		return
	}
	evil := 0
	for _, p := range s.players {
		if p.Role.IsEvil() {
			evil++
		}
	}
	// With no assassins or no candidates left the guess can never name
	// Merlin; the three won quests stand.
	if evil == 0 || len(s.assassinPool) == 0 {
		s.winner = game.SideGood
		s.phase = PhaseFinished
		s.recordOutcome()
		s.publishSummary()
		return
	}
	if len(s.assassinVotes) < evil {
		return
	}

	counts := map[string]int{}
	for _, t := range s.assassinVotes {
		counts[t]++
	}
	maxVotes := 0
	for _, n := range counts {
		if n > maxVotes {
			maxVotes = n
		}
	}
	var top []string
	for _, id := range s.assassinPool {
		if counts[id] == maxVotes {
			top = append(top, id)
		}
	}

	if len(top) == 1 {
		target, ok := s.players[top[0]]
		if !ok {
			return
		}
		if target.Role == game.RoleMerlin {
			s.winner = game.SideEvil
		} else {
			s.winner = game.SideGood
		}
		s.phase = PhaseFinished
		s.recordOutcome()
		s.publishSummary()
		return
	}

	// True tie: the pool strictly shrinks to the tied targets and the evil
	// side votes again.
	s.assassinPool = top
	s.assassinVotes = map[string]string{}
	s.broadcast(mustMarshal(protocol.AssassinationTieMessage{
		Type:       "assassination_tie",
		Candidates: s.names(top),
	}))
}

func (s *Session) ladyChoose(userID, targetID string) {
	if s.subphase != SubphaseLady || s.ladyHolder != userID {
		return
	}
	target, ok := s.players[targetID]
	if !ok || targetID == userID || slices.Contains(s.ladyHistory, targetID) {
		return
	}

	if c, ok := s.conns[userID]; ok {
		s.trySend(userID, c, mustMarshal(protocol.LadyResultMessage{
			Type:    "lady_result",
			Target:  target.Name,
			Loyalty: string(target.Role.Side()),
		}))
	}
	s.broadcast(mustMarshal(protocol.LadyInspectMessage{
		Type:      "lady_inspect",
		Inspector: s.players[userID].Name,
		Target:    target.Name,
	}))

	s.ladyHolder = targetID
	s.ladyHistory = append(s.ladyHistory, targetID)
	s.subphase = SubphaseProposal
	s.broadcastState()
}

func (s *Session) setConfig(userID string, m protocol.ClientMessage) {
	if s.phase != PhaseLobby || userID != s.hostID {
		return
	}
	cfg := s.cfg
	if m.Morgana != nil {
		cfg.Morgana = *m.Morgana
	}
	if m.Percival != nil {
		cfg.Percival = *m.Percival
	}
	if m.Oberon != nil {
		cfg.Oberon = *m.Oberon
	}
	if len(s.players) < 7 {
		cfg.Oberon = false
	}
	// Morgana only matters opposite Percival; the pair toggles together.
	if cfg.Morgana != cfg.Percival {
		both := cfg.Morgana || cfg.Percival
		cfg.Morgana = both
		cfg.Percival = both
	}
	if m.LadyEnabled != nil {
		cfg.LadyEnabled = *m.LadyEnabled
	}
	if m.LadyAfterRounds != nil {
		var rounds []int
		for _, r := range m.LadyAfterRounds {
			if r >= 1 && r <= 5 && !slices.Contains(rounds, r) {
				rounds = append(rounds, r)
			}
		}
		if len(rounds) > 0 {
			slices.Sort(rounds)
			cfg.LadyAfterRounds = rounds
		}
	}
	s.cfg = cfg
	s.broadcastState()
}

func (s *Session) restartGame(userID string) {
	if s.phase != PhaseFinished || userID != s.hostID {
		return
	}
	s.resetToLobby()
	s.broadcastState()
	s.publishSummary()
}

func (s *Session) resetLobby(userID string) {
	if userID != s.hostID {
		return
	}
	s.resetToLobby()
	s.broadcastState()
	s.publishSummary()
}

func (s *Session) resetToLobby() {
	for _, p := range s.players {
		p.Ready = false
		p.Role = ""
	}
	s.phase = PhaseLobby
	s.subphase = SubphaseNone
	s.round = 0
	s.goodWins = 0
	s.evilWins = 0
	s.leaderID = ""
	s.proposerID = ""
	s.team = nil
	s.votes = map[string]bool{}
	s.subs = map[string]string{}
	s.rejections = 0
	s.winner = ""
	s.history = nil
	s.assassinPool = nil
	s.assassinVotes = map[string]string{}
	s.ladyHolder = ""
	s.ladyHistory = nil
	s.statsRecorded = false
}

func (s *Session) rotateLeader() {
	i := slices.Index(s.order, s.leaderID)
	if i < 0 {
		s.leaderID = s.order[0]
		return
	}
	s.leaderID = s.order[(i+1)%len(s.order)]
}

// recordOutcome pushes the finished game to the stats collaborator, at most
// once per game per player. The guard flips before any write, so a failing
// collaborator can never double-count; failures are logged and dropped.
func (s *Session) recordOutcome() {
	if s.statsRecorded || s.phase != PhaseFinished || s.winner == "" {
		return
	}
	s.statsRecorded = true
	if s.stats == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, id := range s.order {
		p := s.players[id]
		if p.Role == "" {
			continue
		}
		wins, err := s.stats.RecordOutcome(ctx, p.UserID, p.Role, s.winner)
		if err != nil {
			s.log.Error("stats write failed", zap.String("user", p.UserID), zap.Error(err))
			continue
		}
		p.Wins = wins
	}
}

func (s *Session) names(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.players[id]; ok {
			out = append(out, p.Name)
		}
	}
	return out
}

func (s *Session) namedVotes() map[string]bool {
	out := make(map[string]bool, len(s.votes))
	for id, v := range s.votes {
		if p, ok := s.players[id]; ok {
			out[p.Name] = v
		}
	}
	return out
}

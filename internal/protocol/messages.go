// Package protocol defines the JSON wire format shared with the web client.
// Field names and close codes are frozen; the deployed frontend depends on
// them.
package protocol

import "github.com/avalonline/avalon-backend/internal/game"

// WebSocket close codes at the protocol boundary.
const (
	CloseBadAuth        = 4000 // missing or malformed auth token
	CloseBadCredentials = 4001 // credentials did not match an account
	CloseNotMember      = 4002 // room not found, or caller not a member
	CloseKicked         = 4002 // host kick shares the not-member code
	CloseSuperseded     = 4003 // replaced by a newer connection
)

// ClientMessage is the single inbound envelope. Type selects the operation;
// the remaining fields are populated per type and ignored otherwise.
// Pointer fields distinguish "absent" from zero for config merges.
type ClientMessage struct {
	Type    string   `json:"type"`
	Target  string   `json:"target,omitempty"`
	Team    []string `json:"team,omitempty"`
	Approve *bool    `json:"approve,omitempty"`
	Card    string   `json:"card,omitempty"`

	// set_config
	Morgana         *bool `json:"morgana,omitempty"`
	Percival        *bool `json:"percival,omitempty"`
	Oberon          *bool `json:"oberon,omitempty"`
	LadyEnabled     *bool `json:"lady_enabled,omitempty"`
	LadyAfterRounds []int `json:"lady_after_rounds,omitempty"`
}

// Mission card values.
const (
	CardSuccess = "S"
	CardFail    = "F"
)

type PlayerState struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Role   string `json:"role,omitempty"`
	Wins   int    `json:"wins"`
}

type QuestRecord struct {
	Round      int             `json:"round"`
	Team       []string        `json:"team"`
	Votes      map[string]bool `json:"votes"`
	Fails      int             `json:"fails"`
	Success    bool            `json:"success"`
	Proposer   string          `json:"proposer,omitempty"`
	Leader     string          `json:"leader,omitempty"`
	NextLeader string          `json:"next_leader,omitempty"`
}

// RoomState is the full per-recipient snapshot. Identical for every
// recipient except player roles (hidden for others until the game finishes),
// the round-leader projection and the assassination-phase evil roster.
type RoomState struct {
	RoomID                string            `json:"room_id"`
	HostID                string            `json:"host_id"`
	Players               []PlayerState     `json:"players"`
	Phase                 string            `json:"phase"`
	QuestHistory          []QuestRecord     `json:"quest_history"`
	CurrentLeader         string            `json:"current_leader,omitempty"`
	ConsecutiveRejections int               `json:"consecutive_rejections"`
	Config                game.Config       `json:"config"`
	RoundNumber           int               `json:"round_number"`
	GoodWins              int               `json:"good_wins"`
	EvilWins              int               `json:"evil_wins"`
	Subphase              string            `json:"subphase,omitempty"`
	CurrentTeam           []string          `json:"current_team"`
	Votes                 map[string]bool   `json:"votes"`
	Winner                string            `json:"winner,omitempty"`
	Submissions           map[string]string `json:"submissions"`
	ProposalLeader        string            `json:"proposal_leader,omitempty"`
	RoundLeaders          []string          `json:"round_leaders"`
	AssassinCandidates    []string          `json:"assassin_candidates"`
	EvilPlayers           []string          `json:"evil_players"`
	AssassinVotes         map[string]string `json:"assassin_votes"`
	LadyHolder            string            `json:"lady_holder,omitempty"`
	LadyHistory           []string          `json:"lady_history"`
	LadyAfterRounds       []int             `json:"lady_after_rounds"`
}

type StateMessage struct {
	Type string    `json:"type"` // "state"
	Data RoomState `json:"data"`
}

type InfoMessage struct {
	Type          string   `json:"type"` // "info"
	MerlinKnows   []string `json:"merlin_knows,omitempty"`
	PercivalKnows []string `json:"percival_knows,omitempty"`
	Evil          []string `json:"evil,omitempty"`
}

type QuestResultMessage struct {
	Type string      `json:"type"` // "quest_result"
	Data QuestRecord `json:"data"`
}

type AssassinationTieMessage struct {
	Type       string   `json:"type"` // "assassination_tie"
	Candidates []string `json:"candidates"`
}

type LadyResultMessage struct {
	Type    string `json:"type"` // "lady_result", private to the holder
	Target  string `json:"target"`
	Loyalty string `json:"loyalty"`
}

type LadyInspectMessage struct {
	Type      string `json:"type"` // "lady_inspect", no loyalty
	Inspector string `json:"inspector"`
	Target    string `json:"target"`
}

type KickedMessage struct {
	Type   string `json:"type"` // "kicked"
	Target string `json:"target,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type PauseMessage struct {
	Type    string   `json:"type"` // "pause"
	Players []string `json:"players"`
}

type LobbySummary struct {
	RoomID           string `json:"room_id"`
	HostID           string `json:"host_id"`
	HostName         string `json:"host_name"`
	PlayerCount      int    `json:"player_count"`
	RequiresPassword bool   `json:"requires_password"`
	Member           bool   `json:"member"`
	Phase            string `json:"phase"`
}

type LobbiesMessage struct {
	Type string         `json:"type"` // "lobbies"
	Data []LobbySummary `json:"data"`
}

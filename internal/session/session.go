// Package session implements one running game instance as an actor: a single
// goroutine owns all mutable state and processes typed inbox messages, so
// operations on the same session never interleave. Connections hand the
// actor an outbox channel; all sends are non-blocking and best-effort.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/avalonline/avalon-backend/internal/game"
	"github.com/avalonline/avalon-backend/internal/protocol"
)

var (
	ErrNotMember      = errors.New("not a member of this room")
	ErrGameStarted    = errors.New("game already started")
	ErrBadPassword    = errors.New("incorrect or missing room password")
	ErrAlreadyMember  = errors.New("already a member")
	ErrAlreadyHosting = errors.New("host already has an active lobby")
)

type Phase string

const (
	PhaseLobby         Phase = "lobby"
	PhaseInGame        Phase = "in_game"
	PhaseAssassination Phase = "assassination"
	PhaseFinished      Phase = "finished"
)

type Subphase string

const (
	SubphaseNone          Subphase = ""
	SubphaseProposal      Subphase = "proposal"
	SubphaseVoting        Subphase = "voting"
	SubphaseQuest         Subphase = "quest"
	SubphaseLady          Subphase = "lady"
	SubphaseAssassination Subphase = "assassination"
)

type Player struct {
	UserID string
	Name   string
	Ready  bool
	Role   game.Role
	Wins   int
}

// StatsRecorder is the external stats collaborator. RecordOutcome returns
// the player's new aggregate win total so the roster can be refreshed.
type StatsRecorder interface {
	RecordOutcome(ctx context.Context, userID string, role game.Role, winner game.Side) (int, error)
}

// Summary is what a session pushes to the lobby feed whenever its phase or
// membership changes.
type Summary struct {
	RoomID           string
	HostID           string
	HostName         string
	PlayerCount      int
	RequiresPassword bool
	Phase            Phase
	Members          []string
}

// SummaryFeed receives session summary updates and removals. Implementations
// must not block: the session actor calls these inline.
type SummaryFeed interface {
	Publish(sum Summary)
	Remove(roomID string)
}

// Outbox carries marshaled server messages to one connection's writer.
type Outbox chan []byte

type conn struct {
	out   Outbox
	close func(code int, reason string)
}

type Msg interface{ isSessionMsg() }

// Attach binds a connection to a member. A previous connection for the same
// member is superseded: it gets a kicked notice and close code 4003.
type Attach struct {
	UserID string
	Out    Outbox
	Close  func(code int, reason string)
	Reply  chan error
}

// Detach reports a closed connection. Out identifies the connection so a
// superseded connection's deferred detach cannot evict its replacement.
type Detach struct {
	UserID string
	Out    Outbox
}

// FromClient dispatches one inbound wire message to the matching operation.
type FromClient struct {
	UserID string
	Msg    protocol.ClientMessage
}

// Join adds a player to the roster (lobby phase only, password-gated).
type Join struct {
	Player   Player
	Password string
	Reply    chan error
}

// Rename syncs a display-name change from the profile store.
type Rename struct {
	UserID string
	Name   string
}

// Inspect replies with a copy of observable state. Test and registry hook.
type Inspect struct{ Reply chan View }

type Shutdown struct{}

// evict fires when the grace timer for a fully disconnected session lapses.
// Stale generations are ignored, mirroring how reconnects cancel eviction.
type evict struct{ gen int }

func (Attach) isSessionMsg()     {}
func (Detach) isSessionMsg()     {}
func (FromClient) isSessionMsg() {}
func (Join) isSessionMsg()       {}
func (Rename) isSessionMsg()     {}
func (Inspect) isSessionMsg()    {}
func (Shutdown) isSessionMsg()   {}
func (evict) isSessionMsg()      {}

// View is a race-free copy of session state for tests and diagnostics.
type View struct {
	RoomID        string
	HostID        string
	Phase         Phase
	Subphase      Subphase
	Round         int
	GoodWins      int
	EvilWins      int
	Rejections    int
	LeaderID      string
	ProposerID    string
	Winner        game.Side
	Order         []string
	Players       map[string]Player
	Team          []string
	Votes         map[string]bool
	Submissions   map[string]string
	AssassinPool  []string
	AssassinVotes map[string]string
	LadyHolder    string
	LadyHistory   []string
	History       []protocol.QuestRecord
	Config        game.Config
	NumConns      int
	Disconnected  []string
	StatsRecorded bool
}

type Params struct {
	RoomID   string
	Host     Player
	Password string
	Grace    time.Duration
	Stats    StatsRecorder
	Feed     SummaryFeed
	Log      *zap.Logger
	Rand     *rand.Rand // optional; tests inject a seeded source
}

type Session struct {
	inbox  chan Msg
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
	stats  StatsRecorder
	feed   SummaryFeed
	grace  time.Duration
	rng    *rand.Rand

	roomID   string
	hostID   string
	password string

	order   []string
	players map[string]*Player
	cfg     game.Config

	phase      Phase
	subphase   Subphase
	round      int
	goodWins   int
	evilWins   int
	leaderID   string
	proposerID string
	team       []string
	votes      map[string]bool
	subs       map[string]string
	rejections int
	winner     game.Side
	history    []protocol.QuestRecord

	assassinPool  []string
	assassinVotes map[string]string

	ladyHolder  string
	ladyHistory []string

	conns         map[string]*conn
	disconnected  map[string]struct{}
	evictGen      int
	statsRecorded bool
}

func New(parent context.Context, p Params) *Session {
	ctx, cancel := context.WithCancel(parent)
	if p.Rand == nil {
		p.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if p.Log == nil {
		p.Log = zap.NewNop()
	}
	if p.Grace <= 0 {
		p.Grace = 5 * time.Minute
	}

	host := p.Host
	s := &Session{
		inbox:  make(chan Msg, 64),
		ctx:    ctx,
		cancel: cancel,
		log:    p.Log.With(zap.String("room", p.RoomID)),
		stats:  p.Stats,
		feed:   p.Feed,
		grace:  p.Grace,
		rng:    p.Rand,

		roomID:   p.RoomID,
		hostID:   host.UserID,
		password: p.Password,
		order:    []string{host.UserID},
		players:  map[string]*Player{host.UserID: &host},
		cfg:      game.DefaultConfig(),

		phase:         PhaseLobby,
		votes:         map[string]bool{},
		subs:          map[string]string{},
		assassinVotes: map[string]string{},
		conns:         map[string]*conn{},
		disconnected:  map[string]struct{}{},
	}

	go s.loop()
	return s
}

func (s *Session) Inbox() chan<- Msg     { return s.inbox }
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }
func (s *Session) ID() string            { return s.roomID }

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				msg.Reply <- s.join(msg.Player, msg.Password)

			case Attach:
				msg.Reply <- s.attach(msg.UserID, msg.Out, msg.Close)

			case Detach:
				if s.detach(msg.UserID, msg.Out) {
					s.shutdown()
					return
				}

			case FromClient:
				s.dispatch(msg.UserID, msg.Msg)

			case Rename:
				s.rename(msg.UserID, msg.Name)

			case Inspect:
				msg.Reply <- s.view()

			case evict:
				if msg.gen == s.evictGen && len(s.conns) == 0 {
					s.log.Info("evicting abandoned session")
					s.feed.Remove(s.roomID)
					s.shutdown()
					return
				}

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) shutdown() {
	for id, c := range s.conns {
		close(c.out)
		delete(s.conns, id)
	}
	s.cancel()
}

func (s *Session) join(p Player, password string) error {
	if _, ok := s.players[p.UserID]; ok {
		return nil // rejoining members skip the gate
	}
	if p.UserID != s.hostID && !s.checkPassword(password) {
		return ErrBadPassword
	}
	if s.phase != PhaseLobby {
		return ErrGameStarted
	}
	s.players[p.UserID] = &p
	s.order = append(s.order, p.UserID)
	s.broadcastState()
	s.publishSummary()
	return nil
}

func (s *Session) checkPassword(attempt string) bool {
	return s.password == "" || s.password == attempt
}

func (s *Session) attach(userID string, out Outbox, closeFn func(int, string)) error {
	if _, ok := s.players[userID]; !ok {
		return ErrNotMember
	}

	if prev, ok := s.conns[userID]; ok {
		s.trySend(userID, prev, mustMarshal(protocol.KickedMessage{
			Type: "kicked", Reason: "Logged in elsewhere",
		}))
		prev.close(protocol.CloseSuperseded, "logged in elsewhere")
		close(prev.out)
	}
	s.conns[userID] = &conn{out: out, close: closeFn}

	if _, was := s.disconnected[userID]; was {
		delete(s.disconnected, userID)
		s.broadcastPause()
	}

	// Any successful attach cancels a pending eviction.
	s.evictGen++

	s.broadcastState()
	s.sendPrivateInfo(userID)
	return nil
}

// detach reports whether the session tore itself down.
func (s *Session) detach(userID string, out Outbox) bool {
	c, ok := s.conns[userID]
	if !ok || c.out != out {
		return false // stale detach from a superseded connection
	}
	delete(s.conns, userID)

	if p, ok := s.players[userID]; ok && s.phase == PhaseLobby {
		p.Ready = false
	}
	if s.phase != PhaseLobby {
		s.disconnected[userID] = struct{}{}
		s.broadcastPause()
	}
	s.broadcastState()

	if len(s.conns) > 0 {
		return false
	}
	if s.phase == PhaseLobby {
		s.feed.Remove(s.roomID)
		return true
	}
	s.armEviction()
	return false
}

func (s *Session) armEviction() {
	s.evictGen++
	gen := s.evictGen
	time.AfterFunc(s.grace, func() {
		select {
		case s.inbox <- evict{gen: gen}:
		case <-s.ctx.Done():
		}
	})
}

func (s *Session) rename(userID, name string) {
	p, ok := s.players[userID]
	if !ok {
		return
	}
	p.Name = name
	s.broadcastState()
	s.publishSummary()
}

// trySend queues payload for one connection without blocking. A full outbox
// means the writer is stuck or gone; the connection is dropped and the
// broadcast carries on for everyone else.
func (s *Session) trySend(userID string, c *conn, payload []byte) bool {
	select {
	case c.out <- payload:
		return true
	default:
		s.log.Warn("dropping unresponsive connection", zap.String("user", userID))
		return false
	}
}

func (s *Session) broadcast(payload []byte) {
	var dead []string
	for id, c := range s.conns {
		if !s.trySend(id, c, payload) {
			dead = append(dead, id)
		}
	}
	s.dropConns(dead)
}

func (s *Session) dropConns(ids []string) {
	for _, id := range ids {
		c := s.conns[id]
		close(c.out)
		delete(s.conns, id)
		if s.phase != PhaseLobby {
			s.disconnected[id] = struct{}{}
		}
	}
}

func (s *Session) broadcastPause() {
	names := make([]string, 0, len(s.disconnected))
	for _, id := range s.order {
		if _, ok := s.disconnected[id]; ok {
			names = append(names, s.players[id].Name)
		}
	}
	s.broadcast(mustMarshal(protocol.PauseMessage{Type: "pause", Players: names}))
}

func (s *Session) broadcastState() {
	var dead []string
	for id, c := range s.conns {
		ok := s.trySend(id, c, mustMarshal(protocol.StateMessage{
			Type: "state",
			Data: s.snapshotFor(id),
		}))
		if !ok {
			dead = append(dead, id)
		}
	}
	s.dropConns(dead)
}

func (s *Session) sendPrivateInfo(userID string) {
	p, ok := s.players[userID]
	if !ok || p.Role == "" {
		return
	}
	c, ok := s.conns[userID]
	if !ok {
		return
	}
	info := game.InfoFor(s.seats(), userID)
	if info.Empty() {
		return
	}
	s.trySend(userID, c, mustMarshal(protocol.InfoMessage{
		Type:          "info",
		MerlinKnows:   info.MerlinKnows,
		PercivalKnows: info.PercivalKnows,
		Evil:          info.Evil,
	}))
}

func (s *Session) seats() []game.Seat {
	seats := make([]game.Seat, 0, len(s.order))
	for _, id := range s.order {
		p := s.players[id]
		seats = append(seats, game.Seat{ID: p.UserID, Name: p.Name, Role: p.Role})
	}
	return seats
}

func (s *Session) publishSummary() {
	host := s.players[s.hostID]
	hostName := "Unknown"
	if host != nil {
		hostName = host.Name
	}
	s.feed.Publish(Summary{
		RoomID:           s.roomID,
		HostID:           s.hostID,
		HostName:         hostName,
		PlayerCount:      len(s.players),
		RequiresPassword: s.password != "",
		Phase:            s.phase,
		Members:          append([]string(nil), s.order...),
	})
}

func (s *Session) view() View {
	players := make(map[string]Player, len(s.players))
	for id, p := range s.players {
		players[id] = *p
	}
	disc := make([]string, 0, len(s.disconnected))
	for id := range s.disconnected {
		disc = append(disc, id)
	}
	return View{
		RoomID:        s.roomID,
		HostID:        s.hostID,
		Phase:         s.phase,
		Subphase:      s.subphase,
		Round:         s.round,
		GoodWins:      s.goodWins,
		EvilWins:      s.evilWins,
		Rejections:    s.rejections,
		LeaderID:      s.leaderID,
		ProposerID:    s.proposerID,
		Winner:        s.winner,
		Order:         append([]string(nil), s.order...),
		Players:       players,
		Team:          append([]string(nil), s.team...),
		Votes:         copyMap(s.votes),
		Submissions:   copyMap(s.subs),
		AssassinPool:  append([]string(nil), s.assassinPool...),
		AssassinVotes: copyMap(s.assassinVotes),
		LadyHolder:    s.ladyHolder,
		LadyHistory:   append([]string(nil), s.ladyHistory...),
		History:       append([]protocol.QuestRecord(nil), s.history...),
		Config:        s.cfg,
		NumConns:      len(s.conns),
		Disconnected:  disc,
		StatsRecorded: s.statsRecorded,
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err) // wire types contain nothing unmarshalable
	}
	return b
}

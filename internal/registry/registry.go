// Package registry owns the process-wide room map and the lobby-list
// subscriber set. Like each session, the registry is a single goroutine
// driven by typed inbox messages; sessions push summary updates into it
// whenever their phase or membership changes.
package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avalonline/avalon-backend/internal/protocol"
	"github.com/avalonline/avalon-backend/internal/session"
)

type Msg interface{ isRegistryMsg() }

// CreateRoom builds a new session hosted by Host and replies with it, or
// with an error when the host already has an open lobby.
type CreateRoom struct {
	Host     session.Player
	Password string
	Reply    chan CreateResult
}

type CreateResult struct {
	Room *session.Session
	Err  error
}

type GetRoom struct {
	RoomID string
	Reply  chan *session.Session
}

type RemoveRoom struct{ RoomID string }

// SubscribeLobby registers a lobby-list listener. UserID may be empty for
// anonymous listeners; members additionally see their in-progress rooms.
type SubscribeLobby struct {
	ID     string
	UserID string
	Out    session.Outbox
}

type UnsubscribeLobby struct{ ID string }

// ListRooms replies with the lobby list personalized for UserID.
type ListRooms struct {
	UserID string
	Reply  chan []protocol.LobbySummary
}

// SyncProfile fans a display-name change out to every room.
type SyncProfile struct {
	UserID string
	Name   string
}

type ShutdownRegistry struct{}

type updateSummary struct{ sum session.Summary }

func (CreateRoom) isRegistryMsg()       {}
func (GetRoom) isRegistryMsg()          {}
func (RemoveRoom) isRegistryMsg()       {}
func (SubscribeLobby) isRegistryMsg()   {}
func (UnsubscribeLobby) isRegistryMsg() {}
func (ListRooms) isRegistryMsg()        {}
func (SyncProfile) isRegistryMsg()      {}
func (ShutdownRegistry) isRegistryMsg() {}
func (updateSummary) isRegistryMsg()    {}

type subscriber struct {
	userID string
	out    session.Outbox
}

type Deps struct {
	Stats session.StatsRecorder
	Log   *zap.Logger
	Grace time.Duration
}

type Registry struct {
	inbox     chan Msg
	rooms     map[string]*session.Session
	summaries map[string]session.Summary
	subs      map[string]*subscriber
	deps      Deps
	ctx       context.Context
	cancel    context.CancelFunc
}

func New(parent context.Context, deps Deps) *Registry {
	ctx, cancel := context.WithCancel(parent)
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	r := &Registry{
		inbox:     make(chan Msg, 64),
		rooms:     make(map[string]*session.Session),
		summaries: make(map[string]session.Summary),
		subs:      make(map[string]*subscriber),
		deps:      deps,
		ctx:       ctx,
		cancel:    cancel,
	}
	go r.loop()
	return r
}

func (r *Registry) Inbox() chan<- Msg     { return r.inbox }
func (r *Registry) Done() <-chan struct{} { return r.ctx.Done() }

// Publish implements session.SummaryFeed by forwarding into the actor loop.
// The send never blocks: sessions and the registry post into each other's
// inboxes, so a blocking send here could wedge the two actors against each
// other. A dropped summary is stale by definition; the session's next state
// change publishes a fresh one.
func (r *Registry) Publish(sum session.Summary) {
	select {
	case r.inbox <- updateSummary{sum: sum}:
	case <-r.ctx.Done():
	default:
	}
}

// Remove implements session.SummaryFeed.
func (r *Registry) Remove(roomID string) {
	select {
	case r.inbox <- RemoveRoom{RoomID: roomID}:
	case <-r.ctx.Done():
	}
}

func (r *Registry) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				msg.Reply <- r.createRoom(msg.Host, msg.Password)

			case GetRoom:
				msg.Reply <- r.rooms[msg.RoomID] // may be nil

			case RemoveRoom:
				if sess, ok := r.rooms[msg.RoomID]; ok {
					delete(r.rooms, msg.RoomID)
					delete(r.summaries, msg.RoomID)
					r.stopRoom(sess)
					r.broadcastLobbies()
				}

			case updateSummary:
				r.summaries[msg.sum.RoomID] = msg.sum
				r.broadcastLobbies()

			case SubscribeLobby:
				r.subs[msg.ID] = &subscriber{userID: msg.UserID, out: msg.Out}
				r.push(msg.ID, r.subs[msg.ID])

			case UnsubscribeLobby:
				if sub, ok := r.subs[msg.ID]; ok {
					delete(r.subs, msg.ID)
					close(sub.out)
				}

			case ListRooms:
				msg.Reply <- r.summariesFor(msg.UserID)

			case SyncProfile:
				// Never block the registry on a session inbox; a room too
				// busy to take the rename keeps the old display name.
				for _, sess := range r.rooms {
					select {
					case sess.Inbox() <- session.Rename{UserID: msg.UserID, Name: msg.Name}:
					case <-sess.Done():
					default:
						r.deps.Log.Warn("dropping rename for busy room",
							zap.String("room", sess.ID()))
					}
				}

			case ShutdownRegistry:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Registry) shutdown() {
	// Cancel first: sessions are children of r.ctx, so every sess.Done()
	// below is already closed and stopRoom cannot block.
	r.cancel()
	for id, sess := range r.rooms {
		r.stopRoom(sess)
		delete(r.rooms, id)
	}
	for id, sub := range r.subs {
		close(sub.out)
		delete(r.subs, id)
	}
}

func (r *Registry) stopRoom(sess *session.Session) {
	select {
	case sess.Inbox() <- session.Shutdown{}:
	case <-sess.Done():
	}
}

func (r *Registry) createRoom(host session.Player, password string) CreateResult {
	for _, sum := range r.summaries {
		if sum.HostID == host.UserID && sum.Phase == session.PhaseLobby {
			return CreateResult{Err: session.ErrAlreadyHosting}
		}
	}
	roomID := uuid.NewString()
	sess := session.New(r.ctx, session.Params{
		RoomID:   roomID,
		Host:     host,
		Password: password,
		Grace:    r.deps.Grace,
		Stats:    r.deps.Stats,
		Feed:     r,
		Log:      r.deps.Log,
	})
	r.rooms[roomID] = sess
	r.summaries[roomID] = session.Summary{
		RoomID:           roomID,
		HostID:           host.UserID,
		HostName:         host.Name,
		PlayerCount:      1,
		RequiresPassword: password != "",
		Phase:            session.PhaseLobby,
		Members:          []string{host.UserID},
	}
	r.broadcastLobbies()
	return CreateResult{Room: sess}
}

// summariesFor builds the lobby list one viewer sees: every room still in
// the lobby phase, plus any in-progress room the viewer belongs to.
func (r *Registry) summariesFor(userID string) []protocol.LobbySummary {
	out := []protocol.LobbySummary{}
	for _, sum := range r.summaries {
		member := false
		if userID != "" {
			for _, id := range sum.Members {
				if id == userID {
					member = true
					break
				}
			}
		}
		if sum.Phase != session.PhaseLobby && !member {
			continue
		}
		out = append(out, protocol.LobbySummary{
			RoomID:           sum.RoomID,
			HostID:           sum.HostID,
			HostName:         sum.HostName,
			PlayerCount:      sum.PlayerCount,
			RequiresPassword: sum.RequiresPassword,
			Member:           member,
			Phase:            string(sum.Phase),
		})
	}
	return out
}

func (r *Registry) broadcastLobbies() {
	for id, sub := range r.subs {
		r.push(id, sub)
	}
}

func (r *Registry) push(id string, sub *subscriber) {
	payload, err := json.Marshal(protocol.LobbiesMessage{
		Type: "lobbies",
		Data: r.summariesFor(sub.userID),
	})
	if err != nil {
		return
	}
	select {
	case sub.out <- payload:
	default:
		// Slow or gone; drop the listener, never stall the loop.
		r.deps.Log.Warn("dropping lobby subscriber", zap.String("sub", id))
		delete(r.subs, id)
		close(sub.out)
	}
}

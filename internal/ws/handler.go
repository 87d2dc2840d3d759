// Package ws terminates websocket connections and bridges them onto the
// session and registry actors. The handler authenticates, attaches, then
// runs one reader loop; a writer goroutine drains the session's outbox.
package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avalonline/avalon-backend/internal/protocol"
	"github.com/avalonline/avalon-backend/internal/registry"
	"github.com/avalonline/avalon-backend/internal/session"
	"github.com/avalonline/avalon-backend/internal/store"
)

const writeTimeout = 3 * time.Second

type Server struct {
	Registry *registry.Registry
	Store    *store.Store
	Log      *zap.Logger
	Accept   *websocket.AcceptOptions
}

// decodeAuth unpacks the base64 "username:password" token clients pass in
// the auth query parameter.
func decodeAuth(token string) (username, password string, ok bool) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", "", false
	}
	username, password, ok = strings.Cut(string(raw), ":")
	return username, password, ok
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.Close(websocket.StatusCode(code), reason)
}

// Room handles /ws/{room_id}: the per-game connection.
func (s *Server) Room() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "room_id")

		conn, err := websocket.Accept(w, r, s.Accept)
		if err != nil {
			return
		}

		token := r.URL.Query().Get("auth")
		if token == "" {
			closeWith(conn, protocol.CloseBadAuth, "missing auth")
			return
		}
		username, password, ok := decodeAuth(token)
		if !ok {
			closeWith(conn, protocol.CloseBadAuth, "malformed auth")
			return
		}
		user, err := s.Store.Authenticate(r.Context(), username, password)
		if err != nil {
			closeWith(conn, protocol.CloseBadCredentials, "invalid credentials")
			return
		}
		userID := user.ID.String()

		reply := make(chan *session.Session, 1)
		s.Registry.Inbox() <- registry.GetRoom{RoomID: roomID, Reply: reply}
		sess := <-reply
		if sess == nil {
			closeWith(conn, protocol.CloseNotMember, "room not found")
			return
		}

		out := make(session.Outbox, 16)
		attachReply := make(chan error, 1)
		attach := session.Attach{
			UserID: userID,
			Out:    out,
			Close:  func(code int, reason string) { closeWith(conn, code, reason) },
			Reply:  attachReply,
		}
		select {
		case sess.Inbox() <- attach:
		case <-sess.Done():
			closeWith(conn, protocol.CloseNotMember, "room not found")
			return
		}
		if err := <-attachReply; err != nil {
			closeWith(conn, protocol.CloseNotMember, "not a member")
			return
		}
		defer func() {
			select {
			case sess.Inbox() <- session.Detach{UserID: userID, Out: out}:
			case <-sess.Done():
			}
		}()

		// Writer: the session never blocks on us, we never block on it.
		writeCtx, writeCancel := context.WithCancel(context.Background())
		defer writeCancel()
		go func() {
			for payload := range out {
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				err := conn.Write(ctx, websocket.MessageText, payload)
				cancel()
				if err != nil {
					return
				}
			}
			// Session closed the outbox; it already sent a close code if
			// one applied.
			_ = conn.Close(websocket.StatusNormalClosure, "")
		}()

		// Reader loop. Ill-formed frames are dropped, not answered: clients
		// race server-driven transitions and stale input is expected.
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			var msg protocol.ClientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			select {
			case sess.Inbox() <- session.FromClient{UserID: userID, Msg: msg}:
			case <-sess.Done():
				return
			}
		}
	}
}

// Lobbies handles /lobbies_ws: a read-only feed of lobby summaries.
// Authentication is optional; authenticated listeners additionally see
// their own in-progress rooms.
func (s *Server) Lobbies() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, s.Accept)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		userID := ""
		if token := r.URL.Query().Get("auth"); token != "" {
			if username, password, ok := decodeAuth(token); ok {
				if user, err := s.Store.Authenticate(r.Context(), username, password); err == nil {
					userID = user.ID.String()
				}
			}
		}

		subID := uuid.NewString()
		out := make(session.Outbox, 16)
		select {
		case s.Registry.Inbox() <- registry.SubscribeLobby{ID: subID, UserID: userID, Out: out}:
		case <-s.Registry.Done():
			return
		}
		defer func() {
			select {
			case s.Registry.Inbox() <- registry.UnsubscribeLobby{ID: subID}:
			case <-s.Registry.Done():
			}
		}()

		writeCtx, writeCancel := context.WithCancel(context.Background())
		defer writeCancel()
		go func() {
			for payload := range out {
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				err := conn.Write(ctx, websocket.MessageText, payload)
				cancel()
				if err != nil {
					return
				}
			}
		}()

		// Listeners only read; drain until the peer goes away.
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}
}

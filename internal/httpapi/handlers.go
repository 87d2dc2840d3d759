package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/avalonline/avalon-backend/internal/protocol"
	"github.com/avalonline/avalon-backend/internal/registry"
	"github.com/avalonline/avalon-backend/internal/session"
	"github.com/avalonline/avalon-backend/internal/store"
)

type signupRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type profileResponse struct {
	UserID      string                    `json:"user_id"`
	Username    string                    `json:"username"`
	DisplayName string                    `json:"display_name"`
	TotalGames  int                       `json:"total_games"`
	GoodWins    int                       `json:"good_wins"`
	GoodLosses  int                       `json:"good_losses"`
	EvilWins    int                       `json:"evil_wins"`
	EvilLosses  int                       `json:"evil_losses"`
	RoleStats   map[string]store.RoleStat `json:"role_stats"`
}

type updateProfileRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

type leaderboardEntry struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Wins        int    `json:"wins"`
	TotalGames  int    `json:"total_games"`
	GoodWins    int    `json:"good_wins"`
	EvilWins    int    `json:"evil_wins"`
}

type roomRequest struct {
	Password string `json:"password"`
}

type roomResponse struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// currentUser resolves HTTP basic credentials to an account, or nil.
func (a *API) currentUser(r *http.Request) *store.User {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil
	}
	u, err := a.store.Authenticate(r.Context(), username, password)
	if err != nil {
		return nil
	}
	return u
}

func (a *API) requireUser(w http.ResponseWriter, r *http.Request) *store.User {
	u := a.currentUser(r)
	if u == nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
	}
	return u
}

func (a *API) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	if req.Username == "" || req.Password == "" || req.DisplayName == "" {
		writeError(w, http.StatusBadRequest, "username, password and display_name are required")
		return
	}
	u, err := a.store.Create(r.Context(), req.Username, req.Password, req.DisplayName)
	if errors.Is(err, store.ErrUsernameTaken) {
		writeError(w, http.StatusBadRequest, "Username already taken")
		return
	}
	if err != nil {
		a.log.Error("signup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "signup failed")
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{UserID: u.ID.String(), DisplayName: u.DisplayName})
}

func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	u, err := a.store.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{UserID: u.ID.String(), DisplayName: u.DisplayName})
}

func profileOf(u *store.User) profileResponse {
	stats := map[string]store.RoleStat{}
	if u.RoleStats != "" {
		_ = json.Unmarshal([]byte(u.RoleStats), &stats)
	}
	return profileResponse{
		UserID:      u.ID.String(),
		Username:    u.Username,
		DisplayName: u.DisplayName,
		TotalGames:  u.TotalGames,
		GoodWins:    u.GoodWins,
		GoodLosses:  u.GoodLosses,
		EvilWins:    u.EvilWins,
		EvilLosses:  u.EvilLosses,
		RoleStats:   stats,
	}
}

func (a *API) GetProfile(w http.ResponseWriter, r *http.Request) {
	u := a.requireUser(w, r)
	if u == nil {
		return
	}
	writeJSON(w, http.StatusOK, profileOf(u))
}

func (a *API) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	u := a.requireUser(w, r)
	if u == nil {
		return
	}
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	updated, err := a.store.UpdateProfile(r.Context(), u.ID.String(), req.Username, req.DisplayName)
	if errors.Is(err, store.ErrUsernameTaken) {
		writeError(w, http.StatusBadRequest, "Username already taken")
		return
	}
	if err != nil {
		a.log.Error("profile update failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}

	// Propagate the display name into any live rooms and the lobby list.
	select {
	case a.registry.Inbox() <- registry.SyncProfile{UserID: updated.ID.String(), Name: updated.DisplayName}:
	case <-a.registry.Done():
	}

	writeJSON(w, http.StatusOK, profileOf(updated))
}

func (a *API) GetProfileByUsername(w http.ResponseWriter, r *http.Request) {
	if a.requireUser(w, r) == nil {
		return
	}
	u, err := a.store.ByUsername(r.Context(), chi.URLParam(r, "username"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, profileOf(u))
}

func (a *API) Leaderboard(w http.ResponseWriter, r *http.Request) {
	if a.requireUser(w, r) == nil {
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	users, err := a.store.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "leaderboard failed")
		return
	}
	entries := make([]leaderboardEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, leaderboardEntry{
			UserID:      u.ID.String(),
			Username:    u.Username,
			DisplayName: u.DisplayName,
			Wins:        u.Wins(),
			TotalGames:  u.TotalGames,
			GoodWins:    u.GoodWins,
			EvilWins:    u.EvilWins,
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) CreateRoom(w http.ResponseWriter, r *http.Request) {
	u := a.requireUser(w, r)
	if u == nil {
		return
	}
	var req roomRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // password optional

	reply := make(chan registry.CreateResult, 1)
	a.registry.Inbox() <- registry.CreateRoom{
		Host: session.Player{
			UserID: u.ID.String(),
			Name:   u.DisplayName,
			Wins:   u.Wins(),
		},
		Password: req.Password,
		Reply:    reply,
	}
	res := <-reply
	if errors.Is(res.Err, session.ErrAlreadyHosting) {
		writeError(w, http.StatusBadRequest, "You already have an active lobby - reconnect to it instead.")
		return
	}
	if res.Err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	writeJSON(w, http.StatusOK, roomResponse{RoomID: res.Room.ID(), UserID: u.ID.String()})
}

func (a *API) JoinRoom(w http.ResponseWriter, r *http.Request) {
	u := a.requireUser(w, r)
	if u == nil {
		return
	}
	var req roomRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	roomID := chi.URLParam(r, "room_id")
	roomReply := make(chan *session.Session, 1)
	a.registry.Inbox() <- registry.GetRoom{RoomID: roomID, Reply: roomReply}
	sess := <-roomReply
	if sess == nil {
		writeError(w, http.StatusNotFound, "Room not found")
		return
	}

	joinReply := make(chan error, 1)
	select {
	case sess.Inbox() <- session.Join{
		Player: session.Player{
			UserID: u.ID.String(),
			Name:   u.DisplayName,
			Wins:   u.Wins(),
		},
		Password: req.Password,
		Reply:    joinReply,
	}:
	case <-sess.Done():
		writeError(w, http.StatusNotFound, "Room not found")
		return
	}

	switch err := <-joinReply; {
	case errors.Is(err, session.ErrBadPassword):
		writeError(w, http.StatusForbidden, "Incorrect or missing room password")
	case errors.Is(err, session.ErrGameStarted):
		writeError(w, http.StatusBadRequest, "Game already started")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "join failed")
	default:
		writeJSON(w, http.StatusOK, roomResponse{RoomID: roomID, UserID: u.ID.String()})
	}
}

func (a *API) ListRooms(w http.ResponseWriter, r *http.Request) {
	userID := ""
	if u := a.currentUser(r); u != nil {
		userID = u.ID.String()
	}
	reply := make(chan []protocol.LobbySummary, 1)
	a.registry.Inbox() <- registry.ListRooms{UserID: userID, Reply: reply}
	writeJSON(w, http.StatusOK, <-reply)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/avalonline/avalon-backend/internal/registry"
	"github.com/avalonline/avalon-backend/internal/store"
	"github.com/avalonline/avalon-backend/internal/ws"
)

// API bundles the dependencies the REST handlers need.
type API struct {
	registry *registry.Registry
	store    *store.Store
	log      *zap.Logger
}

func New(reg *registry.Registry, st *store.Store, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{registry: reg, store: st, log: log}
}

// SetupRoutes builds the router with the registry and store injected.
func SetupRoutes(a *API, sockets *ws.Server) http.Handler {
	r := chi.NewRouter()

	r.Post("/signup", a.Signup)
	r.Post("/login", a.Login)
	r.Get("/profile", a.GetProfile)
	r.Put("/profile", a.UpdateProfile)
	r.Get("/profile/{username}", a.GetProfileByUsername)
	r.Get("/leaderboard", a.Leaderboard)

	r.Post("/rooms", a.CreateRoom)
	r.Post("/rooms/{room_id}/join", a.JoinRoom)
	r.Get("/rooms", a.ListRooms)

	r.Get("/ws/{room_id}", sockets.Room())
	r.Get("/lobbies_ws", sockets.Lobbies())

	r.Get("/healthz", Healthz)
	return r
}
